// Package ping writes and reads the liveness and provenance files
// described in spec.md §4.6/§4.7 (C8): a queued ping marks a task
// submitted-but-not-started, a run ping marks a task in flight, and an
// annotation file records how a finished output was produced. All three
// are small YAML documents written atomically (temp file + rename), the
// same pattern internal/execgroup/publish.go uses to publish a run's
// outputs.
package ping

import (
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/towpath-run/towpath/internal/config"
)

// QueuedPingPath is the conventional path for a task's queued-liveness
// file, written by the cluster submitter the moment a job is accepted.
func QueuedPingPath(outputDir string) string {
	return filepath.Join(outputDir, ".queued.ping")
}

// RunPingPath is the conventional path for a task's in-flight-liveness
// file, written for the duration of command execution.
func RunPingPath(outputDir string) string {
	return filepath.Join(outputDir, ".run.ping")
}

// QueuedPing is the document the cluster submitter writes when a task
// is submitted to a scheduler.
type QueuedPing struct {
	TaskID    string    `yaml:"task_id"`
	JobID     string    `yaml:"job_id,omitempty"`
	QueuedAt  time.Time `yaml:"queued_at"`
	Host      string    `yaml:"host"`
}

// RunPing is the document written while a task's commands are
// executing, and refreshed periodically so staleness checks can tell a
// hung task from a dead one.
type RunPing struct {
	TaskID    string    `yaml:"task_id"`
	Pid       int       `yaml:"pid"`
	StartedAt time.Time `yaml:"started_at"`
	UpdatedAt time.Time `yaml:"updated_at"`
	Host      string    `yaml:"host"`
}

// Annotation is the provenance document written alongside a run's
// outputs once it finishes (spec.md §4.6 step 6, §4.8/§6): everything
// needed to reconstruct {step_name, run_id, options, inputs, outputs}
// from this file alone, plus the full pipeline configuration and the
// tool versions in effect, so a finished output is self-describing
// even without the rest of the destination tree around it.
type Annotation struct {
	TaskID       string                 `yaml:"task_id"`
	RunID        string                 `yaml:"run_id"`
	StepName     string                 `yaml:"step_name"`
	ModuleName   string                 `yaml:"module_name"`
	Options      map[string]interface{} `yaml:"options"`
	Inputs       map[string][]string    `yaml:"inputs"`
	Outputs      []string               `yaml:"outputs"`
	Config       *config.Document       `yaml:"config,omitempty"`
	ToolVersions map[string]string      `yaml:"tool_versions,omitempty"`
	StartTime    time.Time              `yaml:"start_time"`
	EndTime      time.Time              `yaml:"end_time"`
	PipelineID   string                 `yaml:"pipeline_id"`
	GitRevision  string                 `yaml:"git_revision,omitempty"`
	GitDirty     bool                   `yaml:"git_dirty,omitempty"`
}

// WriteQueued writes a queued ping for taskID, tagged with the
// scheduler's jobID.
func WriteQueued(path, taskID, jobID string) error {
	host, _ := os.Hostname()
	return writeYAML(path, QueuedPing{
		TaskID:   taskID,
		JobID:    jobID,
		QueuedAt: time.Now(),
		Host:     host,
	})
}

// WriteRun writes (or refreshes) a run ping for taskID.
func WriteRun(path, taskID string, startedAt time.Time) error {
	host, _ := os.Hostname()
	return writeYAML(path, RunPing{
		TaskID:    taskID,
		Pid:       os.Getpid(),
		StartedAt: startedAt,
		UpdatedAt: time.Now(),
		Host:      host,
	})
}

// ReadRun reads back a run ping's UpdatedAt, for staleness checks.
func ReadRun(path string) (time.Time, bool) {
	var rp RunPing
	if err := readYAML(path, &rp); err != nil {
		return time.Time{}, false
	}
	return rp.UpdatedAt, true
}

// ReadQueued reads back a queued ping's QueuedAt, for staleness checks.
func ReadQueued(path string) (time.Time, bool) {
	var qp QueuedPing
	if err := readYAML(path, &qp); err != nil {
		return time.Time{}, false
	}
	return qp.QueuedAt, true
}

// ReadQueuedJobID reads back a queued ping's scheduler job id.
func ReadQueuedJobID(path string) (string, bool) {
	var qp QueuedPing
	if err := readYAML(path, &qp); err != nil {
		return "", false
	}
	return qp.JobID, qp.JobID != ""
}

// Remove deletes a ping file. Used by `fix-problems` once a stale
// queued ping with no live job has been confirmed dead.
func Remove(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// WriteAnnotation writes a run's provenance document next to an output
// file, as `<output>.annotation.yaml`.
func WriteAnnotation(outputPath string, a Annotation) error {
	return writeYAML(outputPath+".annotation.yaml", a)
}

func writeYAML(path string, v interface{}) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	tmp := path + "." + uuid.NewString() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, out)
}
