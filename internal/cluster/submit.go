package cluster

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/towpath-run/towpath/internal/ping"
)

// Submitter drives one Backend, tracking the scheduler job id assigned
// to each task id so dependent tasks can be submitted with the right
// --dependency/-hold_jid expression (spec.md §5's two-phase submission
// loop: submit filesystem-ready tasks first, then iteratively submit
// tasks whose inputs are now in the job-id table).
type Submitter struct {
	Backend   Backend
	jobIDs    map[string]string // task id -> scheduler job id
}

// NewSubmitter returns a submitter for backend.
func NewSubmitter(backend Backend) *Submitter {
	return &Submitter{Backend: backend, jobIDs: map[string]string{}}
}

// JobID returns the job id assigned to a previously submitted task, if
// any.
func (s *Submitter) JobID(taskID string) (string, bool) {
	id, ok := s.jobIDs[taskID]
	return id, ok
}

// Submit renders and runs the backend's submit command for spec,
// resolving spec.DependsOn (task ids) to scheduler job ids via the
// tracked table, records the resulting job id, and writes a queued
// ping at queuedPingPath.
func (s *Submitter) Submit(ctx context.Context, spec SubmitSpec, queuedPingPath string) (string, error) {
	resolved := spec
	resolved.DependsOn = nil
	for _, dep := range spec.DependsOn {
		jobID, ok := s.jobIDs[dep]
		if !ok {
			return "", fmt.Errorf("cannot submit %s: dependency %s has no job id yet", spec.TaskID, dep)
		}
		resolved.DependsOn = append(resolved.DependsOn, jobID)
	}

	argv, stdin, err := s.Backend.Render(resolved)
	if err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	var errOut bytes.Buffer
	cmd.Stderr = &errOut
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("submitting %s: %w (%s)", spec.TaskID, err, errOut.String())
	}

	jobID, err := s.Backend.ParseJobID(out.String())
	if err != nil {
		return "", err
	}
	s.jobIDs[spec.TaskID] = jobID

	if err := ping.WriteQueued(queuedPingPath, spec.TaskID, jobID); err != nil {
		return "", fmt.Errorf("writing queued ping for %s: %w", spec.TaskID, err)
	}
	return jobID, nil
}
