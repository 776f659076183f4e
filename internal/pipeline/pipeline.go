// Package pipeline is the orchestration layer that threads fscache, the
// parsed config, the step graph, and the task state engine through one
// explicit value (spec.md's whole-document model, C-orchestration),
// constructed once per CLI invocation rather than held as global state.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/towpath-run/towpath/internal/cluster"
	"github.com/towpath-run/towpath/internal/config"
	"github.com/towpath-run/towpath/internal/execgroup"
	"github.com/towpath-run/towpath/internal/fscache"
	"github.com/towpath-run/towpath/internal/graph"
	"github.com/towpath-run/towpath/internal/notify"
	"github.com/towpath-run/towpath/internal/perr"
	"github.com/towpath-run/towpath/internal/ping"
	"github.com/towpath-run/towpath/internal/scm"
	"github.com/towpath-run/towpath/internal/step"
	"github.com/towpath-run/towpath/internal/task"
	"github.com/towpath-run/towpath/internal/tool"
)

// defaultRunID is used for every step until the configuration format
// grows a way to ask for more than one run per step (e.g. one run per
// input sample); see DESIGN.md's Open Question decisions.
const defaultRunID = "default"

// TaskContext binds a graph step, its declared Run, and its derived
// task state together.
type TaskContext struct {
	Task          task.Task
	Step          *step.Step
	Run           *step.Run
	QueuedPing    string
	RunPing       string
}

// Pipeline is one loaded, graph-built, declaration-evaluated pipeline
// document, ready to report status or execute tasks.
type Pipeline struct {
	Doc      *config.Document
	Graph    *graph.Graph
	FS       *fscache.Cache
	Engine   *task.Engine
	Notifier *notify.Notifier
	Logger   hclog.Logger

	order        []string // task ids, in dependency order
	tasks        map[string]*TaskContext
	infos        map[string]task.Info
	toolVersions map[string]string
}

// Load reads the config document at path, builds the step graph,
// evaluates every step module's Declare, and wires up the task state
// engine. It does not run anything. testRun prefixes every derived
// output directory with "test/" (spec.md's TEST_RUN mode), so a trial
// pipeline never shares a destination with a real one.
func Load(path string, logger hclog.Logger, testRun bool) (*Pipeline, error) {
	doc, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	toolVersions, err := tool.CheckAll(doc.Tools)
	if err != nil {
		return nil, err
	}

	g, err := graph.Build(doc)
	if err != nil {
		return nil, err
	}

	fs := fscache.New()
	p := &Pipeline{
		Doc:          doc,
		Graph:        g,
		FS:           fs,
		Logger:       logger,
		tasks:        map[string]*TaskContext{},
		toolVersions: toolVersions,
	}

	// outputsByStep holds each step's declared outputs keyed by
	// connection tag, so a downstream step with several in/<tag>
	// connections resolves each from the matching out/<tag> upstream
	// instead of from whichever step name happened to produce it
	// (spec.md's connection model; a step with more than one DependsOn
	// entry merges same-tag outputs across all of them).
	outputsByStep := map[string]map[string][]string{}
	// claimedPaths rejects two runs claiming the same final output
	// path (spec.md §8's FSConflict scenario), independent of
	// AddOutputFile's own same-run basename check.
	claimedPaths := map[string]string{}
	infos := map[string]task.Info{}

	for _, s := range g.Steps {
		factory, ok := step.Lookup(s.Module)
		if !ok {
			return nil, perr.NewConfigError("no module registered for %q (step %q)", s.Module, s.Name)
		}
		module := factory()

		segments := append([]string(nil), s.DependencyPath...)
		if testRun {
			segments = append([]string{"test"}, segments...)
		}
		outputDir := filepath.Join(append([]string{doc.DestinationPath}, append(segments, defaultRunID)...)...)
		tempOutputDir := outputDir + ".tmp"

		inputs := map[string][]string{}
		for _, dep := range s.DependsOn {
			for tag, paths := range outputsByStep[dep] {
				inputs[tag] = append(inputs[tag], paths...)
			}
		}

		r := step.NewRun(s, defaultRunID, outputDir, tempOutputDir, inputs)
		if err := module.Declare(r); err != nil {
			return nil, fmt.Errorf("step %q: declaring run: %w", s.Name, err)
		}

		t := task.Task{StepName: s.Name, RunID: defaultRunID}
		byTag := map[string][]string{}
		var outInfos []task.OutputInfo
		for _, o := range r.Outputs() {
			if claimant, exists := claimedPaths[o.Path]; exists && claimant != t.ID() {
				return nil, perr.NewFSConflict(o.Path)
			}
			claimedPaths[o.Path] = t.ID()
			byTag[o.Tag] = append(byTag[o.Tag], o.Path)
			outInfos = append(outInfos, task.OutputInfo{Path: o.Path, InputPaths: o.InputPaths})
		}
		outputsByStep[s.Name] = byTag

		tc := &TaskContext{
			Task:       t,
			Step:       s,
			Run:        r,
			QueuedPing: ping.QueuedPingPath(outputDir),
			RunPing:    ping.RunPingPath(outputDir),
		}
		p.tasks[t.ID()] = tc
		p.order = append(p.order, t.ID())

		var deps []task.Task
		for _, dep := range s.DependsOn {
			deps = append(deps, task.Task{StepName: dep, RunID: defaultRunID})
		}
		infos[t.ID()] = task.Info{
			Task:         t,
			Outputs:      outInfos,
			QueuedPing:   tc.QueuedPing,
			RunPing:      tc.RunPing,
			Dependencies: deps,
		}
	}

	p.infos = infos
	p.Engine = task.NewEngine(fs, infos, time.Duration(doc.PingTimeoutSeconds)*time.Second, pingAge)

	if endpoint, ok := notify.ParseEndpoint(doc.Notify); ok {
		p.Notifier = notify.New(endpoint, logger)
	} else {
		p.Notifier = notify.New(nil, logger)
	}

	return p, nil
}

func pingAge(path string) (time.Time, bool) {
	if t, ok := ping.ReadRun(path); ok {
		return t, ok
	}
	return ping.ReadQueued(path)
}

// TaskIDs returns every task id in dependency order.
func (p *Pipeline) TaskIDs() []string { return append([]string(nil), p.order...) }

// State returns a task's current derived state.
func (p *Pipeline) State(taskID string) task.State { return p.Engine.State(taskID) }

// Context looks up a task's full context.
func (p *Pipeline) Context(taskID string) (*TaskContext, bool) {
	tc, ok := p.tasks[taskID]
	return tc, ok
}

// resolve returns the selected task ids in dependency order, or every
// task when ids is empty (the CLI's "no arguments means everything"
// convention).
func (p *Pipeline) resolve(ids []string) ([]string, error) {
	if len(ids) == 0 {
		return p.TaskIDs(), nil
	}
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := p.tasks[id]; !ok {
			return nil, perr.NewConfigError("unknown task: %s", id)
		}
		wanted[id] = true
	}
	out := make([]string, 0, len(wanted))
	for _, id := range p.order {
		if wanted[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

// CheckSCM refuses to proceed against a dirty source tree unless
// evenIfDirty is set, per spec.md's provenance guarantee.
func (p *Pipeline) CheckSCM(repoDir string, evenIfDirty bool) (scm.Status, error) {
	status, err := scm.Describe(repoDir, evenIfDirty)
	if err != nil {
		return status, err
	}
	if status.Dirty && !evenIfDirty {
		return status, perr.NewConfigError(
			"source tree is dirty; re-run with --even-if-dirty to proceed (run annotations then record the dirty flag, not the diff)")
	}
	return status, nil
}

// RunLocally executes every READY task among ids (dependency order),
// skipping anything not READY, and returns the task ids it actually ran.
func (p *Pipeline) RunLocally(ctx context.Context, ids []string, scmStatus scm.Status) ([]string, error) {
	selected, err := p.resolve(ids)
	if err != nil {
		return nil, err
	}
	var ran []string
	for _, id := range selected {
		if p.Engine.State(id) != task.Ready {
			continue
		}
		if err := p.runOne(ctx, id, scmStatus); err != nil {
			return ran, err
		}
		ran = append(ran, id)
		// A fresh engine re-derives states, so tasks that depend on the
		// one just run can become READY later in this loop.
		p.Engine = task.NewEngine(p.FS, p.infos, time.Duration(p.Doc.PingTimeoutSeconds)*time.Second, pingAge)
	}
	return ran, nil
}

// DryRunLocally reports which tasks among ids would run, without
// executing anything (spec.md's dry-run mode): a virtual path->timestamp
// clock stands in for the real filesystem, and each simulated task
// "writes" its declared outputs at the clock's current tick before the
// next round of state derivation, so a chain of dependents becomes
// planned in the same order a real run would process it.
func (p *Pipeline) DryRunLocally(ids []string) ([]string, error) {
	selected, err := p.resolve(ids)
	if err != nil {
		return nil, err
	}
	dr := fscache.NewDryRun(time.Now())
	planned := map[string]bool{}
	var order []string
	for {
		engine := task.NewEngine(dr, p.infos, time.Duration(p.Doc.PingTimeoutSeconds)*time.Second, nil)
		progressed := false
		for _, id := range selected {
			if planned[id] {
				continue
			}
			if engine.State(id) != task.Ready {
				continue
			}
			tc := p.tasks[id]
			for _, out := range tc.Run.Outputs() {
				dr.Stamp(out.Path)
			}
			planned[id] = true
			order = append(order, id)
			progressed = true
		}
		if !progressed {
			break
		}
	}
	return order, nil
}

// RunThis executes exactly one task locally regardless of its current
// state. It's what a submitted cluster job actually invokes (the
// `run-this` subcommand), since a scheduler-launched job doesn't get to
// re-derive readiness the way an interactive run-locally invocation does.
func (p *Pipeline) RunThis(ctx context.Context, id string, scmStatus scm.Status) error {
	if _, ok := p.tasks[id]; !ok {
		return perr.NewConfigError("unknown task: %s", id)
	}
	return p.runOne(ctx, id, scmStatus)
}

func (p *Pipeline) runOne(ctx context.Context, id string, scmStatus scm.Status) error {
	tc := p.tasks[id]
	startedAt := time.Now()
	if err := ping.WriteRun(tc.RunPing, id, startedAt); err != nil {
		return fmt.Errorf("task %s: writing run ping: %w", id, err)
	}
	p.FS.Invalidate(tc.RunPing)
	defer func() {
		ping.Remove(tc.RunPing)
		p.FS.Invalidate(tc.RunPing)
	}()

	p.Notifier.Notify(notify.Event{TaskID: id, Status: "started", Timestamp: startedAt})

	if err := execgroup.Run(ctx, tc.Run, p.Logger); err != nil {
		p.Notifier.Notify(notify.Event{TaskID: id, Status: "failed", Timestamp: time.Now()})
		return &perr.TaskError{TaskID: id, ExitCode: 1, Cause: err}
	}

	endTime := time.Now()
	var outPaths []string
	for _, out := range tc.Run.Outputs() {
		outPaths = append(outPaths, out.Path)
	}
	ann := ping.Annotation{
		TaskID:       id,
		RunID:        tc.Task.RunID,
		StepName:     tc.Step.Name,
		ModuleName:   tc.Step.Module,
		Options:      tc.Step.Options,
		Inputs:       tc.Run.Inputs(),
		Outputs:      outPaths,
		Config:       p.Doc,
		ToolVersions: p.toolVersions,
		StartTime:    startedAt,
		EndTime:      endTime,
		PipelineID:   p.Doc.ID,
		GitRevision:  scmStatus.Revision,
		GitDirty:     scmStatus.Dirty,
	}
	for _, out := range tc.Run.Outputs() {
		if err := ping.WriteAnnotation(out.Path, ann); err != nil {
			return fmt.Errorf("task %s: writing annotation: %w", id, err)
		}
		p.FS.Invalidate(out.Path)
	}

	p.Notifier.Notify(notify.Event{TaskID: id, Status: "finished", Timestamp: endTime})
	return nil
}

// SubmitToCluster submits to backend, in dependency order, every READY
// task among ids and every WAITING task whose unfinished dependencies
// were all submitted earlier in this same call, chaining dependencies
// via the scheduler's own dependency expression (spec.md §5's two-phase
// loop): a task whose dependencies have already been submitted this
// invocation is chained to their job ids; a task whose dependencies are
// already FINISHED on disk is submitted with no dependency at all.
func (p *Pipeline) SubmitToCluster(ctx context.Context, ids []string, backend cluster.Backend, binaryPath, configPath string) ([]string, error) {
	selected, err := p.resolve(ids)
	if err != nil {
		return nil, err
	}
	submitter := cluster.NewSubmitter(backend)
	var submitted []string
	for _, id := range selected {
		if st := p.Engine.State(id); st != task.Ready && st != task.Waiting {
			continue
		}
		tc := p.tasks[id]

		var dependsOn []string
		eligible := true
		for _, dep := range tc.Step.DependsOn {
			depID := task.Task{StepName: dep, RunID: defaultRunID}.ID()
			if _, ok := submitter.JobID(depID); ok {
				dependsOn = append(dependsOn, depID)
				continue
			}
			if p.Engine.State(depID) != task.Finished {
				eligible = false
				break
			}
		}
		if !eligible {
			continue
		}

		spec := cluster.SubmitSpec{
			TaskID:     id,
			Command:    fmt.Sprintf("%s run-this %s --config %s", binaryPath, id, configPath),
			Cores:      tc.Step.Cores,
			DependsOn:  dependsOn,
			StdoutPath: filepath.Join(tc.Run.TempOutputDir, "stdout.log"),
			StderrPath: filepath.Join(tc.Run.TempOutputDir, "stderr.log"),
		}
		if err := os.MkdirAll(tc.Run.TempOutputDir, 0o755); err != nil {
			return submitted, err
		}
		if _, err := submitter.Submit(ctx, spec, tc.QueuedPing); err != nil {
			return submitted, fmt.Errorf("submitting %s: %w", id, err)
		}
		p.FS.Invalidate(tc.QueuedPing)
		submitted = append(submitted, id)
	}
	return submitted, nil
}

// FixProblems reports every queued ping whose scheduler job is no
// longer running (spec.md §4.9), including pings the state engine
// already treats as stale, and removes them when srsly is set. It never
// touches a task currently EXECUTING.
func (p *Pipeline) FixProblems(ctx context.Context, kind cluster.Kind, srsly bool) ([]string, error) {
	running, err := cluster.RunningJobIDs(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("querying scheduler: %w", err)
	}
	var stale []string
	for _, id := range p.order {
		tc := p.tasks[id]
		if !p.FS.Exists(tc.QueuedPing) || p.Engine.State(id) == task.Executing {
			continue
		}
		jobID, ok := ping.ReadQueuedJobID(tc.QueuedPing)
		if ok && running.Contains(jobID) {
			continue
		}
		stale = append(stale, id)
		if srsly {
			ping.Remove(tc.QueuedPing)
			p.FS.Invalidate(tc.QueuedPing)
		}
	}
	return stale, nil
}
