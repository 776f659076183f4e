package step

import (
	"fmt"
	"path/filepath"

	"github.com/towpath-run/towpath/internal/perr"
)

// Module is what a step adapter implements: given a Run handle that
// already knows its resolved inputs, declare the outputs, temporary
// paths, and exec groups that make up one run of the step (spec.md
// §4.3/§4.4). internal/steps/shellstep is the pack's example adapter.
type Module interface {
	Declare(r *Run) error
}

// registry is the process-global module_name -> factory table, filled
// by each adapter package's init(), the same self-registration pattern
// cobra subcommands use to attach themselves to a root command.
var registry = map[string]func() Module{}

// Register adds a module factory under name. Adapter packages call this
// from an init() func; a duplicate name is a programmer error.
func Register(name string, factory func() Module) {
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("step: module %q registered twice", name))
	}
	registry[name] = factory
}

// Lookup returns the factory registered for name, if any.
func Lookup(name string) (func() Module, bool) {
	factory, ok := registry[name]
	return factory, ok
}

// OutputFile is one file a run has declared under out/<tag>.
type OutputFile struct {
	Tag  string
	Name string
	Path string // final path, under Run.OutputDir

	// InputPaths are the upstream file paths this particular output was
	// derived from (spec.md §4.4's add_output_file input_paths
	// parameter), so the task engine can decide this one output is
	// CHANGED without treating every other input the run happened to
	// read as relevant to it.
	InputPaths []string
}

// Run is the per-(step, options) declaration handle a Module.Declare
// call receives: it exposes the step's resolved input paths and lets
// the module declare output files, exec groups, and scratch paths.
type Run struct {
	Step    *Step
	RunID   string
	Options map[string]interface{}

	// OutputDir is the final, content-addressed directory this run's
	// outputs are published into (spec.md §4.3):
	// <destination_path>/<dependency_path>/<module_name>-<options_hash>/<run_id>
	OutputDir string
	// TempOutputDir is where commands actually write before an atomic
	// rename into OutputDir (spec.md §4.6 step 5).
	TempOutputDir string

	inputs map[string][]string

	outputs         []OutputFile
	tempFiles       []string
	tempDirectories []string
	execGroups      []*ExecGroup
}

// NewRun constructs a Run for one (step, run id) pair. inputs maps an
// in/<tag> connection to the list of upstream file paths feeding it;
// internal/pipeline.Load computes this by following dependency edges.
func NewRun(s *Step, runID, outputDir, tempOutputDir string, inputs map[string][]string) *Run {
	return &Run{
		Step:          s,
		RunID:         runID,
		Options:       s.Options,
		OutputDir:     outputDir,
		TempOutputDir: tempOutputDir,
		inputs:        inputs,
	}
}

// InputFiles returns the upstream files feeding in/<tag>.
func (r *Run) InputFiles(tag string) []string { return r.inputs[tag] }

// Inputs returns every in/<tag> connection this run resolved, keyed by
// tag. Used to record a run's effective inputs in its ping annotation.
func (r *Run) Inputs() map[string][]string { return r.inputs }

// AddOutputFile declares an out/<tag> file named name, optionally
// recording the upstream paths it was derived from (spec.md §4.4's
// add_output_file(tag, basename, [input_paths])), and returns its
// eventual path under OutputDir. Commands should write to the matching
// path under TempOutputDir (TempPath) and let the engine publish it.
// A second out/<tag> file under the same basename is a *perr.FSConflict
// (output file basenames within a run must be unique).
func (r *Run) AddOutputFile(tag, name string, inputPaths ...string) (string, error) {
	for _, existing := range r.outputs {
		if existing.Name == name {
			return "", perr.NewFSConflict(filepath.Join(r.OutputDir, name))
		}
	}
	path := filepath.Join(r.OutputDir, name)
	r.outputs = append(r.outputs, OutputFile{Tag: tag, Name: name, Path: path, InputPaths: inputPaths})
	return path, nil
}

// TempPath returns the staging path a command should actually write to
// for a file previously declared with AddOutputFile.
func (r *Run) TempPath(name string) string {
	return filepath.Join(r.TempOutputDir, name)
}

// AddTemporaryFile declares a scratch file that lives only in
// TempOutputDir and is discarded after the run's commands finish.
func (r *Run) AddTemporaryFile(name string) string {
	path := r.TempPath(name)
	r.tempFiles = append(r.tempFiles, path)
	return path
}

// AddTemporaryDirectory declares a scratch directory under
// TempOutputDir.
func (r *Run) AddTemporaryDirectory(name string) string {
	path := r.TempPath(name)
	r.tempDirectories = append(r.tempDirectories, path)
	return path
}

// NewExecGroup starts a new fan-out branch of the run's exec tree
// (spec.md's exec-group model); the engine runs all of a run's exec
// groups in the order they were declared.
func (r *Run) NewExecGroup() *ExecGroup {
	eg := &ExecGroup{}
	r.execGroups = append(r.execGroups, eg)
	return eg
}

// Outputs returns the files this run has declared.
func (r *Run) Outputs() []OutputFile { return r.outputs }

// ExecGroups returns the run's declared exec groups, in order.
func (r *Run) ExecGroups() []*ExecGroup { return r.execGroups }

// TemporaryFiles/TemporaryDirectories are cleaned up by the executor
// once a run finishes, successfully or not.
func (r *Run) TemporaryFiles() []string      { return r.tempFiles }
func (r *Run) TemporaryDirectories() []string { return r.tempDirectories }

// ExecGroup is either a flat set of independently-run commands, or a
// set of piped Pipelines — spec.md's exec-group tree node.
type ExecGroup struct {
	commands  []*Command
	pipelines []*Pipeline
}

// AddCommand appends a standalone command to this exec group.
func (eg *ExecGroup) AddCommand(argv []string, opts ...CommandOption) *Command {
	c := newCommand(argv, opts...)
	eg.commands = append(eg.commands, c)
	return c
}

// AddPipeline starts a new shell-pipe-style chain of commands within
// this exec group (spec.md's "pipe" construct, e.g. `dd | samtools`).
func (eg *ExecGroup) AddPipeline() *Pipeline {
	p := &Pipeline{}
	eg.pipelines = append(eg.pipelines, p)
	return p
}

// Commands returns the exec group's standalone commands.
func (eg *ExecGroup) Commands() []*Command { return eg.commands }

// Pipelines returns the exec group's piped command chains.
func (eg *ExecGroup) Pipelines() []*Pipeline { return eg.pipelines }

// Pipeline is an ordered chain of commands connected stdout-to-stdin.
type Pipeline struct {
	commands []*Command
}

// AddCommand appends cmd as the next stage of the pipe. The executor
// wires its stdin to the previous stage's stdout; WithStdin is honoured
// only on the first stage and WithStdout only on the last.
func (p *Pipeline) AddCommand(argv []string, opts ...CommandOption) *Command {
	c := newCommand(argv, opts...)
	p.commands = append(p.commands, c)
	return c
}

// Commands returns the pipeline's stages, in pipe order.
func (p *Pipeline) Commands() []*Command { return p.commands }

// Command is one subprocess invocation: an argv plus optional
// stdin/stdout/stderr file redirections (spec.md's command node).
type Command struct {
	Argv       []string
	StdinPath  string
	StdoutPath string
	StderrPath string
}

func newCommand(argv []string, opts ...CommandOption) *Command {
	c := &Command{Argv: argv}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CommandOption configures a Command at construction time.
type CommandOption func(*Command)

// WithStdout redirects the command's stdout to path (typically a path
// returned from Run.TempPath, which the engine publishes to the matching
// Run.AddOutputFile path).
func WithStdout(path string) CommandOption {
	return func(c *Command) { c.StdoutPath = path }
}

// WithStdin redirects the command's stdin from path.
func WithStdin(path string) CommandOption {
	return func(c *Command) { c.StdinPath = path }
}

// WithStderr redirects the command's stderr to path, in addition to
// the in-memory buffer the executor keeps for error messages.
func WithStderr(path string) CommandOption {
	return func(c *Command) { c.StderrPath = path }
}
