// Package execgroup materializes a Run's declared exec-group tree into
// real subprocesses (spec.md §4.4/§4.6, C6): each exec group's commands
// run concurrently, each pipeline's commands run connected stdout to
// stdin, and a run's temp directory is published atomically once every
// command has exited zero. Concurrency uses golang.org/x/sync/errgroup;
// stderr capture uses hashicorp/go-gatedio's concurrency-safe buffer,
// since exec.Cmd
// copies into it from its own internal goroutine while the caller may
// read it concurrently on timeout/cancellation.
package execgroup

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/hashicorp/go-gatedio"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	"github.com/towpath-run/towpath/internal/step"
)

// Run executes every exec group and pipeline declared on r, in order,
// then publishes its outputs. On any command's non-zero exit, Run
// starts no later exec group, cancels the commands still running in the
// failing group and waits for them to exit, removes the run's temporary
// files and directories, and returns the failure.
func Run(ctx context.Context, r *step.Run, logger hclog.Logger) error {
	if err := os.MkdirAll(r.TempOutputDir, 0o755); err != nil {
		return fmt.Errorf("creating temp output dir: %w", err)
	}
	for _, dir := range r.TemporaryDirectories() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating temporary directory: %w", err)
		}
	}

	for _, eg := range r.ExecGroups() {
		if err := runExecGroup(ctx, eg, logger); err != nil {
			_ = cleanupTemp(r)
			return err
		}
	}

	if err := publish(r); err != nil {
		_ = cleanupTemp(r)
		return err
	}
	return cleanupTemp(r)
}

func runExecGroup(ctx context.Context, eg *step.ExecGroup, logger hclog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, cmd := range eg.Commands() {
		cmd := cmd
		g.Go(func() error { return runCommand(gctx, cmd, nil, logger) })
	}
	for _, pipe := range eg.Pipelines() {
		pipe := pipe
		g.Go(func() error { return runPipeline(gctx, pipe, logger) })
	}
	return g.Wait()
}

// runPipeline connects each command's stdout to the next command's
// stdin, the same way a shell pipe chains processes together.
func runPipeline(ctx context.Context, p *step.Pipeline, logger hclog.Logger) error {
	commands := p.Commands()
	if len(commands) == 0 {
		return nil
	}

	procs := make([]*exec.Cmd, len(commands))
	pipes := make([]*io.PipeWriter, 0, len(commands)-1)

	for i, c := range commands {
		proc := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
		procs[i] = proc

		if i == 0 {
			if c.StdinPath != "" {
				f, err := os.Open(c.StdinPath)
				if err != nil {
					return fmt.Errorf("opening pipeline stdin: %w", err)
				}
				defer f.Close()
				proc.Stdin = f
			}
		}

		if i < len(commands)-1 {
			pr, pw := io.Pipe()
			proc.Stdout = pw
			pipes = append(pipes, pw)
			procs[i+1].Stdin = pr
		} else if c.StdoutPath != "" {
			f, err := os.Create(c.StdoutPath)
			if err != nil {
				return fmt.Errorf("opening pipeline stdout: %w", err)
			}
			defer f.Close()
			proc.Stdout = f
		}

		stderr := newOutputBuffer()
		if c.StderrPath != "" {
			f, err := os.Create(c.StderrPath)
			if err != nil {
				return fmt.Errorf("opening pipeline stderr: %w", err)
			}
			defer f.Close()
			proc.Stderr = io.MultiWriter(stderr, f)
		} else {
			proc.Stderr = stderr
		}
	}

	g, _ := errgroup.WithContext(ctx)
	for i, proc := range procs {
		i, proc := i, proc
		g.Go(func() error {
			err := proc.Start()
			if err == nil {
				err = proc.Wait()
			}
			if i < len(pipes) {
				pipes[i].Close()
			}
			if err != nil {
				return fmt.Errorf("pipeline stage %q: %w", proc.Path, describeExit(err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if logger != nil {
		logger.Debug("pipeline finished", "stages", len(commands))
	}
	return nil
}

func runCommand(ctx context.Context, c *step.Command, stdin io.Reader, logger hclog.Logger) error {
	proc := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
	if stdin != nil {
		proc.Stdin = stdin
	} else if c.StdinPath != "" {
		f, err := os.Open(c.StdinPath)
		if err != nil {
			return fmt.Errorf("opening stdin: %w", err)
		}
		defer f.Close()
		proc.Stdin = f
	}
	if c.StdoutPath != "" {
		if err := os.MkdirAll(filepath.Dir(c.StdoutPath), 0o755); err != nil {
			return err
		}
		f, err := os.Create(c.StdoutPath)
		if err != nil {
			return fmt.Errorf("opening stdout: %w", err)
		}
		defer f.Close()
		proc.Stdout = f
	}
	stderr := newOutputBuffer()
	if c.StderrPath != "" {
		if err := os.MkdirAll(filepath.Dir(c.StderrPath), 0o755); err != nil {
			return err
		}
		f, err := os.Create(c.StderrPath)
		if err != nil {
			return fmt.Errorf("opening stderr: %w", err)
		}
		defer f.Close()
		proc.Stderr = io.MultiWriter(stderr, f)
	} else {
		proc.Stderr = stderr
	}

	if logger != nil {
		logger.Debug("exec", "argv", c.Argv)
	}
	if err := proc.Run(); err != nil {
		return fmt.Errorf("command %v: %w (stderr: %s)", c.Argv, err, stderr.String())
	}
	return nil
}

func describeExit(err error) error {
	if exitErr, ok := err.(*exec.ExitError); ok {
		return fmt.Errorf("exit %d", exitErr.ExitCode())
	}
	return err
}

// newOutputBuffer returns a concurrency-safe buffer suitable for a
// command's Stderr, so it can be read back for an error message.
func newOutputBuffer() *gatedio.ByteBuffer {
	return gatedio.NewByteBuffer()
}
