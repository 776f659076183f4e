package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/towpath-run/towpath/internal/clog"
	"github.com/towpath-run/towpath/internal/pipeline"
)

// newRunThisCmd is the entry point a cluster job script actually
// invokes: run exactly one task, then exit. It is never meant to be
// typed by a human (spec.md §5's submit-side `#{COMMAND}` renders a
// call to this).
func newRunThisCmd(ctx *Context) *cobra.Command {
	return &cobra.Command{
		Use:    "run-this <task>",
		Short:  "execute exactly one task (invoked by a submitted cluster job)",
		Args:   cobra.ExactArgs(1),
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runThis(ctx, args[0])
		},
	}
}

func runThis(ctx *Context, taskID string) error {
	logger := clog.New(ctx.Level, ctx.NoColor)
	p, err := pipeline.Load(ctx.ConfigPath, logger, ctx.TestRun)
	if err != nil {
		return fatalf(ctx, "%v", err)
	}
	defer p.Notifier.Close()

	scmStatus, err := p.CheckSCM(pwdOrDot(), ctx.EvenIfDirty)
	if err != nil {
		return fatalf(ctx, "%v", err)
	}

	return p.RunThis(context.Background(), taskID, scmStatus)
}
