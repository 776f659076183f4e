package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"github.com/towpath-run/towpath/internal/clog"
	"github.com/towpath-run/towpath/internal/pipeline"
)

func newRunLocallyCmd(ctx *Context) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "run-locally [task...]",
		Short: "execute every READY task (or the given tasks) as local subprocesses",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLocally(ctx, args, dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report which tasks would run without executing anything")
	return cmd
}

func runLocally(ctx *Context, taskIDs []string, dryRun bool) error {
	logger := clog.New(ctx.Level, ctx.NoColor)
	p, err := pipeline.Load(ctx.ConfigPath, logger, ctx.TestRun)
	if err != nil {
		return fatalf(ctx, "%v", err)
	}
	defer p.Notifier.Close()

	if dryRun {
		planned, err := p.DryRunLocally(taskIDs)
		if err != nil {
			return fatalf(ctx, "%v", err)
		}
		for _, id := range planned {
			ctx.UI.Info(fmt.Sprintf("would run %s", id))
		}
		if len(planned) == 0 {
			ctx.UI.Info("nothing to do: no selected task is READY")
		}
		return nil
	}

	scmStatus, err := p.CheckSCM(pwdOrDot(), ctx.EvenIfDirty)
	if err != nil {
		return fatalf(ctx, "%v", err)
	}

	s := spinner.New(spinner.CharSets[11], 100*time.Millisecond)
	if !ctx.NoColor {
		s.Start()
		defer s.Stop()
	}

	ran, err := p.RunLocally(context.Background(), taskIDs, scmStatus)
	if err != nil {
		return err
	}
	for _, id := range ran {
		ctx.UI.Info(fmt.Sprintf("finished %s", id))
	}
	if len(ran) == 0 {
		ctx.UI.Info("nothing to do: no selected task is READY")
	}
	return nil
}
