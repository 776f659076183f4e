package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/towpath-run/towpath/internal/clog"
	"github.com/towpath-run/towpath/internal/pipeline"
	"github.com/towpath-run/towpath/internal/task"
	"github.com/towpath-run/towpath/internal/volatile"
)

func newVolatilizeCmd(ctx *Context) *cobra.Command {
	var srsly bool
	cmd := &cobra.Command{
		Use:   "volatilize",
		Short: "replace cheaply-recomputable finished outputs with placeholders to reclaim disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVolatilize(ctx, srsly)
		},
	}
	cmd.Flags().BoolVar(&srsly, "srsly", false, "actually remove the matched files instead of only reporting reclaimable space")
	return cmd
}

func runVolatilize(ctx *Context, srsly bool) error {
	logger := clog.New(ctx.Level, ctx.NoColor)
	p, err := pipeline.Load(ctx.ConfigPath, logger, ctx.TestRun)
	if err != nil {
		return fatalf(ctx, "%v", err)
	}
	defer p.Notifier.Close()

	matcher, err := volatile.NewMatcher(p.Doc.VolatileIgnore)
	if err != nil {
		return fatalf(ctx, "%v", err)
	}

	var total int64
	for _, id := range p.TaskIDs() {
		if p.State(id) != task.Finished {
			continue
		}
		tc, _ := p.Context(id)
		files, err := volatile.Scan(tc.Run.OutputDir, matcher)
		if err != nil {
			return fatalf(ctx, "%v", err)
		}
		for _, f := range files {
			if f.AlreadyVolatile {
				continue
			}
			total += f.Size
			if srsly {
				if err := volatile.Volatilize(f); err != nil {
					return fatalf(ctx, "%v", err)
				}
				ctx.UI.Info(fmt.Sprintf("volatilized %s (%s)", f.Path, volatile.BytesToString(f.Size)))
			}
		}
	}

	if total == 0 {
		ctx.UI.Info("nothing volatile to reclaim")
		return nil
	}
	if !srsly {
		ctx.UI.Info(fmt.Sprintf("would reclaim %s; re-run with --srsly to do it", volatile.BytesToString(total)))
	}
	return nil
}
