package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/towpath-run/towpath/internal/clog"
	"github.com/towpath-run/towpath/internal/pipeline"
)

func newFixProblemsCmd(ctx *Context) *cobra.Command {
	var clusterKind string
	var srsly bool
	cmd := &cobra.Command{
		Use:   "fix-problems",
		Short: "report (or, with --srsly, remove) queued pings whose scheduler job has died",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fixProblems(ctx, clusterKind, srsly)
		},
	}
	cmd.Flags().StringVar(&clusterKind, "cluster", "auto", "scheduler to query: auto, slurm, sge, or uge")
	cmd.Flags().BoolVar(&srsly, "srsly", false, "actually remove the stale pings instead of only reporting them")
	return cmd
}

func fixProblems(ctx *Context, kindFlag string, srsly bool) error {
	logger := clog.New(ctx.Level, ctx.NoColor)
	p, err := pipeline.Load(ctx.ConfigPath, logger, ctx.TestRun)
	if err != nil {
		return fatalf(ctx, "%v", err)
	}
	defer p.Notifier.Close()

	background := context.Background()
	kind, err := resolveClusterKind(background, kindFlag, p.Doc.Cluster)
	if err != nil {
		return fatalf(ctx, "%v", err)
	}

	stale, err := p.FixProblems(background, kind, srsly)
	if err != nil {
		return fatalf(ctx, "%v", err)
	}
	if len(stale) == 0 {
		ctx.UI.Info("no stale pings found")
		return nil
	}
	verb := "would remove"
	if srsly {
		verb = "removed"
	}
	for _, id := range stale {
		ctx.UI.Info(fmt.Sprintf("%s stale queued ping for %s", verb, id))
	}
	return nil
}
