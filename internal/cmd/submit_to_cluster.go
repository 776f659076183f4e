package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/towpath-run/towpath/internal/clog"
	"github.com/towpath-run/towpath/internal/cluster"
	"github.com/towpath-run/towpath/internal/pipeline"
)

func newSubmitToClusterCmd(ctx *Context) *cobra.Command {
	var clusterKind string
	cmd := &cobra.Command{
		Use:   "submit-to-cluster [task...]",
		Short: "submit every READY task (or the given tasks), and the tasks waiting only on them, to the cluster scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return submitToCluster(ctx, args, clusterKind)
		},
	}
	cmd.Flags().StringVar(&clusterKind, "cluster", "auto", "scheduler to submit to: auto, slurm, sge, or uge")
	return cmd
}

func submitToCluster(ctx *Context, taskIDs []string, kindFlag string) error {
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
	backend, err := cluster.New(kind)
	if err != nil {
		return fatalf(ctx, "%v", err)
	}

	if _, err := p.CheckSCM(pwdOrDot(), ctx.EvenIfDirty); err != nil {
		return fatalf(ctx, "%v", err)
	}

	binaryPath, err := os.Executable()
	if err != nil {
		binaryPath = os.Args[0]
	}

	submitted, err := p.SubmitToCluster(background, taskIDs, backend, binaryPath, ctx.ConfigPath)
	if err != nil {
		return err
	}
	for _, id := range submitted {
		ctx.UI.Info(fmt.Sprintf("submitted %s to %s", id, kind))
	}
	if len(submitted) == 0 {
		ctx.UI.Info("nothing to do: no selected task is READY")
	}
	return nil
}

func resolveClusterKind(ctx context.Context, flagValue, docValue string) (cluster.Kind, error) {
	value := flagValue
	if value == "" || value == "auto" {
		if docValue != "" {
			value = docValue
		}
	}
	if value == "" || value == "auto" {
		return cluster.Autodetect(ctx)
	}
	return cluster.Kind(value), nil
}
