// Package cmd is the CLI surface (spec.md §6): status, run-locally,
// submit-to-cluster, fix-problems, volatilize, and the internal
// run-this entry point a cluster job invokes: one persistent flag set,
// one cobra root, subcommands built from a shared context.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/towpath-run/towpath/internal/clog"
	"github.com/towpath-run/towpath/internal/perr"
)

// Context is the state shared by every subcommand: global flags,
// resolved before RunE executes.
type Context struct {
	ConfigPath  string
	Level       int
	NoColor     bool
	EvenIfDirty bool
	TestRun     bool

	UI clog.UI
}

// Execute builds and runs the root command, returning the process exit
// code (spec.md §6: 0 success, 1 usage/config error, 2 a task's
// command exited non-zero).
func Execute(version string) int {
	ctx := &Context{}
	root := newRootCmd(ctx, version)
	if err := root.Execute(); err != nil {
		ctx.UI.Error(err.Error())

		var taskErr *perr.TaskError
		if errors.As(err, &taskErr) {
			return 2
		}
		return 1
	}
	return 0
}

func newRootCmd(ctx *Context, version string) *cobra.Command {
	root := &cobra.Command{
		Use:           "towpath <command> [<args>]",
		Short:         "towpath runs long, multi-step data processing pipelines",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate(`{{printf "%s" .Version}}
`)
	root.PersistentFlags().StringVarP(&ctx.ConfigPath, "config", "c", "pipeline.yaml", "pipeline configuration file")
	root.PersistentFlags().CountVarP(&ctx.Level, "level", "l", "set log level (-l debug, -ll trace)")
	root.PersistentFlags().BoolVar(&ctx.NoColor, "no-color", false, "disable colorized output")
	root.PersistentFlags().BoolVar(&ctx.EvenIfDirty, "even-if-dirty", false, "proceed against a dirty source tree (annotations record the dirty flag, not a diff)")
	root.PersistentFlags().BoolVar(&ctx.TestRun, "test-run", false, "prefix every output directory with test/, so a trial pipeline never shares a destination with a real one")

	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		ctx.UI = clog.UI{NoColor: ctx.NoColor}
	}

	root.AddCommand(
		newStatusCmd(ctx),
		newRunLocallyCmd(ctx),
		newSubmitToClusterCmd(ctx),
		newFixProblemsCmd(ctx),
		newVolatilizeCmd(ctx),
		newRunThisCmd(ctx),
	)
	return root
}

func fatalf(ctx *Context, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	ctx.UI.Error(msg)
	return errors.New(msg)
}

func pwdOrDot() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}
