package cmd

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/towpath-run/towpath/internal/clog"
	"github.com/towpath-run/towpath/internal/pipeline"
)

func newStatusCmd(ctx *Context) *cobra.Command {
	var details bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "show every task's current state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(ctx, details)
		},
	}
	cmd.Flags().BoolVar(&details, "details", false, "include module, options hash, and cores per task")
	return cmd
}

func runStatus(ctx *Context, details bool) error {
	logger := clog.New(ctx.Level, ctx.NoColor)
	p, err := pipeline.Load(ctx.ConfigPath, logger, ctx.TestRun)
	if err != nil {
		return fatalf(ctx, "%v", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	if details {
		table.SetHeader([]string{"task", "state", "module", "options hash", "cores"})
	} else {
		table.SetHeader([]string{"task", "state"})
	}

	for _, id := range p.TaskIDs() {
		tc, _ := p.Context(id)
		state := p.State(id).String()
		if details {
			table.Append([]string{id, state, tc.Step.Module, tc.Step.OptionsHash, fmt.Sprintf("%d", tc.Step.Cores)})
			continue
		}
		table.Append([]string{id, state})
	}
	table.Render()
	return nil
}
