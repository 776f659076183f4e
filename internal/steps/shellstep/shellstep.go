// Package shellstep is a demonstration step adapter: it runs one
// arbitrary shell command per run and captures its stdout as a single
// declared output file, showing how a module uses the Run declaration
// API without tying it to any one domain tool.
package shellstep

import (
	"github.com/towpath-run/towpath/internal/step"
)

func init() {
	step.Register("shell", func() step.Module { return &Module{} })
}

// Options is the step's options schema, decoded via
// step.DecodeOptions (mapstructure + go-playground/validator tags).
type Options struct {
	Command    string   `mapstructure:"command" validate:"required"`
	Args       []string `mapstructure:"args"`
	OutputName string   `mapstructure:"output_name" validate:"required"`
}

// Module implements step.Module.
type Module struct{}

// Declare wires one exec group containing a single command whose
// stdout becomes the run's one declared output.
func (Module) Declare(r *step.Run) error {
	var opts Options
	if err := step.DecodeOptions(r.Options, &opts); err != nil {
		return err
	}

	if _, err := r.AddOutputFile("default", opts.OutputName); err != nil {
		return err
	}

	eg := r.NewExecGroup()
	eg.AddCommand(
		append([]string{opts.Command}, opts.Args...),
		step.WithStdout(r.TempPath(opts.OutputName)),
	)
	return nil
}
