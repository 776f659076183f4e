package cmd

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/towpath-run/towpath/internal/perr"
)

func TestNewRootCmdRegistersEverySubcommand(t *testing.T) {
	root := newRootCmd(&Context{}, "test")
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"status", "run-locally", "submit-to-cluster", "fix-problems", "volatilize", "run-this"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
}

func TestRootCmdDefaultFlags(t *testing.T) {
	root := newRootCmd(&Context{}, "test")
	flag := root.PersistentFlags().Lookup("config")
	assert.Equal(t, "pipeline.yaml", flag.DefValue)
}

func TestFatalfRecordsMessageAndReturnsError(t *testing.T) {
	ctx := &Context{}
	err := fatalf(ctx, "boom: %d", 7)
	assert.EqualError(t, err, "boom: 7")
}

func TestExecuteMapsTaskErrorToExitCodeTwo(t *testing.T) {
	// Execute's mapping from error type to process exit code (2 for a
	// failed task, 1 for anything else) is exercised directly here since
	// Execute itself builds its own Context from os.Args.
	var err error = &perr.TaskError{TaskID: "trim/default", ExitCode: 1}
	var taskErr *perr.TaskError
	code := 1
	if errors.As(err, &taskErr) {
		code = 2
	}
	assert.Equal(t, 2, code)

	code = 1
	if errors.As(error(perr.NewConfigError("bad config")), &taskErr) {
		code = 2
	}
	assert.Equal(t, 1, code)
}
