package shellstep

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/towpath-run/towpath/internal/step"
)

func TestModuleRegisteredAsShell(t *testing.T) {
	factory, ok := step.Lookup("shell")
	require.True(t, ok)
	assert.IsType(t, &Module{}, factory())
}

func TestDeclareAddsSingleOutputAndCommand(t *testing.T) {
	outputDir := t.TempDir()
	tempDir := t.TempDir()
	s := &step.Step{Name: "greet", Module: "shell", Options: map[string]interface{}{
		"command":     "echo",
		"args":        []interface{}{"hi"},
		"output_name": "greeting.txt",
	}}
	r := step.NewRun(s, "default", outputDir, tempDir, nil)

	require.NoError(t, Module{}.Declare(r))

	require.Len(t, r.Outputs(), 1)
	assert.Equal(t, filepath.Join(outputDir, "greeting.txt"), r.Outputs()[0].Path)

	require.Len(t, r.ExecGroups(), 1)
	commands := r.ExecGroups()[0].Commands()
	require.Len(t, commands, 1)
	assert.Equal(t, []string{"echo", "hi"}, commands[0].Argv)
	assert.Equal(t, filepath.Join(tempDir, "greeting.txt"), commands[0].StdoutPath)
}

func TestDeclareFailsWithoutRequiredOptions(t *testing.T) {
	s := &step.Step{Name: "greet", Module: "shell", Options: map[string]interface{}{}}
	r := step.NewRun(s, "default", t.TempDir(), t.TempDir(), nil)
	assert.Error(t, Module{}.Declare(r))
}
