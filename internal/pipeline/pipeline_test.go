package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/towpath-run/towpath/internal/step"
)

type echoModule struct{}

func (echoModule) Declare(r *step.Run) error {
	out, err := r.AddOutputFile("default", "out.txt", r.InputFiles("default")...)
	if err != nil {
		return err
	}
	eg := r.NewExecGroup()
	eg.AddCommand([]string{"true"}, step.WithStdout(r.TempPath("out.txt")))
	_ = out
	return nil
}

func init() {
	if _, ok := step.Lookup("echostep"); !ok {
		step.Register("echostep", func() step.Module { return echoModule{} })
	}
}

func writeTestDoc(t *testing.T) (string, string) {
	t.Helper()
	dest := t.TempDir()
	cfgDir := t.TempDir()
	path := filepath.Join(cfgDir, "pipeline.yaml")
	body := `
destination_path: ` + dest + `
steps:
  trim (echostep):
    _depends: null
  align (echostep):
    _depends: [trim]
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path, dest
}

func TestLoadBuildsTasksInDependencyOrder(t *testing.T) {
	path, _ := writeTestDoc(t)
	p, err := Load(path, hclog.NewNullLogger(), false)
	require.NoError(t, err)

	ids := p.TaskIDs()
	require.Len(t, ids, 2)
	assert.Equal(t, "trim/default", ids[0])
	assert.Equal(t, "align/default", ids[1])
}

func TestDryRunLocallyPlansBothTasksInOrder(t *testing.T) {
	path, _ := writeTestDoc(t)
	p, err := Load(path, hclog.NewNullLogger(), false)
	require.NoError(t, err)

	planned, err := p.DryRunLocally(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"trim/default", "align/default"}, planned)
}

func TestDryRunLocallyRespectsExplicitSelection(t *testing.T) {
	path, _ := writeTestDoc(t)
	p, err := Load(path, hclog.NewNullLogger(), false)
	require.NoError(t, err)

	planned, err := p.DryRunLocally([]string{"trim/default"})
	require.NoError(t, err)
	assert.Equal(t, []string{"trim/default"}, planned)
}

func writeTestDocWithThreads(t *testing.T, trimThreads, alignThreads int) (string, string) {
	t.Helper()
	dest := t.TempDir()
	cfgDir := t.TempDir()
	path := filepath.Join(cfgDir, "pipeline.yaml")
	body := fmt.Sprintf(`
destination_path: %s
steps:
  trim (echostep):
    _depends: null
    threads: %d
  align (echostep):
    _depends: [trim]
    threads: %d
`, dest, trimThreads, alignThreads)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path, dest
}

func outputDirs(t *testing.T, p *Pipeline) map[string]string {
	t.Helper()
	dirs := map[string]string{}
	for _, id := range p.TaskIDs() {
		tc, _ := p.Context(id)
		dirs[id] = tc.Run.OutputDir
	}
	return dirs
}

// TestChangingAnUpstreamStepsOptionsCascadesToEveryDescendant exercises
// the option-sensitivity scenario: changing trim's options must change
// both trim's and align's output directories, since each step's
// directory is built from its entire ancestor chain's options, not
// just its own.
func TestChangingAnUpstreamStepsOptionsCascadesToEveryDescendant(t *testing.T) {
	path1, _ := writeTestDocWithThreads(t, 4, 2)
	p1, err := Load(path1, hclog.NewNullLogger(), false)
	require.NoError(t, err)
	dirs1 := outputDirs(t, p1)

	path2, _ := writeTestDocWithThreads(t, 8, 2)
	p2, err := Load(path2, hclog.NewNullLogger(), false)
	require.NoError(t, err)
	dirs2 := outputDirs(t, p2)

	assert.NotEqual(t, dirs1["trim/default"], dirs2["trim/default"])
	assert.NotEqual(t, dirs1["align/default"], dirs2["align/default"],
		"align's directory must change when its ancestor trim's options change")
}

func TestTestRunPrefixesOutputDirectories(t *testing.T) {
	path, _ := writeTestDoc(t)
	p, err := Load(path, hclog.NewNullLogger(), true)
	require.NoError(t, err)

	for _, id := range p.TaskIDs() {
		tc, _ := p.Context(id)
		parts := strings.Split(tc.Run.OutputDir, string(filepath.Separator))
		assert.Contains(t, parts, "test")
	}
}

func TestLoadRejectsTwoRunsClaimingTheSameOutputPath(t *testing.T) {
	dest := t.TempDir()
	cfgDir := t.TempDir()
	path := filepath.Join(cfgDir, "pipeline.yaml")
	body := `
destination_path: ` + dest + `
steps:
  trim (echostep):
    _depends: null
  retrim (echostep):
    _depends: null
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	_, err := Load(path, hclog.NewNullLogger(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "two runs claim the same output file")
}
