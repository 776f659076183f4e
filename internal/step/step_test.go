package step

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsHashStableUnderKeyOrder(t *testing.T) {
	a := map[string]interface{}{"b": 1, "a": "x"}
	b := map[string]interface{}{"a": "x", "b": 1}
	assert.Equal(t, OptionsHash(a), OptionsHash(b))
	assert.Len(t, OptionsHash(a), 8)
}

func TestOptionsHashSensitiveToValues(t *testing.T) {
	a := map[string]interface{}{"threads": 4}
	b := map[string]interface{}{"threads": 8}
	assert.NotEqual(t, OptionsHash(a), OptionsHash(b))
}

func TestOptionsHashNestedOrdering(t *testing.T) {
	a := map[string]interface{}{
		"outer": map[string]interface{}{"z": 1, "a": 2},
	}
	b := map[string]interface{}{
		"outer": map[string]interface{}{"a": 2, "z": 1},
	}
	assert.Equal(t, OptionsHash(a), OptionsHash(b))
}

type shellOptions struct {
	Command string `mapstructure:"command" validate:"required"`
	Threads int    `mapstructure:"threads"`
}

func TestDecodeOptionsSuccess(t *testing.T) {
	var out shellOptions
	err := DecodeOptions(map[string]interface{}{"command": "fastqc", "threads": "4"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "fastqc", out.Command)
	assert.Equal(t, 4, out.Threads)
}

func TestDecodeOptionsMissingRequired(t *testing.T) {
	var out shellOptions
	err := DecodeOptions(map[string]interface{}{"threads": 2}, &out)
	assert.Error(t, err)
}

func TestConnectionString(t *testing.T) {
	assert.Equal(t, "in/reads", Connection{Direction: In, Tag: "reads"}.String())
	assert.Equal(t, "out/bam", Connection{Direction: Out, Tag: "bam"}.String())
}

func TestAddOutputFileRejectsDuplicateBasename(t *testing.T) {
	r := NewRun(&Step{Name: "trim"}, "default", "/out", "/out.tmp", nil)

	_, err := r.AddOutputFile("default", "x.txt")
	require.NoError(t, err)

	_, err = r.AddOutputFile("secondary", "x.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "x.txt")
}

func TestAddOutputFileRecordsInputPaths(t *testing.T) {
	r := NewRun(&Step{Name: "align"}, "default", "/out", "/out.tmp", map[string][]string{
		"reads": {"/upstream/reads.fq"},
	})

	path, err := r.AddOutputFile("bam", "aligned.bam", r.InputFiles("reads")...)
	require.NoError(t, err)

	require.Len(t, r.Outputs(), 1)
	assert.Equal(t, path, r.Outputs()[0].Path)
	assert.Equal(t, []string{"/upstream/reads.fq"}, r.Outputs()[0].InputPaths)
}

func TestInputsReturnsEveryResolvedConnection(t *testing.T) {
	inputs := map[string][]string{"reads": {"/a.fq"}, "ref": {"/ref.fa"}}
	r := NewRun(&Step{Name: "align"}, "default", "/out", "/out.tmp", inputs)
	assert.Equal(t, inputs, r.Inputs())
}
