package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReturnsDistinctKinds(t *testing.T) {
	slurm, err := New(Slurm)
	require.NoError(t, err)
	assert.Equal(t, Slurm, slurm.Kind())

	sge, err := New(SGE)
	require.NoError(t, err)
	assert.Equal(t, SGE, sge.Kind())

	uge, err := New(UGE)
	require.NoError(t, err)
	assert.Equal(t, UGE, uge.Kind())
}

func TestNewRejectsUnknownKind(t *testing.T) {
	_, err := New(Kind("lsf"))
	assert.Error(t, err)
}

func TestSlurmRenderEmbedsScriptViaWrap(t *testing.T) {
	backend, err := New(Slurm)
	require.NoError(t, err)
	argv, stdin, err := backend.Render(SubmitSpec{
		TaskID: "align/default", Cores: 4, Command: "bwa mem ref.fa reads.fq",
		StdoutPath: "/tmp/out", StderrPath: "/tmp/err",
	})
	require.NoError(t, err)
	assert.Empty(t, stdin)
	assert.Contains(t, argv, "sbatch")
	assert.Contains(t, argv, "--wrap")
	last := argv[len(argv)-1]
	assert.Contains(t, last, "bwa mem ref.fa reads.fq")
	assert.Contains(t, last, "--cpus-per-task=4")
}

func TestSlurmRenderDependency(t *testing.T) {
	backend, err := New(Slurm)
	require.NoError(t, err)
	argv, _, err := backend.Render(SubmitSpec{TaskID: "b", DependsOn: []string{"10", "11"}, Command: "echo hi"})
	require.NoError(t, err)
	assert.Contains(t, argv, "--dependency=afterany:10:11")
}

func TestSGERenderSendsScriptOverStdin(t *testing.T) {
	backend, err := New(SGE)
	require.NoError(t, err)
	argv, stdin, err := backend.Render(SubmitSpec{TaskID: "align/default", Cores: 2, Command: "samtools sort"})
	require.NoError(t, err)
	assert.NotEmpty(t, stdin)
	assert.Contains(t, stdin, "samtools sort")
	assert.Contains(t, argv, "qsub")
	assert.Contains(t, argv, "-terse")
}

func TestSGERenderHoldJid(t *testing.T) {
	backend, err := New(SGE)
	require.NoError(t, err)
	argv, _, err := backend.Render(SubmitSpec{TaskID: "b", DependsOn: []string{"100", "101"}, Command: "echo hi"})
	require.NoError(t, err)
	assert.Contains(t, argv, "-hold_jid")
	assert.Contains(t, argv, "100,101")
}

func TestSlurmParseJobID(t *testing.T) {
	backend, _ := New(Slurm)
	id, err := backend.ParseJobID("123456\n")
	require.NoError(t, err)
	assert.Equal(t, "123456", id)
}

func TestSlurmParseJobIDRejectsGarbage(t *testing.T) {
	backend, _ := New(Slurm)
	_, err := backend.ParseJobID("submission failed")
	assert.Error(t, err)
}

func TestSGEParseJobID(t *testing.T) {
	backend, _ := New(SGE)
	id, err := backend.ParseJobID("987\n")
	require.NoError(t, err)
	assert.Equal(t, "987", id)
}
