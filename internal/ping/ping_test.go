package ping

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRunPing(t *testing.T) {
	dir := t.TempDir()
	path := RunPingPath(dir)
	start := time.Now().Add(-time.Minute).Truncate(time.Second)
	require.NoError(t, WriteRun(path, "align/default", start))

	updated, ok := ReadRun(path)
	require.True(t, ok)
	assert.WithinDuration(t, time.Now(), updated, 5*time.Second)
}

func TestWriteReadQueuedPingAndJobID(t *testing.T) {
	dir := t.TempDir()
	path := QueuedPingPath(dir)
	require.NoError(t, WriteQueued(path, "align/default", "12345"))

	_, ok := ReadQueued(path)
	require.True(t, ok)

	jobID, ok := ReadQueuedJobID(path)
	require.True(t, ok)
	assert.Equal(t, "12345", jobID)
}

func TestReadQueuedJobIDEmptyWhenLocal(t *testing.T) {
	dir := t.TempDir()
	path := QueuedPingPath(dir)
	require.NoError(t, WriteQueued(path, "align/default", ""))

	_, ok := ReadQueuedJobID(path)
	assert.False(t, ok)
}

func TestRemoveIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := QueuedPingPath(dir)
	require.NoError(t, WriteQueued(path, "a/default", ""))
	require.NoError(t, Remove(path))
	require.NoError(t, Remove(path)) // already gone -- still succeeds
}

func TestWriteAnnotation(t *testing.T) {
	dir := t.TempDir()
	outputPath := filepath.Join(dir, "sorted.bam")
	a := Annotation{
		TaskID:     "align/default",
		RunID:      "default",
		StepName:   "align",
		ModuleName: "bwa",
		Options:    map[string]interface{}{"threads": 4},
	}
	require.NoError(t, WriteAnnotation(outputPath, a))

	var readBack Annotation
	require.NoError(t, readYAML(outputPath+".annotation.yaml", &readBack))
	assert.Equal(t, "align/default", readBack.TaskID)
	assert.Equal(t, 4, readBack.Options["threads"])
}

func TestReadMissingPingReturnsNotOK(t *testing.T) {
	_, ok := ReadRun(filepath.Join(t.TempDir(), "missing"))
	assert.False(t, ok)
}
