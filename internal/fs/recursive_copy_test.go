package fs

import (
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"
)

func TestRecursiveCopyMissingFile(t *testing.T) {
	base := t.TempDir()
	err := RecursiveCopy(filepath.Join(base, "src"), filepath.Join(base, "dst"), 0o644)
	assert.ErrorContains(t, err, "no such file or directory")
}

func TestRecursiveCopyFile(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src")
	assert.NilError(t, os.WriteFile(src, []byte("hello"), 0o644))

	dst := filepath.Join(base, "dst")
	assert.NilError(t, RecursiveCopy(src, dst, 0o644))

	got, err := os.ReadFile(dst)
	assert.NilError(t, err)
	assert.Equal(t, string(got), "hello")
}

func TestRecursiveCopyDirectory(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src")
	assert.NilError(t, os.MkdirAll(filepath.Join(src, "nested"), DirPermissions))
	assert.NilError(t, os.WriteFile(filepath.Join(src, "nested", "file.txt"), []byte("data"), 0o644))

	dst := filepath.Join(base, "dst")
	assert.NilError(t, RecursiveCopy(src, dst, 0o644))

	got, err := os.ReadFile(filepath.Join(dst, "nested", "file.txt"))
	assert.NilError(t, err)
	assert.Equal(t, string(got), "data")
}
