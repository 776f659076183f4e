package volatile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcherGlobPattern(t *testing.T) {
	m, err := NewMatcher([]string{"*.bam"})
	require.NoError(t, err)
	assert.True(t, m.Match("sample.bam"))
	assert.True(t, m.Match("nested/dir/sample.bam"))
	assert.False(t, m.Match("sample.vcf"))
}

func TestMatcherGitignoreStylePattern(t *testing.T) {
	m, err := NewMatcher([]string{"scratch/*.tmp"})
	require.NoError(t, err)
	assert.True(t, m.Match("scratch/a.tmp"))
	assert.False(t, m.Match("keep/a.tmp"))
}

func TestNewMatcherRejectsInvalidGlob(t *testing.T) {
	_, err := NewMatcher([]string{"[unterminated"})
	assert.Error(t, err)
}

func TestScanFindsMatchingFilesAndSkipsAlreadyVolatilized(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.bam"), []byte("0123456789"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "keep.vcf"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.bam"+placeholderSuffix), []byte("note"), 0o644))

	m, err := NewMatcher([]string{"*.bam"})
	require.NoError(t, err)

	files, err := Scan(root, m)
	require.NoError(t, err)
	require.Len(t, files, 2)

	byVolatile := map[bool]File{}
	for _, f := range files {
		byVolatile[f.AlreadyVolatile] = f
	}
	assert.Equal(t, int64(10), byVolatile[false].Size)
	assert.True(t, byVolatile[true].AlreadyVolatile)
}

func TestReclaimableBytesCountsOnlyNotYetVolatilized(t *testing.T) {
	files := []File{
		{Size: 100, AlreadyVolatile: false},
		{Size: 200, AlreadyVolatile: true},
		{Size: 50, AlreadyVolatile: false},
	}
	assert.Equal(t, int64(150), ReclaimableBytes(files))
}

func TestVolatilizeReplacesFileWithPlaceholder(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "big.bam")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o644))

	f := File{Path: path, Size: 10}
	require.NoError(t, Volatilize(f))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	data, err := os.ReadFile(path + placeholderSuffix)
	require.NoError(t, err)
	assert.Contains(t, string(data), "10 bytes reclaimed")
}

func TestVolatilizeIsNoOpWhenAlreadyVolatile(t *testing.T) {
	require.NoError(t, Volatilize(File{Path: "/nonexistent/path", AlreadyVolatile: true}))
}

func TestBytesToStringFormatsUnits(t *testing.T) {
	assert.Equal(t, "512 B", BytesToString(512))
	assert.Equal(t, "1.0 KiB", BytesToString(1024))
	assert.Equal(t, "1.5 MiB", BytesToString(1024*1024*3/2))
}
