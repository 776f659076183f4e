// Package volatile implements the volatilize feature (SPEC_FULL.md):
// finished tasks' outputs that match an ignore/volatile pattern can be
// replaced with small placeholders to reclaim disk, since they're
// cheaply recomputable by re-running the step. Directory walking uses
// karrick/godirwalk, also used by internal/fs/copy_file.go; pattern
// matching uses gobwas/glob and sabhiram/go-gitignore for the two
// ignore-pattern styles a `volatile_ignore` list may mix.
package volatile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"github.com/karrick/godirwalk"
	ignore "github.com/sabhiram/go-gitignore"
)

const placeholderSuffix = ".volatilized"

// Matcher decides whether a path should be considered volatile.
type Matcher struct {
	globs  []glob.Glob
	ignore *ignore.GitIgnore
}

// NewMatcher compiles a `volatile_ignore` pattern list. Patterns
// containing a `/` are treated as gitignore-style path patterns;
// simple filename patterns are compiled as globs, mirroring how the
// two libraries divide the work in the rest of the example pack.
func NewMatcher(patterns []string) (*Matcher, error) {
	m := &Matcher{}
	var ignoreLines []string
	for _, p := range patterns {
		if strings.Contains(p, "/") {
			ignoreLines = append(ignoreLines, p)
			continue
		}
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compiling volatile_ignore pattern %q: %w", p, err)
		}
		m.globs = append(m.globs, g)
	}
	if len(ignoreLines) > 0 {
		m.ignore = ignore.CompileIgnoreLines(ignoreLines...)
	}
	return m, nil
}

// Match reports whether relPath should be considered volatile.
func (m *Matcher) Match(relPath string) bool {
	base := filepath.Base(relPath)
	for _, g := range m.globs {
		if g.Match(base) {
			return true
		}
	}
	if m.ignore != nil && m.ignore.MatchesPath(relPath) {
		return true
	}
	return false
}

// File describes one candidate file found under a finished task's
// output directory.
type File struct {
	Path           string
	Size           int64
	AlreadyVolatile bool
}

// Scan walks root (a finished task's output directory) and returns the
// files matching m, along with whether each has already been
// volatilized.
func Scan(root string, m *Matcher) ([]File, error) {
	var files []File
	err := godirwalk.Walk(root, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				rel = path
			}
			already := strings.HasSuffix(path, placeholderSuffix)
			target := rel
			if already {
				target = strings.TrimSuffix(rel, placeholderSuffix)
			}
			if !m.Match(target) {
				return nil
			}
			info, err := os.Lstat(path)
			if err != nil {
				return nil
			}
			files = append(files, File{Path: path, Size: info.Size(), AlreadyVolatile: already})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	return files, nil
}

// ReclaimableBytes sums the size of files not yet volatilized, the
// number `volatilize` (without --srsly) reports as "would reclaim".
func ReclaimableBytes(files []File) int64 {
	var total int64
	for _, f := range files {
		if !f.AlreadyVolatile {
			total += f.Size
		}
	}
	return total
}

// Volatilize replaces f's content with a placeholder recording its
// original size, freeing the disk space it used. Only called when the
// user passed --srsly.
func Volatilize(f File) error {
	if f.AlreadyVolatile {
		return nil
	}
	placeholder := f.Path + placeholderSuffix
	note := fmt.Sprintf("volatilized: %d bytes reclaimed; re-run the producing step to restore\n", f.Size)
	if err := os.WriteFile(placeholder, []byte(note), 0o644); err != nil {
		return fmt.Errorf("writing placeholder for %s: %w", f.Path, err)
	}
	if err := os.Remove(f.Path); err != nil {
		return fmt.Errorf("removing volatilized file %s: %w", f.Path, err)
	}
	return nil
}

// BytesToString formats a byte count as a human-readable binary size,
// for volatilize reports.
func BytesToString(n int64) string {
	const unit = 1024.0
	units := []string{"B", "KiB", "MiB", "GiB", "TiB"}
	f := float64(n)
	i := 0
	for f >= unit && i < len(units)-1 {
		f /= unit
		i++
	}
	if i == 0 {
		return fmt.Sprintf("%d %s", n, units[i])
	}
	return fmt.Sprintf("%.1f %s", f, units[i])
}
