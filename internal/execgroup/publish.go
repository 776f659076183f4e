package execgroup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/towpath-run/towpath/internal/fs"
	"github.com/towpath-run/towpath/internal/step"
)

// publish moves every file a run declared with AddOutputFile from its
// temp staging path to its final path, creating parent directories as
// needed (spec.md §4.6 step 5). A same-filesystem rename is atomic, so a
// reader never observes a partially written output; when the temp and
// destination trees live on different filesystems (EXDEV) rename can't
// work, so publish falls back to a copy-then-remove.
func publish(r *step.Run) error {
	if err := os.MkdirAll(r.OutputDir, fs.DirPermissions); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	for _, out := range r.Outputs() {
		temp := r.TempPath(out.Name)
		info, err := os.Stat(temp)
		if err != nil {
			return fmt.Errorf("run declared output %q but no command wrote %s: %w", out.Name, temp, err)
		}
		if err := os.MkdirAll(filepath.Dir(out.Path), fs.DirPermissions); err != nil {
			return err
		}
		if err := os.Rename(temp, out.Path); err != nil {
			if !errors.Is(err, syscall.EXDEV) {
				return fmt.Errorf("publishing output %q: %w", out.Name, err)
			}
			if copyErr := fs.RecursiveCopy(temp, out.Path, info.Mode()); copyErr != nil {
				return fmt.Errorf("publishing output %q across filesystems: %w", out.Name, copyErr)
			}
			os.RemoveAll(temp)
		}
	}
	return nil
}

// cleanupTemp removes a run's scratch files/directories and its now
// empty temp output directory.
func cleanupTemp(r *step.Run) error {
	for _, f := range r.TemporaryFiles() {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing temporary file %q: %w", f, err)
		}
	}
	for _, d := range r.TemporaryDirectories() {
		if err := os.RemoveAll(d); err != nil {
			return fmt.Errorf("removing temporary directory %q: %w", d, err)
		}
	}
	// Best-effort: the temp output dir may still hold scratch files the
	// run never declared, which is fine to leave for a human to notice.
	_ = os.Remove(r.TempOutputDir)
	return nil
}
