// Adapted from https://github.com/thought-machine/please
// Copyright Thought Machine, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0
package fs

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/karrick/godirwalk"
)

// RecursiveCopy copies a single file or an entire directory tree from
// from to to, used as publish's EXDEV fallback when a run's temp
// output directory and its final destination don't share a
// filesystem, so os.Rename can't apply. mode is the mode every
// regular file is created with at the destination; directories are
// created with DirPermissions.
func RecursiveCopy(from, to string, mode os.FileMode) error {
	info, err := os.Lstat(from)
	if err != nil {
		return err
	}
	if !isEffectivelyDir(from, info) {
		return CopyFile(from, to, mode)
	}
	return copyTree(from, to, mode)
}

// isEffectivelyDir reports whether from should be walked as a
// directory: it either is one, or is a symlink that resolves to one.
// A broken symlink reports false here, so RecursiveCopy falls through
// to copying it as a single (likely-failing) file rather than
// silently skipping it.
func isEffectivelyDir(from string, info os.FileInfo) bool {
	if info.Mode()&os.ModeSymlink == 0 {
		return info.IsDir()
	}
	target, err := os.Stat(from)
	return err == nil && target.IsDir()
}

// copyTree walks from with godirwalk, recreating directories and
// copying regular files under to at the same relative position. We
// don't follow symlinks into directories — a symlinked directory is
// itself copied as a directory entry, not traversed — but do copy
// symlinked files, matching what RecursiveCopy's single-file path
// does for a top-level symlink.
func copyTree(from, to string, mode os.FileMode) error {
	return godirwalk.Walk(from, &godirwalk.Options{
		Unsorted:            true,
		AllowNonDirectory:   true,
		FollowSymbolicLinks: false,
		Callback: func(path string, dirent *godirwalk.Dirent) error {
			rel := path[len(from):]
			dest := filepath.Join(to, rel)

			isDir, err := dirent.IsDirOrSymlinkToDir()
			if err != nil {
				if isBrokenSymlink(err) {
					return godirwalk.SkipThis
				}
				return err
			}
			if isDir {
				return os.MkdirAll(dest, DirPermissions)
			}
			return CopyFile(path, dest, mode)
		},
		ErrorCallback: func(pathname string, err error) godirwalk.ErrorAction {
			if isBrokenSymlink(err) {
				return godirwalk.SkipNode
			}
			return godirwalk.Halt
		},
	})
}

func isBrokenSymlink(err error) bool {
	var pathErr *os.PathError
	return errors.As(err, &pathErr)
}
