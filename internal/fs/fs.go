package fs

import (
	"io"
	"os"
)

// DirPermissions is the mode RecursiveCopy and the publish path create
// directories with.
const DirPermissions = 0o755

// CopyFile copies a single file from 'from' to 'to', creating 'to'
// with the given mode. Used as the cross-device fallback when a
// run's temp output directory lives on a different filesystem than
// its final destination, so os.Rename's EXDEV can't apply.
func CopyFile(from, to string, mode os.FileMode) error {
	src, err := os.Open(from)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(to, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return err
	}
	return dst.Close()
}
