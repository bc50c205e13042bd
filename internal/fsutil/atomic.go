// Package fsutil holds file helpers shared by the checkpoint and output
// writers.
package fsutil

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// WriteFileAtomic replaces path with data so readers see either the old or
// the new content, never a partial write. The temp file lives in the same
// directory so the rename stays on one filesystem.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return eris.Wrap(err, "fsutil: create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck,gosec
		return eris.Wrap(err, "fsutil: write temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck,gosec
		return eris.Wrap(err, "fsutil: sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "fsutil: close temp file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return eris.Wrap(err, "fsutil: rename temp file")
	}

	// Persist the rename itself. Not every platform can fsync a directory.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		d.Close() //nolint:errcheck,gosec
	}
	return nil
}
