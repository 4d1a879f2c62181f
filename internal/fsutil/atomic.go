// Package fsutil holds small filesystem helpers shared by the profile
// store and the config layer.
package fsutil

import (
	"os"

	"grimm.is/warden/internal/errors"
)

// WriteFileAtomic writes data to path through a sibling temp file: the temp
// file is created with the final permissions so there is never a
// world-readable window, fsynced so the bits are durable before the rename,
// then renamed over the target.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return errors.Wrapf(err, errors.KindIO, "creating %s", tmp)
	}
	_, err = f.Write(data)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, errors.KindIO, "writing %s", tmp)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, errors.KindIO, "renaming %s into place", tmp)
	}
	return nil
}
