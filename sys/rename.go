package sys

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var renameImpl = os.Rename

// Rename atomically replaces newpath with oldpath and then syncs the parent
// directory so the new name survives a crash. Both paths must be on the same
// filesystem.
func Rename(oldpath, newpath string) error {
	if err := renameImpl(oldpath, newpath); err != nil {
		return err
	}
	if err := SyncDir(filepath.Dir(newpath)); err != nil {
		return fmt.Errorf("failed to sync directory after rename: %w", err)
	}
	return nil
}

// SyncDir fsyncs a directory. Filesystems that refuse to sync a directory
// handle are tolerated.
func SyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		var pe *os.PathError
		if errors.As(err, &pe) && isSyncUnsupported(pe.Err) {
			return nil
		}
		return err
	}
	return nil
}
