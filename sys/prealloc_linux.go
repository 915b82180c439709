//go:build linux

package sys

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Preallocate reserves size bytes for f without changing its visible length.
// It returns ErrPreallocNotSupported when the handle has no descriptor or the
// filesystem rejects fallocate. Callers treat that as informational.
func Preallocate(f FileHandle, size int64) error {
	if size <= 0 {
		return nil
	}
	fg, ok := f.(interface{ Fd() uintptr })
	if !ok {
		return ErrPreallocNotSupported
	}
	fd := int(fg.Fd())

	var stat unix.Stat_t
	var dev uint64
	if err := unix.Fstat(fd, &stat); err == nil {
		dev = uint64(stat.Dev)
		if allow, found := preallocCacheLoad(dev); found {
			preallocCacheHit()
			if !allow {
				return ErrPreallocNotSupported
			}
			return fallocate(fd, size)
		}
		preallocCacheMiss()
	}

	var st unix.Statfs_t
	if err := unix.Fstatfs(fd, &st); err != nil {
		return ErrPreallocNotSupported
	}
	switch st.Type {
	case 0xEF53, // EXT2/3/4
		0x58465342, // XFS
		0x9123683E, // BTRFS
		0x01021994, // TMPFS
		0x794C7630, // OVERLAYFS
		0xF2F52010: // F2FS
	default:
		if dev != 0 {
			preallocCacheStore(dev, false)
		}
		return ErrPreallocNotSupported
	}

	err := fallocate(fd, size)
	if dev != 0 {
		preallocCacheStore(dev, !errors.Is(err, ErrPreallocNotSupported))
	}
	return err
}

func fallocate(fd int, size int64) error {
	err := unix.Fallocate(fd, unix.FALLOC_FL_KEEP_SIZE, 0, size)
	if err == nil {
		return nil
	}
	if errors.Is(err, unix.ENOSYS) || errors.Is(err, unix.EINVAL) || errors.Is(err, unix.EOPNOTSUPP) || errors.Is(err, unix.ENOTTY) {
		return ErrPreallocNotSupported
	}
	return fmt.Errorf("preallocation failed for fd=%d: %w", fd, err)
}
