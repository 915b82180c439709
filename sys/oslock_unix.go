//go:build unix

package sys

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// AcquireOSFileLock takes an advisory exclusive flock on lockPath, creating
// the file if needed. It retries until timeout elapses and then fails with
// ErrLockHeld. The returned release func unlocks and closes the file. The
// file itself stays in place: unlinking it would let a waiter lock the old
// inode while a newcomer locks a fresh file at the same path.
func AcquireOSFileLock(lockPath string, timeout time.Duration) (func() error, error) {
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}

	fd := int(f.Fd())
	deadline := time.Now().Add(timeout)
	for {
		err = unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			rel := func() error {
				_ = unix.Flock(fd, unix.LOCK_UN)
				return f.Close()
			}
			return rel, nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EINTR) {
			_ = f.Close()
			return nil, fmt.Errorf("flock %s: %w", lockPath, err)
		}
		if time.Now().After(deadline) {
			_ = f.Close()
			return nil, fmt.Errorf("%w: %s", ErrLockHeld, lockPath)
		}
		time.Sleep(25 * time.Millisecond)
	}
}

func isSyncUnsupported(err error) bool {
	return errors.Is(err, unix.EINVAL) || errors.Is(err, unix.ENOTSUP)
}
