//go:build !unix

package sys

import "time"

func AcquireOSFileLock(lockPath string, timeout time.Duration) (func() error, error) {
	return nil, ErrOSFileLockNotSupported
}

func isSyncUnsupported(err error) bool {
	return true
}
