package sys

import "errors"

// ErrLockHeld is returned when another process holds the lock until the timeout.
var ErrLockHeld = errors.New("file lock held by another process")

var ErrOSFileLockNotSupported = errors.New("OS file locking not supported on this platform")
