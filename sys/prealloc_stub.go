//go:build !linux

package sys

// Preallocate is not implemented outside Linux.
func Preallocate(f FileHandle, size int64) error {
	return ErrPreallocNotSupported
}
