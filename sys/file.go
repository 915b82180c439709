package sys

import (
	"io"
	"os"
	"sync/atomic"
)

var debugMode atomic.Bool

// FileHandle is the subset of *os.File the index and data file code relies on.
type FileHandle interface {
	io.ReadWriteCloser
	io.ReaderAt
	io.WriterAt
	io.Seeker

	Stat() (os.FileInfo, error)
	Sync() error
	Truncate(size int64) error
	Name() string
}

type CreateHandler func(name string) (FileHandle, error)
type OpenHandler func(name string) (FileHandle, error)
type OpenFileHandler func(name string, flag int, perm os.FileMode) (FileHandle, error)
type CreateTempHandler func(dir, pattern string) (FileHandle, error)
type RemoveHandler func(name string) error

// SetDebugMode makes every handle opened afterwards log its open and close
// at debug level and register itself in the open-handle table.
func SetDebugMode(mode bool) {
	debugMode.Store(mode)
}

func wrap(f *os.File) FileHandle {
	if debugMode.Load() {
		return newDebugFile(f)
	}
	return &RealFile{f: f}
}

var OpenFile OpenFileHandler = func(name string, flag int, perm os.FileMode) (FileHandle, error) {
	f, err := os.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return wrap(f), nil
}

var Create CreateHandler = func(name string) (FileHandle, error) {
	return OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
}

var Open OpenHandler = func(name string) (FileHandle, error) {
	return OpenFile(name, os.O_RDONLY, 0)
}

// CreateTemp creates a uniquely named file in dir, or in the default temp
// directory when dir is empty.
var CreateTemp CreateTempHandler = func(dir, pattern string) (FileHandle, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, err
	}
	return wrap(f), nil
}

// Remove deletes name. A missing file is not an error.
var Remove RemoveHandler = func(name string) error {
	if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
