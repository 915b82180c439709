package index

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/INLOpen/flatindex/core"
	"github.com/INLOpen/flatindex/sys"
)

// writerOptions configures an indexWriter.
type writerOptions struct {
	Path        string
	Layout      layout
	Count       int64
	Preallocate bool
	Logger      *slog.Logger
}

// indexWriter writes a complete index to a temporary file next to its final
// path and publishes it with an atomic rename in Finish. Nothing is visible
// at the final path until Finish succeeds.
type indexWriter struct {
	path     string
	tempPath string
	file     sys.FileHandle
	w        *bufio.Writer
	layout   layout
	want     int64
	written  int64
	scratch  []byte
	lastKey  []byte
	lastOff  int64
	logger   *slog.Logger
	finished bool
}

func newIndexWriter(opts writerOptions) (*indexWriter, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	// Unique per build so an unlocked concurrent build cannot truncate ours.
	pattern := core.FormatTempFilename(filepath.Base(opts.Path)+".*", core.TempFileSuffix)
	file, err := sys.CreateTemp(filepath.Dir(opts.Path), pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary index file for %s: %w", opts.Path, err)
	}
	tempPath := file.Name()
	if err := os.Chmod(tempPath, 0644); err != nil {
		_ = file.Close()
		_ = sys.Remove(tempPath)
		return nil, fmt.Errorf("failed to set mode of temporary index file %s: %w", tempPath, err)
	}
	iw := &indexWriter{
		path:     opts.Path,
		tempPath: tempPath,
		file:     file,
		w:        bufio.NewWriterSize(file, 256*1024),
		layout:   opts.Layout,
		want:     opts.Count,
		scratch:  make([]byte, opts.Layout.recordSize),
		lastOff:  -1,
		logger:   logger,
	}

	if opts.Preallocate {
		size := opts.Layout.fileSize(opts.Count)
		if err := sys.Preallocate(file, size); err != nil {
			if errors.Is(err, sys.ErrPreallocNotSupported) {
				logger.Debug("Preallocation not supported, continuing", "path", tempPath)
			} else {
				logger.Warn("Preallocation failed, continuing", "path", tempPath, "size", size, "error", err)
			}
		}
	}

	if opts.Layout.format == core.FormatV1 {
		header := core.NewIndexHeader(opts.Layout.keyLength, uint64(opts.Count))
		if _, err := header.WriteTo(iw.w); err != nil {
			iw.abort()
			return nil, err
		}
	}
	return iw, nil
}

// Add appends one entry. Entries must arrive in (key, offset) order.
func (iw *indexWriter) Add(key []byte, offset int64) error {
	if len(key) != iw.layout.keyLength {
		return fmt.Errorf("entry key has length %d, index key length is %d", len(key), iw.layout.keyLength)
	}
	if iw.lastKey != nil && core.CompareEntries(core.IndexEntry{Key: iw.lastKey, Offset: iw.lastOff}, core.IndexEntry{Key: key, Offset: offset}) >= 0 {
		return fmt.Errorf("entry %q@%d added out of order after %q@%d", key, offset, iw.lastKey, iw.lastOff)
	}
	putEntry(iw.scratch, key, offset)
	if _, err := iw.w.Write(iw.scratch); err != nil {
		return fmt.Errorf("failed to write index entry: %w", err)
	}
	iw.lastKey = append(iw.lastKey[:0], key...)
	iw.lastOff = offset
	iw.written++
	return nil
}

// AddEncoded appends entries that are already encoded and sorted.
func (iw *indexWriter) AddEncoded(entries []byte, count int64) error {
	if _, err := iw.w.Write(entries); err != nil {
		return fmt.Errorf("failed to write index entries: %w", err)
	}
	iw.written += count
	return nil
}

// Finish flushes, syncs and renames the temporary file over the final path.
func (iw *indexWriter) Finish() error {
	if iw.finished {
		return nil
	}
	if iw.written != iw.want {
		iw.abort()
		return fmt.Errorf("index writer got %d entries, header promises %d", iw.written, iw.want)
	}
	if err := iw.w.Flush(); err != nil {
		iw.abort()
		return fmt.Errorf("failed to flush index file: %w", err)
	}
	if err := iw.file.Sync(); err != nil {
		iw.abort()
		return fmt.Errorf("failed to sync index file: %w", err)
	}
	// Close before rename.
	if err := iw.file.Close(); err != nil {
		_ = sys.Remove(iw.tempPath)
		iw.finished = true
		return fmt.Errorf("failed to close temporary index file: %w", err)
	}
	iw.finished = true
	if err := sys.Rename(iw.tempPath, iw.path); err != nil {
		_ = sys.Remove(iw.tempPath)
		return fmt.Errorf("failed to rename %s to %s: %w", iw.tempPath, iw.path, err)
	}
	iw.logger.Debug("Index file published", "path", iw.path, "entries", iw.written)
	return nil
}

// Abort discards the temporary file. It is safe to call after Finish.
func (iw *indexWriter) Abort() {
	if !iw.finished {
		iw.abort()
	}
}

func (iw *indexWriter) abort() {
	iw.finished = true
	_ = iw.file.Close()
	if err := sys.Remove(iw.tempPath); err != nil {
		iw.logger.Warn("Failed to remove temporary index file", "path", iw.tempPath, "error", err)
	}
}
