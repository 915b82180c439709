package index

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"

	"github.com/INLOpen/flatindex/core"
	"github.com/INLOpen/flatindex/sys"
)

// ReaderOptions configures OpenReader.
type ReaderOptions struct {
	Path       string
	KeyLength  int
	Format     core.IndexFormat
	SearchMode core.SearchMode
	Logger     *slog.Logger
}

// Reader answers lookups against an index file with an on-disk binary
// search. Every probe is its own positioned read of keyLength bytes, so
// memory use does not grow with the index. A Reader is safe for concurrent
// lookups.
type Reader struct {
	file   sys.FileHandle
	path   string
	layout layout
	count  int64
	mode   core.SearchMode
	logger *slog.Logger
}

// OpenReader opens and validates an index. A v1 index whose stored key length
// differs from opts.KeyLength fails with core.ErrSchemaMismatch. A file whose
// size does not fit its entry size fails with core.ErrCorruptIndex.
func OpenReader(opts ReaderOptions) (*Reader, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lay, err := newLayout(opts.Format, opts.KeyLength)
	if err != nil {
		return nil, err
	}

	file, err := sys.Open(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index file %s: %w", opts.Path, err)
	}
	r := &Reader{
		file:   file,
		path:   opts.Path,
		layout: lay,
		mode:   opts.SearchMode,
		logger: logger.With("component", "IndexReader", "path", opts.Path),
	}
	if err := r.validate(); err != nil {
		file.Close()
		return nil, err
	}
	r.logger.Debug("Index opened", "entries", r.count, "key_length", lay.keyLength, "format", lay.format.String())
	return r, nil
}

func (r *Reader) validate() error {
	info, err := r.file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat index file %s: %w", r.path, err)
	}
	size := info.Size()

	if r.layout.format == core.FormatV1 {
		header, err := core.ReadIndexHeader(io.NewSectionReader(r.file, 0, size))
		if err != nil {
			return fmt.Errorf("index %s: %w", r.path, err)
		}
		if int(header.KeyLength) != r.layout.keyLength {
			return &core.SchemaMismatchError{Path: r.path, Stored: int(header.KeyLength), Wanted: r.layout.keyLength}
		}
		count, err := r.layout.countFor(size)
		if err != nil {
			return fmt.Errorf("index %s: %w", r.path, err)
		}
		if uint64(count) != header.EntryCount {
			return fmt.Errorf("index %s: %w: header promises %d entries, body holds %d", r.path, core.ErrCorruptIndex, header.EntryCount, count)
		}
		r.count = count
		return nil
	}

	count, err := r.layout.countFor(size)
	if err != nil {
		return fmt.Errorf("index %s: %w", r.path, err)
	}
	r.count = count
	return nil
}

// Len is the number of entries.
func (r *Reader) Len() int64 { return r.count }

func (r *Reader) KeyLength() int { return r.layout.keyLength }

func (r *Reader) Path() string { return r.path }

func (r *Reader) readKey(i int64, buf []byte) error {
	if _, err := r.file.ReadAt(buf[:r.layout.keyLength], r.layout.entryPos(i)); err != nil {
		return fmt.Errorf("failed to read key %d of index %s: %w", i, r.path, err)
	}
	return nil
}

func (r *Reader) readOffset(i int64) (int64, error) {
	var buf [core.OffsetSize]byte
	if _, err := r.file.ReadAt(buf[:], r.layout.entryPos(i)+int64(r.layout.keyLength)); err != nil {
		return 0, fmt.Errorf("failed to read offset %d of index %s: %w", i, r.path, err)
	}
	return entryOffset(buf[:], 0), nil
}

// EntryAt returns entry i in index order.
func (r *Reader) EntryAt(i int64) (core.IndexEntry, error) {
	if i < 0 || i >= r.count {
		return core.IndexEntry{}, fmt.Errorf("entry %d out of range [0, %d)", i, r.count)
	}
	buf := make([]byte, r.layout.recordSize)
	if _, err := r.file.ReadAt(buf, r.layout.entryPos(i)); err != nil {
		return core.IndexEntry{}, fmt.Errorf("failed to read entry %d of index %s: %w", i, r.path, err)
	}
	return decodeEntry(buf, r.layout.keyLength), nil
}

// Lookup returns the record offset for key, or core.ErrNotFound. With
// duplicated keys the search mode decides which entry is returned.
func (r *Reader) Lookup(key []byte) (int64, error) {
	if len(key) != r.layout.keyLength || r.count == 0 {
		return 0, core.ErrNotFound
	}
	var (
		i   int64
		err error
	)
	if r.mode == core.SearchAny {
		i, err = r.searchAny(key)
	} else {
		i, err = r.searchLeftmost(key)
	}
	if err != nil {
		return 0, err
	}
	return r.readOffset(i)
}

// LookupAll returns the offsets of every entry with key, in index order.
func (r *Reader) LookupAll(key []byte) ([]int64, error) {
	if len(key) != r.layout.keyLength || r.count == 0 {
		return nil, core.ErrNotFound
	}
	first, err := r.searchLeftmost(key)
	if err != nil {
		return nil, err
	}
	var offsets []int64
	buf := make([]byte, r.layout.keyLength)
	for i := first; i < r.count; i++ {
		if err := r.readKey(i, buf); err != nil {
			return nil, err
		}
		if !bytes.Equal(buf, key) {
			break
		}
		off, err := r.readOffset(i)
		if err != nil {
			return nil, err
		}
		offsets = append(offsets, off)
	}
	return offsets, nil
}

// searchLeftmost is a lower-bound search. It keeps narrowing left after a
// match, so it returns the first entry equal to key.
func (r *Reader) searchLeftmost(key []byte) (int64, error) {
	buf := make([]byte, r.layout.keyLength)
	low, high := int64(0), r.count
	found := int64(-1)
	for low < high {
		mid := low + (high-low)/2
		if err := r.readKey(mid, buf); err != nil {
			return 0, err
		}
		switch c := bytes.Compare(buf, key); {
		case c < 0:
			low = mid + 1
		case c == 0:
			found = mid
			high = mid
		default:
			high = mid
		}
	}
	if found < 0 {
		return 0, core.ErrNotFound
	}
	return found, nil
}

// searchAny stops at the first probe that matches.
func (r *Reader) searchAny(key []byte) (int64, error) {
	buf := make([]byte, r.layout.keyLength)
	low, high := int64(0), r.count-1
	for low <= high {
		mid := low + (high-low)/2
		if err := r.readKey(mid, buf); err != nil {
			return 0, err
		}
		switch c := bytes.Compare(buf, key); {
		case c == 0:
			return mid, nil
		case c < 0:
			low = mid + 1
		default:
			high = mid - 1
		}
	}
	return 0, core.ErrNotFound
}

func (r *Reader) Close() error {
	return r.file.Close()
}
