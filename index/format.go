// Package index builds and searches fixed-width sorted index files.
//
// A v1 index is a core.IndexHeader followed by packed entries. A raw index is
// the packed entries alone. Each entry is keyLength key bytes followed by the
// record offset as a little-endian int64.
package index

import (
	"encoding/binary"
	"fmt"

	"github.com/INLOpen/flatindex/core"
)

// layout describes where entries live in an index file.
type layout struct {
	format     core.IndexFormat
	keyLength  int
	recordSize int
	headerSize int64
}

func newLayout(format core.IndexFormat, keyLength int) (layout, error) {
	if err := core.ValidateKeyLength(keyLength); err != nil {
		return layout{}, err
	}
	l := layout{format: format, keyLength: keyLength, recordSize: core.RecordSize(keyLength)}
	switch format {
	case core.FormatV1:
		l.headerSize = int64(core.IndexHeaderSize)
	case core.FormatRaw:
	default:
		return layout{}, &core.ValidationError{Field: "format", Value: format.String(), Message: "unknown index format"}
	}
	return l, nil
}

// entryPos is the file position of entry i.
func (l layout) entryPos(i int64) int64 {
	return l.headerSize + i*int64(l.recordSize)
}

// fileSize is the exact size of an index with count entries.
func (l layout) fileSize(count int64) int64 {
	return l.entryPos(count)
}

// countFor checks that a file of the given size holds a whole number of
// entries and returns that number.
func (l layout) countFor(size int64) (int64, error) {
	body := size - l.headerSize
	if body < 0 {
		return 0, fmt.Errorf("%w: file of %d bytes is shorter than its header", core.ErrCorruptIndex, size)
	}
	if body%int64(l.recordSize) != 0 {
		return 0, fmt.Errorf("%w: body of %d bytes is not a multiple of the %d-byte entry size", core.ErrCorruptIndex, body, l.recordSize)
	}
	return body / int64(l.recordSize), nil
}

// putEntry encodes key and offset into dst, which must hold recordSize bytes.
func putEntry(dst []byte, key []byte, offset int64) {
	n := copy(dst, key)
	binary.LittleEndian.PutUint64(dst[n:], uint64(offset))
}

// entryOffset decodes the offset of an encoded entry.
func entryOffset(entry []byte, keyLength int) int64 {
	return int64(binary.LittleEndian.Uint64(entry[keyLength:]))
}

// decodeEntry copies an encoded entry into an IndexEntry.
func decodeEntry(entry []byte, keyLength int) core.IndexEntry {
	return core.IndexEntry{
		Key:    append([]byte(nil), entry[:keyLength]...),
		Offset: entryOffset(entry, keyLength),
	}
}
