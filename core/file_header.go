package core

import (
	"encoding/binary"
	"fmt"
	"io"
)

// IndexHeader is the fixed header at the start of a v1 index file.
// It carries no timestamp, so two builds over the same data are byte-identical.
type IndexHeader struct {
	Magic      uint32
	Version    uint8
	KeyLength  uint32
	EntryCount uint64
}

// IndexHeaderSize is the encoded size of IndexHeader.
var IndexHeaderSize = binary.Size(IndexHeader{})

func (h *IndexHeader) Size() int {
	return binary.Size(h)
}

// NewIndexHeader creates a header for the current format version.
func NewIndexHeader(keyLength int, entryCount uint64) IndexHeader {
	return IndexHeader{
		Magic:      IndexMagicNumber,
		Version:    FormatVersion,
		KeyLength:  uint32(keyLength),
		EntryCount: entryCount,
	}
}

func (h *IndexHeader) WriteTo(w io.Writer) (int64, error) {
	if err := binary.Write(w, binary.LittleEndian, h); err != nil {
		return 0, fmt.Errorf("failed to write index header: %w", err)
	}
	return int64(IndexHeaderSize), nil
}

// ReadIndexHeader decodes and checks the magic and version of a v1 header.
func ReadIndexHeader(r io.Reader) (IndexHeader, error) {
	var h IndexHeader
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return h, fmt.Errorf("%w: truncated header", ErrCorruptIndex)
		}
		return h, fmt.Errorf("failed to read index header: %w", err)
	}
	if h.Magic != IndexMagicNumber {
		return h, fmt.Errorf("%w: bad magic number %#x", ErrCorruptIndex, h.Magic)
	}
	if h.Version != FormatVersion {
		return h, fmt.Errorf("%w: unsupported version %d", ErrCorruptIndex, h.Version)
	}
	return h, nil
}
