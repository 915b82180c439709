package index

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/INLOpen/flatindex/core"
)

// Scanner walks the entries of an index in file order, which is ascending
// key order. It stops at the first short read.
type Scanner struct {
	r         *bufio.Reader
	keyLength int
	buf       []byte
	cur       core.IndexEntry
	pos       int64
	err       error
}

// NewScanner reads entries of r sequentially from the first body byte.
func (r *Reader) NewScanner() *Scanner {
	body := io.NewSectionReader(r.file, r.layout.headerSize, r.count*int64(r.layout.recordSize))
	return &Scanner{
		r:         bufio.NewReaderSize(body, 256*1024),
		keyLength: r.layout.keyLength,
		buf:       make([]byte, r.layout.recordSize),
	}
}

func (s *Scanner) Next() bool {
	if s.err != nil {
		return false
	}
	if _, err := io.ReadFull(s.r, s.buf); err != nil {
		if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			s.err = fmt.Errorf("failed to read index entry %d: %w", s.pos, err)
		}
		return false
	}
	s.cur = core.IndexEntry{Key: s.buf[:s.keyLength], Offset: entryOffset(s.buf, s.keyLength)}
	s.pos++
	return true
}

// Entry is the current entry. Its key is only valid until the next call to Next.
func (s *Scanner) Entry() core.IndexEntry {
	return s.cur
}

// Index is the position of the current entry.
func (s *Scanner) Index() int64 {
	return s.pos - 1
}

func (s *Scanner) Err() error {
	return s.err
}
