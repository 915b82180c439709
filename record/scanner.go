// Package record reads newline-delimited records from a data file.
//
// A record's offset is the byte position of its first content byte. The
// offset of the next record is the current offset plus the content length
// plus one terminator byte. Only '\n' terminates a record, so a '\r' before
// it stays part of the content.
package record

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

const Terminator = '\n'

// Record is one line of the data file, without its terminator.
type Record struct {
	Content []byte
	Offset  int64
}

// Scanner yields records in file order. Lines of any length are supported.
type Scanner struct {
	r    *bufio.Reader
	next int64
	cur  Record
	err  error
	done bool
}

// NewScanner creates a scanner starting at offset 0 of r.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next advances to the next record. It returns false at end of input or on error.
func (s *Scanner) Next() bool {
	if s.done {
		return false
	}
	line, err := s.r.ReadSlice(Terminator)
	if errors.Is(err, bufio.ErrBufferFull) {
		// Long line: fall back to an accumulating read.
		buf := append([]byte(nil), line...)
		rest, rerr := s.r.ReadBytes(Terminator)
		line, err = append(buf, rest...), rerr
	}
	if err != nil && err != io.EOF {
		s.err = fmt.Errorf("failed to read record at offset %d: %w", s.next, err)
		s.done = true
		return false
	}
	if len(line) == 0 {
		// EOF right after a terminator, or empty input.
		s.done = true
		return false
	}

	consumed := int64(len(line))
	if line[len(line)-1] == Terminator {
		line = line[:len(line)-1]
	}
	if err == io.EOF {
		s.done = true
	}
	s.cur = Record{Content: line, Offset: s.next}
	s.next += consumed
	return true
}

// Record returns the current record. Content is only valid until the next
// call to Next.
func (s *Scanner) Record() Record {
	return s.cur
}

// Offset is the position the next record will start at.
func (s *Scanner) Offset() int64 {
	return s.next
}

func (s *Scanner) Err() error {
	return s.err
}
