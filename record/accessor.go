package record

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/INLOpen/flatindex/core"
)

const accessorChunk = 4096

// Accessor reads single records by offset. It never buffers across calls.
type Accessor struct {
	r    io.ReaderAt
	size int64
}

// NewAccessor creates an accessor over a data file of the given size.
func NewAccessor(r io.ReaderAt, size int64) *Accessor {
	return &Accessor{r: r, size: size}
}

func (a *Accessor) Size() int64 {
	return a.size
}

// ReadAt returns the content of the record starting at offset, up to but not
// including the next terminator or end of file.
func (a *Accessor) ReadAt(offset int64) ([]byte, error) {
	if offset < 0 || offset >= a.size {
		return nil, fmt.Errorf("%w: offset %d, size %d", core.ErrBadOffset, offset, a.size)
	}

	var out []byte
	chunk := make([]byte, accessorChunk)
	pos := offset
	for pos < a.size {
		want := chunk
		if remaining := a.size - pos; remaining < int64(len(want)) {
			want = want[:remaining]
		}
		n, err := a.r.ReadAt(want, pos)
		if i := bytes.IndexByte(want[:n], Terminator); i >= 0 {
			return append(out, want[:i]...), nil
		}
		out = append(out, want[:n]...)
		pos += int64(n)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to read record at offset %d: %w", offset, err)
		}
		if n == 0 {
			break
		}
	}
	if out == nil {
		out = []byte{}
	}
	return out, nil
}

// IsRecordStart reports whether offset begins a record, i.e. it is 0 or the
// byte before it is a terminator. Offsets outside the file fail with
// core.ErrBadOffset.
func (a *Accessor) IsRecordStart(offset int64) (bool, error) {
	if offset < 0 || offset >= a.size {
		return false, fmt.Errorf("%w: offset %d, size %d", core.ErrBadOffset, offset, a.size)
	}
	if offset == 0 {
		return true, nil
	}
	var b [1]byte
	if _, err := a.r.ReadAt(b[:], offset-1); err != nil {
		return false, fmt.Errorf("failed to read data file at offset %d: %w", offset-1, err)
	}
	return b[0] == Terminator, nil
}
