package index

import (
	"bytes"
	"container/heap"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// runCursor is a spill reader positioned on its current entry.
type runCursor struct {
	reader *spillReader
	cur    []byte
}

// runHeap orders cursors by their current entry, key first, then offset.
type runHeap struct {
	cursors   []*runCursor
	keyLength int
}

func (h *runHeap) Len() int { return len(h.cursors) }

func (h *runHeap) Less(i, j int) bool {
	a, b := h.cursors[i].cur, h.cursors[j].cur
	if c := bytes.Compare(a[:h.keyLength], b[:h.keyLength]); c != 0 {
		return c < 0
	}
	return int64(binary.LittleEndian.Uint64(a[h.keyLength:])) < int64(binary.LittleEndian.Uint64(b[h.keyLength:]))
}

func (h *runHeap) Swap(i, j int) {
	h.cursors[i], h.cursors[j] = h.cursors[j], h.cursors[i]
}

func (h *runHeap) Push(x interface{}) {
	h.cursors = append(h.cursors, x.(*runCursor))
}

func (h *runHeap) Pop() interface{} {
	old := h.cursors
	n := len(old)
	x := old[n-1]
	h.cursors = old[:n-1]
	return x
}

// mergeRuns k-way merges sorted runs into w. Every reader is closed on return.
func mergeRuns(ctx context.Context, readers []*spillReader, keyLength int, w *indexWriter) error {
	h := &runHeap{keyLength: keyLength, cursors: make([]*runCursor, 0, len(readers))}
	defer func() {
		for _, r := range readers {
			_ = r.close()
		}
	}()

	for _, r := range readers {
		e, err := r.next()
		if errors.Is(err, io.EOF) {
			continue
		}
		if err != nil {
			return err
		}
		h.cursors = append(h.cursors, &runCursor{reader: r, cur: e})
	}
	heap.Init(h)

	var n int64
	for h.Len() > 0 {
		if n%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		top := h.cursors[0]
		if err := w.Add(top.cur[:keyLength], entryOffset(top.cur, keyLength)); err != nil {
			return err
		}
		n++

		e, err := top.reader.next()
		switch {
		case errors.Is(err, io.EOF):
			heap.Pop(h)
		case err != nil:
			return fmt.Errorf("failed to read spill run: %w", err)
		default:
			top.cur = e
			heap.Fix(h, 0)
		}
	}
	return nil
}
