package index

import (
	"bytes"
	"context"
	"fmt"

	"github.com/INLOpen/flatindex/record"
	"github.com/caio/go-tdigest/v4"
)

// Stats summarizes the keys of an index and the records they point at.
type Stats struct {
	Entries          int64
	DistinctKeys     int64
	DuplicateEntries int64 // entries beyond the first for their key
	MaxDuplicates    int64 // size of the largest group of equal keys
	MinKey           []byte
	MaxKey           []byte

	MeanRecordLength float64
	RecordLengthP50  float64
	RecordLengthP90  float64
	RecordLengthP99  float64
}

// ComputeStats walks every entry of r and reads its record through accessor.
func ComputeStats(ctx context.Context, r *Reader, accessor *record.Accessor) (Stats, error) {
	var st Stats
	td, err := tdigest.New()
	if err != nil {
		return st, fmt.Errorf("failed to create t-digest: %w", err)
	}

	var (
		prevKey  []byte
		group    int64
		totalLen float64
	)
	s := r.NewScanner()
	for s.Next() {
		if st.Entries%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return st, err
			}
		}
		e := s.Entry()
		st.Entries++
		if st.Entries > 1 && bytes.Equal(prevKey, e.Key) {
			group++
			st.DuplicateEntries++
		} else {
			st.DistinctKeys++
			group = 1
			prevKey = append(prevKey[:0], e.Key...)
		}
		if group > st.MaxDuplicates {
			st.MaxDuplicates = group
		}
		if st.MinKey == nil {
			st.MinKey = append([]byte(nil), e.Key...)
		}

		content, err := accessor.ReadAt(e.Offset)
		if err != nil {
			return st, fmt.Errorf("failed to read record for entry %d: %w", s.Index(), err)
		}
		totalLen += float64(len(content))
		if err := td.AddWeighted(float64(len(content)), 1); err != nil {
			return st, fmt.Errorf("failed to add record length: %w", err)
		}
	}
	if err := s.Err(); err != nil {
		return st, err
	}
	if st.Entries == 0 {
		return st, nil
	}
	st.MaxKey = append([]byte(nil), prevKey...)
	st.MeanRecordLength = totalLen / float64(st.Entries)
	st.RecordLengthP50 = td.Quantile(0.5)
	st.RecordLengthP90 = td.Quantile(0.9)
	st.RecordLengthP99 = td.Quantile(0.99)
	return st, nil
}
