package index

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/INLOpen/flatindex/core"
	"github.com/INLOpen/flatindex/record"
	"github.com/INLOpen/flatindex/sys"
	"github.com/RoaringBitmap/roaring/roaring64"
)

// DefaultMaxProblems caps the problems a VerifyReport lists.
const DefaultMaxProblems = 100

type VerifyOptions struct {
	DataPath  string
	IndexPath string
	KeyLength int
	Format    core.IndexFormat
	// CheckCount rescans the data file and compares the keyed-record count
	// with the entry count.
	CheckCount  bool
	MaxProblems int
	Logger      *slog.Logger
}

// Problem is one inconsistency found by Verify. Entry is -1 for problems
// that do not belong to a single entry.
type Problem struct {
	Entry   int64
	Offset  int64
	Message string
}

func (p Problem) String() string {
	if p.Entry < 0 {
		return p.Message
	}
	return fmt.Sprintf("entry %d (offset %d): %s", p.Entry, p.Offset, p.Message)
}

type VerifyReport struct {
	Entries      int64
	KeyedRecords int64 // only set with CheckCount
	Problems     []Problem
	// Truncated is set when more problems were found than MaxProblems.
	Truncated bool
}

func (r *VerifyReport) add(p Problem, max int) {
	if len(r.Problems) >= max {
		r.Truncated = true
		return
	}
	r.Problems = append(r.Problems, p)
}

// Verify checks an index against its data file. Format errors from opening
// the index are returned as is. Inconsistencies are collected in the report
// and turn the result into core.ErrVerificationFailed.
func Verify(ctx context.Context, opts VerifyOptions) (VerifyReport, error) {
	var report VerifyReport
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "Verifier")
	maxProblems := opts.MaxProblems
	if maxProblems <= 0 {
		maxProblems = DefaultMaxProblems
	}

	reader, err := OpenReader(ReaderOptions{Path: opts.IndexPath, KeyLength: opts.KeyLength, Format: opts.Format, Logger: logger})
	if err != nil {
		return report, err
	}
	defer reader.Close()
	report.Entries = reader.Len()

	data, err := sys.Open(opts.DataPath)
	if err != nil {
		return report, fmt.Errorf("failed to open data file %s: %w", opts.DataPath, err)
	}
	defer data.Close()
	info, err := data.Stat()
	if err != nil {
		return report, fmt.Errorf("failed to stat data file %s: %w", opts.DataPath, err)
	}
	accessor := record.NewAccessor(data, info.Size())

	seen := roaring64.New()
	var prev core.IndexEntry
	s := reader.NewScanner()
	for s.Next() {
		i := s.Index()
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return report, err
			}
		}
		e := s.Entry()
		if i > 0 && core.CompareEntries(prev, e) > 0 {
			report.add(Problem{Entry: i, Offset: e.Offset, Message: "entry is out of (key, offset) order"}, maxProblems)
		}
		prev = core.IndexEntry{Key: append(prev.Key[:0], e.Key...), Offset: e.Offset}

		if e.Offset < 0 {
			report.add(Problem{Entry: i, Offset: e.Offset, Message: "negative offset"}, maxProblems)
			continue
		}
		if seen.Contains(uint64(e.Offset)) {
			report.add(Problem{Entry: i, Offset: e.Offset, Message: "offset indexed more than once"}, maxProblems)
		}
		seen.Add(uint64(e.Offset))

		start, err := accessor.IsRecordStart(e.Offset)
		if err != nil {
			if errors.Is(err, core.ErrBadOffset) {
				report.add(Problem{Entry: i, Offset: e.Offset, Message: "offset is outside the data file"}, maxProblems)
				continue
			}
			return report, err
		}
		if !start {
			report.add(Problem{Entry: i, Offset: e.Offset, Message: "offset is not a record start"}, maxProblems)
			continue
		}
		content, err := accessor.ReadAt(e.Offset)
		if err != nil {
			return report, err
		}
		if !bytes.HasPrefix(content, e.Key) {
			report.add(Problem{Entry: i, Offset: e.Offset, Message: fmt.Sprintf("record does not start with key %q", e.Key)}, maxProblems)
		}
	}
	if err := s.Err(); err != nil {
		return report, err
	}

	if opts.CheckCount {
		keyed, err := countKeyed(ctx, data, opts.KeyLength)
		if err != nil {
			return report, err
		}
		report.KeyedRecords = keyed
		if keyed != report.Entries {
			report.add(Problem{Entry: -1, Message: fmt.Sprintf("index holds %d entries, data file has %d keyed records", report.Entries, keyed)}, maxProblems)
		}
	}

	if len(report.Problems) > 0 {
		logger.Warn("Index verification failed", "index", opts.IndexPath, "problems", len(report.Problems), "truncated", report.Truncated)
		return report, fmt.Errorf("%w: %d problem(s) in %s", core.ErrVerificationFailed, len(report.Problems), opts.IndexPath)
	}
	logger.Debug("Index verified", "index", opts.IndexPath, "entries", report.Entries)
	return report, nil
}

func countKeyed(ctx context.Context, data sys.FileHandle, keyLength int) (int64, error) {
	var records, keyed int64
	if _, err := data.Seek(0, 0); err != nil {
		return 0, fmt.Errorf("failed to rewind data file: %w", err)
	}
	s := record.NewScanner(data)
	for s.Next() {
		if records%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		records++
		if _, ok := record.ExtractKey(s.Record().Content, keyLength); ok {
			keyed++
		}
	}
	if err := s.Err(); err != nil {
		return 0, fmt.Errorf("failed to scan data file: %w", err)
	}
	return keyed, nil
}
