package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/INLOpen/flatindex/core"
	"github.com/INLOpen/flatindex/engine"
	"github.com/kballard/go-shellquote"
)

const notFoundMessage = "Record not found"

func execute(ctx context.Context, eng *engine.Engine, cmd command, stdin io.Reader, stdout io.Writer) error {
	out := bufio.NewWriter(stdout)
	defer out.Flush()

	switch cmd.op {
	case "c":
		_, err := eng.Build(ctx, cmd.dataPath, cmd.indexPath, cmd.keyLength)
		return err
	case "l":
		_, err := eng.List(ctx, cmd.dataPath, cmd.indexPath, cmd.keyLength, func(rec []byte) error {
			if _, err := out.Write(rec); err != nil {
				return err
			}
			return out.WriteByte('\n')
		})
		return err
	case "s":
		return searchOne(ctx, eng, cmd, out)
	case "v":
		return verify(ctx, eng, cmd, out)
	case "t":
		return printStats(ctx, eng, cmd, out)
	case "b":
		return batchSearch(ctx, eng, cmd, stdin, out)
	}
	return fmt.Errorf("%w: unknown operation %q", errUsage, cmd.op)
}

func searchOne(ctx context.Context, eng *engine.Engine, cmd command, out *bufio.Writer) error {
	var records [][]byte
	var err error
	if cmd.all {
		records, err = eng.SearchAll(ctx, cmd.dataPath, cmd.indexPath, []byte(cmd.key), cmd.keyLength)
	} else {
		var rec []byte
		rec, err = eng.Search(ctx, cmd.dataPath, cmd.indexPath, []byte(cmd.key), cmd.keyLength)
		records = [][]byte{rec}
	}
	if errors.Is(err, core.ErrNotFound) {
		fmt.Fprintln(out, notFoundMessage)
		return err
	}
	if err != nil {
		return err
	}
	for _, rec := range records {
		fmt.Fprintf(out, "%s\n", rec)
	}
	return nil
}

// batchSearch reads stdin line by line. Each line is split into words with
// shell quoting rules and every word is searched. It returns core.ErrNotFound
// after all lines are done if any word missed.
func batchSearch(ctx context.Context, eng *engine.Engine, cmd command, stdin io.Reader, out *bufio.Writer) error {
	s, err := eng.OpenSearcher(ctx, cmd.dataPath, cmd.indexPath, cmd.keyLength)
	if err != nil {
		return err
	}
	defer s.Close()

	var missed int
	lines := bufio.NewScanner(stdin)
	lineNo := 0
	for lines.Scan() {
		lineNo++
		if err := ctx.Err(); err != nil {
			return err
		}
		keys, err := shellquote.Split(lines.Text())
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		for _, key := range keys {
			rec, err := s.Search(ctx, []byte(key))
			switch {
			case errors.Is(err, core.ErrNotFound):
				missed++
				fmt.Fprintln(out, notFoundMessage)
			case err != nil:
				return err
			default:
				fmt.Fprintf(out, "%s\n", rec)
			}
		}
	}
	if err := lines.Err(); err != nil {
		return fmt.Errorf("failed to read keys: %w", err)
	}
	if missed > 0 {
		return fmt.Errorf("%d key(s): %w", missed, core.ErrNotFound)
	}
	return nil
}

func verify(ctx context.Context, eng *engine.Engine, cmd command, out *bufio.Writer) error {
	report, err := eng.Verify(ctx, cmd.dataPath, cmd.indexPath, cmd.keyLength, cmd.checkCount)
	for _, p := range report.Problems {
		fmt.Fprintln(out, p.String())
	}
	if report.Truncated {
		fmt.Fprintln(out, "(more problems not shown)")
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "OK: %d entries\n", report.Entries)
	return nil
}

func printStats(ctx context.Context, eng *engine.Engine, cmd command, out *bufio.Writer) error {
	st, err := eng.Stats(ctx, cmd.dataPath, cmd.indexPath, cmd.keyLength)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "entries:            %d\n", st.Entries)
	fmt.Fprintf(out, "distinct keys:      %d\n", st.DistinctKeys)
	fmt.Fprintf(out, "duplicate entries:  %d\n", st.DuplicateEntries)
	fmt.Fprintf(out, "largest key group:  %d\n", st.MaxDuplicates)
	if st.Entries > 0 {
		fmt.Fprintf(out, "min key:            %q\n", st.MinKey)
		fmt.Fprintf(out, "max key:            %q\n", st.MaxKey)
		fmt.Fprintf(out, "record length mean: %.1f\n", st.MeanRecordLength)
		fmt.Fprintf(out, "record length p50:  %.0f\n", st.RecordLengthP50)
		fmt.Fprintf(out, "record length p90:  %.0f\n", st.RecordLengthP90)
		fmt.Fprintf(out, "record length p99:  %.0f\n", st.RecordLengthP99)
	}
	return nil
}
