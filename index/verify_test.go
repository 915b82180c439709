package index

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/INLOpen/flatindex/core"
	"github.com/INLOpen/flatindex/internal/testutil"
	"github.com/INLOpen/flatindex/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeRawIndex encodes entries as a raw index without any ordering checks.
func writeRawIndex(t *testing.T, path string, keyLength int, entries ...core.IndexEntry) {
	t.Helper()
	buf := make([]byte, 0, len(entries)*core.RecordSize(keyLength))
	scratch := make([]byte, core.RecordSize(keyLength))
	for _, e := range entries {
		putEntry(scratch, e.Key, e.Offset)
		buf = append(buf, scratch...)
	}
	require.NoError(t, os.WriteFile(path, buf, 0644))
}

func TestVerify_CleanIndex(t *testing.T) {
	dir := t.TempDir()
	data := testutil.WriteLines(t, dir, "data.txt", testutil.RandomLines(11, 500, 3)...)
	idx := filepath.Join(dir, "data.idx")
	res := buildIndex(t, BuildOptions{DataPath: data, IndexPath: idx, KeyLength: 3})

	report, err := Verify(context.Background(), VerifyOptions{DataPath: data, IndexPath: idx, KeyLength: 3, CheckCount: true})
	require.NoError(t, err)
	assert.Empty(t, report.Problems)
	assert.Equal(t, res.Entries, report.Entries)
	assert.Equal(t, res.Entries, report.KeyedRecords)
}

func TestVerify_Problems(t *testing.T) {
	dir := t.TempDir()
	// offsets: AAA:1 -> 0, BBB:2 -> 6, CCC:3 -> 12
	data := testutil.WriteLines(t, dir, "data.txt", "AAA:1", "BBB:2", "CCC:3")

	testCases := []struct {
		name    string
		entries []core.IndexEntry
		want    string
	}{
		{"out of order", []core.IndexEntry{{Key: []byte("BBB"), Offset: 6}, {Key: []byte("AAA"), Offset: 0}}, "out of (key, offset) order"},
		{"duplicate offset", []core.IndexEntry{{Key: []byte("AAA"), Offset: 0}, {Key: []byte("AAA"), Offset: 0}}, "more than once"},
		{"not a record start", []core.IndexEntry{{Key: []byte("A:1"), Offset: 2}}, "not a record start"},
		{"outside data file", []core.IndexEntry{{Key: []byte("AAA"), Offset: 999}}, "outside the data file"},
		{"key mismatch", []core.IndexEntry{{Key: []byte("CCC"), Offset: 6}}, "does not start with key"},
		{"negative offset", []core.IndexEntry{{Key: []byte("AAA"), Offset: -4}}, "negative offset"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			idx := filepath.Join(t.TempDir(), "bad.idx")
			writeRawIndex(t, idx, 3, tc.entries...)

			report, err := Verify(context.Background(), VerifyOptions{DataPath: data, IndexPath: idx, KeyLength: 3, Format: core.FormatRaw})
			require.ErrorIs(t, err, core.ErrVerificationFailed)
			require.NotEmpty(t, report.Problems)
			assert.Contains(t, report.Problems[0].String(), tc.want)
		})
	}

	t.Run("count mismatch", func(t *testing.T) {
		idx := filepath.Join(t.TempDir(), "partial.idx")
		writeRawIndex(t, idx, 3, core.IndexEntry{Key: []byte("AAA"), Offset: 0})

		_, err := Verify(context.Background(), VerifyOptions{DataPath: data, IndexPath: idx, KeyLength: 3, Format: core.FormatRaw})
		require.NoError(t, err)

		report, err := Verify(context.Background(), VerifyOptions{DataPath: data, IndexPath: idx, KeyLength: 3, Format: core.FormatRaw, CheckCount: true})
		require.ErrorIs(t, err, core.ErrVerificationFailed)
		assert.Equal(t, int64(3), report.KeyedRecords)
		assert.Equal(t, int64(-1), report.Problems[0].Entry)
	})
}

func TestVerify_MaxProblems(t *testing.T) {
	dir := t.TempDir()
	data := testutil.WriteLines(t, dir, "data.txt", "AAA:1")
	idx := filepath.Join(dir, "bad.idx")
	var entries []core.IndexEntry
	for i := 0; i < 10; i++ {
		entries = append(entries, core.IndexEntry{Key: []byte("AAA"), Offset: int64(1000 + i)})
	}
	writeRawIndex(t, idx, 3, entries...)

	report, err := Verify(context.Background(), VerifyOptions{DataPath: data, IndexPath: idx, KeyLength: 3, Format: core.FormatRaw, MaxProblems: 4})
	require.ErrorIs(t, err, core.ErrVerificationFailed)
	assert.Len(t, report.Problems, 4)
	assert.True(t, report.Truncated)
}

func TestVerify_SchemaMismatch(t *testing.T) {
	dir := t.TempDir()
	data := testutil.WriteLines(t, dir, "data.txt", "AAA:1")
	idx := filepath.Join(dir, "data.idx")
	buildIndex(t, BuildOptions{DataPath: data, IndexPath: idx, KeyLength: 3})

	_, err := Verify(context.Background(), VerifyOptions{DataPath: data, IndexPath: idx, KeyLength: 2})
	assert.ErrorIs(t, err, core.ErrSchemaMismatch)
}

func TestComputeStats(t *testing.T) {
	dir := t.TempDir()
	lines := []string{"BBB:22", "AAA:1", "BBB:333", "x", "CCC:4444", "BBB:1"}
	data := testutil.WriteLines(t, dir, "data.txt", lines...)
	idx := filepath.Join(dir, "data.idx")
	buildIndex(t, BuildOptions{DataPath: data, IndexPath: idx, KeyLength: 3})

	r, err := OpenReader(ReaderOptions{Path: idx, KeyLength: 3})
	require.NoError(t, err)
	defer r.Close()
	content := strings.Join(lines, "\n") + "\n"
	acc := record.NewAccessor(strings.NewReader(content), int64(len(content)))

	st, err := ComputeStats(context.Background(), r, acc)
	require.NoError(t, err)
	assert.Equal(t, int64(5), st.Entries)
	assert.Equal(t, int64(3), st.DistinctKeys)
	assert.Equal(t, int64(2), st.DuplicateEntries)
	assert.Equal(t, int64(3), st.MaxDuplicates)
	assert.Equal(t, "AAA", string(st.MinKey))
	assert.Equal(t, "CCC", string(st.MaxKey))
	assert.InDelta(t, 6.2, st.MeanRecordLength, 1e-9)
	assert.GreaterOrEqual(t, st.RecordLengthP99, st.RecordLengthP50)
	assert.GreaterOrEqual(t, st.RecordLengthP50, 5.0)
	assert.LessOrEqual(t, st.RecordLengthP99, 8.0)
}

func TestComputeStats_Empty(t *testing.T) {
	dir := t.TempDir()
	data := testutil.WriteLines(t, dir, "data.txt", "a", "b")
	idx := filepath.Join(dir, "data.idx")
	buildIndex(t, BuildOptions{DataPath: data, IndexPath: idx, KeyLength: 3})

	r, err := OpenReader(ReaderOptions{Path: idx, KeyLength: 3})
	require.NoError(t, err)
	defer r.Close()

	st, err := ComputeStats(context.Background(), r, record.NewAccessor(strings.NewReader("a\nb\n"), 4))
	require.NoError(t, err)
	assert.Zero(t, st.Entries)
	assert.Nil(t, st.MinKey)
	assert.Nil(t, st.MaxKey)
}
