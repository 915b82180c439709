package index

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/INLOpen/flatindex/core"
	"github.com/INLOpen/flatindex/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReader_AbsentKeys(t *testing.T) {
	dir := t.TempDir()
	data := testutil.WriteLines(t, dir, "data.txt", "BBB:1", "DDD:2", "FFF:3")
	idx := filepath.Join(dir, "data.idx")
	buildIndex(t, BuildOptions{DataPath: data, IndexPath: idx, KeyLength: 3})

	for _, mode := range []core.SearchMode{core.SearchLeftmost, core.SearchAny} {
		r, err := OpenReader(ReaderOptions{Path: idx, KeyLength: 3, SearchMode: mode})
		require.NoError(t, err)
		for _, key := range []string{"AAA", "CCC", "EEE", "ZZZ", "BB", "BBBB", ""} {
			_, err := r.Lookup([]byte(key))
			assert.ErrorIs(t, err, core.ErrNotFound, "%s: key %q", mode, key)
		}
		for i, key := range []string{"BBB", "DDD", "FFF"} {
			off, err := r.Lookup([]byte(key))
			require.NoError(t, err)
			assert.Equal(t, int64(i*6), off)
		}
		require.NoError(t, r.Close())
	}
}

func TestReader_Duplicates(t *testing.T) {
	dir := t.TempDir()
	var lines []string
	for i := 0; i < 9; i++ {
		lines = append(lines, "DUP:"+strconv.Itoa(i))
	}
	lines = append([]string{"AAA:x"}, append(lines, "ZZZ:y")...)
	data := testutil.WriteLines(t, dir, "data.txt", lines...)
	idx := filepath.Join(dir, "data.idx")
	buildIndex(t, BuildOptions{DataPath: data, IndexPath: idx, KeyLength: 3})

	t.Run("leftmost returns first occurrence", func(t *testing.T) {
		got, err := lookupRecord(t, data, idx, 3, core.FormatV1, core.SearchLeftmost, "DUP")
		require.NoError(t, err)
		assert.Equal(t, "DUP:0", got)
	})

	t.Run("any returns some occurrence", func(t *testing.T) {
		got, err := lookupRecord(t, data, idx, 3, core.FormatV1, core.SearchAny, "DUP")
		require.NoError(t, err)
		assert.Regexp(t, `^DUP:\d$`, got)
	})

	t.Run("lookup all", func(t *testing.T) {
		r, err := OpenReader(ReaderOptions{Path: idx, KeyLength: 3})
		require.NoError(t, err)
		defer r.Close()

		offsets, err := r.LookupAll([]byte("DUP"))
		require.NoError(t, err)
		require.Len(t, offsets, 9)
		for i := 1; i < len(offsets); i++ {
			assert.Less(t, offsets[i-1], offsets[i])
		}

		_, err = r.LookupAll([]byte("NOP"))
		assert.ErrorIs(t, err, core.ErrNotFound)
	})
}

func TestReader_EntryAt(t *testing.T) {
	dir := t.TempDir()
	data := testutil.WriteLines(t, dir, "data.txt", "AAA:1", "BBB:2", "AAC:3")
	idx := filepath.Join(dir, "data.idx")
	buildIndex(t, BuildOptions{DataPath: data, IndexPath: idx, KeyLength: 3})

	r, err := OpenReader(ReaderOptions{Path: idx, KeyLength: 3})
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, int64(3), r.Len())
	assert.Equal(t, 3, r.KeyLength())
	assert.Equal(t, idx, r.Path())

	want := []core.IndexEntry{{Key: []byte("AAA"), Offset: 0}, {Key: []byte("AAC"), Offset: 12}, {Key: []byte("BBB"), Offset: 6}}
	for i, w := range want {
		e, err := r.EntryAt(int64(i))
		require.NoError(t, err)
		assert.Equal(t, w, e)
	}
	_, err = r.EntryAt(3)
	assert.Error(t, err)
	_, err = r.EntryAt(-1)
	assert.Error(t, err)
}

func TestOpenReader_Validation(t *testing.T) {
	dir := t.TempDir()
	data := testutil.WriteLines(t, dir, "data.txt", "AAA:1", "BBB:2", "AAC:3")
	v1 := filepath.Join(dir, "v1.idx")
	raw := filepath.Join(dir, "raw.idx")
	buildIndex(t, BuildOptions{DataPath: data, IndexPath: v1, KeyLength: 3})
	buildIndex(t, BuildOptions{DataPath: data, IndexPath: raw, KeyLength: 3, Format: core.FormatRaw})

	v1Bytes, err := os.ReadFile(v1)
	require.NoError(t, err)
	rawBytes, err := os.ReadFile(raw)
	require.NoError(t, err)
	assert.Equal(t, rawBytes, v1Bytes[core.IndexHeaderSize:])

	write := func(name string, b []byte) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, b, 0644))
		return p
	}
	badMagic := append([]byte(nil), v1Bytes...)
	badMagic[0] ^= 0xff
	badCount := append([]byte(nil), v1Bytes...)
	badCount[9]++

	testCases := []struct {
		name      string
		path      string
		format    core.IndexFormat
		keyLength int
		wantErr   error
	}{
		{"v1 wrong key length", v1, core.FormatV1, 4, core.ErrSchemaMismatch},
		{"v1 truncated body", write("trunc.idx", v1Bytes[:len(v1Bytes)-3]), core.FormatV1, 3, core.ErrCorruptIndex},
		{"v1 truncated header", write("short.idx", v1Bytes[:5]), core.FormatV1, 3, core.ErrCorruptIndex},
		{"v1 bad magic", write("magic.idx", badMagic), core.FormatV1, 3, core.ErrCorruptIndex},
		{"v1 count mismatch", write("count.idx", badCount), core.FormatV1, 3, core.ErrCorruptIndex},
		{"raw truncated body", write("rawtrunc.idx", rawBytes[:len(rawBytes)-1]), core.FormatRaw, 3, core.ErrCorruptIndex},
		{"raw wrong key length", raw, core.FormatRaw, 4, core.ErrCorruptIndex},
		{"invalid key length", v1, core.FormatV1, 0, core.ErrInvalidKeyLength},
		{"missing file", filepath.Join(dir, "missing.idx"), core.FormatV1, 3, os.ErrNotExist},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := OpenReader(ReaderOptions{Path: tc.path, KeyLength: tc.keyLength, Format: tc.format})
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}

	var mismatch *core.SchemaMismatchError
	_, err = OpenReader(ReaderOptions{Path: v1, KeyLength: 5})
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 3, mismatch.Stored)
	assert.Equal(t, 5, mismatch.Wanted)
}

func TestScanner_StopsAtShortTail(t *testing.T) {
	dir := t.TempDir()
	data := testutil.WriteLines(t, dir, "data.txt", "AAA:1", "BBB:2")
	idx := filepath.Join(dir, "data.idx")
	buildIndex(t, BuildOptions{DataPath: data, IndexPath: idx, KeyLength: 3, Format: core.FormatRaw})

	r, err := OpenReader(ReaderOptions{Path: idx, KeyLength: 3, Format: core.FormatRaw})
	require.NoError(t, err)
	defer r.Close()

	s := r.NewScanner()
	var keys []string
	for s.Next() {
		keys = append(keys, string(s.Entry().Key))
		assert.Equal(t, int64(len(keys)-1), s.Index())
	}
	require.NoError(t, s.Err())
	assert.Equal(t, []string{"AAA", "BBB"}, keys)
}
