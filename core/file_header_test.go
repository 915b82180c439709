package core

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexHeader_RoundTrip(t *testing.T) {
	h := NewIndexHeader(3, 42)
	var buf bytes.Buffer
	n, err := h.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(17), n)
	assert.Equal(t, 17, IndexHeaderSize)
	assert.Equal(t, IndexHeaderSize, buf.Len())

	got, err := ReadIndexHeader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, h, got)
	assert.Equal(t, uint32(3), got.KeyLength)
	assert.Equal(t, uint64(42), got.EntryCount)
}

func TestReadIndexHeader_Errors(t *testing.T) {
	encode := func(h IndexHeader) []byte {
		var buf bytes.Buffer
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, &h))
		return buf.Bytes()
	}

	testCases := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"truncated", encode(NewIndexHeader(3, 1))[:10]},
		{"bad magic", encode(IndexHeader{Magic: 0xDEADBEEF, Version: FormatVersion, KeyLength: 3})},
		{"bad version", encode(IndexHeader{Magic: IndexMagicNumber, Version: 99, KeyLength: 3})},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadIndexHeader(bytes.NewReader(tc.data))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrCorruptIndex), "got %v", err)
		})
	}
}

func TestCompareEntries(t *testing.T) {
	a := IndexEntry{Key: []byte("AAA"), Offset: 10}
	b := IndexEntry{Key: []byte("AAA"), Offset: 20}
	c := IndexEntry{Key: []byte("AAC"), Offset: 0}

	assert.Equal(t, -1, CompareEntries(a, b))
	assert.Equal(t, 1, CompareEntries(b, a))
	assert.Equal(t, 0, CompareEntries(a, a))
	assert.Equal(t, -1, CompareEntries(b, c))
}

func TestParsers(t *testing.T) {
	s, err := ParseBuildStrategy("MERGE")
	require.NoError(t, err)
	assert.Equal(t, StrategyMerge, s)

	s, err = ParseBuildStrategy("")
	require.NoError(t, err)
	assert.Equal(t, StrategyAuto, s)

	_, err = ParseBuildStrategy("quick")
	assert.True(t, IsValidationError(err))

	m, err := ParseSearchMode("any")
	require.NoError(t, err)
	assert.Equal(t, SearchAny, m)
	assert.Equal(t, "any", m.String())

	f, err := ParseIndexFormat("raw")
	require.NoError(t, err)
	assert.Equal(t, FormatRaw, f)
	_, err = ParseIndexFormat("v2")
	assert.True(t, IsValidationError(err))

	ct, err := ParseCompressionType("zstd")
	require.NoError(t, err)
	assert.Equal(t, CompressionZSTD, ct)
	assert.Equal(t, "zstd", ct.String())
}

func TestValidateKeyLength(t *testing.T) {
	assert.NoError(t, ValidateKeyLength(1))
	assert.ErrorIs(t, ValidateKeyLength(0), ErrInvalidKeyLength)
	assert.ErrorIs(t, ValidateKeyLength(-3), ErrInvalidKeyLength)
	assert.ErrorIs(t, ValidateKeyLength(MaxKeyLength+1), ErrInvalidKeyLength)
}

func TestSchemaMismatchError(t *testing.T) {
	err := error(&SchemaMismatchError{Path: "idx", Stored: 3, Wanted: 5})
	assert.ErrorIs(t, err, ErrSchemaMismatch)
	assert.Contains(t, err.Error(), "key length 3")
}
