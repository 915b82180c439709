package core

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"
)

// CompressionType identifies the compression algorithm used.
// This is stored in every spill block to know how to decompress it.
type CompressionType byte

const (
	CompressionNone   CompressionType = 0
	CompressionSnappy CompressionType = 1
	CompressionLZ4    CompressionType = 2
	CompressionZSTD   CompressionType = 3
)

// Compressor defines the interface for compression and decompression algorithms.
type Compressor interface {
	// Compress compresses the input data.
	Compress(data []byte) ([]byte, error)
	CompressTo(dst *bytes.Buffer, src []byte) error
	// Decompress decompresses the input data.
	Decompress(data []byte) (io.ReadCloser, error)
	// Type returns the CompressionType identifier for this compressor.
	Type() CompressionType
}

// String returns the string representation of the CompressionType.
func (ct CompressionType) String() string {
	switch ct {
	case CompressionNone:
		return "none"
	case CompressionSnappy:
		return "snappy"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return "unknown"
	}
}

// ParseCompressionType maps a config name to a CompressionType.
func ParseCompressionType(name string) (CompressionType, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return CompressionNone, nil
	case "snappy":
		return CompressionSnappy, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	}
	return 0, &ValidationError{Field: "compression", Value: name, Message: "unknown compression type"}
}

// IndexFormat selects the on-disk layout of an index file.
type IndexFormat uint8

const (
	// FormatV1 is a header followed by the packed entries.
	FormatV1 IndexFormat = iota
	// FormatRaw is the packed entries only. The key length is known to the caller.
	FormatRaw
)

func (f IndexFormat) String() string {
	switch f {
	case FormatV1:
		return "v1"
	case FormatRaw:
		return "raw"
	default:
		return fmt.Sprintf("format(%d)", uint8(f))
	}
}

func ParseIndexFormat(name string) (IndexFormat, error) {
	switch strings.ToLower(name) {
	case "", "v1":
		return FormatV1, nil
	case "raw":
		return FormatRaw, nil
	}
	return 0, &ValidationError{Field: "format", Value: name, Message: "expected v1 or raw"}
}

// BuildStrategy selects how the builder sorts entries.
type BuildStrategy string

const (
	StrategyMemory BuildStrategy = "memory"
	StrategyStaged BuildStrategy = "staged"
	StrategyMerge  BuildStrategy = "merge"
	StrategyAuto   BuildStrategy = "auto"
)

func ParseBuildStrategy(name string) (BuildStrategy, error) {
	switch s := BuildStrategy(strings.ToLower(name)); s {
	case "":
		return StrategyAuto, nil
	case StrategyMemory, StrategyStaged, StrategyMerge, StrategyAuto:
		return s, nil
	}
	return "", &ValidationError{Field: "strategy", Value: name, Message: "expected memory, staged, merge or auto"}
}

// SearchMode decides which entry a lookup returns when a key is duplicated.
type SearchMode uint8

const (
	// SearchLeftmost returns the first matching entry in index order, which is
	// the first matching record in the data file.
	SearchLeftmost SearchMode = iota
	// SearchAny stops at the first probe that matches.
	SearchAny
)

func (m SearchMode) String() string {
	if m == SearchAny {
		return "any"
	}
	return "leftmost"
}

func ParseSearchMode(name string) (SearchMode, error) {
	switch strings.ToLower(name) {
	case "", "leftmost":
		return SearchLeftmost, nil
	case "any":
		return SearchAny, nil
	}
	return 0, &ValidationError{Field: "search_mode", Value: name, Message: "expected leftmost or any"}
}

// IndexEntry maps a fixed-length key to the byte offset of its record.
type IndexEntry struct {
	Key    []byte
	Offset int64
}

// CompareEntries orders entries by key, then by offset.
func CompareEntries(a, b IndexEntry) int {
	if c := bytes.Compare(a.Key, b.Key); c != 0 {
		return c
	}
	switch {
	case a.Offset < b.Offset:
		return -1
	case a.Offset > b.Offset:
		return 1
	}
	return 0
}

// BuildResult summarizes a finished build.
type BuildResult struct {
	Records   int64
	Entries   int64
	Skipped   int64
	Strategy  BuildStrategy
	Runs      int
	IndexSize int64
	Duration  time.Duration
}

const (
	OffsetSize   = 8 // int64 record offset
	ChecksumSize = 4 // uint32 CRC32 of a spill block
)

// RecordSize is the width of one packed index entry.
func RecordSize(keyLength int) int {
	return keyLength + OffsetSize
}
