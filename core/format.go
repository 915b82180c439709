package core

import (
	"fmt"
)

// This file centralizes constants related to file formats and magic numbers.

// --- Magic Numbers ---
const (
	// IndexMagicNumber identifies a v1 index file.
	IndexMagicNumber uint32 = 0x58444946 // "FIDX"
	// SpillMagicNumber identifies a temporary sorted run written during a build.
	SpillMagicNumber uint32 = 0x4C495053 // "SPIL"
)

// --- File Names & Suffixes ---
const (
	TempFileSuffix = "tmp"
	LockFileSuffix = "lock"
	// SpillFilePattern is passed to os.CreateTemp for spill runs.
	SpillFilePattern = "flatindex-run-*.spill"
)

// --- Protocol & Format Versions ---
const (
	// FormatVersion is the current version of the v1 index header.
	FormatVersion uint8 = 1
)

// --- Default Sizes & Limits ---
const (
	// DefaultChunkEntries bounds the number of entries held in memory by the merge strategy.
	DefaultChunkEntries = 1 << 20
	// MaxKeyLength is the upper bound accepted for a key length.
	MaxKeyLength = 1 << 16
	// SpillBlockEntries is the number of entries packed into one spill block.
	SpillBlockEntries = 4096
)

func FormatTempFilename(prefix, postfix string) string {
	return fmt.Sprintf("%s.%s", prefix, postfix)
}

// ValidateKeyLength rejects key lengths that cannot describe an index entry.
func ValidateKeyLength(keyLength int) error {
	if keyLength <= 0 || keyLength > MaxKeyLength {
		return fmt.Errorf("%w: got %d", ErrInvalidKeyLength, keyLength)
	}
	return nil
}
