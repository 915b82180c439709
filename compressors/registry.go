package compressors

import (
	"fmt"

	"github.com/INLOpen/flatindex/core"
)

var (
	noneCompressor   = &NoCompressionCompressor{}
	snappyCompressor = NewSnappyCompressor()
	lz4Compressor    = NewLz4Compressor()
	zstdCompressor   = NewZstdCompressor()
)

// Get returns the shared compressor for a stored compression type.
func Get(ct core.CompressionType) (core.Compressor, error) {
	switch ct {
	case core.CompressionNone:
		return noneCompressor, nil
	case core.CompressionSnappy:
		return snappyCompressor, nil
	case core.CompressionLZ4:
		return lz4Compressor, nil
	case core.CompressionZSTD:
		return zstdCompressor, nil
	}
	return nil, fmt.Errorf("unsupported compression type: %d", ct)
}

// ByName resolves a config name such as "snappy" to a compressor.
func ByName(name string) (core.Compressor, error) {
	ct, err := core.ParseCompressionType(name)
	if err != nil {
		return nil, err
	}
	return Get(ct)
}
