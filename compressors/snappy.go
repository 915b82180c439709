package compressors

import (
	"bytes"
	"fmt"
	"io"

	"github.com/INLOpen/flatindex/core"
	"github.com/golang/snappy"
)

// SnappyCompressor uses the snappy block format.
type SnappyCompressor struct{}

var _ core.Compressor = (*SnappyCompressor)(nil)

func NewSnappyCompressor() *SnappyCompressor {
	return &SnappyCompressor{}
}

func (c *SnappyCompressor) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (c *SnappyCompressor) Decompress(data []byte) (io.ReadCloser, error) {
	decompressed, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("snappy decompress error: %w", err)
	}
	return &plainReadCloser{Reader: bytes.NewReader(decompressed)}, nil
}

func (c *SnappyCompressor) Type() core.CompressionType {
	return core.CompressionSnappy
}

// CompressTo encodes into dst's spare capacity when it is large enough.
func (c *SnappyCompressor) CompressTo(dst *bytes.Buffer, src []byte) error {
	dst.Reset()
	need := snappy.MaxEncodedLen(len(src))
	if need < 0 {
		return fmt.Errorf("snappy: block of %d bytes is too large", len(src))
	}
	dst.Grow(need)
	encoded := snappy.Encode(dst.AvailableBuffer()[:need], src)
	dst.Write(encoded)
	return nil
}
