package compressors

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/INLOpen/flatindex/core"
	lz4 "github.com/pierrec/lz4/v4"
)

// ErrIncompressible is returned by LZ4 when a block does not shrink. The
// caller stores such a block uncompressed.
var ErrIncompressible = errors.New("lz4: block is incompressible")

// maxLZ4BlockSize bounds the decompression buffer growth.
const maxLZ4BlockSize = 64 * 1024 * 1024

// LZ4Compressor uses the raw LZ4 block format, which does not record the
// decompressed size.
type LZ4Compressor struct{}

var _ core.Compressor = (*LZ4Compressor)(nil)

func NewLz4Compressor() *LZ4Compressor {
	return &LZ4Compressor{}
}

func (c *LZ4Compressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.CompressTo(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *LZ4Compressor) Decompress(data []byte) (io.ReadCloser, error) {
	if len(data) == 0 {
		return &plainReadCloser{Reader: bytes.NewReader(nil)}, nil
	}
	dstSize := len(data) * 3
	if dstSize < 1024 {
		dstSize = 1024
	}
	dst := make([]byte, dstSize)

	for {
		n, err := lz4.UncompressBlock(data, dst)
		if err == nil {
			return &plainReadCloser{Reader: bytes.NewReader(dst[:n])}, nil
		}
		if errors.Is(err, lz4.ErrInvalidSourceShortBuffer) {
			if len(dst) > maxLZ4BlockSize {
				return nil, fmt.Errorf("lz4 decompression buffer grew too large (>%d bytes)", maxLZ4BlockSize)
			}
			dst = make([]byte, len(dst)*2)
			continue
		}
		return nil, fmt.Errorf("lz4 decompress error: %w", err)
	}
}

func (c *LZ4Compressor) Type() core.CompressionType {
	return core.CompressionLZ4
}

func (c *LZ4Compressor) CompressTo(dst *bytes.Buffer, src []byte) error {
	dst.Reset()
	if len(src) == 0 {
		return nil
	}
	bound := lz4.CompressBlockBound(len(src))
	dst.Grow(bound)
	out := dst.AvailableBuffer()[:bound]

	n, err := lz4.CompressBlock(src, out, nil)
	if err != nil {
		return fmt.Errorf("lz4 compress error: %w", err)
	}
	if n == 0 {
		return ErrIncompressible
	}
	dst.Write(out[:n])
	return nil
}
