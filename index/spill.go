package index

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/INLOpen/flatindex/compressors"
	"github.com/INLOpen/flatindex/core"
	"github.com/INLOpen/flatindex/sys"
)

// Spill runs hold entries on disk between build phases. A run starts with
// a header of magic (uint32) and key length (uint32), followed by blocks:
//
//	compression type (1) | crc32 of raw block (4) | payload length (4) | payload
//
// A raw block is a sequence of encoded entries.
const (
	spillHeaderSize      = 8
	spillBlockHeaderSize = 1 + core.ChecksumSize + 4
)

type spillWriter struct {
	file       sys.FileHandle
	w          *bufio.Writer
	compressor core.Compressor
	keyLength  int
	recordSize int
	block      []byte
	blockCap   int
	count      int64
	blocks     int
}

func newSpillWriter(file sys.FileHandle, keyLength int, compressor core.Compressor) (*spillWriter, error) {
	if compressor == nil {
		compressor = &compressors.NoCompressionCompressor{}
	}
	rs := core.RecordSize(keyLength)
	sw := &spillWriter{
		file:       file,
		w:          bufio.NewWriterSize(file, 128*1024),
		compressor: compressor,
		keyLength:  keyLength,
		recordSize: rs,
		block:      make([]byte, 0, core.SpillBlockEntries*rs),
		blockCap:   core.SpillBlockEntries * rs,
	}
	var hdr [spillHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], core.SpillMagicNumber)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(keyLength))
	if _, err := sw.w.Write(hdr[:]); err != nil {
		return nil, fmt.Errorf("failed to write spill header: %w", err)
	}
	return sw, nil
}

func (sw *spillWriter) add(key []byte, offset int64) error {
	n := len(sw.block)
	sw.block = sw.block[:n+sw.recordSize]
	putEntry(sw.block[n:], key, offset)
	sw.count++
	if len(sw.block) >= sw.blockCap {
		return sw.flushBlock()
	}
	return nil
}

func (sw *spillWriter) flushBlock() error {
	if len(sw.block) == 0 {
		return nil
	}
	buf := core.BufferPool.Get()
	defer core.BufferPool.Put(buf)

	ctype := sw.compressor.Type()
	payload := sw.block
	if err := sw.compressor.CompressTo(buf, sw.block); err != nil {
		if !errors.Is(err, compressors.ErrIncompressible) {
			return fmt.Errorf("failed to compress spill block: %w", err)
		}
		ctype = core.CompressionNone
	} else {
		payload = buf.Bytes()
	}

	var hdr [spillBlockHeaderSize]byte
	hdr[0] = byte(ctype)
	binary.LittleEndian.PutUint32(hdr[1:5], crc32.ChecksumIEEE(sw.block))
	binary.LittleEndian.PutUint32(hdr[5:9], uint32(len(payload)))
	if _, err := sw.w.Write(hdr[:]); err != nil {
		return fmt.Errorf("failed to write spill block header: %w", err)
	}
	if _, err := sw.w.Write(payload); err != nil {
		return fmt.Errorf("failed to write spill block: %w", err)
	}
	sw.block = sw.block[:0]
	sw.blocks++
	return nil
}

// close flushes the last block and closes the file. The file stays on disk.
func (sw *spillWriter) close() error {
	if err := sw.flushBlock(); err != nil {
		_ = sw.file.Close()
		return err
	}
	if err := sw.w.Flush(); err != nil {
		_ = sw.file.Close()
		return fmt.Errorf("failed to flush spill run: %w", err)
	}
	return sw.file.Close()
}

// spillReader yields the entries of a run in the order they were written.
type spillReader struct {
	file       sys.FileHandle
	r          *bufio.Reader
	keyLength  int
	recordSize int
	block      []byte
	pos        int
	payload    []byte
	err        error
}

func openSpillReader(path string, keyLength int) (*spillReader, error) {
	file, err := sys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open spill run %s: %w", path, err)
	}
	sr := &spillReader{
		file:       file,
		r:          bufio.NewReaderSize(file, 128*1024),
		keyLength:  keyLength,
		recordSize: core.RecordSize(keyLength),
	}
	var hdr [spillHeaderSize]byte
	if _, err := io.ReadFull(sr.r, hdr[:]); err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: spill run %s has no header: %v", core.ErrCorruptIndex, path, err)
	}
	if magic := binary.LittleEndian.Uint32(hdr[0:4]); magic != core.SpillMagicNumber {
		file.Close()
		return nil, fmt.Errorf("%w: spill run %s has bad magic %#x", core.ErrCorruptIndex, path, magic)
	}
	if kl := binary.LittleEndian.Uint32(hdr[4:8]); int(kl) != keyLength {
		file.Close()
		return nil, fmt.Errorf("%w: spill run %s has key length %d, want %d", core.ErrCorruptIndex, path, kl, keyLength)
	}
	return sr, nil
}

// next returns the next encoded entry, valid until the following call.
// It returns io.EOF after the last entry.
func (sr *spillReader) next() ([]byte, error) {
	if sr.err != nil {
		return nil, sr.err
	}
	if sr.pos >= len(sr.block) {
		if err := sr.readBlock(); err != nil {
			sr.err = err
			return nil, err
		}
	}
	e := sr.block[sr.pos : sr.pos+sr.recordSize]
	sr.pos += sr.recordSize
	return e, nil
}

// nextBlock returns the whole remaining decoded block.
func (sr *spillReader) nextBlock() ([]byte, error) {
	if sr.err != nil {
		return nil, sr.err
	}
	if sr.pos >= len(sr.block) {
		if err := sr.readBlock(); err != nil {
			sr.err = err
			return nil, err
		}
	}
	b := sr.block[sr.pos:]
	sr.pos = len(sr.block)
	return b, nil
}

func (sr *spillReader) readBlock() error {
	var hdr [spillBlockHeaderSize]byte
	if _, err := io.ReadFull(sr.r, hdr[:]); err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return fmt.Errorf("%w: truncated spill block header: %v", core.ErrCorruptIndex, err)
	}
	ctype := core.CompressionType(hdr[0])
	wantCRC := binary.LittleEndian.Uint32(hdr[1:5])
	n := binary.LittleEndian.Uint32(hdr[5:9])

	if cap(sr.payload) < int(n) {
		sr.payload = make([]byte, n)
	}
	sr.payload = sr.payload[:n]
	if _, err := io.ReadFull(sr.r, sr.payload); err != nil {
		return fmt.Errorf("%w: truncated spill block: %v", core.ErrCorruptIndex, err)
	}

	c, err := compressors.Get(ctype)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrCorruptIndex, err)
	}
	rc, err := c.Decompress(sr.payload)
	if err != nil {
		return fmt.Errorf("%w: failed to decompress spill block: %v", core.ErrCorruptIndex, err)
	}
	buf := core.BufferPool.Get()
	_, err = buf.ReadFrom(rc)
	rc.Close()
	if err != nil {
		core.BufferPool.Put(buf)
		return fmt.Errorf("%w: failed to decompress spill block: %v", core.ErrCorruptIndex, err)
	}
	sr.block = append(sr.block[:0], buf.Bytes()...)
	core.BufferPool.Put(buf)
	sr.pos = 0

	if crc32.ChecksumIEEE(sr.block) != wantCRC {
		return fmt.Errorf("%w: spill block checksum mismatch", core.ErrCorruptIndex)
	}
	if len(sr.block) == 0 || len(sr.block)%sr.recordSize != 0 {
		return fmt.Errorf("%w: spill block of %d bytes does not hold whole entries", core.ErrCorruptIndex, len(sr.block))
	}
	return nil
}

func (sr *spillReader) close() error {
	return sr.file.Close()
}
