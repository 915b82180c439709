package index

import (
	"bytes"
	"encoding/binary"
	"sort"
)

// packedEntries holds encoded entries back to back, exactly as they appear
// in an index body. Sorting it in place yields the body ready to write.
type packedEntries struct {
	buf        []byte
	keyLength  int
	recordSize int
	tmp        []byte
}

func newPackedEntries(keyLength int, capacity int) *packedEntries {
	rs := keyLength + 8
	return &packedEntries{
		buf:        make([]byte, 0, capacity*rs),
		keyLength:  keyLength,
		recordSize: rs,
		tmp:        make([]byte, rs),
	}
}

func (p *packedEntries) add(key []byte, offset int64) {
	n := len(p.buf)
	p.buf = append(p.buf, p.tmp...)
	putEntry(p.buf[n:], key, offset)
}

// addEncoded appends already encoded entries.
func (p *packedEntries) addEncoded(entries []byte) {
	p.buf = append(p.buf, entries...)
}

func (p *packedEntries) Len() int { return len(p.buf) / p.recordSize }

func (p *packedEntries) at(i int) []byte {
	return p.buf[i*p.recordSize : (i+1)*p.recordSize]
}

func (p *packedEntries) Less(i, j int) bool {
	a, b := p.at(i), p.at(j)
	if c := bytes.Compare(a[:p.keyLength], b[:p.keyLength]); c != 0 {
		return c < 0
	}
	return int64(binary.LittleEndian.Uint64(a[p.keyLength:])) < int64(binary.LittleEndian.Uint64(b[p.keyLength:]))
}

func (p *packedEntries) Swap(i, j int) {
	a, b := p.at(i), p.at(j)
	copy(p.tmp, a)
	copy(a, b)
	copy(b, p.tmp)
}

// sort orders entries by key, then offset. Offsets are unique, so the
// order is total and the unstable sort is deterministic.
func (p *packedEntries) sort() {
	sort.Sort(p)
}

func (p *packedEntries) bytes() []byte {
	return p.buf
}
