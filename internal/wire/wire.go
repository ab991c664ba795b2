// Package wire defines the byte layouts tierstore owns: framed cache entries
// and durable sequence counters.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version   byte = 1
	kindEntry byte = 1

	entryHeader = 4 + 1 + 1 + 8 + 4

	// CounterSize is the width of a stored sequence counter.
	CounterSize = 4
)

var (
	ErrCorrupt = errors.New("tierstore: corrupt cache entry")
	magic4     = [...]byte{'T', 'I', 'E', 'R'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Entry: magic(4) | ver(1) | kind(1=entry) | gen(u64 be) | vlen(u32 be) | payload(vlen)
func EncodeEntry(gen uint64, payload []byte) []byte {
	buf := make([]byte, entryHeader+len(payload))
	copy(buf, magic4[:])
	buf[4] = version
	buf[5] = kindEntry
	binary.BigEndian.PutUint64(buf[6:14], gen)
	binary.BigEndian.PutUint32(buf[14:18], uint32(len(payload)))
	copy(buf[entryHeader:], payload)
	return buf
}

// DecodeEntry returns the generation and a payload slice aliasing b.
// Trailing bytes after the announced payload are rejected.
func DecodeEntry(b []byte) (gen uint64, payload []byte, err error) {
	if len(b) < entryHeader || !hasMagic(b) || b[4] != version || b[5] != kindEntry {
		return 0, nil, ErrCorrupt
	}
	gen = binary.BigEndian.Uint64(b[6:14])
	vlen := uint64(binary.BigEndian.Uint32(b[14:18]))
	if vlen != uint64(len(b)-entryHeader) {
		return 0, nil, ErrCorrupt
	}
	return gen, b[entryHeader:], nil
}

// EntryGen extracts only the generation.
func EntryGen(b []byte) (uint64, error) {
	gen, _, err := DecodeEntry(b)
	return gen, err
}

// EncodeCounter stores v as 4 big-endian bytes.
func EncodeCounter(v uint32) []byte {
	var b [CounterSize]byte
	binary.BigEndian.PutUint32(b[:], v)
	return b[:]
}

// DecodeCounter reads a stored counter. Anything that is not exactly
// CounterSize bytes reads as absent.
func DecodeCounter(b []byte) (uint32, bool) {
	if len(b) != CounterSize {
		return 0, false
	}
	return binary.BigEndian.Uint32(b), true
}
