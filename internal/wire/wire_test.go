package wire

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
)

func mustDecodeEntry(t *testing.T, b []byte) (uint64, []byte) {
	t.Helper()
	gen, p, err := DecodeEntry(b)
	if err != nil {
		t.Fatalf("DecodeEntry error: %v", err)
	}
	return gen, p
}

func TestEntryRTEmptyAndNonEmpty(t *testing.T) {
	cases := []struct {
		gen     uint64
		payload []byte
	}{
		{0, nil},
		{42, []byte("hello")},
		{math.MaxUint64, []byte{0, 1, 2, 3, 4}},
	}
	for _, tc := range cases {
		enc := EncodeEntry(tc.gen, tc.payload)
		gen, p := mustDecodeEntry(t, enc)
		if gen != tc.gen {
			t.Fatalf("gen mismatch: got %d want %d", gen, tc.gen)
		}
		if !bytes.Equal(p, tc.payload) {
			t.Fatalf("payload mismatch: got %x want %x", p, tc.payload)
		}
		if g, err := EntryGen(enc); err != nil || g != tc.gen {
			t.Fatalf("EntryGen = %d, %v", g, err)
		}
	}
}

func TestEntryRejectsTrailingBytes(t *testing.T) {
	enc := EncodeEntry(7, []byte("x"))
	enc = append(enc, 0xDE, 0xAD)
	if _, _, err := DecodeEntry(enc); err == nil {
		t.Fatalf("expected error on trailing bytes")
	}
}

func TestEntryCorruptHeadersAndLengths(t *testing.T) {
	enc := EncodeEntry(1, []byte("abc"))

	// bad magic
	badMagic := append([]byte(nil), enc...)
	badMagic[0] = 'X'
	if _, _, err := DecodeEntry(badMagic); err == nil {
		t.Fatalf("expected error on bad magic")
	}

	// wrong version
	badVer := append([]byte(nil), enc...)
	badVer[4] = version + 1
	if _, _, err := DecodeEntry(badVer); err == nil {
		t.Fatalf("expected error on bad version")
	}

	// wrong kind
	badKind := append([]byte(nil), enc...)
	badKind[5] = kindEntry + 1
	if _, _, err := DecodeEntry(badKind); err == nil {
		t.Fatalf("expected error on bad kind")
	}

	// vlen is at offset 14..17 (4 magic +1 ver +1 kind +8 gen)
	tooLong := append([]byte(nil), enc...)
	binary.BigEndian.PutUint32(tooLong[14:18], uint32(len("abc")+1))
	if _, _, err := DecodeEntry(tooLong); err == nil {
		t.Fatalf("expected error on vlen beyond buffer")
	}

	if _, _, err := DecodeEntry(enc[:len(enc)-1]); err == nil {
		t.Fatalf("expected error on truncated buffer")
	}
	if _, _, err := DecodeEntry([]byte("raw-user-bytes")); err == nil {
		t.Fatalf("expected error on foreign bytes")
	}
}

func TestEncodeEntryCopiesPayload(t *testing.T) {
	p := []byte("Z")
	enc := EncodeEntry(1, p)
	p[0] = 'Q'
	_, got := mustDecodeEntry(t, enc)
	if got[0] != 'Z' {
		t.Fatalf("entry must not alias the caller's payload")
	}
}

func TestCounter(t *testing.T) {
	for _, v := range []uint32{0, 1, 255, 256, math.MaxUint32} {
		b := EncodeCounter(v)
		if len(b) != CounterSize {
			t.Fatalf("len=%d", len(b))
		}
		got, ok := DecodeCounter(b)
		if !ok || got != v {
			t.Fatalf("DecodeCounter(%x) = %d,%v want %d", b, got, ok, v)
		}
	}
	if !bytes.Equal(EncodeCounter(1), []byte{0, 0, 0, 1}) {
		t.Fatalf("counter must be big-endian")
	}
	for _, b := range [][]byte{nil, {1}, {0, 0, 1}, {0, 0, 0, 0, 1}} {
		if _, ok := DecodeCounter(b); ok {
			t.Fatalf("DecodeCounter(%x) should be absent", b)
		}
	}
}
