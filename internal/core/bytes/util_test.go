package bytes

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBytesFromStruct(t *testing.T) {
	type header struct {
		Size   uint16
		Opcode uint16
		Flag   uint32
	}

	b, size := BytesFromStruct(&header{Size: 0x0008, Opcode: 0x00B5, Flag: 1})
	expected := []byte{0x08, 0x00, 0xb5, 0x00, 0x01, 0x00, 0x00, 0x00}

	if size != len(expected) {
		t.Errorf("BytesFromStruct() size want = %d, got = %d", len(expected), size)
	}
	if diff := cmp.Diff(expected, b); diff != "" {
		t.Errorf("BytesFromStruct() returned the wrong bytes; diff:\n%s", diff)
	}
}

func TestStructFromBytes(t *testing.T) {
	type header struct {
		Size   uint16
		Opcode uint16
	}

	var h header
	StructFromBytes([]byte{0x10, 0x00, 0xee, 0x00}, &h)

	if h.Size != 0x10 || h.Opcode != 0xee {
		t.Errorf("StructFromBytes() want = {16 238}, got = %+v", h)
	}
}

func TestWriterReader_RoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteUint32(0xdeadbeef)
	w.WriteFloat32(-12.5)
	w.WriteCString("Sentry")
	w.WriteUint8(3)

	r := NewReader(w.Bytes())
	if v := r.ReadUint32(); v != 0xdeadbeef {
		t.Errorf("ReadUint32() want = 0xdeadbeef, got = %#x", v)
	}
	if v := r.ReadFloat32(); v != -12.5 {
		t.Errorf("ReadFloat32() want = -12.5, got = %f", v)
	}
	if v := r.ReadCString(); v != "Sentry" {
		t.Errorf("ReadCString() want = Sentry, got = %s", v)
	}
	if v := r.ReadUint8(); v != 3 {
		t.Errorf("ReadUint8() want = 3, got = %d", v)
	}
	if r.Remaining() != 0 {
		t.Errorf("Remaining() want = 0, got = %d", r.Remaining())
	}
	if r.Err() != nil {
		t.Errorf("Err() want = nil, got = %v", r.Err())
	}
}

func TestReader_ShortRead(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02})

	r.ReadUint32()
	if !errors.Is(r.Err(), ErrShortRead) {
		t.Errorf("Err() want = ErrShortRead, got = %v", r.Err())
	}

	// Subsequent reads stay latched instead of panicking.
	if v := r.ReadUint16(); v != 0 {
		t.Errorf("ReadUint16() after error want = 0, got = %d", v)
	}
}

func TestStripPadding(t *testing.T) {
	b := StripPadding([]byte{0x01, 0x02, 0x00, 0x00})
	if diff := cmp.Diff([]byte{0x01, 0x02}, b); diff != "" {
		t.Errorf("StripPadding() diff:\n%s", diff)
	}
}
