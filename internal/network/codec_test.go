package network

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/vennwood/revenant/internal/protocol"
)

func TestCodec_Decode(t *testing.T) {
	var c Codec

	opcode, payload, err := c.Decode([]byte{0xb5, 0x00, 0x01, 0x02, 0x03})
	if err != nil {
		t.Fatalf("Decode() returned error: %v", err)
	}
	if opcode != protocol.MoveStartForwardType {
		t.Errorf("Decode() opcode want = %v, got = %v", protocol.MoveStartForwardType, opcode)
	}
	if diff := cmp.Diff([]byte{0x01, 0x02, 0x03}, payload); diff != "" {
		t.Errorf("Decode() payload diff:\n%s", diff)
	}
}

func TestCodec_DecodeMalformed(t *testing.T) {
	var c Codec

	for _, frame := range [][]byte{{}, {0xb5}} {
		if _, _, err := c.Decode(frame); !errors.Is(err, ErrMalformedFrame) {
			t.Errorf("Decode(%v) want = ErrMalformedFrame, got = %v", frame, err)
		}
	}
}

func TestCodec_Encode(t *testing.T) {
	var c Codec

	frame, err := c.Encode(protocol.MoveHeartbeatType, []byte{0xaa, 0xbb})
	if err != nil {
		t.Fatalf("Encode() returned error: %v", err)
	}
	expected := []byte{
		0x00, 0x06, // size: 4-byte opcode + 2 payload bytes, big endian
		0xee, 0x00, 0x00, 0x00, // opcode, little endian
		0xaa, 0xbb,
	}

	if diff := cmp.Diff(expected, frame); diff != "" {
		t.Errorf("Encode() diff:\n%s", diff)
	}
}

func TestCodec_EncodeEmptyPayload(t *testing.T) {
	var c Codec

	frame, err := c.Encode(protocol.MoveStopType, nil)
	if err != nil {
		t.Fatalf("Encode() returned error: %v", err)
	}
	expected := []byte{0x00, 0x04, 0xb7, 0x00, 0x00, 0x00}

	if diff := cmp.Diff(expected, frame); diff != "" {
		t.Errorf("Encode() diff:\n%s", diff)
	}
}

func TestCodec_EncodeOversizedPayload(t *testing.T) {
	var c Codec

	// 65531 payload bytes + the 4-byte opcode is the largest legal frame.
	frame, err := c.Encode(protocol.MoveStopType, make([]byte, 65531))
	if err != nil {
		t.Fatalf("Encode() rejected the largest legal frame: %v", err)
	}
	if len(frame) != 2+65535 {
		t.Errorf("Encode() frame length want = %d, got = %d", 2+65535, len(frame))
	}

	if _, err := c.Encode(protocol.MoveStopType, make([]byte, 65532)); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("Encode() on oversized payload want = ErrFrameTooLarge, got = %v", err)
	}
}
