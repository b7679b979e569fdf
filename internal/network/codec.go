package network

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/vennwood/revenant/internal/protocol"
)

// ErrMalformedFrame indicates a frame shorter than its minimum header. The
// message is dropped and counted; the pipeline continues.
var ErrMalformedFrame = errors.New("malformed frame: short header")

// ErrFrameTooLarge indicates a payload too big for the uint16 size prefix.
var ErrFrameTooLarge = errors.New("frame exceeds size prefix capacity")

// The legacy protocol uses asymmetric headers: server frames carry a 2-byte
// opcode, client frames a 4-byte one. The size prefix on both counts the
// opcode and payload.
const (
	serverOpcodeSize = 2
	clientOpcodeSize = 4
)

// Codec encodes and decodes a frame's opcode and payload.
type Codec struct{}

// Decode splits a server frame into opcode and payload.
func (Codec) Decode(frame []byte) (protocol.Opcode, []byte, error) {
	if len(frame) < serverOpcodeSize {
		return 0, nil, ErrMalformedFrame
	}

	opcode := protocol.Opcode(binary.LittleEndian.Uint16(frame))
	return opcode, frame[serverOpcodeSize:], nil
}

// Encode produces the full wire bytes of a client frame, size prefix
// included. The size prefix caps a frame at 65535 bytes; an oversized
// payload is rejected rather than silently truncated.
func (Codec) Encode(opcode protocol.Opcode, payload []byte) ([]byte, error) {
	size := clientOpcodeSize + len(payload)
	if size > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}

	out := make([]byte, frameSizePrefix+size)
	binary.BigEndian.PutUint16(out, uint16(size))
	binary.LittleEndian.PutUint32(out[frameSizePrefix:], uint32(opcode))
	copy(out[frameSizePrefix+clientOpcodeSize:], payload)

	return out, nil
}
