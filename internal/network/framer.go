package network

import "encoding/binary"

// Length prefix on every frame: a big-endian uint16 counting the opcode and
// payload bytes that follow it.
const frameSizePrefix = 2

// Framer converts the continuous received byte stream into discrete frames.
// A single network read may contain zero, one, or many frames; Feed emits
// all complete frames in arrival order and retains any trailing partial
// frame for the next call. Bytes are never dropped and a frame is never
// emitted before its declared length is fully present.
//
// Framer is not safe for concurrent use; it is owned by the receive path.
type Framer struct {
	buf []byte
}

// Feed appends p to the pending buffer and extracts every complete frame.
// Returned frames are copies: they stay valid after the next Feed.
func (f *Framer) Feed(p []byte) [][]byte {
	f.buf = append(f.buf, p...)

	var frames [][]byte
	for {
		if len(f.buf) < frameSizePrefix {
			break
		}

		size := int(binary.BigEndian.Uint16(f.buf))
		total := frameSizePrefix + size
		if len(f.buf) < total {
			break
		}

		frame := make([]byte, size)
		copy(frame, f.buf[frameSizePrefix:total])
		frames = append(frames, frame)

		f.buf = f.buf[total:]
	}

	return frames
}

// Buffered returns the number of bytes held back as a partial frame.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// Reset discards any partial frame. Only valid between connections.
func (f *Framer) Reset() {
	f.buf = nil
}
