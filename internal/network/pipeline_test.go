package network

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/vennwood/revenant/internal/encryption"
	"github.com/vennwood/revenant/internal/protocol"
)

// serverFrame builds a wire frame as the server would send it: big-endian
// size prefix, little-endian 2-byte opcode, payload.
func serverFrame(opcode protocol.Opcode, payload []byte) []byte {
	body := make([]byte, 2+len(payload))
	binary.LittleEndian.PutUint16(body, uint16(opcode))
	copy(body[2:], payload)
	return buildFrame(body)
}

// startTestServer returns a connected pipeline and the server side of its
// connection.
func startTestServer(t *testing.T) (*Pipeline, net.Conn) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("error initializing test listener: %v", err)
	}
	t.Cleanup(func() { _ = listener.Close() })

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		accepted <- conn
	}()

	p := NewPipeline(testLogger())
	if err := p.Connect(context.Background(), listener.Addr().String()); err != nil {
		t.Fatalf("Connect() returned error: %v", err)
	}
	t.Cleanup(p.Disconnect)

	server := <-accepted
	t.Cleanup(func() { _ = server.Close() })

	return p, server
}

// readClientFrame consumes one client frame from the server side and
// returns its opcode and payload.
func readClientFrame(t *testing.T, server net.Conn) (protocol.Opcode, []byte) {
	t.Helper()

	_ = server.SetReadDeadline(time.Now().Add(2 * time.Second))

	prefix := make([]byte, 2)
	if _, err := io.ReadFull(server, prefix); err != nil {
		t.Fatalf("error reading frame size: %v", err)
	}

	body := make([]byte, binary.BigEndian.Uint16(prefix))
	if _, err := io.ReadFull(server, body); err != nil {
		t.Fatalf("error reading frame body: %v", err)
	}

	return protocol.Opcode(binary.LittleEndian.Uint32(body)), body[4:]
}

func TestPipeline_ReceiveRoutesInOrder(t *testing.T) {
	p, server := startTestServer(t)

	received := make(chan []byte, 2)
	p.RegisterHandler(protocol.MoveTeleportType, func(payload []byte) {
		received <- payload
	})

	// Two frames in a single write must both dispatch, in arrival order.
	wire := append(
		serverFrame(protocol.MoveTeleportType, []byte{0x01}),
		serverFrame(protocol.MoveTeleportType, []byte{0x02})...,
	)
	if _, err := server.Write(wire); err != nil {
		t.Fatalf("error writing to test connection: %v", err)
	}

	for _, expected := range []byte{0x01, 0x02} {
		select {
		case payload := <-received:
			if payload[0] != expected {
				t.Errorf("frame order violated: want %#x, got %#x", expected, payload[0])
			}
		case <-time.After(2 * time.Second):
			t.Fatal("handler was never invoked")
		}
	}
}

func TestPipeline_MalformedFrameIsAbsorbed(t *testing.T) {
	p, server := startTestServer(t)

	received := make(chan []byte, 1)
	p.RegisterHandler(protocol.MoveTeleportType, func(payload []byte) {
		received <- payload
	})

	// A 1-byte frame is shorter than the opcode header. It must be dropped
	// and counted without breaking the frames behind it.
	wire := append(buildFrame([]byte{0xff}), serverFrame(protocol.MoveTeleportType, []byte{0x42})...)
	if _, err := server.Write(wire); err != nil {
		t.Fatalf("error writing to test connection: %v", err)
	}

	select {
	case payload := <-received:
		if payload[0] != 0x42 {
			t.Errorf("payload want = 0x42, got = %#x", payload[0])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("frame behind the malformed one was never dispatched")
	}

	if count := p.MalformedFrames(); count != 1 {
		t.Errorf("MalformedFrames() want = 1, got = %d", count)
	}
}

func TestPipeline_Send(t *testing.T) {
	p, server := startTestServer(t)

	if err := p.Send(protocol.MoveHeartbeatType, []byte{0xde, 0xad}); err != nil {
		t.Fatalf("Send() returned error: %v", err)
	}

	opcode, payload := readClientFrame(t, server)
	if opcode != protocol.MoveHeartbeatType {
		t.Errorf("opcode want = %v, got = %v", protocol.MoveHeartbeatType, opcode)
	}
	if diff := cmp.Diff([]byte{0xde, 0xad}, payload); diff != "" {
		t.Errorf("payload diff:\n%s", diff)
	}
}

func TestPipeline_Request(t *testing.T) {
	p, server := startTestServer(t)

	go func() {
		prefix := make([]byte, 2)
		if _, err := io.ReadFull(server, prefix); err != nil {
			return
		}
		body := make([]byte, binary.BigEndian.Uint16(prefix))
		if _, err := io.ReadFull(server, body); err != nil {
			return
		}
		_, _ = server.Write(serverFrame(protocol.RealmListType, []byte{0x01, 0x02}))
	}()

	resp, err := p.Request(
		context.Background(),
		protocol.RealmListRequestType, protocol.RealmListType,
		nil, 2*time.Second,
	)
	if err != nil {
		t.Fatalf("Request() returned error: %v", err)
	}
	if diff := cmp.Diff([]byte{0x01, 0x02}, resp); diff != "" {
		t.Errorf("response diff:\n%s", diff)
	}
}

func TestPipeline_RequestTimeoutReturnsEmpty(t *testing.T) {
	p, _ := startTestServer(t)

	resp, err := p.Request(
		context.Background(),
		protocol.RealmListRequestType, protocol.RealmListType,
		nil, 50*time.Millisecond,
	)
	if err != nil {
		t.Fatalf("Request() on timeout want nil error, got: %v", err)
	}
	if resp != nil {
		t.Errorf("Request() on timeout want empty result, got %d bytes", len(resp))
	}
}

func TestPipeline_EncryptionSwap(t *testing.T) {
	sessionKey := []byte{
		0x13, 0x37, 0xca, 0xfe, 0x00, 0x11, 0x22, 0x33,
		0x44, 0x55, 0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb,
	}

	p, server := startTestServer(t)

	received := make(chan []byte, 1)
	p.RegisterHandler(protocol.WorldAuthResponseType, func(payload []byte) {
		received <- payload
	})

	if err := p.EnableEncryption(sessionKey); err != nil {
		t.Fatalf("EnableEncryption() returned error: %v", err)
	}
	if err := p.EnableEncryption(sessionKey); err == nil {
		t.Error("EnableEncryption() succeeded twice; the swap must be one-time")
	}

	// The server's outbound keystream is the agent's inbound one, so the
	// server side of this test drives a peer cipher's decrypt direction.
	peer, err := encryption.NewSessionCipher(sessionKey)
	if err != nil {
		t.Fatalf("NewSessionCipher() returned error: %v", err)
	}
	wire := serverFrame(protocol.WorldAuthResponseType, []byte{0x0c})
	peer.Decrypt(wire)

	if _, err := server.Write(wire); err != nil {
		t.Fatalf("error writing to test connection: %v", err)
	}

	select {
	case payload := <-received:
		if len(payload) != 1 || payload[0] != 0x0c {
			t.Errorf("decrypted payload want = [0x0c], got = %v", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("encrypted frame was never dispatched")
	}

	// Outbound direction: the peer's encrypt keystream must recover what
	// the pipeline sends.
	if err := p.Send(protocol.MoveStopType, []byte{0x77}); err != nil {
		t.Fatalf("Send() returned error: %v", err)
	}

	_ = server.SetReadDeadline(time.Now().Add(2 * time.Second))
	raw := make([]byte, 2+4+1)
	if _, err := io.ReadFull(server, raw); err != nil {
		t.Fatalf("error reading encrypted client frame: %v", err)
	}
	peer.Encrypt(raw)

	if binary.BigEndian.Uint16(raw) != 5 {
		t.Errorf("decrypted size prefix want = 5, got = %d", binary.BigEndian.Uint16(raw))
	}
	if op := protocol.Opcode(binary.LittleEndian.Uint32(raw[2:])); op != protocol.MoveStopType {
		t.Errorf("decrypted opcode want = %v, got = %v", protocol.MoveStopType, op)
	}
	if raw[6] != 0x77 {
		t.Errorf("decrypted payload want = 0x77, got = %#x", raw[6])
	}
}

func TestPipeline_RequestUnblocksOnConnectionLoss(t *testing.T) {
	p, server := startTestServer(t)

	type result struct {
		resp []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := p.Request(
			context.Background(),
			protocol.RealmListRequestType, protocol.RealmListType,
			nil, 30*time.Second,
		)
		done <- result{resp, err}
	}()

	// Wait for the request to hit the wire so its pending slot exists, then
	// kill the connection out from under it.
	readClientFrame(t, server)
	_ = server.Close()

	select {
	case res := <-done:
		if res.err != nil {
			t.Errorf("Request() on connection loss want nil error, got: %v", res.err)
		}
		if res.resp != nil {
			t.Errorf("Request() on connection loss want empty result, got %d bytes", len(res.resp))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Request() still blocked after connection loss")
	}
}

func TestPipeline_DisconnectIsIdempotent(t *testing.T) {
	p, _ := startTestServer(t)

	p.Disconnect()
	p.Disconnect()

	if err := p.Send(protocol.MoveStopType, nil); err == nil {
		t.Error("Send() after Disconnect() want error, got nil")
	}
}
