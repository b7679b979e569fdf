package network

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/vennwood/revenant/internal/protocol"
)

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func TestRouter_Route(t *testing.T) {
	r := NewRouter(testLogger())

	received := make(chan []byte, 1)
	r.Register(protocol.MoveTeleportType, func(payload []byte) {
		received <- payload
	})

	r.Route(protocol.MoveTeleportType, []byte{0x01})

	select {
	case payload := <-received:
		if len(payload) != 1 || payload[0] != 0x01 {
			t.Errorf("handler received wrong payload: %v", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("handler was never invoked")
	}
}

func TestRouter_UnregisteredOpcodeIsNoOp(t *testing.T) {
	r := NewRouter(testLogger())

	// The server routinely sends opcodes the agent ignores; routing one
	// must neither panic nor error.
	r.Route(protocol.Opcode(0x7777), []byte{0xff})
}

func TestRouter_LastRegistrationWins(t *testing.T) {
	r := NewRouter(testLogger())

	hits := make(chan string, 2)
	r.Register(protocol.AuthResultType, func([]byte) { hits <- "first" })
	r.Register(protocol.AuthResultType, func([]byte) { hits <- "second" })

	r.Route(protocol.AuthResultType, nil)

	select {
	case who := <-hits:
		if who != "second" {
			t.Errorf("dispatched to %q, want the last registration", who)
		}
	case <-time.After(time.Second):
		t.Fatal("handler was never invoked")
	}

	select {
	case <-hits:
		t.Error("both handlers ran; only the last registration should")
	case <-time.After(50 * time.Millisecond):
	}
}
