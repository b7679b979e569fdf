// The network package implements the transport pipeline under one logical
// session: Connection -> Cipher -> Framer -> Codec -> Router inbound, and
// the reverse path outbound. One Pipeline instance is bound to exactly one
// connection at a time; the logon session and the world session each own
// their own Pipeline.
package network

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/vennwood/revenant/internal/core/debug"
	"github.com/vennwood/revenant/internal/encryption"
	"github.com/vennwood/revenant/internal/protocol"
)

// Pipeline composes the transport layers into one manageable unit per
// session. Inbound bytes flow through decryption, framing, and decode on
// the reader goroutine; decoded messages are either matched to a pending
// Request slot or dispatched through the Router.
type Pipeline struct {
	log    *zap.SugaredLogger
	codec  Codec
	router *Router
	framer Framer

	connMu sync.Mutex
	conn   *Connection

	// cipherMu orders cipher use against the one-time swap in
	// EnableEncryption. The framer buffers whole frames, so the swap takes
	// effect cleanly as long as the caller honors the frame-boundary
	// contract documented on EnableEncryption.
	cipherMu  sync.Mutex
	cipher    encryption.Cipher
	encrypted bool

	// sendMu orders encryption against enqueueing so that two concurrent
	// sends cannot consume keystream in one order and hit the wire in the
	// other.
	sendMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[protocol.Opcode]chan []byte

	malformed atomic.Uint64

	onDisconnect func(error)
}

func NewPipeline(log *zap.SugaredLogger) *Pipeline {
	return &Pipeline{
		log:     log,
		router:  NewRouter(log),
		cipher:  encryption.NullCipher{},
		pending: make(map[protocol.Opcode]chan []byte),
	}
}

// SetDisconnectHandler installs the callback invoked when the transport
// fails or the server closes the connection. Not invoked on Disconnect.
func (p *Pipeline) SetDisconnectHandler(handler func(error)) {
	p.onDisconnect = handler
}

// Connect dials addr and starts the byte path.
func (p *Pipeline) Connect(ctx context.Context, addr string) error {
	p.connMu.Lock()
	defer p.connMu.Unlock()

	if p.conn != nil {
		return fmt.Errorf("pipeline already connected to %s", p.conn.RemoteAddr())
	}

	conn, err := Dial(ctx, addr, p.log)
	if err != nil {
		return err
	}

	p.conn = conn
	conn.Start(p.receive, p.handleClosed)

	p.log.Infof("connected to %s", conn.RemoteAddr())
	return nil
}

// Disconnect tears the byte path down. Idempotent.
func (p *Pipeline) Disconnect() {
	p.connMu.Lock()
	defer p.connMu.Unlock()

	if p.conn == nil {
		return
	}

	_ = p.conn.Close()
	p.conn = nil
	p.framer.Reset()

	p.releasePending()
}

// Send encodes, encrypts, and enqueues one message. Fire and forget: a
// transport failure after enqueue surfaces through the disconnect handler,
// not through this call.
func (p *Pipeline) Send(opcode protocol.Opcode, payload []byte) error {
	p.connMu.Lock()
	conn := p.conn
	p.connMu.Unlock()

	if conn == nil {
		return ErrConnectionClosed
	}

	if debug.PacketLoggingEnabled() {
		debug.DumpPacket(p.log, "agent", "server", uint16(opcode), opcode.String(), payload)
	}

	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	frame, err := p.codec.Encode(opcode, payload)
	if err != nil {
		return err
	}

	p.cipherMu.Lock()
	p.cipher.Encrypt(frame)
	p.cipherMu.Unlock()

	return conn.Send(frame)
}

// RegisterHandler installs an asynchronous handler for opcode.
func (p *Pipeline) RegisterHandler(opcode protocol.Opcode, handler Handler) {
	p.router.Register(opcode, handler)
}

// EnableEncryption swaps the session's NullCipher for a keyed stream cipher
// derived from sessionKey. Legal exactly once per session, and only at a
// frame boundary: the caller must guarantee no post-handshake bytes arrive
// before the swap, which the protocol provides since the server stays
// silent until the proof exchange completes.
func (p *Pipeline) EnableEncryption(sessionKey []byte) error {
	p.cipherMu.Lock()
	defer p.cipherMu.Unlock()

	if p.encrypted {
		return fmt.Errorf("encryption already enabled for this session")
	}

	cipher, err := encryption.NewSessionCipher(sessionKey)
	if err != nil {
		return fmt.Errorf("enabling encryption: %w", err)
	}

	p.cipher = cipher
	p.encrypted = true
	p.log.Debug("session encryption enabled")
	return nil
}

// Request performs a bounded round trip: send sendOp and wait for the next
// respOp message, which is consumed instead of routed. On timeout it
// returns (nil, nil) — an empty result, not an error — so callers degrade
// to defaults rather than hanging. Cancellation and timeout both release
// the pending-response slot.
func (p *Pipeline) Request(ctx context.Context, sendOp, respOp protocol.Opcode, payload []byte, timeout time.Duration) ([]byte, error) {
	ch := make(chan []byte, 1)

	p.pendingMu.Lock()
	if _, exists := p.pending[respOp]; exists {
		p.pendingMu.Unlock()
		return nil, fmt.Errorf("a request for %v is already pending", respOp)
	}
	p.pending[respOp] = ch
	p.pendingMu.Unlock()

	defer func() {
		p.pendingMu.Lock()
		if p.pending[respOp] == ch {
			delete(p.pending, respOp)
		}
		p.pendingMu.Unlock()
	}()

	if err := p.Send(sendOp, payload); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		return resp, nil
	case <-timer.C:
		p.log.Warnf("request %v timed out waiting for %v", sendOp, respOp)
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// MalformedFrames returns the count of frames dropped by decode failures.
func (p *Pipeline) MalformedFrames() uint64 {
	return p.malformed.Load()
}

// receive runs on the connection's reader goroutine.
func (p *Pipeline) receive(b []byte) {
	p.cipherMu.Lock()
	p.cipher.Decrypt(b)
	p.cipherMu.Unlock()

	for _, frame := range p.framer.Feed(b) {
		p.dispatch(frame)
	}
}

func (p *Pipeline) dispatch(frame []byte) {
	opcode, payload, err := p.codec.Decode(frame)
	if err != nil {
		p.malformed.Add(1)
		p.log.Warnf("dropping malformed frame (%d bytes): %v", len(frame), err)
		return
	}

	if debug.PacketLoggingEnabled() {
		debug.DumpPacket(p.log, "server", "agent", uint16(opcode), opcode.String(), payload)
	}

	p.pendingMu.Lock()
	ch, waiting := p.pending[opcode]
	if waiting {
		delete(p.pending, opcode)
	}
	p.pendingMu.Unlock()

	if waiting {
		ch <- payload
		return
	}

	p.router.Route(opcode, payload)
}

func (p *Pipeline) handleClosed(err error) {
	if err != nil {
		p.log.Warnf("connection lost: %v", err)
	} else {
		p.log.Info("server closed the connection")
	}

	p.releasePending()

	if p.onDisconnect != nil {
		p.onDisconnect(err)
	}
}

// releasePending unblocks in-flight Request callers immediately. Closing a
// slot delivers a nil payload, which the caller observes as the same empty
// result a timeout produces.
func (p *Pipeline) releasePending() {
	p.pendingMu.Lock()
	for op, ch := range p.pending {
		close(ch)
		delete(p.pending, op)
	}
	p.pendingMu.Unlock()
}
