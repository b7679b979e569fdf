package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha1"
	"encoding/binary"
	"fmt"

	"go.uber.org/zap"

	"github.com/vennwood/revenant/internal/core/bytes"
	"github.com/vennwood/revenant/internal/network"
	"github.com/vennwood/revenant/internal/protocol"
)

// WorldSession runs the session handshake against a world server. The
// server opens the exchange by sending its seed immediately after the TCP
// connect; Authenticate answers it with a digest binding the account name,
// both seeds, and the logon session key.
type WorldSession struct {
	log        *zap.SugaredLogger
	pipeline   *network.Pipeline
	username   string
	sessionKey []byte
}

func NewWorldSession(log *zap.SugaredLogger, pipeline *network.Pipeline, username string, sessionKey []byte) *WorldSession {
	return &WorldSession{
		log:        log,
		pipeline:   pipeline,
		username:   username,
		sessionKey: sessionKey,
	}
}

// Authenticate waits for the server's challenge, answers it, and returns
// once the server accepts the session. The caller enables session
// encryption afterwards; the server sends nothing further until it has.
func (w *WorldSession) Authenticate(ctx context.Context) error {
	result := make(chan error, 1)

	w.pipeline.RegisterHandler(protocol.WorldChallengeType, func(payload []byte) {
		var challenge worldChallenge
		if len(payload) < 4 {
			result <- fmt.Errorf("world challenge too short: %d bytes", len(payload))
			return
		}
		bytes.StructFromBytes(payload[:4], &challenge)

		// The proof round trip cannot run on the receive goroutine; the
		// response it waits for arrives there.
		go func() {
			result <- w.prove(ctx, challenge.ServerSeed)
		}()
	})

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *WorldSession) prove(ctx context.Context, serverSeed uint32) error {
	clientSeed, err := randomSeed()
	if err != nil {
		return fmt.Errorf("generating client seed: %w", err)
	}

	proof := computeWorldProof(w.username, clientSeed, serverSeed, w.sessionKey)

	pkt := bytes.NewWriter()
	pkt.WriteUint16(clientBuild)
	pkt.WriteCString(w.username)
	pkt.WriteUint32(clientSeed)
	pkt.WriteBytes(proof)

	resp, err := w.pipeline.Request(ctx,
		protocol.WorldAuthSessionType, protocol.WorldAuthResponseType, pkt.Bytes(), requestTimeout)
	if err != nil {
		return fmt.Errorf("world session request: %w", err)
	}
	if resp == nil {
		return fmt.Errorf("timed out waiting for the world session response")
	}

	outcome, err := parseOutcome(resp)
	if err != nil {
		return fmt.Errorf("parsing world session response: %w", err)
	}
	if outcome != OutcomeSuccess {
		return fmt.Errorf("world session rejected: %v", outcome)
	}

	w.log.Info("world session established")
	return nil
}

// worldChallenge is the fixed-layout body of the server's opening packet.
type worldChallenge struct {
	ServerSeed uint32
}

// proofSeeds is the fixed digest block between the account name and the
// session key: a zero spacer then both seeds, little-endian.
type proofSeeds struct {
	Spacer     uint32
	ClientSeed uint32
	ServerSeed uint32
}

// computeWorldProof is the SHA-1 digest over the account name, the seed
// block, and the session key.
func computeWorldProof(username string, clientSeed, serverSeed uint32, sessionKey []byte) []byte {
	h := sha1.New()
	h.Write([]byte(username))

	seeds, _ := bytes.BytesFromStruct(&proofSeeds{
		ClientSeed: clientSeed,
		ServerSeed: serverSeed,
	})
	h.Write(seeds)

	h.Write(sessionKey)
	return h.Sum(nil)
}

func randomSeed() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}
