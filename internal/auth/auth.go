// The auth package drives the agent's two authentication exchanges: the
// logon handshake against the auth server (challenge, proof, realm list)
// and the session handshake against the world server. Proof computation is
// abstracted behind ProofComputer so the SRP math can live outside the
// session flow.
package auth

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/vennwood/revenant/internal/core/bytes"
	"github.com/vennwood/revenant/internal/network"
	"github.com/vennwood/revenant/internal/protocol"
)

const (
	protocolVersion = 3
	clientBuild     = 5875

	requestTimeout = 10 * time.Second

	realmCacheKey = "realms"
	realmCacheTTL = 30 * time.Second
)

// Outcome is the server's verdict on an authentication step.
type Outcome uint8

const (
	OutcomeSuccess           Outcome = 0x00
	OutcomeBanned            Outcome = 0x03
	OutcomeUnknownAccount    Outcome = 0x04
	OutcomeIncorrectPassword Outcome = 0x05
	OutcomeAlreadyOnline     Outcome = 0x06
	OutcomeSuspended         Outcome = 0x08
	OutcomeVersionInvalid    Outcome = 0x09
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeBanned:
		return "account banned"
	case OutcomeUnknownAccount:
		return "unknown account"
	case OutcomeIncorrectPassword:
		return "incorrect password"
	case OutcomeAlreadyOnline:
		return "account already online"
	case OutcomeSuspended:
		return "account suspended"
	case OutcomeVersionInvalid:
		return "client version rejected"
	default:
		return fmt.Sprintf("unknown outcome 0x%02x", uint8(o))
	}
}

// ProofComputer produces the client proof and session key for a server
// challenge.
type ProofComputer interface {
	ComputeProof(challenge []byte) (proof []byte, sessionKey []byte, err error)
}

// PrecomputedProver answers every challenge with fixed, externally computed
// proof material. Useful against servers whose SRP exchange was solved out
// of band and in tests.
type PrecomputedProver struct {
	proof      []byte
	sessionKey []byte
}

func NewPrecomputedProver(proofHex, sessionKeyHex string) (*PrecomputedProver, error) {
	proof, err := hex.DecodeString(proofHex)
	if err != nil {
		return nil, fmt.Errorf("decoding proof: %w", err)
	}
	sessionKey, err := hex.DecodeString(sessionKeyHex)
	if err != nil {
		return nil, fmt.Errorf("decoding session key: %w", err)
	}
	return &PrecomputedProver{proof: proof, sessionKey: sessionKey}, nil
}

func (p *PrecomputedProver) ComputeProof(_ []byte) ([]byte, []byte, error) {
	return p.proof, p.sessionKey, nil
}

// Realm is one world server advertised by the auth server.
type Realm struct {
	ID      uint32
	Name    string
	Address string
	Load    float32
}

// Session is one logon session against the auth server.
type Session struct {
	log      *zap.SugaredLogger
	pipeline *network.Pipeline
	prover   ProofComputer

	realms *cache.Cache

	sessionKey []byte
}

func NewSession(log *zap.SugaredLogger, pipeline *network.Pipeline, prover ProofComputer) *Session {
	return &Session{
		log:      log,
		pipeline: pipeline,
		prover:   prover,
		realms:   cache.New(realmCacheTTL, time.Minute),
	}
}

// Authenticate runs the logon handshake for username and retains the
// session key for the world handshake that follows.
func (s *Session) Authenticate(ctx context.Context, username string) error {
	w := bytes.NewWriter()
	w.WriteUint8(protocolVersion)
	w.WriteUint16(clientBuild)
	w.WriteCString(username)

	resp, err := s.pipeline.Request(ctx,
		protocol.AuthLogonRequestType, protocol.AuthChallengeType, w.Bytes(), requestTimeout)
	if err != nil {
		return fmt.Errorf("logon request: %w", err)
	}
	if resp == nil {
		return fmt.Errorf("timed out waiting for the logon challenge")
	}

	r := bytes.NewReader(resp)
	outcome := Outcome(r.ReadUint8())
	// Challenge blocks arrive zero-padded to the server's fixed block
	// width; the prover wants only the significant bytes.
	challenge := bytes.StripPadding(r.ReadBytes(r.Remaining()))
	if err := r.Err(); err != nil {
		return fmt.Errorf("parsing logon challenge: %w", err)
	}
	if outcome != OutcomeSuccess {
		return fmt.Errorf("logon rejected: %v", outcome)
	}

	proof, sessionKey, err := s.prover.ComputeProof(challenge)
	if err != nil {
		return fmt.Errorf("computing proof: %w", err)
	}

	resp, err = s.pipeline.Request(ctx,
		protocol.AuthProofType, protocol.AuthResultType, proof, requestTimeout)
	if err != nil {
		return fmt.Errorf("proof request: %w", err)
	}
	if resp == nil {
		return fmt.Errorf("timed out waiting for the proof result")
	}

	outcome, err = parseOutcome(resp)
	if err != nil {
		return fmt.Errorf("parsing proof result: %w", err)
	}
	if outcome != OutcomeSuccess {
		return fmt.Errorf("proof rejected: %v", outcome)
	}

	s.sessionKey = sessionKey
	s.log.Infof("authenticated as %s", username)
	return nil
}

// SessionKey returns the key negotiated by Authenticate, nil before then.
func (s *Session) SessionKey() []byte {
	return s.sessionKey
}

// Realms fetches the advertised realm list. Results are cached briefly;
// the agent polls the list while picking a realm and the server throttles
// clients that ask too often.
func (s *Session) Realms(ctx context.Context) ([]Realm, error) {
	if cached, found := s.realms.Get(realmCacheKey); found {
		return cached.([]Realm), nil
	}

	resp, err := s.pipeline.Request(ctx,
		protocol.RealmListRequestType, protocol.RealmListType, nil, requestTimeout)
	if err != nil {
		return nil, fmt.Errorf("realm list request: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("timed out waiting for the realm list")
	}

	realms, err := parseRealmList(resp)
	if err != nil {
		return nil, err
	}

	s.realms.Set(realmCacheKey, realms, cache.DefaultExpiration)
	return realms, nil
}

// resultBody is the fixed-layout verdict block shared by the proof-result
// and world-session-response packets.
type resultBody struct {
	Outcome uint8
}

func parseOutcome(payload []byte) (Outcome, error) {
	if len(payload) < 1 {
		return 0, fmt.Errorf("result body too short: %d bytes", len(payload))
	}

	var body resultBody
	bytes.StructFromBytes(payload[:1], &body)
	return Outcome(body.Outcome), nil
}

func parseRealmList(payload []byte) ([]Realm, error) {
	r := bytes.NewReader(payload)

	count := int(r.ReadUint16())
	realms := make([]Realm, 0, count)
	for i := 0; i < count; i++ {
		realms = append(realms, Realm{
			ID:      r.ReadUint32(),
			Name:    r.ReadCString(),
			Address: r.ReadCString(),
			Load:    r.ReadFloat32(),
		})
	}

	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("parsing realm list: %w", err)
	}
	return realms, nil
}
