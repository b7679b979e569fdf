package auth

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/vennwood/revenant/internal/core/bytes"
	"github.com/vennwood/revenant/internal/network"
	"github.com/vennwood/revenant/internal/protocol"
)

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// serverFrame builds one frame as the auth server would put it on the wire.
func serverFrame(opcode protocol.Opcode, payload []byte) []byte {
	frame := make([]byte, 2+2+len(payload))
	binary.BigEndian.PutUint16(frame, uint16(2+len(payload)))
	binary.LittleEndian.PutUint16(frame[2:], uint16(opcode))
	copy(frame[4:], payload)
	return frame
}

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

func startAuthServer(t *testing.T) (*network.Pipeline, net.Conn) {
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

	p := network.NewPipeline(testLogger())
	if err := p.Connect(context.Background(), listener.Addr().String()); err != nil {
		t.Fatalf("Connect() returned error: %v", err)
	}
	t.Cleanup(p.Disconnect)

	server := <-accepted
	t.Cleanup(func() { _ = server.Close() })

	return p, server
}

func TestSession_Authenticate(t *testing.T) {
	pipeline, server := startAuthServer(t)

	prover, err := NewPrecomputedProver("00112233", "deadbeefcafe")
	if err != nil {
		t.Fatalf("NewPrecomputedProver() returned error: %v", err)
	}
	session := NewSession(testLogger(), pipeline, prover)

	serverErr := make(chan error, 1)
	go func() {
		opcode, payload := readClientFrame(t, server)
		if opcode != protocol.AuthLogonRequestType {
			t.Errorf("first opcode want = %v, got = %v", protocol.AuthLogonRequestType, opcode)
		}

		r := bytes.NewReader(payload)
		r.ReadUint8()
		r.ReadUint16()
		if username := r.ReadCString(); username != "revenant" {
			t.Errorf("username want = revenant, got = %q", username)
		}

		challenge := append([]byte{uint8(OutcomeSuccess)}, 0xaa, 0xbb)
		if _, err := server.Write(serverFrame(protocol.AuthChallengeType, challenge)); err != nil {
			serverErr <- err
			return
		}

		opcode, payload = readClientFrame(t, server)
		if opcode != protocol.AuthProofType {
			t.Errorf("second opcode want = %v, got = %v", protocol.AuthProofType, opcode)
		}
		if diff := cmp.Diff([]byte{0x00, 0x11, 0x22, 0x33}, payload); diff != "" {
			t.Errorf("proof diff:\n%s", diff)
		}

		_, err := server.Write(serverFrame(protocol.AuthResultType, []byte{uint8(OutcomeSuccess)}))
		serverErr <- err
	}()

	if err := session.Authenticate(context.Background(), "revenant"); err != nil {
		t.Fatalf("Authenticate() returned error: %v", err)
	}
	if err := <-serverErr; err != nil {
		t.Fatalf("test server error: %v", err)
	}

	expectedKey := []byte{0xde, 0xad, 0xbe, 0xef, 0xca, 0xfe}
	if diff := cmp.Diff(expectedKey, session.SessionKey()); diff != "" {
		t.Errorf("session key diff:\n%s", diff)
	}
}

// recordingProver captures the challenge bytes handed to it.
type recordingProver struct {
	challenge []byte
}

func (p *recordingProver) ComputeProof(challenge []byte) ([]byte, []byte, error) {
	p.challenge = challenge
	return []byte{0x01}, []byte{0x02}, nil
}

func TestSession_AuthenticateStripsChallengePadding(t *testing.T) {
	pipeline, server := startAuthServer(t)

	prover := &recordingProver{}
	session := NewSession(testLogger(), pipeline, prover)

	go func() {
		readClientFrame(t, server)

		// A challenge block padded out to a fixed width with trailing zeros.
		challenge := []byte{uint8(OutcomeSuccess), 0xaa, 0xbb, 0x00, 0x00, 0x00, 0x00}
		if _, err := server.Write(serverFrame(protocol.AuthChallengeType, challenge)); err != nil {
			return
		}

		readClientFrame(t, server)
		_, _ = server.Write(serverFrame(protocol.AuthResultType, []byte{uint8(OutcomeSuccess)}))
	}()

	if err := session.Authenticate(context.Background(), "revenant"); err != nil {
		t.Fatalf("Authenticate() returned error: %v", err)
	}

	if diff := cmp.Diff([]byte{0xaa, 0xbb}, prover.challenge); diff != "" {
		t.Errorf("prover saw padded challenge; diff:\n%s", diff)
	}
}

func TestParseOutcome(t *testing.T) {
	outcome, err := parseOutcome([]byte{uint8(OutcomeAlreadyOnline)})
	if err != nil {
		t.Fatalf("parseOutcome() returned error: %v", err)
	}
	if outcome != OutcomeAlreadyOnline {
		t.Errorf("parseOutcome() want = %v, got = %v", OutcomeAlreadyOnline, outcome)
	}

	if _, err := parseOutcome(nil); err == nil {
		t.Error("parseOutcome() accepted an empty body")
	}
}

func TestSession_AuthenticateRejected(t *testing.T) {
	pipeline, server := startAuthServer(t)

	prover, _ := NewPrecomputedProver("00", "00")
	session := NewSession(testLogger(), pipeline, prover)

	go func() {
		readClientFrame(t, server)
		_, _ = server.Write(serverFrame(
			protocol.AuthChallengeType, []byte{uint8(OutcomeIncorrectPassword)}))
	}()

	if err := session.Authenticate(context.Background(), "revenant"); err == nil {
		t.Fatal("Authenticate() succeeded against a rejecting server")
	}
	if session.SessionKey() != nil {
		t.Error("session key retained from a rejected logon")
	}
}

func TestSession_RealmsAreCached(t *testing.T) {
	pipeline, server := startAuthServer(t)

	prover, _ := NewPrecomputedProver("00", "00")
	session := NewSession(testLogger(), pipeline, prover)

	w := bytes.NewWriter()
	w.WriteUint16(2)
	w.WriteUint32(1)
	w.WriteCString("Emberstorm")
	w.WriteCString("10.0.0.5:8085")
	w.WriteFloat32(0.4)
	w.WriteUint32(7)
	w.WriteCString("Duskfall")
	w.WriteCString("10.0.0.6:8085")
	w.WriteFloat32(1.2)

	go func() {
		readClientFrame(t, server)
		_, _ = server.Write(serverFrame(protocol.RealmListType, w.Bytes()))
	}()

	realms, err := session.Realms(context.Background())
	if err != nil {
		t.Fatalf("Realms() returned error: %v", err)
	}

	expected := []Realm{
		{ID: 1, Name: "Emberstorm", Address: "10.0.0.5:8085", Load: 0.4},
		{ID: 7, Name: "Duskfall", Address: "10.0.0.6:8085", Load: 1.2},
	}
	if diff := cmp.Diff(expected, realms); diff != "" {
		t.Errorf("realm list diff:\n%s", diff)
	}

	// The second call must come out of the cache; the test server is no
	// longer answering.
	cached, err := session.Realms(context.Background())
	if err != nil {
		t.Fatalf("cached Realms() returned error: %v", err)
	}
	if diff := cmp.Diff(expected, cached); diff != "" {
		t.Errorf("cached realm list diff:\n%s", diff)
	}
}

func TestParseRealmList_Truncated(t *testing.T) {
	w := bytes.NewWriter()
	w.WriteUint16(3)
	w.WriteUint32(1)
	w.WriteCString("Emberstorm")

	if _, err := parseRealmList(w.Bytes()); err == nil {
		t.Error("parseRealmList() accepted a truncated payload")
	}
}

func TestNewPrecomputedProver_RejectsBadHex(t *testing.T) {
	if _, err := NewPrecomputedProver("not-hex", "00"); err == nil {
		t.Error("bad proof hex accepted")
	}
	if _, err := NewPrecomputedProver("00", "not-hex"); err == nil {
		t.Error("bad session key hex accepted")
	}
}

func TestComputeWorldProof(t *testing.T) {
	key := []byte{0x01, 0x02, 0x03}

	first := computeWorldProof("revenant", 100, 200, key)
	if len(first) != 20 {
		t.Fatalf("proof length want = 20, got = %d", len(first))
	}

	if diff := cmp.Diff(first, computeWorldProof("revenant", 100, 200, key)); diff != "" {
		t.Errorf("proof not deterministic:\n%s", diff)
	}
	if cmp.Equal(first, computeWorldProof("revenant", 100, 201, key)) {
		t.Error("proof unchanged by a different server seed")
	}
	if cmp.Equal(first, computeWorldProof("other", 100, 200, key)) {
		t.Error("proof unchanged by a different username")
	}
}
