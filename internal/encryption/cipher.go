// The encryption package implements the symmetric transforms applied to the
// byte stream between the agent and the server. Sessions start with the
// NullCipher and swap to a keyed SessionCipher exactly once, after the logon
// exchange has produced a session key.
package encryption

// Cipher is the in-place transform applied to outbound and inbound bytes.
// Implementations keep independent keystream state per direction; calls must
// come from a single goroutine per direction.
type Cipher interface {
	// Encrypt transforms outbound bytes in place.
	Encrypt(b []byte)

	// Decrypt transforms inbound bytes in place.
	Decrypt(b []byte)
}

// NullCipher passes bytes through untouched. Every session uses it until the
// handshake completes; the logon session uses it for its whole lifetime.
type NullCipher struct{}

func (NullCipher) Encrypt(b []byte) {}
func (NullCipher) Decrypt(b []byte) {}
