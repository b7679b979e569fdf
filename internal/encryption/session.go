package encryption

import (
	"crypto/hmac"
	"crypto/rc4"
	"crypto/sha1"
	"fmt"
)

// Per-direction HMAC salts, fixed by the legacy server's key schedule.
var (
	encryptSalt = []byte{
		0xc2, 0xb3, 0x72, 0x3c, 0xc6, 0xae, 0xd9, 0xb5,
		0x34, 0x3c, 0x53, 0xee, 0x2f, 0x43, 0x67, 0xce,
	}
	decryptSalt = []byte{
		0xcc, 0x98, 0xae, 0x04, 0xe8, 0x97, 0xea, 0xca,
		0x12, 0xdd, 0xc0, 0x93, 0x42, 0x91, 0x53, 0x57,
	}
)

// The server discards the first keystream bytes of both ciphers to guard
// against the classic RC4 early-byte biases.
const dropN = 1024

// SessionCipher is the keyed stream cipher pair used after a successful
// handshake. The keystreams are continuous across calls: frame boundaries
// do not reset them, which is why a cipher swap is only safe between frames.
type SessionCipher struct {
	encrypt *rc4.Cipher
	decrypt *rc4.Cipher
}

// NewSessionCipher derives the two directional keys from sessionKey and
// initializes both keystreams.
func NewSessionCipher(sessionKey []byte) (*SessionCipher, error) {
	if len(sessionKey) == 0 {
		return nil, fmt.Errorf("session cipher requires a non-empty session key")
	}

	enc, err := newDirectionCipher(encryptSalt, sessionKey)
	if err != nil {
		return nil, err
	}
	dec, err := newDirectionCipher(decryptSalt, sessionKey)
	if err != nil {
		return nil, err
	}

	return &SessionCipher{encrypt: enc, decrypt: dec}, nil
}

func newDirectionCipher(salt, sessionKey []byte) (*rc4.Cipher, error) {
	mac := hmac.New(sha1.New, salt)
	mac.Write(sessionKey)

	cipher, err := rc4.NewCipher(mac.Sum(nil))
	if err != nil {
		return nil, fmt.Errorf("initializing stream cipher: %w", err)
	}

	drop := make([]byte, dropN)
	cipher.XORKeyStream(drop, drop)

	return cipher, nil
}

func (c *SessionCipher) Encrypt(b []byte) {
	c.encrypt.XORKeyStream(b, b)
}

func (c *SessionCipher) Decrypt(b []byte) {
	c.decrypt.XORKeyStream(b, b)
}
