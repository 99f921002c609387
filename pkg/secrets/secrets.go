package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"io"

	"golang.org/x/crypto/nacl/secretbox"

	dErrors "certifier/pkg/domain-errors"
)

const (
	keySize   = 32
	nonceSize = 24
)

// Generate creates a cryptographically secure random secret.
// Returns a base64-encoded string suitable for webhook signing secrets.
func Generate() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnknown, "could not generate secret")
	}
	return "whsec_" + base64.RawURLEncoding.EncodeToString(buf), nil
}

// Sealer encrypts secrets at rest with a symmetric key. Sealed values are
// nonce||box, base64 encoded.
type Sealer struct {
	key [keySize]byte
}

// NewSealer builds a Sealer from a base64-encoded 32-byte key. An empty key
// produces a random process-local key, which is only suitable for in-memory
// stores since sealed values do not survive a restart.
func NewSealer(keyBase64 string) (*Sealer, error) {
	s := &Sealer{}
	if keyBase64 == "" {
		if _, err := io.ReadFull(rand.Reader, s.key[:]); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUnknown, "could not generate sealing key")
		}
		return s, nil
	}
	raw, err := base64.StdEncoding.DecodeString(keyBase64)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, "sealing key must be base64")
	}
	if len(raw) != keySize {
		return nil, dErrors.New(dErrors.CodeValidation, "sealing key must be 32 bytes")
	}
	copy(s.key[:], raw)
	return s, nil
}

// Seal encrypts plaintext.
func (s *Sealer) Seal(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnknown, "could not generate nonce")
	}
	out := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &s.key)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return "", dErrors.New(dErrors.CodeUnknown, "sealed secret is malformed")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", dErrors.New(dErrors.CodeUnknown, "sealed secret failed authentication")
	}
	return string(plain), nil
}
