// Package vault implements field-level encryption for personal data at
// rest: an AEAD cipher keyed by a single configured secret, a keyed lookup
// hash for email identities, and batch key rotation.
//
// A decryption failure on the request path is recovered locally: it is
// logged, counted, and surfaces to callers as the empty string. Callers
// that need the hard error (the key rotator) use Open instead.
package vault

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/crypto/chacha20poly1305"

	"caseguard.org/internal/obs"
)

// KeySize is the required decoded key length in bytes.
const KeySize = chacha20poly1305.KeySize

var (
	// ErrInvalidKey indicates a key that is not base64 or not KeySize bytes.
	ErrInvalidKey = errors.New("vault: invalid key")

	// ErrDecrypt indicates a token that failed integrity verification.
	ErrDecrypt = errors.New("vault: decryption failed")
)

// ParseKey decodes and validates a configured key string.
func ParseKey(s string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: not base64: %v", ErrInvalidKey, err)
	}
	if len(raw) != KeySize {
		return nil, fmt.Errorf("%w: need %d bytes, got %d", ErrInvalidKey, KeySize, len(raw))
	}
	return raw, nil
}

// KeysEqual reports whether two encoded keys decode to the same bytes.
func KeysEqual(a, b string) bool {
	ra, errA := ParseKey(a)
	rb, errB := ParseKey(b)
	if errA != nil || errB != nil {
		return false
	}
	return subtle.ConstantTimeCompare(ra, rb) == 1
}

// Vault encrypts and decrypts individual field values. The key is loaded
// once at construction; instances are safe for concurrent use.
type Vault struct {
	key    []byte
	logger *zap.Logger
}

// New constructs a Vault from a base64-encoded 32-byte key.
func New(key string, logger *zap.Logger) (*Vault, error) {
	raw, err := ParseKey(key)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Vault{key: raw, logger: logger}, nil
}

// Encrypt seals plaintext into an opaque token. Empty plaintext encodes to
// the empty token without touching the cipher, so absent values carry no
// ciphertext overhead.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	out = append(out, aead.Seal(nil, nonce, []byte(plaintext), nil)...)
	return base64.RawStdEncoding.EncodeToString(out), nil
}

// Open decrypts a token, returning ErrDecrypt on any integrity failure.
// The empty token opens to the empty string without a cipher invocation.
func (v *Vault) Open(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	raw, err := base64.RawStdEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("%w: malformed token", ErrDecrypt)
	}
	if len(raw) < chacha20poly1305.NonceSizeX {
		return "", fmt.Errorf("%w: token too short", ErrDecrypt)
	}
	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return "", err
	}
	nonce := raw[:chacha20poly1305.NonceSizeX]
	ct := raw[chacha20poly1305.NonceSizeX:]
	plain, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plain), nil
}

// Decrypt is the request-path variant of Open: a token that fails
// verification is logged and reads as the empty string, never an error.
func (v *Vault) Decrypt(token string) string {
	plain, err := v.Open(token)
	if err != nil {
		obs.DecryptFailures.Inc()
		v.logger.Error("field decryption failed", zap.Error(err))
		return ""
	}
	return plain
}
