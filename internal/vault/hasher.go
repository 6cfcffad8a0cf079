package vault

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// Hasher computes the deterministic lookup digest stored in place of a
// plaintext email. The digest is a keyed MAC, so the store never indexes on
// the address itself and the digest cannot be brute-forced offline without
// the server-held secret. The secret must differ from the field key.
type Hasher struct {
	key []byte
}

// NewHasher constructs a Hasher from the configured lookup secret.
func NewHasher(secret string) (*Hasher, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("vault: lookup secret is required")
	}
	return &Hasher{key: []byte(secret)}, nil
}

// Hash returns the hex digest of the case-normalized, trimmed email.
// Equal inputs always produce equal digests, so identity lookup is a single
// equality query.
func (h *Hasher) Hash(email string) string {
	normalized := strings.ToLower(strings.TrimSpace(email))
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(normalized))
	return hex.EncodeToString(mac.Sum(nil))
}
