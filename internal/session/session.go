// Package session issues and verifies bearer tokens for the two login
// surfaces. Staff and portal tokens are signed with the same key but carry
// disjoint audiences, so a token minted on one surface can never
// authenticate on the other.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Surfaces double as JWT audiences.
const (
	SurfaceStaff  = "staff"
	SurfacePortal = "portal"
)

const DefaultTTL = 12 * time.Hour

// ErrInvalidToken covers every verification failure: bad signature,
// expiry, wrong surface, malformed claims. Callers get no finer detail.
var ErrInvalidToken = errors.New("session: invalid token")

// Claims is the token payload. ActorID is set only on impersonation
// sessions and names the administrator acting as the subject.
type Claims struct {
	ActorID string `json:"act,omitempty"`
	jwt.RegisteredClaims
}

// Manager signs and verifies session tokens.
type Manager struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewManager(key string, ttl time.Duration) (*Manager, error) {
	if len(key) < 32 {
		return nil, errors.New("session: signing key must be at least 32 bytes")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{key: []byte(key), ttl: ttl, now: time.Now}, nil
}

// Issue mints a token for identityID on the given surface.
func (m *Manager) Issue(surface, identityID string) (string, error) {
	return m.issue(surface, identityID, "")
}

// IssueImpersonated mints a portal token for targetID with actorID
// recorded in the claims. Every request made with it attributes to both.
func (m *Manager) IssueImpersonated(actorID, targetID string) (string, error) {
	return m.issue(SurfacePortal, targetID, actorID)
}

func (m *Manager) issue(surface, identityID, actorID string) (string, error) {
	if surface != SurfaceStaff && surface != SurfacePortal {
		return "", fmt.Errorf("session: unknown surface %q", surface)
	}
	if identityID == "" {
		return "", errors.New("session: identity id is required")
	}
	now := m.now().UTC()
	claims := Claims{
		ActorID: actorID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   identityID,
			Audience:  jwt.ClaimStrings{surface},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.key)
}

// Verify checks the token against one surface and returns its claims.
func (m *Manager) Verify(surface, token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return m.key, nil
		},
		jwt.WithAudience(surface),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return m.now() }),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
