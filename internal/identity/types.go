// Package identity manages staff users and portal participants: encrypted
// contact fields, the email lookup digest, credentials, and per-program
// role assignments.
package identity

import (
	"errors"
	"time"

	"caseguard.org/internal/policy"
	"caseguard.org/internal/vault"
)

// Identity kinds. The two login surfaces authenticate disjoint kinds.
const (
	KindStaff       = "staff"
	KindParticipant = "participant"
)

var (
	ErrNotFound      = errors.New("identity: not found")
	ErrAlreadyExists = errors.New("identity: already exists")
	ErrInvalidInput  = errors.New("identity: invalid input")
	ErrUnauthorized  = errors.New("identity: unauthorized")
	ErrForbidden     = errors.New("identity: forbidden")
)

// Identity is a staff user or portal participant. Contact fields are
// stored encrypted; EmailHash is the keyed digest used as the unique
// lookup key so the store never indexes on the plaintext address.
type Identity struct {
	ID           string
	Kind         string
	EmailHash    string
	Email        vault.EncryptedString
	FullName     vault.EncryptedString
	Phone        vault.EncryptedString
	DisplayName  string // non-sensitive label used in audit snapshots
	PasswordHash string
	Active       bool
	Admin        bool
	Demo         bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Assignment binds an identity to one role within one program. Removal is
// a status flip so audit history keeps its linkage; an identity holds at
// most one active role per program.
type Assignment struct {
	ID         string
	IdentityID string
	ProgramID  string
	Role       policy.Role
	Removed    bool
	CreatedAt  time.Time
	RemovedAt  *time.Time
}
