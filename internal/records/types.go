// Package records manages case files for program participants. Personal
// fields are sealed before they reach any store, so every Store
// implementation and every backup of it holds ciphertext only.
package records

import (
	"errors"
	"time"

	"caseguard.org/internal/vault"
)

var (
	// ErrNotFound covers both a genuinely absent record and one the
	// caller is not allowed to know exists.
	ErrNotFound     = errors.New("records: not found")
	ErrForbidden    = errors.New("records: forbidden")
	ErrInvalidInput = errors.New("records: invalid input")
)

// Client is the stored shape of a case record. Field tokens are opaque to
// the store layer; only the service can open them.
type Client struct {
	ID        string
	ProgramID string
	FullName  vault.EncryptedString
	Email     vault.EncryptedString
	Phone     vault.EncryptedString
	BirthDate vault.EncryptedString
	Notes     vault.EncryptedString
	Active    bool
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// View is a record opened for an authorized caller. A field whose token
// cannot be opened renders as the empty string rather than failing the
// whole read.
type View struct {
	ID        string    `json:"id"`
	ProgramID string    `json:"program_id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	BirthDate string    `json:"birth_date"`
	Notes     string    `json:"notes"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
