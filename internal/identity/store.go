package identity

import "context"

// Store describes persistence for identities and role assignments.
type Store interface {
	Create(ctx context.Context, id *Identity) error
	Find(ctx context.Context, id string) (*Identity, error)
	// FindByEmailHash resolves an identity by its lookup digest with a
	// single equality query.
	FindByEmailHash(ctx context.Context, kind, emailHash string) (*Identity, error)
	SetActive(ctx context.Context, id string, active bool) error
	UpdateFields(ctx context.Context, id *Identity) error

	// ActiveAssignments returns the identity's current assignments,
	// excluding soft-removed ones.
	ActiveAssignments(ctx context.Context, identityID string) ([]Assignment, error)
	Assign(ctx context.Context, a *Assignment) error
	// RemoveAssignment soft-removes the active assignment for the
	// program; the row is never physically deleted.
	RemoveAssignment(ctx context.Context, identityID, programID string) error
}
