package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"caseguard.org/internal/ids"
	"caseguard.org/internal/policy"
	"caseguard.org/internal/vault"
)

// Service implements identity lifecycle and credential verification on top
// of a Store. Every PII field passes through the vault on its way in; the
// plaintext email is reduced to its lookup digest before it ever reaches a
// query.
type Service struct {
	store     Store
	vault     *vault.Vault
	hasher    *vault.Hasher
	logger    *zap.Logger
	dummyHash []byte
}

// NewService wires the service.
func NewService(store Store, v *vault.Vault, hasher *vault.Hasher, logger *zap.Logger) (*Service, error) {
	if store == nil || v == nil || hasher == nil {
		return nil, errors.New("identity: store, vault and hasher are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	// Compared against when a lookup finds nothing, so unknown emails cost
	// the same as wrong passwords.
	dummy, err := bcrypt.GenerateFromPassword([]byte("identity-timing-pad"), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &Service{store: store, vault: v, hasher: hasher, logger: logger, dummyHash: dummy}, nil
}

// RegisterParams carries the fields accepted at registration or invite
// acceptance. Admin is honored only on paths that explicitly check the
// caller's privilege; Register itself always strips it.
type RegisterParams struct {
	Kind        string
	Email       string
	FullName    string
	Phone       string
	DisplayName string
	Password    string
	Admin       bool
	Demo        bool
}

func (p RegisterParams) validate() error {
	if p.Kind != KindStaff && p.Kind != KindParticipant {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, p.Kind)
	}
	email := strings.TrimSpace(p.Email)
	if email == "" || !strings.Contains(email, "@") {
		return fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if strings.TrimSpace(p.Password) == "" {
		return fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	if strings.TrimSpace(p.DisplayName) == "" {
		return fmt.Errorf("%w: display name is required", ErrInvalidInput)
	}
	return nil
}

func (s *Service) build(p RegisterParams) (*Identity, error) {
	email, err := vault.Seal(s.vault, strings.TrimSpace(strings.ToLower(p.Email)))
	if err != nil {
		return nil, err
	}
	fullName, err := vault.Seal(s.vault, strings.TrimSpace(p.FullName))
	if err != nil {
		return nil, err
	}
	phone, err := vault.Seal(s.vault, strings.TrimSpace(p.Phone))
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(p.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Identity{
		ID:           ids.New(),
		Kind:         p.Kind,
		EmailHash:    s.hasher.Hash(p.Email),
		Email:        email,
		FullName:     fullName,
		Phone:        phone,
		DisplayName:  strings.TrimSpace(p.DisplayName),
		PasswordHash: string(hash),
		Active:       true,
		Demo:         p.Demo,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Register creates an identity from self-service flows (portal invite
// acceptance). The administrative flag is never honored here.
func (s *Service) Register(ctx context.Context, p RegisterParams) (*Identity, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	id, err := s.build(p)
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, id); err != nil {
		return nil, err
	}
	return id, nil
}

// CreateStaff creates an identity on behalf of actor. The administrative
// flag survives only when the actor is privileged to set it, regardless of
// what the client submitted.
func (s *Service) CreateStaff(ctx context.Context, actor policy.Subject, p RegisterParams) (*Identity, error) {
	p.Kind = KindStaff
	if err := p.validate(); err != nil {
		return nil, err
	}
	id, err := s.build(p)
	if err != nil {
		return nil, err
	}
	if p.Admin && policy.CanSetAdminFlag(actor) {
		id.Admin = true
	}
	if err := s.store.Create(ctx, id); err != nil {
		return nil, err
	}
	return id, nil
}

// Authenticate verifies credentials for one surface. Unknown email, wrong
// password and deactivated identity all return ErrUnauthorized, and the
// unknown-email path burns an equivalent bcrypt comparison so the two
// failures are not distinguishable by latency.
func (s *Service) Authenticate(ctx context.Context, kind, email, password string) (*Identity, error) {
	id, err := s.store.FindByEmailHash(ctx, kind, s.hasher.Hash(email))
	if err != nil {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(id.PasswordHash), []byte(password)); err != nil {
		return nil, ErrUnauthorized
	}
	if !id.Active {
		return nil, ErrUnauthorized
	}
	return id, nil
}

// Subject resolves the policy view of an identity: its flags plus the
// active role per program.
func (s *Service) Subject(ctx context.Context, identityID string) (policy.Subject, error) {
	id, err := s.store.Find(ctx, identityID)
	if err != nil {
		return policy.Subject{}, err
	}
	assignments, err := s.store.ActiveAssignments(ctx, id.ID)
	if err != nil {
		return policy.Subject{}, err
	}
	roles := make(map[string]policy.Role, len(assignments))
	for _, a := range assignments {
		roles[a.ProgramID] = a.Role
	}
	return policy.Subject{
		IdentityID:  id.ID,
		DisplayName: id.DisplayName,
		Active:      id.Active,
		Admin:       id.Admin,
		Demo:        id.Demo,
		Roles:       roles,
	}, nil
}

// AssignRole grants role to an identity within a program, replacing any
// existing assignment there. The actor must outrank both the granted role
// and the role being replaced.
func (s *Service) AssignRole(ctx context.Context, actor policy.Subject, identityID, programID string, role policy.Role) (*Assignment, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	if strings.TrimSpace(programID) == "" {
		return nil, fmt.Errorf("%w: program id is required", ErrInvalidInput)
	}
	if !policy.CanAssignRole(actor, role, programID) {
		return nil, fmt.Errorf("%w: cannot assign role %s", ErrForbidden, role)
	}
	target, err := s.store.Find(ctx, identityID)
	if err != nil {
		return nil, err
	}
	existing, err := s.store.ActiveAssignments(ctx, target.ID)
	if err != nil {
		return nil, err
	}
	for _, a := range existing {
		if a.ProgramID != programID {
			continue
		}
		if !policy.CanAssignRole(actor, a.Role, programID) {
			return nil, fmt.Errorf("%w: cannot replace role %s", ErrForbidden, a.Role)
		}
		if err := s.store.RemoveAssignment(ctx, target.ID, programID); err != nil {
			return nil, err
		}
	}
	a := &Assignment{
		ID:         ids.New(),
		IdentityID: target.ID,
		ProgramID:  programID,
		Role:       role,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.Assign(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// RemoveRole soft-removes an identity's assignment in a program. The same
// elevation rule applies as for granting.
func (s *Service) RemoveRole(ctx context.Context, actor policy.Subject, identityID, programID string) error {
	assignments, err := s.store.ActiveAssignments(ctx, identityID)
	if err != nil {
		return err
	}
	for _, a := range assignments {
		if a.ProgramID != programID {
			continue
		}
		if !policy.CanAssignRole(actor, a.Role, programID) {
			return fmt.Errorf("%w: cannot remove role %s", ErrForbidden, a.Role)
		}
		return s.store.RemoveAssignment(ctx, identityID, programID)
	}
	return ErrNotFound
}

// UpdateProfileParams carries profile edits. Nil leaves a field untouched.
// Email changes re-derive the lookup digest together with the sealed value
// so the two never drift apart.
type UpdateProfileParams struct {
	Email       *string
	FullName    *string
	Phone       *string
	DisplayName *string
}

// UpdateProfile edits an identity's own directory and contact fields.
// Identities may edit themselves; administrators may edit anyone. Role
// assignments, the administrative flag and credentials have their own
// paths and are never touched here.
func (s *Service) UpdateProfile(ctx context.Context, actor policy.Subject, identityID string, p UpdateProfileParams) (*Identity, error) {
	if actor.IdentityID != identityID && !actor.Admin {
		return nil, fmt.Errorf("%w: cannot edit another identity", ErrForbidden)
	}
	id, err := s.store.Find(ctx, identityID)
	if err != nil {
		return nil, err
	}
	if p.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*p.Email))
		if email == "" || !strings.Contains(email, "@") {
			return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
		}
		sealed, err := vault.Seal(s.vault, email)
		if err != nil {
			return nil, err
		}
		id.Email = sealed
		id.EmailHash = s.hasher.Hash(email)
	}
	if p.FullName != nil {
		sealed, err := vault.Seal(s.vault, strings.TrimSpace(*p.FullName))
		if err != nil {
			return nil, err
		}
		id.FullName = sealed
	}
	if p.Phone != nil {
		sealed, err := vault.Seal(s.vault, strings.TrimSpace(*p.Phone))
		if err != nil {
			return nil, err
		}
		id.Phone = sealed
	}
	if p.DisplayName != nil {
		name := strings.TrimSpace(*p.DisplayName)
		if name == "" {
			return nil, fmt.Errorf("%w: display name is required", ErrInvalidInput)
		}
		id.DisplayName = name
	}
	if err := s.store.UpdateFields(ctx, id); err != nil {
		return nil, err
	}
	return id, nil
}

// Deactivate flips an identity to inactive. Identities are never hard
// deleted while audit history references them.
func (s *Service) Deactivate(ctx context.Context, actor policy.Subject, identityID string) error {
	target, err := s.store.Find(ctx, identityID)
	if err != nil {
		return err
	}
	if !policy.CanDeactivate(actor, target.Admin) {
		return fmt.Errorf("%w: cannot deactivate identity", ErrForbidden)
	}
	return s.store.SetActive(ctx, target.ID, false)
}
