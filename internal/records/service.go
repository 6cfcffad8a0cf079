package records

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"caseguard.org/internal/audit"
	"caseguard.org/internal/ids"
	"caseguard.org/internal/obs"
	"caseguard.org/internal/policy"
	"caseguard.org/internal/vault"
)

// Service enforces program scoping around the store and seals or opens
// personal fields at the boundary. Every denial it returns has already
// been written to the audit trail, exactly once.
type Service struct {
	store    Store
	vault    *vault.Vault
	recorder *audit.Recorder
	logger   *zap.Logger
}

func NewService(store Store, v *vault.Vault, recorder *audit.Recorder, logger *zap.Logger) (*Service, error) {
	if store == nil || v == nil || recorder == nil {
		return nil, errors.New("records: store, vault and recorder are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, vault: v, recorder: recorder, logger: logger}, nil
}

// CreateParams carries the plaintext fields of a new record. They are
// sealed before the store sees them.
type CreateParams struct {
	ProgramID string
	FullName  string
	Email     string
	Phone     string
	BirthDate string
	Notes     string
}

func (p CreateParams) validate() error {
	if strings.TrimSpace(p.ProgramID) == "" {
		return fmt.Errorf("%w: program id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(p.FullName) == "" {
		return fmt.Errorf("%w: full name is required", ErrInvalidInput)
	}
	return nil
}

// UpdateParams carries replacement values. A nil field is left untouched;
// a pointer to the empty string clears the field.
type UpdateParams struct {
	FullName  *string
	Email     *string
	Phone     *string
	BirthDate *string
	Notes     *string
}

func (s *Service) Create(ctx context.Context, actor policy.Subject, p CreateParams) (*View, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if err := s.check(actor, policy.ActionCreate, p.ProgramID, ""); err != nil {
		return nil, err
	}

	c := &Client{
		ID:        ids.New(),
		ProgramID: p.ProgramID,
		Active:    true,
		CreatedBy: actor.IdentityID,
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now

	var err error
	if c.FullName, err = vault.Seal(s.vault, strings.TrimSpace(p.FullName)); err != nil {
		return nil, err
	}
	if c.Email, err = vault.Seal(s.vault, strings.TrimSpace(strings.ToLower(p.Email))); err != nil {
		return nil, err
	}
	if c.Phone, err = vault.Seal(s.vault, strings.TrimSpace(p.Phone)); err != nil {
		return nil, err
	}
	if c.BirthDate, err = vault.Seal(s.vault, strings.TrimSpace(p.BirthDate)); err != nil {
		return nil, err
	}
	if c.Notes, err = vault.Seal(s.vault, p.Notes); err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, c); err != nil {
		return nil, err
	}
	return s.open(c), nil
}

// Get opens one record for the actor. Records outside the actor's
// programs answer exactly like records that do not exist.
func (s *Service) Get(ctx context.Context, actor policy.Subject, id string) (*View, error) {
	c, err := s.store.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.check(actor, policy.ActionView, c.ProgramID, c.ID); err != nil {
		return nil, err
	}
	return s.open(c), nil
}

// List returns the records the actor may see. With a program id it is a
// single-program listing; without one it spans every program the actor
// holds a role in, or the whole instance for administrators.
func (s *Service) List(ctx context.Context, actor policy.Subject, programID string, includeInactive bool) ([]*View, error) {
	programs, err := s.listScope(actor, policy.ActionList, programID)
	if err != nil {
		return nil, err
	}
	clients, err := s.store.List(ctx, programs, includeInactive)
	if err != nil {
		return nil, err
	}
	views := make([]*View, 0, len(clients))
	for _, c := range clients {
		views = append(views, s.open(c))
	}
	return views, nil
}

// Export is a full listing intended for reporting. It is a separate
// permission from List so front-line roles can browse without being able
// to bulk-extract.
func (s *Service) Export(ctx context.Context, actor policy.Subject, programID string) ([]*View, error) {
	programs, err := s.listScope(actor, policy.ActionExport, programID)
	if err != nil {
		return nil, err
	}
	clients, err := s.store.List(ctx, programs, true)
	if err != nil {
		return nil, err
	}
	views := make([]*View, 0, len(clients))
	for _, c := range clients {
		views = append(views, s.open(c))
	}
	return views, nil
}

func (s *Service) Update(ctx context.Context, actor policy.Subject, id string, p UpdateParams) (*View, error) {
	c, err := s.store.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.check(actor, policy.ActionUpdate, c.ProgramID, c.ID); err != nil {
		return nil, err
	}

	apply := func(dst *vault.EncryptedString, src *string) error {
		if src == nil {
			return nil
		}
		sealed, err := vault.Seal(s.vault, strings.TrimSpace(*src))
		if err != nil {
			return err
		}
		*dst = sealed
		return nil
	}
	if err := apply(&c.FullName, p.FullName); err != nil {
		return nil, err
	}
	if p.Email != nil {
		lowered := strings.TrimSpace(strings.ToLower(*p.Email))
		p.Email = &lowered
	}
	if err := apply(&c.Email, p.Email); err != nil {
		return nil, err
	}
	if err := apply(&c.Phone, p.Phone); err != nil {
		return nil, err
	}
	if err := apply(&c.BirthDate, p.BirthDate); err != nil {
		return nil, err
	}
	if p.Notes != nil {
		sealed, err := vault.Seal(s.vault, *p.Notes)
		if err != nil {
			return nil, err
		}
		c.Notes = sealed
	}
	c.UpdatedAt = time.Now().UTC()

	if err := s.store.Update(ctx, c); err != nil {
		return nil, err
	}
	return s.open(c), nil
}

// Deactivate retires a record without erasing it. Records are never
// deleted; history and audit references stay resolvable.
func (s *Service) Deactivate(ctx context.Context, actor policy.Subject, id string) error {
	c, err := s.store.Find(ctx, id)
	if err != nil {
		return err
	}
	if err := s.check(actor, policy.ActionDeactivate, c.ProgramID, c.ID); err != nil {
		return err
	}
	return s.store.SetActive(ctx, id, false)
}

// check maps an authorization decision to a sentinel error and writes the
// denial to the audit trail. Allowed outcomes write nothing here; the
// handler layer records the mutation itself.
func (s *Service) check(actor policy.Subject, action policy.Action, programID, resourceID string) error {
	switch policy.Authorize(actor, action, policy.ResourceClientRecord, programID) {
	case policy.Allowed:
		return nil
	case policy.DeniedNotFound:
		s.denied(actor, audit.ActionAccessDeniedHidden, action, programID, resourceID)
		return ErrNotFound
	default:
		s.denied(actor, audit.ActionAccessDenied, action, programID, resourceID)
		return ErrForbidden
	}
}

func (s *Service) denied(actor policy.Subject, kind string, action policy.Action, programID, resourceID string) {
	obs.AccessDenied.WithLabelValues(string(policy.ResourceClientRecord)).Inc()
	s.recorder.Record(audit.Entry{
		ActorID:      actor.IdentityID,
		ActorDisplay: actor.DisplayName,
		Action:       kind,
		ResourceType: string(policy.ResourceClientRecord),
		ResourceID:   resourceID,
		ProgramID:    programID,
		Metadata:     map[string]string{"attempted": string(action)},
	})
}

// listScope resolves which program set a listing may query. Instance-wide
// scope returns nil, which stores treat as no filter.
func (s *Service) listScope(actor policy.Subject, action policy.Action, programID string) ([]string, error) {
	if actor.Admin {
		if policy.Authorize(actor, action, policy.ResourceClientRecord, programID) != policy.Allowed {
			s.denied(actor, audit.ActionAccessDenied, action, programID, "")
			return nil, ErrForbidden
		}
		if programID != "" {
			return []string{programID}, nil
		}
		return nil, nil
	}
	if programID != "" {
		if err := s.check(actor, action, programID, ""); err != nil {
			return nil, err
		}
		return []string{programID}, nil
	}
	// Cross-program listing: keep only the programs where the matrix
	// grants the action. An actor with no grant anywhere is refused
	// rather than handed an empty page.
	programs := make([]string, 0, len(actor.Roles))
	for _, id := range actor.Programs() {
		if policy.Authorize(actor, action, policy.ResourceClientRecord, id) == policy.Allowed {
			programs = append(programs, id)
		}
	}
	if len(programs) == 0 {
		s.denied(actor, audit.ActionAccessDenied, action, "", "")
		return nil, ErrForbidden
	}
	return programs, nil
}

func (s *Service) open(c *Client) *View {
	return &View{
		ID:        c.ID,
		ProgramID: c.ProgramID,
		FullName:  c.FullName.Reveal(s.vault),
		Email:     c.Email.Reveal(s.vault),
		Phone:     c.Phone.Reveal(s.vault),
		BirthDate: c.BirthDate.Reveal(s.vault),
		Notes:     c.Notes.Reveal(s.vault),
		Active:    c.Active,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}
