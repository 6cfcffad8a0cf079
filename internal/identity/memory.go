package identity

import (
	"context"
	"sync"
	"time"
)

// InMemory implements Store in process, for tests and local development.
type InMemory struct {
	mu          sync.RWMutex
	byID        map[string]*Identity
	assignments []*Assignment
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{byID: make(map[string]*Identity)}
}

func (s *InMemory) Create(ctx context.Context, id *Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id.ID]; ok {
		return ErrAlreadyExists
	}
	for _, existing := range s.byID {
		if existing.Kind == id.Kind && existing.EmailHash == id.EmailHash {
			return ErrAlreadyExists
		}
	}
	cp := *id
	s.byID[id.ID] = &cp
	return nil
}

func (s *InMemory) Find(ctx context.Context, id string) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	existing, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *existing
	return &cp, nil
}

func (s *InMemory) FindByEmailHash(ctx context.Context, kind, emailHash string) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, existing := range s.byID {
		if existing.Kind == kind && existing.EmailHash == emailHash {
			cp := *existing
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemory) SetActive(ctx context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	existing.Active = active
	existing.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *InMemory) UpdateFields(ctx context.Context, id *Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.byID[id.ID]
	if !ok {
		return ErrNotFound
	}
	existing.EmailHash = id.EmailHash
	existing.Email = id.Email
	existing.FullName = id.FullName
	existing.Phone = id.Phone
	existing.DisplayName = id.DisplayName
	existing.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *InMemory) ActiveAssignments(ctx context.Context, identityID string) ([]Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Assignment
	for _, a := range s.assignments {
		if a.IdentityID == identityID && !a.Removed {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *InMemory) Assign(ctx context.Context, a *Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.assignments = append(s.assignments, &cp)
	return nil
}

func (s *InMemory) RemoveAssignment(ctx context.Context, identityID, programID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.assignments {
		if a.IdentityID == identityID && a.ProgramID == programID && !a.Removed {
			now := time.Now().UTC()
			a.Removed = true
			a.RemovedAt = &now
			return nil
		}
	}
	return ErrNotFound
}
