package records

import (
	"context"
	"sort"
	"sync"
)

// InMemory is a Store for tests and local development. It honors the same
// filtering contract as the SQL store.
type InMemory struct {
	mu   sync.RWMutex
	rows map[string]*Client
}

func NewInMemory() *InMemory {
	return &InMemory{rows: make(map[string]*Client)}
}

func (m *InMemory) Create(_ context.Context, c *Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.rows[c.ID] = &cp
	return nil
}

func (m *InMemory) Find(_ context.Context, id string) (*Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *InMemory) List(_ context.Context, programs []string, includeInactive bool) ([]*Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var allowed map[string]bool
	if programs != nil {
		allowed = make(map[string]bool, len(programs))
		for _, p := range programs {
			allowed[p] = true
		}
	}
	out := make([]*Client, 0, len(m.rows))
	for _, c := range m.rows {
		if allowed != nil && !allowed[c.ProgramID] {
			continue
		}
		if !includeInactive && !c.Active {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *InMemory) Update(_ context.Context, c *Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[c.ID]; !ok {
		return ErrNotFound
	}
	cp := *c
	m.rows[c.ID] = &cp
	return nil
}

func (m *InMemory) SetActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok {
		return ErrNotFound
	}
	c.Active = active
	return nil
}
