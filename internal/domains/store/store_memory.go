// Package store persists domains. InMemory backs tests and database-less
// deployments; PostgresStore is the durable store; RedisCache and Guard
// decorate any Store.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cernops/keystone/internal/domains/models"
	"github.com/cernops/keystone/pkg/ids"
	"github.com/cernops/keystone/pkg/platform/sentinel"
)

// InMemory is a thread-safe map-backed store.
type InMemory struct {
	mu      sync.RWMutex
	domains map[ids.DomainID]*models.Domain
}

func NewInMemory() *InMemory {
	return &InMemory{domains: make(map[ids.DomainID]*models.Domain)}
}

func (s *InMemory) Create(_ context.Context, d *models.Domain) error {
	if d == nil {
		return fmt.Errorf("domain is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.domains[d.ID]; ok {
		return sentinel.ErrAlreadyUsed
	}
	if s.nameTakenLocked(d.Name, "") {
		return sentinel.ErrAlreadyUsed
	}
	cp := *d
	s.domains[d.ID] = &cp
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id ids.DomainID) (*models.Domain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.domains[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *InMemory) FindByName(_ context.Context, name string) (*models.Domain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.domains {
		if strings.EqualFold(d.Name, name) {
			cp := *d
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// List returns matching domains ordered by name. A positive limit caps the
// result.
func (s *InMemory) List(_ context.Context, filter models.Filter, limit int) ([]*models.Domain, error) {
	s.mu.RLock()
	out := make([]*models.Domain, 0, len(s.domains))
	for _, d := range s.domains {
		if filter.Matches(d) {
			cp := *d
			out = append(out, &cp)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if a != b {
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Execute runs validate against the stored domain and, when it passes,
// applies mutate and persists the result. Both run under the write lock.
// A nil mutate makes Execute a locked read.
func (s *InMemory) Execute(_ context.Context, id ids.DomainID, validate func(*models.Domain) error, mutate func(*models.Domain)) (*models.Domain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.domains[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *existing
	if validate != nil {
		if err := validate(&cp); err != nil {
			return nil, err
		}
	}
	if mutate == nil {
		return &cp, nil
	}
	mutate(&cp)
	if s.nameTakenLocked(cp.Name, id) {
		return nil, sentinel.ErrAlreadyUsed
	}
	stored := cp
	s.domains[id] = &stored
	return &cp, nil
}

func (s *InMemory) Delete(_ context.Context, id ids.DomainID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.domains[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.domains, id)
	return nil
}

func (s *InMemory) nameTakenLocked(name string, except ids.DomainID) bool {
	for id, d := range s.domains {
		if id != except && strings.EqualFold(d.Name, name) {
			return true
		}
	}
	return false
}
