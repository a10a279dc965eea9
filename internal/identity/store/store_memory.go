package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cernops/keystone/internal/identity/models"
	"github.com/cernops/keystone/pkg/ids"
	"github.com/cernops/keystone/pkg/platform/sentinel"
)

// InMemory keeps every identity table behind one lock so cascades are
// atomic with respect to other callers.
type InMemory struct {
	mu          sync.RWMutex
	resources   map[string]*models.Resource
	roles       map[ids.RoleID]*models.Role
	credentials map[ids.CredentialID]*models.Credential
	memberships map[models.Membership]struct{}
	grants      map[models.Grant]struct{}
}

func NewInMemory() *InMemory {
	return &InMemory{
		resources:   make(map[string]*models.Resource),
		roles:       make(map[ids.RoleID]*models.Role),
		credentials: make(map[ids.CredentialID]*models.Credential),
		memberships: make(map[models.Membership]struct{}),
		grants:      make(map[models.Grant]struct{}),
	}
}

func (s *InMemory) CreateResource(_ context.Context, r *models.Resource) error {
	if r == nil {
		return fmt.Errorf("resource is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.resources[r.ID]; ok {
		return sentinel.ErrAlreadyUsed
	}
	for _, existing := range s.resources {
		if existing.Kind == r.Kind && existing.DomainID == r.DomainID && strings.EqualFold(existing.Name, r.Name) {
			return sentinel.ErrAlreadyUsed
		}
	}
	cp := *r
	s.resources[r.ID] = &cp
	return nil
}

func (s *InMemory) FindResource(_ context.Context, kind models.Kind, id string) (*models.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.resources[id]
	if !ok || r.Kind != kind {
		return nil, sentinel.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *InMemory) ListResources(_ context.Context, filter models.ResourceFilter) ([]*models.Resource, error) {
	s.mu.RLock()
	out := make([]*models.Resource, 0)
	for _, r := range s.resources {
		if filter.Matches(r) {
			cp := *r
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
	return out, nil
}

func (s *InMemory) DeleteResource(_ context.Context, kind models.Kind, id string) (models.CascadeReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.resources[id]
	if !ok || r.Kind != kind {
		return models.CascadeReport{}, sentinel.ErrNotFound
	}
	report := s.removeDependentsLocked(r)
	delete(s.resources, id)
	return report, nil
}

// removeDependentsLocked deletes the credentials, memberships and grants
// that reference r. It does not count r itself.
func (s *InMemory) removeDependentsLocked(r *models.Resource) models.CascadeReport {
	var report models.CascadeReport
	for g := range s.grants {
		switch {
		case r.Kind == models.KindProject && g.TargetKind == models.TargetProject && g.TargetID == r.ID,
			r.Kind != models.KindProject && g.ActorKind.ResourceKind() == r.Kind && g.ActorID == r.ID:
			delete(s.grants, g)
			report.Grants++
		}
	}
	for m := range s.memberships {
		if (r.Kind == models.KindUser && string(m.UserID) == r.ID) ||
			(r.Kind == models.KindGroup && string(m.GroupID) == r.ID) {
			delete(s.memberships, m)
			report.Memberships++
		}
	}
	if r.Kind == models.KindUser {
		for id, c := range s.credentials {
			if string(c.UserID) == r.ID {
				delete(s.credentials, id)
				report.Credentials++
			}
		}
	}
	return report
}

func (s *InMemory) CreateRole(_ context.Context, r *models.Role) error {
	if r == nil {
		return fmt.Errorf("role is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[r.ID]; ok {
		return sentinel.ErrAlreadyUsed
	}
	for _, existing := range s.roles {
		if strings.EqualFold(existing.Name, r.Name) {
			return sentinel.ErrAlreadyUsed
		}
	}
	cp := *r
	s.roles[r.ID] = &cp
	return nil
}

func (s *InMemory) FindRole(_ context.Context, id ids.RoleID) (*models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *InMemory) FindRoleByName(_ context.Context, name string) (*models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.roles {
		if strings.EqualFold(r.Name, name) {
			cp := *r
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) ListRoles(_ context.Context, name string) ([]*models.Role, error) {
	s.mu.RLock()
	out := make([]*models.Role, 0, len(s.roles))
	for _, r := range s.roles {
		if name == "" || strings.EqualFold(r.Name, name) {
			cp := *r
			out = append(out, &cp)
		}
	}
	s.mu.RUnlock()
	sortRoles(out)
	return out, nil
}

func (s *InMemory) DeleteRole(_ context.Context, id ids.RoleID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[id]; !ok {
		return 0, sentinel.ErrNotFound
	}
	removed := 0
	for g := range s.grants {
		if g.RoleID == id {
			delete(s.grants, g)
			removed++
		}
	}
	delete(s.roles, id)
	return removed, nil
}

func (s *InMemory) CreateCredential(_ context.Context, c *models.Credential) error {
	if c == nil {
		return fmt.Errorf("credential is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.credentials[c.ID]; ok {
		return sentinel.ErrAlreadyUsed
	}
	if u, ok := s.resources[string(c.UserID)]; !ok || u.Kind != models.KindUser {
		return sentinel.ErrReferenced
	}
	cp := *c
	s.credentials[c.ID] = &cp
	return nil
}

func (s *InMemory) FindCredential(_ context.Context, id ids.CredentialID) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.credentials[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *InMemory) ListCredentials(_ context.Context, userID ids.UserID) ([]*models.Credential, error) {
	s.mu.RLock()
	out := make([]*models.Credential, 0)
	for _, c := range s.credentials {
		if userID == "" || c.UserID == userID {
			cp := *c
			out = append(out, &cp)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) DeleteCredential(_ context.Context, id ids.CredentialID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.credentials[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.credentials, id)
	return nil
}

// AddMembership is idempotent.
func (s *InMemory) AddMembership(_ context.Context, m models.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, gok := s.resources[string(m.GroupID)]
	u, uok := s.resources[string(m.UserID)]
	if !gok || !uok || g.Kind != models.KindGroup || u.Kind != models.KindUser {
		return sentinel.ErrReferenced
	}
	s.memberships[m] = struct{}{}
	return nil
}

func (s *InMemory) RemoveMembership(_ context.Context, m models.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.memberships[m]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.memberships, m)
	return nil
}

// CreateGrant is idempotent.
func (s *InMemory) CreateGrant(_ context.Context, g models.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[g.RoleID]; !ok {
		return sentinel.ErrReferenced
	}
	s.grants[g] = struct{}{}
	return nil
}

func (s *InMemory) HasGrant(_ context.Context, g models.Grant) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.grants[g]
	return ok, nil
}

func (s *InMemory) DeleteGrant(_ context.Context, g models.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.grants[g]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.grants, g)
	return nil
}

func (s *InMemory) ListGrantedRoles(_ context.Context, actor models.ActorKind, actorID string, target models.TargetKind, targetID string) ([]*models.Role, error) {
	s.mu.RLock()
	out := make([]*models.Role, 0)
	for g := range s.grants {
		if g.ActorKind != actor || g.ActorID != actorID || g.TargetKind != target || g.TargetID != targetID {
			continue
		}
		if r, ok := s.roles[g.RoleID]; ok {
			cp := *r
			out = append(out, &cp)
		}
	}
	s.mu.RUnlock()
	sortRoles(out)
	return out, nil
}

// PurgeDomain removes every resource in the domain along with grants on the
// domain itself.
func (s *InMemory) PurgeDomain(_ context.Context, domainID ids.DomainID) (models.CascadeReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var report models.CascadeReport
	for g := range s.grants {
		if g.TargetKind == models.TargetDomain && g.TargetID == domainID.String() {
			delete(s.grants, g)
			report.Grants++
		}
	}
	for id, r := range s.resources {
		if r.DomainID != domainID {
			continue
		}
		report.Add(s.removeDependentsLocked(r))
		report.CountResource(r.Kind)
		delete(s.resources, id)
	}
	return report, nil
}

func sortRoles(roles []*models.Role) {
	sort.Slice(roles, func(i, j int) bool {
		a, b := strings.ToLower(roles[i].Name), strings.ToLower(roles[j].Name)
		if a != b {
			return a < b
		}
		return roles[i].ID < roles[j].ID
	})
}
