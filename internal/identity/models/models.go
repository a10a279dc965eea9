// Package models holds the domain-scoped identity resources and the global
// roles that can be granted on them.
package models

import (
	"strings"
	"time"
	"unicode/utf8"

	dErrors "github.com/cernops/keystone/pkg/domainerrors"
	"github.com/cernops/keystone/pkg/ids"
)

const (
	MaxNameLength        = 255
	MaxDescriptionLength = 255
	MaxBlobLength        = 65535
)

// Kind is the type of a domain-scoped resource.
type Kind string

const (
	KindUser    Kind = "user"
	KindGroup   Kind = "group"
	KindProject Kind = "project"
)

func (k Kind) Valid() bool {
	switch k {
	case KindUser, KindGroup, KindProject:
		return true
	}
	return false
}

// Plural is the collection name used in URLs and response envelopes.
func (k Kind) Plural() string {
	return string(k) + "s"
}

// Resource is a user, group or project. Its name is unique among resources
// of the same kind in the same domain, ignoring case.
type Resource struct {
	ID           string       `json:"id"`
	Kind         Kind         `json:"kind"`
	DomainID     ids.DomainID `json:"domain_id"`
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	Enabled      bool         `json:"enabled"`
	Email        string       `json:"email,omitempty"`
	PasswordHash string       `json:"-"`
	CreatedAt    time.Time    `json:"created_at"`
}

func NewResource(kind Kind, id string, domainID ids.DomainID, name, description string, enabled bool, now time.Time) (*Resource, error) {
	if !kind.Valid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "unknown resource kind")
	}
	if id == "" || domainID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, string(kind)+" requires an ID and a domain")
	}
	name, err := normalizeName(string(kind), name)
	if err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, string(kind)+" description must be 255 characters or less")
	}
	return &Resource{
		ID:          id,
		Kind:        kind,
		DomainID:    domainID,
		Name:        name,
		Description: description,
		Enabled:     enabled,
		CreatedAt:   now,
	}, nil
}

func normalizeName(kind, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", dErrors.New(dErrors.CodeInvariantViolation, kind+" name cannot be empty")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", dErrors.New(dErrors.CodeInvariantViolation, kind+" name must be 255 characters or less")
	}
	return name, nil
}

// ResourceFilter narrows resource listings. Zero values match everything.
type ResourceFilter struct {
	Kind     Kind
	DomainID ids.DomainID
	Name     string
}

func (f ResourceFilter) Matches(r *Resource) bool {
	if f.Kind != "" && r.Kind != f.Kind {
		return false
	}
	if !f.DomainID.IsNil() && r.DomainID != f.DomainID {
		return false
	}
	if f.Name != "" && !strings.EqualFold(r.Name, f.Name) {
		return false
	}
	return true
}

// Role is a globally named permission set. Names are unique ignoring case.
type Role struct {
	ID        ids.RoleID `json:"id"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"created_at"`
}

func NewRole(id ids.RoleID, name string, now time.Time) (*Role, error) {
	if id.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "role ID cannot be empty")
	}
	name, err := normalizeName("role", name)
	if err != nil {
		return nil, err
	}
	return &Role{ID: id, Name: name, CreatedAt: now}, nil
}

// Credential is an opaque secret owned by a user.
type Credential struct {
	ID        ids.CredentialID `json:"id"`
	UserID    ids.UserID       `json:"user_id"`
	Type      string           `json:"type"`
	Blob      string           `json:"blob"`
	CreatedAt time.Time        `json:"created_at"`
}

func NewCredential(id ids.CredentialID, userID ids.UserID, credType, blob string, now time.Time) (*Credential, error) {
	credType = strings.TrimSpace(credType)
	switch {
	case credType == "":
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "credential type cannot be empty")
	case len(credType) > MaxNameLength:
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "credential type must be 255 characters or less")
	case blob == "":
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "credential blob cannot be empty")
	case len(blob) > MaxBlobLength:
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "credential blob is too large")
	}
	return &Credential{ID: id, UserID: userID, Type: credType, Blob: blob, CreatedAt: now}, nil
}

// Membership places a user in a group of the same domain.
type Membership struct {
	GroupID ids.GroupID
	UserID  ids.UserID
}

type ActorKind string

const (
	ActorUser  ActorKind = "user"
	ActorGroup ActorKind = "group"
)

func (a ActorKind) ResourceKind() Kind {
	if a == ActorGroup {
		return KindGroup
	}
	return KindUser
}

type TargetKind string

const (
	TargetDomain  TargetKind = "domain"
	TargetProject TargetKind = "project"
)

// Grant assigns a role to a user or group on a domain or project.
type Grant struct {
	RoleID     ids.RoleID
	ActorKind  ActorKind
	ActorID    string
	TargetKind TargetKind
	TargetID   string
}

// CascadeReport counts rows removed by a cascading delete.
type CascadeReport struct {
	Users       int
	Groups      int
	Projects    int
	Credentials int
	Memberships int
	Grants      int
}

// Add accumulates o into r.
func (r *CascadeReport) Add(o CascadeReport) {
	r.Users += o.Users
	r.Groups += o.Groups
	r.Projects += o.Projects
	r.Credentials += o.Credentials
	r.Memberships += o.Memberships
	r.Grants += o.Grants
}

func (r CascadeReport) Counts() map[string]int {
	return map[string]int{
		"users":       r.Users,
		"groups":      r.Groups,
		"projects":    r.Projects,
		"credentials": r.Credentials,
		"memberships": r.Memberships,
		"grants":      r.Grants,
	}
}

// CountResource records the removal of one resource of kind.
func (r *CascadeReport) CountResource(kind Kind) {
	switch kind {
	case KindUser:
		r.Users++
	case KindGroup:
		r.Groups++
	case KindProject:
		r.Projects++
	}
}
