package models

import (
	"strings"
	"time"
	"unicode/utf8"

	dErrors "github.com/cernops/keystone/pkg/domainerrors"
	"github.com/cernops/keystone/pkg/ids"
)

const (
	MaxNameLength        = 64
	MaxDescriptionLength = 255
)

// Domain is a namespace that owns users, groups and projects.
//
// Invariants:
//   - Name is trimmed, non-empty and at most MaxNameLength characters
//   - Name is unique across all domains, ignoring case (enforced by stores)
//   - Description is at most MaxDescriptionLength characters
//   - An enabled domain cannot be deleted
//   - The default domain can be neither disabled nor deleted
//   - CreatedAt is immutable after construction
type Domain struct {
	ID          ids.DomainID `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Enabled     bool         `json:"enabled"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// NewDomain validates and constructs a domain.
func NewDomain(id ids.DomainID, name, description string, enabled bool, now time.Time) (*Domain, error) {
	if id.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "domain ID cannot be empty")
	}
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	if err := validateDescription(description); err != nil {
		return nil, err
	}
	return &Domain{
		ID:          id,
		Name:        name,
		Description: description,
		Enabled:     enabled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", dErrors.New(dErrors.CodeInvariantViolation, "domain name cannot be empty")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", dErrors.New(dErrors.CodeInvariantViolation, "domain name must be 64 characters or less")
	}
	return name, nil
}

func validateDescription(description string) error {
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return dErrors.New(dErrors.CodeInvariantViolation, "domain description must be 255 characters or less")
	}
	return nil
}

// IsDefault reports whether d is the configured default domain.
func (d *Domain) IsDefault(defaultID ids.DomainID) bool {
	return !defaultID.IsNil() && d.ID == defaultID
}

// CanDelete returns a forbidden error while the domain is enabled or when it
// is the default domain.
func (d *Domain) CanDelete(defaultID ids.DomainID) error {
	if d.IsDefault(defaultID) {
		return dErrors.New(dErrors.CodeForbidden, "The default domain cannot be deleted.")
	}
	if d.Enabled {
		return dErrors.New(dErrors.CodeForbidden, "Cannot delete a domain that is enabled, please disable it first.")
	}
	return nil
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Name        *string
	Description *string
	Enabled     *bool
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.Enabled == nil
}

// CanApply validates p against d without modifying it.
func (d *Domain) CanApply(p Patch, defaultID ids.DomainID) error {
	if p.Name != nil {
		if _, err := normalizeName(*p.Name); err != nil {
			return err
		}
	}
	if p.Description != nil {
		if err := validateDescription(*p.Description); err != nil {
			return err
		}
	}
	if p.Enabled != nil && !*p.Enabled && d.IsDefault(defaultID) {
		return dErrors.New(dErrors.CodeForbidden, "The default domain cannot be disabled.")
	}
	return nil
}

// ApplyPatch writes p onto d. Call CanApply first.
func (d *Domain) ApplyPatch(p Patch, now time.Time) {
	if p.Name != nil {
		d.Name = strings.TrimSpace(*p.Name)
	}
	if p.Description != nil {
		d.Description = *p.Description
	}
	if p.Enabled != nil {
		d.Enabled = *p.Enabled
	}
	d.UpdatedAt = now
}

// Filter narrows a listing. Zero values match everything.
type Filter struct {
	Name    string
	Enabled *bool
}

// Matches reports whether d passes every set criterion. Name comparison
// ignores case, matching the uniqueness rule.
func (f Filter) Matches(d *Domain) bool {
	if f.Name != "" && !strings.EqualFold(f.Name, d.Name) {
		return false
	}
	if f.Enabled != nil && *f.Enabled != d.Enabled {
		return false
	}
	return true
}

// ListResult is a page of domains ordered by name. Truncated is set when
// more domains matched than the configured list limit.
type ListResult struct {
	Domains   []*Domain
	Truncated bool
}

// PurgeReport counts the resources removed when a domain is deleted.
type PurgeReport struct {
	Users       int
	Groups      int
	Projects    int
	Credentials int
	Memberships int
	Grants      int
}

// Counts returns the report keyed by resource kind for audit events.
func (r PurgeReport) Counts() map[string]int {
	return map[string]int{
		"users":       r.Users,
		"groups":      r.Groups,
		"projects":    r.Projects,
		"credentials": r.Credentials,
		"memberships": r.Memberships,
		"grants":      r.Grants,
	}
}

// Total is the number of rows removed across all kinds.
func (r PurgeReport) Total() int {
	return r.Users + r.Groups + r.Projects + r.Credentials + r.Memberships + r.Grants
}
