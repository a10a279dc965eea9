// Package ids provides typed identifiers for identity resources.
//
// IDs are opaque strings. Generated IDs are 32-character hex UUIDs; seeded
// resources may use readable IDs such as "default". Distinct types keep a
// UserID from being passed where a DomainID is expected.
package ids

import (
	"encoding/hex"
	"strings"

	"github.com/google/uuid"

	dErrors "github.com/cernops/keystone/pkg/domainerrors"
)

// MaxLength bounds every identifier accepted at a trust boundary.
const MaxLength = 64

type (
	DomainID     string
	UserID       string
	GroupID      string
	ProjectID    string
	RoleID       string
	CredentialID string
)

func (i DomainID) String() string     { return string(i) }
func (i UserID) String() string       { return string(i) }
func (i GroupID) String() string      { return string(i) }
func (i ProjectID) String() string    { return string(i) }
func (i RoleID) String() string       { return string(i) }
func (i CredentialID) String() string { return string(i) }

func (i DomainID) IsNil() bool { return i == "" }
func (i UserID) IsNil() bool   { return i == "" }
func (i RoleID) IsNil() bool   { return i == "" }

// NewHex returns a random 32-character hex identifier.
func NewHex() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

func NewDomainID() DomainID         { return DomainID(NewHex()) }
func NewUserID() UserID             { return UserID(NewHex()) }
func NewGroupID() GroupID           { return GroupID(NewHex()) }
func NewProjectID() ProjectID       { return ProjectID(NewHex()) }
func NewRoleID() RoleID             { return RoleID(NewHex()) }
func NewCredentialID() CredentialID { return CredentialID(NewHex()) }

func ParseDomainID(s string) (DomainID, error) {
	v, err := parse("domain", s)
	return DomainID(v), err
}

func ParseUserID(s string) (UserID, error) {
	v, err := parse("user", s)
	return UserID(v), err
}

func ParseGroupID(s string) (GroupID, error) {
	v, err := parse("group", s)
	return GroupID(v), err
}

func ParseProjectID(s string) (ProjectID, error) {
	v, err := parse("project", s)
	return ProjectID(v), err
}

func ParseRoleID(s string) (RoleID, error) {
	v, err := parse("role", s)
	return RoleID(v), err
}

func ParseCredentialID(s string) (CredentialID, error) {
	v, err := parse("credential", s)
	return CredentialID(v), err
}

// Parse validates a raw identifier of the given kind.
func Parse(kind, s string) (string, error) {
	return parse(kind, s)
}

func parse(kind, s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, kind+" ID required")
	}
	if len(s) > MaxLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind+" ID")
	}
	for _, r := range s {
		if !validRune(r) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind+" ID")
		}
	}
	return s, nil
}

func validRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-' || r == '_':
		return true
	}
	return false
}
