package handler

import (
	"net/url"
	"strings"

	"github.com/cernops/keystone/internal/identity/models"
	"github.com/cernops/keystone/internal/identity/service"
	dErrors "github.com/cernops/keystone/pkg/domainerrors"
	"github.com/cernops/keystone/pkg/ids"
)

// ResourceBody is the "user", "group" or "project" object of a create
// request. Email and password are read for users only.
type ResourceBody struct {
	ID          *string `json:"id,omitempty"`
	Name        *string `json:"name,omitempty"`
	DomainID    *string `json:"domain_id,omitempty"`
	Description *string `json:"description,omitempty"`
	Enabled     *bool   `json:"enabled,omitempty"`
	Email       *string `json:"email,omitempty"`
	Password    *string `json:"password,omitempty"`
}

// ResourceRequest is keyed by the singular kind, e.g. {"user": {...}}.
type ResourceRequest map[string]*ResourceBody

func (r ResourceRequest) Validate(kind models.Kind) (service.ResourceInput, error) {
	body := r[string(kind)]
	if body == nil {
		return service.ResourceInput{}, required(string(kind))
	}
	if body.ID != nil {
		return service.ResourceInput{}, dErrors.New(dErrors.CodeBadRequest, "'id' cannot be set when creating a "+string(kind))
	}
	if body.Name == nil || strings.TrimSpace(*body.Name) == "" {
		return service.ResourceInput{}, required("name")
	}
	if body.DomainID == nil {
		return service.ResourceInput{}, required("domain_id")
	}
	domainID, err := ids.ParseDomainID(*body.DomainID)
	if err != nil {
		return service.ResourceInput{}, dErrors.New(dErrors.CodeBadRequest, "invalid domain_id")
	}
	in := service.ResourceInput{
		Kind:     kind,
		DomainID: domainID,
		Name:     *body.Name,
		Enabled:  true,
	}
	if body.Description != nil {
		in.Description = *body.Description
	}
	if body.Enabled != nil {
		in.Enabled = *body.Enabled
	}
	if kind == models.KindUser {
		if body.Email != nil {
			in.Email = *body.Email
		}
		if body.Password != nil {
			in.Password = *body.Password
		}
	}
	return in, nil
}

type RoleBody struct {
	Name *string `json:"name,omitempty"`
}

type CreateRoleRequest struct {
	Role *RoleBody `json:"role"`
}

func (r *CreateRoleRequest) Validate() (string, error) {
	if r == nil || r.Role == nil {
		return "", required("role")
	}
	if r.Role.Name == nil || strings.TrimSpace(*r.Role.Name) == "" {
		return "", required("name")
	}
	return *r.Role.Name, nil
}

type CredentialBody struct {
	UserID *string `json:"user_id,omitempty"`
	Type   *string `json:"type,omitempty"`
	Blob   *string `json:"blob,omitempty"`
}

type CreateCredentialRequest struct {
	Credential *CredentialBody `json:"credential"`
}

func (r *CreateCredentialRequest) Validate() (service.CredentialInput, error) {
	if r == nil || r.Credential == nil {
		return service.CredentialInput{}, required("credential")
	}
	c := r.Credential
	switch {
	case c.UserID == nil:
		return service.CredentialInput{}, required("user_id")
	case c.Type == nil:
		return service.CredentialInput{}, required("type")
	case c.Blob == nil:
		return service.CredentialInput{}, required("blob")
	}
	userID, err := ids.ParseUserID(*c.UserID)
	if err != nil {
		return service.CredentialInput{}, dErrors.New(dErrors.CodeBadRequest, "invalid user_id")
	}
	return service.CredentialInput{UserID: userID, Type: *c.Type, Blob: *c.Blob}, nil
}

// ParseResourceFilter reads the domain_id and name query parameters.
func ParseResourceFilter(kind models.Kind, q url.Values) (models.ResourceFilter, error) {
	f := models.ResourceFilter{Kind: kind}
	if q.Has("domain_id") {
		id, err := ids.ParseDomainID(q.Get("domain_id"))
		if err != nil {
			return f, dErrors.New(dErrors.CodeBadRequest, "invalid domain_id filter")
		}
		f.DomainID = id
	}
	if q.Has("name") {
		if q.Get("name") == "" {
			return f, dErrors.New(dErrors.CodeBadRequest, "name filter cannot be empty")
		}
		f.Name = q.Get("name")
	}
	return f, nil
}

func required(field string) error {
	return dErrors.New(dErrors.CodeBadRequest, "'"+field+"' is a required property")
}
