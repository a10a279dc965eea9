package handler

import (
	"net/url"
	"strings"

	"github.com/cernops/keystone/internal/domains/models"
	"github.com/cernops/keystone/internal/domains/service"
	dErrors "github.com/cernops/keystone/pkg/domainerrors"
	"github.com/cernops/keystone/pkg/ids"
)

// DomainBody is the "domain" object of create and update requests.
type DomainBody struct {
	ID          *string `json:"id,omitempty"`
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Enabled     *bool   `json:"enabled,omitempty"`
}

// CreateDomainRequest is the body of POST /v3/domains.
type CreateDomainRequest struct {
	Domain *DomainBody `json:"domain"`
}

// Validate checks the request shape and returns the service input.
// Enabled defaults to true.
func (r *CreateDomainRequest) Validate() (service.CreateInput, error) {
	if r == nil || r.Domain == nil {
		return service.CreateInput{}, dErrors.New(dErrors.CodeBadRequest, "'domain' is a required property")
	}
	if r.Domain.ID != nil {
		return service.CreateInput{}, dErrors.New(dErrors.CodeBadRequest, "'id' cannot be set when creating a domain")
	}
	if r.Domain.Name == nil || strings.TrimSpace(*r.Domain.Name) == "" {
		return service.CreateInput{}, dErrors.New(dErrors.CodeBadRequest, "'name' is a required property")
	}
	in := service.CreateInput{Name: *r.Domain.Name, Enabled: true}
	if r.Domain.Description != nil {
		in.Description = *r.Domain.Description
	}
	if r.Domain.Enabled != nil {
		in.Enabled = *r.Domain.Enabled
	}
	return in, nil
}

// UpdateDomainRequest is the body of PATCH /v3/domains/{domain_id}.
type UpdateDomainRequest struct {
	Domain *DomainBody `json:"domain"`
}

// Validate checks the request against the path ID and returns the patch.
func (r *UpdateDomainRequest) Validate(pathID ids.DomainID) (models.Patch, error) {
	if r == nil || r.Domain == nil {
		return models.Patch{}, dErrors.New(dErrors.CodeBadRequest, "'domain' is a required property")
	}
	if r.Domain.ID != nil && *r.Domain.ID != pathID.String() {
		return models.Patch{}, dErrors.New(dErrors.CodeBadRequest, "Cannot change the ID of a domain")
	}
	return models.Patch{
		Name:        r.Domain.Name,
		Description: r.Domain.Description,
		Enabled:     r.Domain.Enabled,
	}, nil
}

// ParseListFilter reads the name and enabled query parameters.
func ParseListFilter(q url.Values) (models.Filter, error) {
	var f models.Filter
	if q.Has("name") {
		f.Name = q.Get("name")
		if strings.TrimSpace(f.Name) == "" {
			return f, dErrors.New(dErrors.CodeBadRequest, "Invalid value for 'name' filter")
		}
	}
	if q.Has("enabled") {
		enabled, err := parseBool(q.Get("enabled"))
		if err != nil {
			return f, err
		}
		f.Enabled = &enabled
	}
	return f, nil
}

// parseBool treats 0, false, no and off as false and any other non-empty
// value as true.
func parseBool(v string) (bool, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return false, dErrors.New(dErrors.CodeBadRequest, "Invalid value for 'enabled' filter")
	}
	switch strings.ToLower(v) {
	case "0", "false", "no", "off":
		return false, nil
	}
	return true, nil
}
