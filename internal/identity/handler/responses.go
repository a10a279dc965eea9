package handler

import (
	"github.com/cernops/keystone/internal/identity/models"
)

type ResourceLinks struct {
	Self string `json:"self"`
}

type CollectionLinks struct {
	Self     string  `json:"self"`
	Previous *string `json:"previous"`
	Next     *string `json:"next"`
}

// ResourceResponse never carries the password hash.
type ResourceResponse struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	DomainID    string        `json:"domain_id"`
	Description string        `json:"description"`
	Enabled     bool          `json:"enabled"`
	Email       string        `json:"email,omitempty"`
	Links       ResourceLinks `json:"links"`
}

type RoleResponse struct {
	ID    string        `json:"id"`
	Name  string        `json:"name"`
	Links ResourceLinks `json:"links"`
}

type CredentialResponse struct {
	ID     string        `json:"id"`
	UserID string        `json:"user_id"`
	Type   string        `json:"type"`
	Blob   string        `json:"blob"`
	Links  ResourceLinks `json:"links"`
}

func resourceURL(base string, r *models.Resource) string {
	return base + "/v3/" + r.Kind.Plural() + "/" + r.ID
}

func toResourceResponse(base string, r *models.Resource) ResourceResponse {
	return ResourceResponse{
		ID:          r.ID,
		Name:        r.Name,
		DomainID:    r.DomainID.String(),
		Description: r.Description,
		Enabled:     r.Enabled,
		Email:       r.Email,
		Links:       ResourceLinks{Self: resourceURL(base, r)},
	}
}

// resourceEnvelope keys a single resource by its kind, e.g. {"user": {...}}.
func resourceEnvelope(base string, r *models.Resource) map[string]ResourceResponse {
	return map[string]ResourceResponse{string(r.Kind): toResourceResponse(base, r)}
}

func resourcesEnvelope(base, self string, kind models.Kind, rs []*models.Resource) map[string]any {
	out := make([]ResourceResponse, 0, len(rs))
	for _, r := range rs {
		out = append(out, toResourceResponse(base, r))
	}
	return map[string]any{kind.Plural(): out, "links": CollectionLinks{Self: self}}
}

func roleURL(base string, r *models.Role) string {
	return base + "/v3/roles/" + r.ID.String()
}

func toRoleResponse(base string, r *models.Role) RoleResponse {
	return RoleResponse{ID: r.ID.String(), Name: r.Name, Links: ResourceLinks{Self: roleURL(base, r)}}
}

type RoleEnvelope struct {
	Role RoleResponse `json:"role"`
}

type RolesEnvelope struct {
	Roles []RoleResponse  `json:"roles"`
	Links CollectionLinks `json:"links"`
}

func toRolesEnvelope(base, self string, rs []*models.Role) RolesEnvelope {
	out := RolesEnvelope{Roles: make([]RoleResponse, 0, len(rs)), Links: CollectionLinks{Self: self}}
	for _, r := range rs {
		out.Roles = append(out.Roles, toRoleResponse(base, r))
	}
	return out
}

func credentialURL(base string, c *models.Credential) string {
	return base + "/v3/credentials/" + c.ID.String()
}

func toCredentialResponse(base string, c *models.Credential) CredentialResponse {
	return CredentialResponse{
		ID:     c.ID.String(),
		UserID: c.UserID.String(),
		Type:   c.Type,
		Blob:   c.Blob,
		Links:  ResourceLinks{Self: credentialURL(base, c)},
	}
}

type CredentialEnvelope struct {
	Credential CredentialResponse `json:"credential"`
}

type CredentialsEnvelope struct {
	Credentials []CredentialResponse `json:"credentials"`
	Links       CollectionLinks      `json:"links"`
}
