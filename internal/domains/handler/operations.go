package handler

import (
	"net/http"

	"github.com/cernops/keystone/internal/auth"
)

// Operation documents one route of the Domains API. Register builds the
// router from this table and the OpenAPI document is checked against it.
type Operation struct {
	Name    string
	Method  string
	Pattern string
	Success int
	Errors  []int
	Access  auth.Access
}

const (
	OpListDomains  = "list_domains"
	OpCreateDomain = "create_domain"
	OpShowDomain   = "show_domain"
	OpUpdateDomain = "update_domain"
	OpDeleteDomain = "delete_domain"
)

var Operations = []Operation{
	{
		Name:    OpListDomains,
		Method:  http.MethodGet,
		Pattern: "/v3/domains",
		Success: http.StatusOK,
		Errors:  []int{400, 401, 403, 404, 405, 413, 503},
		Access:  auth.Read,
	},
	{
		Name:    OpCreateDomain,
		Method:  http.MethodPost,
		Pattern: "/v3/domains",
		Success: http.StatusCreated,
		Errors:  []int{400, 401, 403, 404, 405, 409, 413, 415, 503},
		Access:  auth.Write,
	},
	{
		Name:    OpShowDomain,
		Method:  http.MethodGet,
		Pattern: "/v3/domains/{domain_id}",
		Success: http.StatusOK,
		Errors:  []int{400, 401, 403, 404, 405, 413, 503},
		Access:  auth.Read,
	},
	{
		Name:    OpUpdateDomain,
		Method:  http.MethodPatch,
		Pattern: "/v3/domains/{domain_id}",
		Success: http.StatusOK,
		Errors:  []int{400, 401, 403, 404, 405, 409, 413, 415, 503},
		Access:  auth.Write,
	},
	{
		Name:    OpDeleteDomain,
		Method:  http.MethodDelete,
		Pattern: "/v3/domains/{domain_id}",
		Success: http.StatusNoContent,
		Errors:  []int{400, 401, 403, 404, 405, 409, 413, 415, 503},
		Access:  auth.Write,
	},
}
