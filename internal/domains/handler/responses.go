package handler

import (
	"github.com/cernops/keystone/internal/domains/models"
)

type ResourceLinks struct {
	Self string `json:"self"`
}

// CollectionLinks always carries previous and next, which are null because
// listings are not paginated.
type CollectionLinks struct {
	Self     string  `json:"self"`
	Previous *string `json:"previous"`
	Next     *string `json:"next"`
}

type DomainResponse struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Enabled     bool          `json:"enabled"`
	Links       ResourceLinks `json:"links"`
}

type DomainEnvelope struct {
	Domain DomainResponse `json:"domain"`
}

type DomainsEnvelope struct {
	Domains   []DomainResponse `json:"domains"`
	Links     CollectionLinks  `json:"links"`
	Truncated bool             `json:"truncated,omitempty"`
}

func domainURL(baseURL string, d *models.Domain) string {
	return baseURL + "/v3/domains/" + d.ID.String()
}

func toDomainResponse(baseURL string, d *models.Domain) DomainResponse {
	return DomainResponse{
		ID:          d.ID.String(),
		Name:        d.Name,
		Description: d.Description,
		Enabled:     d.Enabled,
		Links:       ResourceLinks{Self: domainURL(baseURL, d)},
	}
}

func toDomainsEnvelope(baseURL, self string, res *models.ListResult) DomainsEnvelope {
	out := DomainsEnvelope{
		Domains:   make([]DomainResponse, 0, len(res.Domains)),
		Links:     CollectionLinks{Self: self},
		Truncated: res.Truncated,
	}
	for _, d := range res.Domains {
		out.Domains = append(out.Domains, toDomainResponse(baseURL, d))
	}
	return out
}
