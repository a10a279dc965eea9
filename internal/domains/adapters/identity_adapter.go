package adapters

import (
	"context"

	"github.com/cernops/keystone/internal/domains/models"
	identityService "github.com/cernops/keystone/internal/identity/service"
	"github.com/cernops/keystone/pkg/ids"
)

// IdentityPurger implements service.Purger by calling the identity service
// in the caller's transaction.
type IdentityPurger struct {
	identity *identityService.Service
}

func NewIdentityPurger(identity *identityService.Service) *IdentityPurger {
	return &IdentityPurger{identity: identity}
}

func (a *IdentityPurger) PurgeDomain(ctx context.Context, id ids.DomainID) (models.PurgeReport, error) {
	r, err := a.identity.PurgeDomain(ctx, id)
	if err != nil {
		return models.PurgeReport{}, err
	}
	return models.PurgeReport{
		Users:       r.Users,
		Groups:      r.Groups,
		Projects:    r.Projects,
		Credentials: r.Credentials,
		Memberships: r.Memberships,
		Grants:      r.Grants,
	}, nil
}
