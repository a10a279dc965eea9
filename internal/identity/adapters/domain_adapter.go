package adapters

import (
	"context"
	"errors"
	"fmt"

	domainService "github.com/cernops/keystone/internal/domains/service"
	dErrors "github.com/cernops/keystone/pkg/domainerrors"
	"github.com/cernops/keystone/pkg/ids"
	"github.com/cernops/keystone/pkg/platform/sentinel"
)

// DomainChecker implements service.DomainChecker on top of the domain store.
// It reads the store directly so the domains service can depend on identity
// for its cascade without a construction cycle. Lookups inside a transaction
// bypass the domain cache.
type DomainChecker struct {
	domains domainService.DomainStore
}

func NewDomainChecker(domains domainService.DomainStore) *DomainChecker {
	return &DomainChecker{domains: domains}
}

func (a *DomainChecker) CheckDomain(ctx context.Context, id ids.DomainID) error {
	_, err := a.domains.FindByID(ctx, id)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("Could not find domain: %s.", id))
	case errors.Is(err, sentinel.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "The identity backend is temporarily unavailable.")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "domain lookup failed")
	}
}
