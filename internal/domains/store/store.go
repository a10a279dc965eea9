package store

import (
	"context"

	"github.com/cernops/keystone/internal/domains/models"
	"github.com/cernops/keystone/pkg/ids"
)

// Store is implemented by every domain store and decorator.
type Store interface {
	Create(ctx context.Context, d *models.Domain) error
	FindByID(ctx context.Context, id ids.DomainID) (*models.Domain, error)
	FindByName(ctx context.Context, name string) (*models.Domain, error)
	List(ctx context.Context, filter models.Filter, limit int) ([]*models.Domain, error)
	Execute(ctx context.Context, id ids.DomainID, validate func(*models.Domain) error, mutate func(*models.Domain)) (*models.Domain, error)
	Delete(ctx context.Context, id ids.DomainID) error
}

var (
	_ Store = (*InMemory)(nil)
	_ Store = (*PostgresStore)(nil)
	_ Store = (*RedisCache)(nil)
	_ Store = (*Guard)(nil)
)
