package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cernops/keystone/internal/domains/metrics"
	"github.com/cernops/keystone/internal/domains/models"
	"github.com/cernops/keystone/pkg/ids"
	"github.com/cernops/keystone/pkg/platform/circuit"
	"github.com/cernops/keystone/pkg/platform/sentinel"
)

// Guard trips a circuit breaker on sentinel.ErrUnavailable from the inner
// store. While the circuit is open calls fail fast with ErrUnavailable.
type Guard struct {
	inner   Store
	breaker *circuit.Breaker
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewGuard(inner Store, breaker *circuit.Breaker, logger *slog.Logger, m *metrics.Metrics) *Guard {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Guard{inner: inner, breaker: breaker, logger: logger, metrics: m}
}

func guarded[T any](ctx context.Context, g *Guard, fn func() (T, error)) (T, error) {
	var zero T
	if !g.breaker.Allow() {
		return zero, fmt.Errorf("%w: circuit %s open", sentinel.ErrUnavailable, g.breaker.Name())
	}
	v, err := fn()
	if errors.Is(err, sentinel.ErrUnavailable) {
		if _, change := g.breaker.RecordFailure(); change.Opened {
			g.metrics.SetCircuitOpen(true)
			g.logger.ErrorContext(ctx, "domain store circuit opened", "circuit", g.breaker.Name(), "error", err)
		}
		return zero, err
	}
	if _, change := g.breaker.RecordSuccess(); change.Closed {
		g.metrics.SetCircuitOpen(false)
		g.logger.InfoContext(ctx, "domain store circuit closed", "circuit", g.breaker.Name())
	}
	return v, err
}

func (g *Guard) Create(ctx context.Context, d *models.Domain) error {
	_, err := guarded(ctx, g, func() (struct{}, error) {
		return struct{}{}, g.inner.Create(ctx, d)
	})
	return err
}

func (g *Guard) FindByID(ctx context.Context, id ids.DomainID) (*models.Domain, error) {
	return guarded(ctx, g, func() (*models.Domain, error) {
		return g.inner.FindByID(ctx, id)
	})
}

func (g *Guard) FindByName(ctx context.Context, name string) (*models.Domain, error) {
	return guarded(ctx, g, func() (*models.Domain, error) {
		return g.inner.FindByName(ctx, name)
	})
}

func (g *Guard) List(ctx context.Context, filter models.Filter, limit int) ([]*models.Domain, error) {
	return guarded(ctx, g, func() ([]*models.Domain, error) {
		return g.inner.List(ctx, filter, limit)
	})
}

func (g *Guard) Execute(ctx context.Context, id ids.DomainID, validate func(*models.Domain) error, mutate func(*models.Domain)) (*models.Domain, error) {
	return guarded(ctx, g, func() (*models.Domain, error) {
		return g.inner.Execute(ctx, id, validate, mutate)
	})
}

func (g *Guard) Delete(ctx context.Context, id ids.DomainID) error {
	_, err := guarded(ctx, g, func() (struct{}, error) {
		return struct{}{}, g.inner.Delete(ctx, id)
	})
	return err
}
