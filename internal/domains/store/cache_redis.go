package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cernops/keystone/internal/domains/metrics"
	"github.com/cernops/keystone/internal/domains/models"
	"github.com/cernops/keystone/pkg/ids"
	txcontext "github.com/cernops/keystone/pkg/platform/tx"
)

const cacheKeyPrefix = "keystone:domain:"

// RedisCache is a read-through cache for FindByID in front of another store.
// Entries are dropped after the transaction that changed or removed the
// domain commits. Redis failures are logged and fall through to the inner
// store.
type RedisCache struct {
	Store
	client  redis.Cmdable
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewRedisCache(inner Store, client redis.Cmdable, ttl time.Duration, logger *slog.Logger, m *metrics.Metrics) *RedisCache {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RedisCache{Store: inner, client: client, ttl: ttl, logger: logger, metrics: m}
}

func cacheKey(id ids.DomainID) string {
	return cacheKeyPrefix + id.String()
}

func (c *RedisCache) FindByID(ctx context.Context, id ids.DomainID) (*models.Domain, error) {
	// Reads inside a transaction may see uncommitted rows.
	if _, inTx := txcontext.From(ctx); inTx {
		return c.Store.FindByID(ctx, id)
	}

	raw, err := c.client.Get(ctx, cacheKey(id)).Bytes()
	switch {
	case err == nil:
		var d models.Domain
		if jsonErr := json.Unmarshal(raw, &d); jsonErr == nil {
			c.metrics.RecordCacheLookup("hit")
			return &d, nil
		}
		c.logger.WarnContext(ctx, "discarding undecodable cached domain", "domain_id", id)
	case errors.Is(err, redis.Nil):
		c.metrics.RecordCacheLookup("miss")
	default:
		c.metrics.RecordCacheLookup("error")
		c.logger.WarnContext(ctx, "domain cache read failed", "domain_id", id, "error", err)
	}

	d, err := c.Store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if payload, err := json.Marshal(d); err == nil {
		if err := c.client.Set(ctx, cacheKey(id), payload, c.ttl).Err(); err != nil {
			c.logger.WarnContext(ctx, "domain cache write failed", "domain_id", id, "error", err)
		}
	}
	return d, nil
}

func (c *RedisCache) Execute(ctx context.Context, id ids.DomainID, validate func(*models.Domain) error, mutate func(*models.Domain)) (*models.Domain, error) {
	d, err := c.Store.Execute(ctx, id, validate, mutate)
	if err != nil {
		return nil, err
	}
	if mutate != nil {
		c.invalidateAfterCommit(ctx, id)
	}
	return d, nil
}

func (c *RedisCache) Delete(ctx context.Context, id ids.DomainID) error {
	if err := c.Store.Delete(ctx, id); err != nil {
		return err
	}
	c.invalidateAfterCommit(ctx, id)
	return nil
}

func (c *RedisCache) invalidateAfterCommit(ctx context.Context, id ids.DomainID) {
	ctx = context.WithoutCancel(ctx)
	txcontext.AfterCommit(ctx, func() {
		if err := c.client.Del(ctx, cacheKey(id)).Err(); err != nil {
			c.logger.WarnContext(ctx, "domain cache invalidation failed", "domain_id", id, "error", err)
		}
	})
}
