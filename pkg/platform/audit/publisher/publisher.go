// Package publisher emits audit events to a store.
//
// Compliance and security events are fail-closed: Emit blocks on the store
// write and returns its error, and the calling operation must fail with it.
// When the caller holds a transaction in the context, an outbox-backed store
// writes inside that transaction, so the event commits or rolls back with the
// change it describes. Operations events are best-effort: failures are logged
// and counted but never returned.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	audit "github.com/cernops/keystone/pkg/platform/audit"
	"github.com/cernops/keystone/pkg/requestcontext"
)

// Publisher emits audit events.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger. Every emitted event is also written as a log
// record tagged log_type=audit.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// New creates a publisher writing to store.
func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store: store,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit enriches event with request metadata and persists it.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Action == "" {
		return fmt.Errorf("audit event requires Action")
	}
	if event.Subject == "" {
		return fmt.Errorf("audit event requires Subject")
	}

	event.Category = audit.AuditEvent(event.Action).Category()
	p.enrich(ctx, &event)

	start := time.Now()
	err := p.store.Append(ctx, event)
	p.metrics.observe(time.Since(start).Seconds())

	if err != nil {
		p.metrics.incFailure(string(event.Category))
		if event.Category == audit.CategoryOperations {
			p.log(ctx, slog.LevelWarn, "audit event dropped", event, err)
			return nil
		}
		p.log(ctx, slog.LevelError, "CRITICAL: audit persistence failed", event, err)
		return fmt.Errorf("%s audit persistence failed: %w", event.Category, err)
	}

	p.metrics.incEmitted(string(event.Category))
	p.log(ctx, slog.LevelInfo, event.Action, event, nil)
	return nil
}

func (p *Publisher) enrich(ctx context.Context, event *audit.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.ActorID == "" {
		event.ActorID = requestcontext.ActorID(ctx)
	}
	if event.ClientIP == "" {
		event.ClientIP = requestcontext.ClientIP(ctx)
	}
	if event.UserAgent == "" {
		event.UserAgent = requestcontext.UserAgent(ctx)
	}
}

func (p *Publisher) log(ctx context.Context, level slog.Level, msg string, event audit.Event, err error) {
	if p.logger == nil {
		return
	}
	attrs := []any{
		"log_type", "audit",
		"category", string(event.Category),
		"action", event.Action,
		"subject", event.Subject,
	}
	if event.DomainID != "" {
		attrs = append(attrs, "domain_id", event.DomainID)
	}
	if event.ActorID != "" {
		attrs = append(attrs, "actor_id", event.ActorID)
	}
	if event.RequestID != "" {
		attrs = append(attrs, "request_id", event.RequestID)
	}
	for kind, n := range event.Counts {
		attrs = append(attrs, "purged_"+kind, n)
	}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	p.logger.Log(ctx, level, msg, attrs...)
}
