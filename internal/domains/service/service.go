package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cernops/keystone/internal/domains/metrics"
	"github.com/cernops/keystone/internal/domains/models"
	dErrors "github.com/cernops/keystone/pkg/domainerrors"
	"github.com/cernops/keystone/pkg/ids"
	"github.com/cernops/keystone/pkg/platform/audit"
	"github.com/cernops/keystone/pkg/platform/sentinel"
	txcontext "github.com/cernops/keystone/pkg/platform/tx"
	"github.com/cernops/keystone/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/domains-mocks.go -package=mocks DomainStore,Purger,AuditPublisher

type DomainStore interface {
	Create(ctx context.Context, d *models.Domain) error
	FindByID(ctx context.Context, id ids.DomainID) (*models.Domain, error)
	FindByName(ctx context.Context, name string) (*models.Domain, error)
	List(ctx context.Context, filter models.Filter, limit int) ([]*models.Domain, error)
	Execute(ctx context.Context, id ids.DomainID, validate func(*models.Domain) error, mutate func(*models.Domain)) (*models.Domain, error)
	Delete(ctx context.Context, id ids.DomainID) error
}

// Purger removes every resource scoped to a domain. It must join the
// transaction carried by ctx.
type Purger interface {
	PurgeDomain(ctx context.Context, id ids.DomainID) (models.PurgeReport, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

const tracerName = "github.com/cernops/keystone/internal/domains"

// Service orchestrates the domain lifecycle.
type Service struct {
	domains         DomainStore
	purger          Purger
	tx              txcontext.Runner
	audit           *auditEmitter
	logger          *slog.Logger
	metrics         *metrics.Metrics
	tracer          trace.Tracer
	defaultDomainID ids.DomainID
	listLimit       int
}

type config struct {
	logger          *slog.Logger
	auditPublisher  AuditPublisher
	metrics         *metrics.Metrics
	tx              txcontext.Runner
	purger          Purger
	tracer          trace.Tracer
	defaultDomainID ids.DomainID
	listLimit       int
}

type Option func(*config)

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(c *config) { c.auditPublisher = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// WithTx sets the transaction runner. Without it a MemoryRunner is used,
// which serializes mutations but cannot roll back.
func WithTx(runner txcontext.Runner) Option {
	return func(c *config) { c.tx = runner }
}

// WithPurger sets the cascade used by Delete. Without one, deleting a domain
// removes only the domain row.
func WithPurger(p Purger) Option {
	return func(c *config) { c.purger = p }
}

// WithDefaultDomainID protects id from being disabled or deleted.
func WithDefaultDomainID(id ids.DomainID) Option {
	return func(c *config) { c.defaultDomainID = id }
}

// WithListLimit caps List results. Zero means unlimited.
func WithListLimit(n int) Option {
	return func(c *config) { c.listLimit = n }
}

func WithTracer(t trace.Tracer) Option {
	return func(c *config) { c.tracer = t }
}

func New(domains DomainStore, opts ...Option) *Service {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}
	if cfg.tx == nil {
		cfg.tx = txcontext.NewMemoryRunner()
	}
	if cfg.tracer == nil {
		cfg.tracer = otel.Tracer(tracerName)
	}
	return &Service{
		domains:         domains,
		purger:          cfg.purger,
		tx:              cfg.tx,
		audit:           newAuditEmitter(cfg.logger, cfg.auditPublisher),
		logger:          cfg.logger,
		metrics:         cfg.metrics,
		tracer:          cfg.tracer,
		defaultDomainID: cfg.defaultDomainID,
		listLimit:       max(cfg.listLimit, 0),
	}
}

// CreateInput carries the client-settable fields of a new domain. An empty
// ID generates one.
type CreateInput struct {
	ID          ids.DomainID
	Name        string
	Description string
	Enabled     bool
}

func (s *Service) List(ctx context.Context, filter models.Filter) (*models.ListResult, error) {
	ctx, span := s.tracer.Start(ctx, "domains.List")
	defer span.End()

	limit := 0
	if s.listLimit > 0 {
		limit = s.listLimit + 1
	}
	domains, err := s.domains.List(ctx, filter, limit)
	if err != nil {
		return nil, s.fail(span, wrapDomainErr(err, ""))
	}
	result := &models.ListResult{Domains: domains}
	if s.listLimit > 0 && len(domains) > s.listLimit {
		result.Domains = domains[:s.listLimit]
		result.Truncated = true
	}
	span.SetAttributes(attribute.Int("domain.count", len(result.Domains)))
	return result, nil
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Domain, error) {
	ctx, span := s.tracer.Start(ctx, "domains.Create")
	defer span.End()

	id := in.ID
	if id.IsNil() {
		id = ids.NewDomainID()
	}
	span.SetAttributes(attribute.String("domain.id", id.String()))

	d, err := models.NewDomain(id, in.Name, in.Description, in.Enabled, requestcontext.Now(ctx))
	if err != nil {
		return nil, s.fail(span, toValidation(err))
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.domains.Create(txCtx, d); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.New(dErrors.CodeConflict,
					fmt.Sprintf("Conflict occurred attempting to store domain - Duplicate entry found with name %s.", d.Name))
			}
			return wrapDomainErr(err, id)
		}
		return s.audit.emit(txCtx, audit.EventDomainCreated, d, nil)
	})
	if err != nil {
		return nil, s.fail(span, err)
	}

	s.metrics.IncrementCreated()
	return d, nil
}

func (s *Service) Get(ctx context.Context, id ids.DomainID) (*models.Domain, error) {
	ctx, span := s.tracer.Start(ctx, "domains.Get",
		trace.WithAttributes(attribute.String("domain.id", id.String())))
	defer span.End()

	d, err := s.domains.FindByID(ctx, id)
	if err != nil {
		return nil, s.fail(span, wrapDomainErr(err, id))
	}
	return d, nil
}

// Update applies a partial update. Toggling enabled emits a security event;
// other changes emit domain_updated.
func (s *Service) Update(ctx context.Context, id ids.DomainID, patch models.Patch) (*models.Domain, error) {
	ctx, span := s.tracer.Start(ctx, "domains.Update",
		trace.WithAttributes(attribute.String("domain.id", id.String())))
	defer span.End()

	now := requestcontext.Now(ctx)
	var updated *models.Domain
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var wasEnabled bool
		d, err := s.domains.Execute(txCtx, id,
			func(d *models.Domain) error {
				wasEnabled = d.Enabled
				return toValidation(d.CanApply(patch, s.defaultDomainID))
			},
			func(d *models.Domain) {
				d.ApplyPatch(patch, now)
			},
		)
		if err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) && patch.Name != nil {
				return dErrors.New(dErrors.CodeConflict,
					fmt.Sprintf("Conflict occurred attempting to store domain - Duplicate entry found with name %s.", *patch.Name))
			}
			return wrapDomainErr(err, id)
		}
		updated = d

		if patch.Enabled != nil && *patch.Enabled != wasEnabled {
			event := audit.EventDomainEnabled
			if !*patch.Enabled {
				event = audit.EventDomainDisabled
			}
			if err := s.audit.emit(txCtx, event, d, nil); err != nil {
				return err
			}
		}
		if patch.Name != nil || patch.Description != nil {
			return s.audit.emit(txCtx, audit.EventDomainUpdated, d, nil)
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(span, err)
	}
	return updated, nil
}

// Delete removes a disabled domain and everything scoped to it in one
// transaction. The compliance audit event is written in the same
// transaction, so a failed write rolls the deletion back.
func (s *Service) Delete(ctx context.Context, id ids.DomainID) error {
	ctx, span := s.tracer.Start(ctx, "domains.Delete",
		trace.WithAttributes(attribute.String("domain.id", id.String())))
	defer span.End()

	start := time.Now()
	var report models.PurgeReport
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		d, err := s.domains.Execute(txCtx, id,
			func(d *models.Domain) error {
				return d.CanDelete(s.defaultDomainID)
			},
			nil,
		)
		if err != nil {
			return wrapDomainErr(err, id)
		}

		if s.purger != nil {
			report, err = s.purger.PurgeDomain(txCtx, id)
			if err != nil {
				return wrapDomainErr(err, id)
			}
		}
		if err := s.domains.Delete(txCtx, id); err != nil {
			return wrapDomainErr(err, id)
		}
		return s.audit.emit(txCtx, audit.EventDomainDeleted, d, report.Counts())
	})
	if err != nil {
		return s.fail(span, err)
	}

	counts := report.Counts()
	s.metrics.ObserveDelete(start, counts)
	span.SetAttributes(attribute.Int("domain.purged", report.Total()))
	s.logger.InfoContext(ctx, "domain deleted",
		"domain_id", id,
		"request_id", requestcontext.RequestID(ctx),
		"purged_users", report.Users,
		"purged_groups", report.Groups,
		"purged_projects", report.Projects,
		"purged_credentials", report.Credentials,
		"purged_grants", report.Grants,
	)
	return nil
}

// EnsureDomain returns the domain with id, creating it when absent. The
// boolean reports whether it was created.
func (s *Service) EnsureDomain(ctx context.Context, in CreateInput) (*models.Domain, bool, error) {
	d, err := s.domains.FindByID(ctx, in.ID)
	if err == nil {
		return d, false, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, false, wrapDomainErr(err, in.ID)
	}
	d, err = s.Create(ctx, in)
	if err != nil {
		return nil, false, err
	}
	return d, true, nil
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func toValidation(err error) error {
	if err != nil && dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		return dErrors.New(dErrors.CodeValidation, dErrors.Message(err))
	}
	return err
}

// wrapDomainErr maps store errors to coded errors. Coded errors raised by
// validation callbacks pass through unchanged.
func wrapDomainErr(err error, id ids.DomainID) error {
	if _, ok := dErrors.CodeOf(err); ok {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("Could not find domain: %s.", id))
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.New(dErrors.CodeConflict, "Conflict occurred attempting to store domain.")
	case errors.Is(err, sentinel.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "The identity backend is temporarily unavailable.")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "domain store failure")
	}
}
