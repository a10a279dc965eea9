package service

import (
	"context"
	"log/slog"

	"github.com/cernops/keystone/internal/domains/models"
	dErrors "github.com/cernops/keystone/pkg/domainerrors"
	"github.com/cernops/keystone/pkg/platform/audit"
)

type auditEmitter struct {
	logger    *slog.Logger
	publisher AuditPublisher
}

func newAuditEmitter(logger *slog.Logger, publisher AuditPublisher) *auditEmitter {
	return &auditEmitter{logger: logger, publisher: publisher}
}

// emit publishes event for d. Fail-closed categories surface as internal
// errors so the surrounding transaction rolls back.
func (e *auditEmitter) emit(ctx context.Context, event audit.AuditEvent, d *models.Domain, counts map[string]int) error {
	if e.publisher == nil {
		e.logger.InfoContext(ctx, string(event), "domain_id", d.ID, "counts", counts)
		return nil
	}
	err := e.publisher.Emit(ctx, audit.Event{
		Action:   string(event),
		Subject:  d.ID.String(),
		DomainID: d.ID.String(),
		Counts:   counts,
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit event")
	}
	return nil
}
