package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/lib/pq"

	audit "github.com/cernops/keystone/pkg/platform/audit"
	txcontext "github.com/cernops/keystone/pkg/platform/tx"
)

const outboxTable = "outbox"

// Store implements audit.Store using the transactional outbox pattern.
// Events are written to the outbox table and published to Kafka by the
// outbox worker.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store that writes to the outbox.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// outboxPayload is the JSON structure published to Kafka.
type outboxPayload struct {
	ID        string         `json:"id"`
	Category  string         `json:"category"`
	Timestamp string         `json:"timestamp"`
	Action    string         `json:"action"`
	Subject   string         `json:"subject"`
	DomainID  string         `json:"domain_id,omitempty"`
	ActorID   string         `json:"actor_id,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Counts    map[string]int `json:"counts,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	ClientIP  string         `json:"client_ip,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
}

type outboxRow struct {
	ID            string     `db:"id"`
	AggregateType string     `db:"aggregate_type"`
	AggregateID   string     `db:"aggregate_id"`
	EventType     string     `db:"event_type"`
	Payload       []byte     `db:"payload"`
	CreatedAt     time.Time  `db:"created_at"`
	PublishedAt   *time.Time `db:"published_at" goqu:"skipinsert"`
}

// Append writes an audit event to the outbox table. When ctx carries a
// transaction the row is written inside it.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := uuid.New()
	category := audit.AuditEvent(event.Action).Category()

	payload, err := json.Marshal(outboxPayload{
		ID:        eventID.String(),
		Category:  string(category),
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
		Action:    event.Action,
		Subject:   event.Subject,
		DomainID:  event.DomainID,
		ActorID:   event.ActorID,
		Reason:    event.Reason,
		Counts:    event.Counts,
		RequestID: event.RequestID,
		ClientIP:  event.ClientIP,
		UserAgent: event.UserAgent,
	})
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	aggregateType, aggregateID := "audit", eventID.String()
	if event.DomainID != "" {
		aggregateType, aggregateID = "domain", event.DomainID
	}

	_, err = txcontext.QueryBuilder(ctx, s.db).Insert(outboxTable).Rows(outboxRow{
		ID:            eventID.String(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     event.Action,
		Payload:       payload,
		CreatedAt:     time.Now().UTC(),
	}).Executor().ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// Claim locks up to limit unpublished entries, hands them to fn and marks
// the ones fn reports as delivered. Rows locked by a concurrent worker are
// skipped. Entries fn does not return stay pending for the next poll.
func (s *Store) Claim(ctx context.Context, limit uint, fn func(ctx context.Context, entries []audit.OutboxEntry) ([]string, error)) (int, error) {
	var published int
	err := txcontext.Run(ctx, s.db, 0, func(ctx context.Context) error {
		var rows []outboxRow
		err := txcontext.QueryBuilder(ctx, s.db).From(outboxTable).
			Where(goqu.I("published_at").IsNull()).
			Order(goqu.I("created_at").Asc()).
			Limit(limit).
			ForUpdate(exp.SkipLocked).
			Executor().ScanStructsContext(ctx, &rows)
		if err != nil {
			return fmt.Errorf("select outbox entries: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}

		entries := make([]audit.OutboxEntry, 0, len(rows))
		for _, r := range rows {
			entries = append(entries, audit.OutboxEntry{
				ID:          r.ID,
				AggregateID: r.AggregateID,
				EventType:   r.EventType,
				Payload:     r.Payload,
				CreatedAt:   r.CreatedAt,
			})
		}

		delivered, deliverErr := fn(ctx, entries)
		if len(delivered) > 0 {
			if err := s.markPublished(ctx, delivered); err != nil {
				return err
			}
			published = len(delivered)
		}
		if deliverErr != nil && published == 0 {
			return deliverErr
		}
		return nil
	})
	return published, err
}

func (s *Store) markPublished(ctx context.Context, ids []string) error {
	query := `UPDATE outbox SET published_at = now() WHERE id = ANY($1::uuid[])`
	if _, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("mark outbox entries published: %w", err)
	}
	return nil
}

// Pending returns the number of unpublished outbox entries.
func (s *Store) Pending(ctx context.Context) (int, error) {
	var n int
	found, err := txcontext.QueryBuilder(ctx, s.db).From(outboxTable).
		Select(goqu.COUNT("*")).
		Where(goqu.I("published_at").IsNull()).
		Executor().ScanValContext(ctx, &n)
	if err != nil {
		return 0, fmt.Errorf("count pending outbox entries: %w", err)
	}
	if !found {
		return 0, nil
	}
	return n, nil
}

// Purge removes published entries older than before.
func (s *Store) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := txcontext.QueryBuilder(ctx, s.db).Delete(outboxTable).
		Where(
			goqu.I("published_at").IsNotNull(),
			goqu.I("published_at").Lt(before),
		).Executor().ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("purge outbox entries: %w", err)
	}
	return res.RowsAffected()
}
