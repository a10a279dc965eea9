package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/cernops/keystone/internal/domains/models"
	"github.com/cernops/keystone/internal/platform/postgres"
	"github.com/cernops/keystone/pkg/ids"
	"github.com/cernops/keystone/pkg/platform/sentinel"
	txcontext "github.com/cernops/keystone/pkg/platform/tx"
)

const domainsTable = "domains"

// PostgresStore persists domains in PostgreSQL. Name uniqueness is enforced
// by the domains_name_key index on lower(name).
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type domainRow struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	Enabled     bool      `db:"enabled"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func toRow(d *models.Domain) domainRow {
	return domainRow{
		ID:          d.ID.String(),
		Name:        d.Name,
		Description: d.Description,
		Enabled:     d.Enabled,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

func (r domainRow) toModel() *models.Domain {
	return &models.Domain{
		ID:          ids.DomainID(r.ID),
		Name:        r.Name,
		Description: r.Description,
		Enabled:     r.Enabled,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func (s *PostgresStore) Create(ctx context.Context, d *models.Domain) error {
	if d == nil {
		return fmt.Errorf("domain is required")
	}
	_, err := txcontext.QueryBuilder(ctx, s.db).Insert(domainsTable).
		Rows(toRow(d)).
		Executor().ExecContext(ctx)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert domain: %w", postgres.Classify(err))
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id ids.DomainID) (*models.Domain, error) {
	return s.findOne(ctx, goqu.C("id").Eq(id.String()), false)
}

func (s *PostgresStore) FindByName(ctx context.Context, name string) (*models.Domain, error) {
	return s.findOne(ctx, goqu.L("lower(name)").Eq(strings.ToLower(name)), false)
}

func (s *PostgresStore) findOne(ctx context.Context, where exp.Expression, lock bool) (*models.Domain, error) {
	ds := txcontext.QueryBuilder(ctx, s.db).From(domainsTable).Where(where)
	if lock {
		ds = ds.ForUpdate(exp.Wait)
	}
	var row domainRow
	found, err := ds.ScanStructContext(ctx, &row)
	if err != nil {
		return nil, fmt.Errorf("select domain: %w", postgres.Classify(err))
	}
	if !found {
		return nil, sentinel.ErrNotFound
	}
	return row.toModel(), nil
}

func (s *PostgresStore) List(ctx context.Context, filter models.Filter, limit int) ([]*models.Domain, error) {
	ds := txcontext.QueryBuilder(ctx, s.db).From(domainsTable).
		Order(goqu.L("lower(name)").Asc(), goqu.C("id").Asc())
	if filter.Name != "" {
		ds = ds.Where(goqu.L("lower(name)").Eq(strings.ToLower(filter.Name)))
	}
	if filter.Enabled != nil {
		ds = ds.Where(goqu.C("enabled").Eq(*filter.Enabled))
	}
	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}

	var rows []domainRow
	if err := ds.ScanStructsContext(ctx, &rows); err != nil {
		return nil, fmt.Errorf("list domains: %w", postgres.Classify(err))
	}
	out := make([]*models.Domain, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// Execute locks the row with SELECT ... FOR UPDATE, validates, mutates and
// writes it back in one transaction. It joins the caller's transaction when
// ctx carries one. A nil mutate makes Execute a locked read.
func (s *PostgresStore) Execute(ctx context.Context, id ids.DomainID, validate func(*models.Domain) error, mutate func(*models.Domain)) (*models.Domain, error) {
	var result *models.Domain
	err := txcontext.Run(ctx, s.db, 0, func(ctx context.Context) error {
		d, err := s.findOne(ctx, goqu.C("id").Eq(id.String()), true)
		if err != nil {
			return err
		}
		if validate != nil {
			if err := validate(d); err != nil {
				return err
			}
		}
		result = d
		if mutate == nil {
			return nil
		}
		mutate(d)
		_, err = txcontext.QueryBuilder(ctx, s.db).Update(domainsTable).
			Set(goqu.Record{
				"name":        d.Name,
				"description": d.Description,
				"enabled":     d.Enabled,
				"updated_at":  d.UpdatedAt,
			}).
			Where(goqu.C("id").Eq(id.String())).
			Executor().ExecContext(ctx)
		if err != nil {
			if postgres.IsUniqueViolation(err, "domains_name_key") {
				return sentinel.ErrAlreadyUsed
			}
			return fmt.Errorf("update domain: %w", postgres.Classify(err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id ids.DomainID) error {
	res, err := txcontext.QueryBuilder(ctx, s.db).Delete(domainsTable).
		Where(goqu.C("id").Eq(id.String())).
		Executor().ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("delete domain: %w", postgres.Classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete domain: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
