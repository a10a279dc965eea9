package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/lib/pq"

	"github.com/cernops/keystone/internal/identity/models"
	"github.com/cernops/keystone/internal/platform/postgres"
	"github.com/cernops/keystone/pkg/ids"
	"github.com/cernops/keystone/pkg/platform/sentinel"
	txcontext "github.com/cernops/keystone/pkg/platform/tx"
)

const (
	resourcesTable   = "identity_resources"
	rolesTable       = "roles"
	credentialsTable = "credentials"
	membershipsTable = "memberships"
	grantsTable      = "grants"
)

// PostgresStore persists identity tables. Cascades run in the caller's
// transaction when ctx carries one and in their own otherwise.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type resourceRow struct {
	ID           string    `db:"id"`
	Kind         string    `db:"kind"`
	DomainID     string    `db:"domain_id"`
	Name         string    `db:"name"`
	Description  string    `db:"description"`
	Enabled      bool      `db:"enabled"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r resourceRow) toModel() *models.Resource {
	return &models.Resource{
		ID:           r.ID,
		Kind:         models.Kind(r.Kind),
		DomainID:     ids.DomainID(r.DomainID),
		Name:         r.Name,
		Description:  r.Description,
		Enabled:      r.Enabled,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt,
	}
}

type roleRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
}

func (r roleRow) toModel() *models.Role {
	return &models.Role{ID: ids.RoleID(r.ID), Name: r.Name, CreatedAt: r.CreatedAt}
}

type credentialRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Type      string    `db:"type"`
	Blob      string    `db:"blob"`
	CreatedAt time.Time `db:"created_at"`
}

func (r credentialRow) toModel() *models.Credential {
	return &models.Credential{
		ID:        ids.CredentialID(r.ID),
		UserID:    ids.UserID(r.UserID),
		Type:      r.Type,
		Blob:      r.Blob,
		CreatedAt: r.CreatedAt,
	}
}

func (s *PostgresStore) qb(ctx context.Context) txcontext.Builder {
	return txcontext.QueryBuilder(ctx, s.db)
}

func (s *PostgresStore) CreateResource(ctx context.Context, r *models.Resource) error {
	if r == nil {
		return fmt.Errorf("resource is required")
	}
	_, err := s.qb(ctx).Insert(resourcesTable).Rows(resourceRow{
		ID:           r.ID,
		Kind:         string(r.Kind),
		DomainID:     r.DomainID.String(),
		Name:         r.Name,
		Description:  r.Description,
		Enabled:      r.Enabled,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt,
	}).Executor().ExecContext(ctx)
	switch {
	case err == nil:
		return nil
	case postgres.IsUniqueViolation(err):
		return sentinel.ErrAlreadyUsed
	case postgres.IsForeignKeyViolation(err):
		return sentinel.ErrReferenced
	default:
		return fmt.Errorf("insert %s: %w", r.Kind, postgres.Classify(err))
	}
}

func (s *PostgresStore) FindResource(ctx context.Context, kind models.Kind, id string) (*models.Resource, error) {
	var row resourceRow
	found, err := s.qb(ctx).From(resourcesTable).
		Where(goqu.C("id").Eq(id), goqu.C("kind").Eq(string(kind))).
		ScanStructContext(ctx, &row)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", kind, postgres.Classify(err))
	}
	if !found {
		return nil, sentinel.ErrNotFound
	}
	return row.toModel(), nil
}

func (s *PostgresStore) ListResources(ctx context.Context, filter models.ResourceFilter) ([]*models.Resource, error) {
	ds := s.qb(ctx).From(resourcesTable).Order(goqu.L("lower(name)").Asc(), goqu.C("id").Asc())
	if filter.Kind != "" {
		ds = ds.Where(goqu.C("kind").Eq(string(filter.Kind)))
	}
	if !filter.DomainID.IsNil() {
		ds = ds.Where(goqu.C("domain_id").Eq(filter.DomainID.String()))
	}
	if filter.Name != "" {
		ds = ds.Where(goqu.L("lower(name)").Eq(strings.ToLower(filter.Name)))
	}
	var rows []resourceRow
	if err := ds.ScanStructsContext(ctx, &rows); err != nil {
		return nil, fmt.Errorf("list resources: %w", postgres.Classify(err))
	}
	out := make([]*models.Resource, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (s *PostgresStore) DeleteResource(ctx context.Context, kind models.Kind, id string) (models.CascadeReport, error) {
	var report models.CascadeReport
	err := txcontext.Run(ctx, s.db, 0, func(ctx context.Context) error {
		r, err := s.FindResource(ctx, kind, id)
		if err != nil {
			return err
		}
		var users, groups, projects []string
		switch r.Kind {
		case models.KindUser:
			users = []string{r.ID}
		case models.KindGroup:
			groups = []string{r.ID}
		case models.KindProject:
			projects = []string{r.ID}
		}
		report, err = s.removeDependents(ctx, users, groups, projects, nil)
		if err != nil {
			return err
		}
		_, err = s.qb(ctx).Delete(resourcesTable).Where(goqu.C("id").Eq(id)).Executor().ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("delete %s: %w", kind, postgres.Classify(err))
		}
		return nil
	})
	return report, err
}

// removeDependents deletes grants held by users or groups, grants on
// projects or matching extraGrants, memberships of users or groups, and
// credentials of users, in that order.
func (s *PostgresStore) removeDependents(ctx context.Context, users, groups, projects []string, extraGrants exp.Expression) (models.CascadeReport, error) {
	var report models.CascadeReport
	exec := txcontext.Executor(ctx, s.db)
	actors := append(append([]string{}, users...), groups...)

	n, err := execCount(ctx, exec, `DELETE FROM grants
		WHERE (actor_id = ANY($1))
		   OR (target_kind = 'project' AND target_id = ANY($2))`,
		pq.Array(actors), pq.Array(projects))
	if err != nil {
		return report, fmt.Errorf("delete grants: %w", err)
	}
	report.Grants = n

	if extraGrants != nil {
		res, err := s.qb(ctx).Delete(grantsTable).Where(extraGrants).Executor().ExecContext(ctx)
		if err != nil {
			return report, fmt.Errorf("delete grants: %w", postgres.Classify(err))
		}
		extra, _ := res.RowsAffected()
		report.Grants += int(extra)
	}

	n, err = execCount(ctx, exec, `DELETE FROM memberships
		WHERE user_id = ANY($1) OR group_id = ANY($2)`,
		pq.Array(users), pq.Array(groups))
	if err != nil {
		return report, fmt.Errorf("delete memberships: %w", err)
	}
	report.Memberships = n

	n, err = execCount(ctx, exec, `DELETE FROM credentials WHERE user_id = ANY($1)`, pq.Array(users))
	if err != nil {
		return report, fmt.Errorf("delete credentials: %w", err)
	}
	report.Credentials = n
	return report, nil
}

func execCount(ctx context.Context, exec txcontext.DBTX, query string, args ...any) (int, error) {
	res, err := exec.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, postgres.Classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *PostgresStore) CreateRole(ctx context.Context, r *models.Role) error {
	if r == nil {
		return fmt.Errorf("role is required")
	}
	_, err := s.qb(ctx).Insert(rolesTable).
		Rows(roleRow{ID: r.ID.String(), Name: r.Name, CreatedAt: r.CreatedAt}).
		Executor().ExecContext(ctx)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert role: %w", postgres.Classify(err))
	}
	return nil
}

func (s *PostgresStore) FindRole(ctx context.Context, id ids.RoleID) (*models.Role, error) {
	return s.findRole(ctx, goqu.C("id").Eq(id.String()))
}

func (s *PostgresStore) FindRoleByName(ctx context.Context, name string) (*models.Role, error) {
	return s.findRole(ctx, goqu.L("lower(name)").Eq(strings.ToLower(name)))
}

func (s *PostgresStore) findRole(ctx context.Context, where exp.Expression) (*models.Role, error) {
	var row roleRow
	found, err := s.qb(ctx).From(rolesTable).Where(where).ScanStructContext(ctx, &row)
	if err != nil {
		return nil, fmt.Errorf("select role: %w", postgres.Classify(err))
	}
	if !found {
		return nil, sentinel.ErrNotFound
	}
	return row.toModel(), nil
}

func (s *PostgresStore) ListRoles(ctx context.Context, name string) ([]*models.Role, error) {
	ds := s.qb(ctx).From(rolesTable).Order(goqu.L("lower(name)").Asc(), goqu.C("id").Asc())
	if name != "" {
		ds = ds.Where(goqu.L("lower(name)").Eq(strings.ToLower(name)))
	}
	var rows []roleRow
	if err := ds.ScanStructsContext(ctx, &rows); err != nil {
		return nil, fmt.Errorf("list roles: %w", postgres.Classify(err))
	}
	out := make([]*models.Role, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (s *PostgresStore) DeleteRole(ctx context.Context, id ids.RoleID) (int, error) {
	var removed int
	err := txcontext.Run(ctx, s.db, 0, func(ctx context.Context) error {
		res, err := s.qb(ctx).Delete(grantsTable).Where(goqu.C("role_id").Eq(id.String())).Executor().ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("delete role grants: %w", postgres.Classify(err))
		}
		n, _ := res.RowsAffected()
		removed = int(n)
		return s.deleteOne(ctx, rolesTable, goqu.C("id").Eq(id.String()))
	})
	return removed, err
}

func (s *PostgresStore) deleteOne(ctx context.Context, table string, where ...exp.Expression) error {
	res, err := s.qb(ctx).Delete(table).Where(where...).Executor().ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, postgres.Classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CreateCredential(ctx context.Context, c *models.Credential) error {
	if c == nil {
		return fmt.Errorf("credential is required")
	}
	_, err := s.qb(ctx).Insert(credentialsTable).Rows(credentialRow{
		ID:        c.ID.String(),
		UserID:    c.UserID.String(),
		Type:      c.Type,
		Blob:      c.Blob,
		CreatedAt: c.CreatedAt,
	}).Executor().ExecContext(ctx)
	switch {
	case err == nil:
		return nil
	case postgres.IsUniqueViolation(err):
		return sentinel.ErrAlreadyUsed
	case postgres.IsForeignKeyViolation(err):
		return sentinel.ErrReferenced
	default:
		return fmt.Errorf("insert credential: %w", postgres.Classify(err))
	}
}

func (s *PostgresStore) FindCredential(ctx context.Context, id ids.CredentialID) (*models.Credential, error) {
	var row credentialRow
	found, err := s.qb(ctx).From(credentialsTable).Where(goqu.C("id").Eq(id.String())).ScanStructContext(ctx, &row)
	if err != nil {
		return nil, fmt.Errorf("select credential: %w", postgres.Classify(err))
	}
	if !found {
		return nil, sentinel.ErrNotFound
	}
	return row.toModel(), nil
}

func (s *PostgresStore) ListCredentials(ctx context.Context, userID ids.UserID) ([]*models.Credential, error) {
	ds := s.qb(ctx).From(credentialsTable).Order(goqu.C("id").Asc())
	if userID != "" {
		ds = ds.Where(goqu.C("user_id").Eq(userID.String()))
	}
	var rows []credentialRow
	if err := ds.ScanStructsContext(ctx, &rows); err != nil {
		return nil, fmt.Errorf("list credentials: %w", postgres.Classify(err))
	}
	out := make([]*models.Credential, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (s *PostgresStore) DeleteCredential(ctx context.Context, id ids.CredentialID) error {
	return s.deleteOne(ctx, credentialsTable, goqu.C("id").Eq(id.String()))
}

func (s *PostgresStore) AddMembership(ctx context.Context, m models.Membership) error {
	_, err := s.qb(ctx).Insert(membershipsTable).
		Rows(goqu.Record{"group_id": m.GroupID.String(), "user_id": m.UserID.String()}).
		OnConflict(goqu.DoNothing()).
		Executor().ExecContext(ctx)
	if err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return sentinel.ErrReferenced
		}
		return fmt.Errorf("insert membership: %w", postgres.Classify(err))
	}
	return nil
}

func (s *PostgresStore) RemoveMembership(ctx context.Context, m models.Membership) error {
	return s.deleteOne(ctx, membershipsTable,
		goqu.C("group_id").Eq(m.GroupID.String()),
		goqu.C("user_id").Eq(m.UserID.String()))
}

func grantWhere(g models.Grant) []exp.Expression {
	return []exp.Expression{
		goqu.C("role_id").Eq(g.RoleID.String()),
		goqu.C("actor_kind").Eq(string(g.ActorKind)),
		goqu.C("actor_id").Eq(g.ActorID),
		goqu.C("target_kind").Eq(string(g.TargetKind)),
		goqu.C("target_id").Eq(g.TargetID),
	}
}

func (s *PostgresStore) CreateGrant(ctx context.Context, g models.Grant) error {
	_, err := s.qb(ctx).Insert(grantsTable).
		Rows(goqu.Record{
			"role_id":     g.RoleID.String(),
			"actor_kind":  string(g.ActorKind),
			"actor_id":    g.ActorID,
			"target_kind": string(g.TargetKind),
			"target_id":   g.TargetID,
		}).
		OnConflict(goqu.DoNothing()).
		Executor().ExecContext(ctx)
	if err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return sentinel.ErrReferenced
		}
		return fmt.Errorf("insert grant: %w", postgres.Classify(err))
	}
	return nil
}

func (s *PostgresStore) HasGrant(ctx context.Context, g models.Grant) (bool, error) {
	n, err := s.qb(ctx).From(grantsTable).Where(grantWhere(g)...).CountContext(ctx)
	if err != nil {
		return false, fmt.Errorf("count grants: %w", postgres.Classify(err))
	}
	return n > 0, nil
}

func (s *PostgresStore) DeleteGrant(ctx context.Context, g models.Grant) error {
	return s.deleteOne(ctx, grantsTable, grantWhere(g)...)
}

func (s *PostgresStore) ListGrantedRoles(ctx context.Context, actor models.ActorKind, actorID string, target models.TargetKind, targetID string) ([]*models.Role, error) {
	var rows []roleRow
	err := s.qb(ctx).From(goqu.T(rolesTable).As("r")).
		Select("r.id", "r.name", "r.created_at").
		Join(goqu.T(grantsTable).As("g"), goqu.On(goqu.I("g.role_id").Eq(goqu.I("r.id")))).
		Where(
			goqu.I("g.actor_kind").Eq(string(actor)),
			goqu.I("g.actor_id").Eq(actorID),
			goqu.I("g.target_kind").Eq(string(target)),
			goqu.I("g.target_id").Eq(targetID),
		).
		Order(goqu.L("lower(r.name)").Asc(), goqu.I("r.id").Asc()).
		ScanStructsContext(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("list granted roles: %w", postgres.Classify(err))
	}
	out := make([]*models.Role, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// PurgeDomain deletes grants, memberships, credentials and then the
// resources of domainID. Grants on the domain itself are removed too.
func (s *PostgresStore) PurgeDomain(ctx context.Context, domainID ids.DomainID) (models.CascadeReport, error) {
	var report models.CascadeReport
	err := txcontext.Run(ctx, s.db, 0, func(ctx context.Context) error {
		var rows []struct {
			ID   string `db:"id"`
			Kind string `db:"kind"`
		}
		err := s.qb(ctx).From(resourcesTable).Select("id", "kind").
			Where(goqu.C("domain_id").Eq(domainID.String())).
			ForUpdate(exp.Wait).
			ScanStructsContext(ctx, &rows)
		if err != nil {
			return fmt.Errorf("select domain resources: %w", postgres.Classify(err))
		}
		var users, groups, projects []string
		for _, r := range rows {
			switch models.Kind(r.Kind) {
			case models.KindUser:
				users = append(users, r.ID)
			case models.KindGroup:
				groups = append(groups, r.ID)
			case models.KindProject:
				projects = append(projects, r.ID)
			}
		}

		report, err = s.removeDependents(ctx, users, groups, projects, goqu.And(
			goqu.C("target_kind").Eq(string(models.TargetDomain)),
			goqu.C("target_id").Eq(domainID.String()),
		))
		if err != nil {
			return err
		}
		_, err = s.qb(ctx).Delete(resourcesTable).
			Where(goqu.C("domain_id").Eq(domainID.String())).
			Executor().ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("delete domain resources: %w", postgres.Classify(err))
		}
		report.Users, report.Groups, report.Projects = len(users), len(groups), len(projects)
		return nil
	})
	return report, err
}
