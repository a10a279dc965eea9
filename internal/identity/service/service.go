// Package service implements users, groups, projects, roles, credentials,
// memberships and role grants, and the domain purge used when a domain is
// deleted.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/cernops/keystone/internal/identity/models"
	dErrors "github.com/cernops/keystone/pkg/domainerrors"
	"github.com/cernops/keystone/pkg/email"
	"github.com/cernops/keystone/pkg/ids"
	"github.com/cernops/keystone/pkg/platform/audit"
	"github.com/cernops/keystone/pkg/platform/sentinel"
	txcontext "github.com/cernops/keystone/pkg/platform/tx"
	"github.com/cernops/keystone/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/identity-mocks.go -package=mocks Store,DomainChecker,AuditPublisher

type Store interface {
	CreateResource(ctx context.Context, r *models.Resource) error
	FindResource(ctx context.Context, kind models.Kind, id string) (*models.Resource, error)
	ListResources(ctx context.Context, filter models.ResourceFilter) ([]*models.Resource, error)
	DeleteResource(ctx context.Context, kind models.Kind, id string) (models.CascadeReport, error)

	CreateRole(ctx context.Context, r *models.Role) error
	FindRole(ctx context.Context, id ids.RoleID) (*models.Role, error)
	FindRoleByName(ctx context.Context, name string) (*models.Role, error)
	ListRoles(ctx context.Context, name string) ([]*models.Role, error)
	DeleteRole(ctx context.Context, id ids.RoleID) (int, error)

	CreateCredential(ctx context.Context, c *models.Credential) error
	FindCredential(ctx context.Context, id ids.CredentialID) (*models.Credential, error)
	ListCredentials(ctx context.Context, userID ids.UserID) ([]*models.Credential, error)
	DeleteCredential(ctx context.Context, id ids.CredentialID) error

	AddMembership(ctx context.Context, m models.Membership) error
	RemoveMembership(ctx context.Context, m models.Membership) error

	CreateGrant(ctx context.Context, g models.Grant) error
	HasGrant(ctx context.Context, g models.Grant) (bool, error)
	DeleteGrant(ctx context.Context, g models.Grant) error
	ListGrantedRoles(ctx context.Context, actor models.ActorKind, actorID string, target models.TargetKind, targetID string) ([]*models.Role, error)

	PurgeDomain(ctx context.Context, domainID ids.DomainID) (models.CascadeReport, error)
}

// DomainChecker returns a coded not_found error when the domain is absent.
type DomainChecker interface {
	CheckDomain(ctx context.Context, id ids.DomainID) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	store        Store
	domains      DomainChecker
	tx           txcontext.Runner
	publisher    AuditPublisher
	logger       *slog.Logger
	passwordCost int
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithTx(runner txcontext.Runner) Option {
	return func(s *Service) { s.tx = runner }
}

// WithPasswordCost sets the bcrypt cost for user passwords.
func WithPasswordCost(cost int) Option {
	return func(s *Service) { s.passwordCost = cost }
}

func New(store Store, domains DomainChecker, opts ...Option) *Service {
	s := &Service{
		store:        store,
		domains:      domains,
		passwordCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if s.tx == nil {
		s.tx = txcontext.NewMemoryRunner()
	}
	return s
}

// ResourceInput describes a new user, group or project. Email and Password
// apply to users only.
type ResourceInput struct {
	Kind        models.Kind
	DomainID    ids.DomainID
	Name        string
	Description string
	Enabled     bool
	Email       string
	Password    string
}

var createdEvents = map[models.Kind]audit.AuditEvent{
	models.KindUser:    audit.EventUserCreated,
	models.KindGroup:   audit.EventGroupCreated,
	models.KindProject: audit.EventProjectCreated,
}

var deletedEvents = map[models.Kind]audit.AuditEvent{
	models.KindUser:    audit.EventUserDeleted,
	models.KindGroup:   audit.EventGroupDeleted,
	models.KindProject: audit.EventProjectDeleted,
}

func (s *Service) CreateResource(ctx context.Context, in ResourceInput) (*models.Resource, error) {
	r, err := models.NewResource(in.Kind, ids.NewHex(), in.DomainID, in.Name, in.Description, in.Enabled, requestcontext.Now(ctx))
	if err != nil {
		return nil, toValidation(err)
	}
	if in.Kind == models.KindUser {
		if r.Email, err = email.Normalize(in.Email); err != nil {
			return nil, err
		}
		if in.Password != "" {
			hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.passwordCost)
			if err != nil {
				if errors.Is(err, bcrypt.ErrPasswordTooLong) {
					return nil, dErrors.New(dErrors.CodeValidation, "Password must be 72 bytes or less.")
				}
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
			}
			r.PasswordHash = string(hash)
		}
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.domains.CheckDomain(ctx, in.DomainID); err != nil {
			return err
		}
		if err := s.store.CreateResource(ctx, r); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.New(dErrors.CodeConflict, fmt.Sprintf(
					"Conflict occurred attempting to store %s - Duplicate entry found with name %s at domain ID %s.",
					r.Kind, r.Name, r.DomainID))
			}
			if errors.Is(err, sentinel.ErrReferenced) {
				return notFound("domain", in.DomainID.String())
			}
			return wrapStoreErr(err, string(r.Kind), r.ID)
		}
		return s.emit(ctx, createdEvents[r.Kind], r.ID, r.DomainID, nil)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) GetResource(ctx context.Context, kind models.Kind, id string) (*models.Resource, error) {
	r, err := s.store.FindResource(ctx, kind, id)
	if err != nil {
		return nil, wrapStoreErr(err, string(kind), id)
	}
	return r, nil
}

func (s *Service) ListResources(ctx context.Context, filter models.ResourceFilter) ([]*models.Resource, error) {
	out, err := s.store.ListResources(ctx, filter)
	if err != nil {
		return nil, wrapStoreErr(err, string(filter.Kind), "")
	}
	return out, nil
}

// DeleteResource removes a user, group or project with its credentials,
// memberships and grants.
func (s *Service) DeleteResource(ctx context.Context, kind models.Kind, id string) (models.CascadeReport, error) {
	var report models.CascadeReport
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		r, err := s.store.FindResource(ctx, kind, id)
		if err != nil {
			return wrapStoreErr(err, string(kind), id)
		}
		report, err = s.store.DeleteResource(ctx, kind, id)
		if err != nil {
			return wrapStoreErr(err, string(kind), id)
		}
		return s.emit(ctx, deletedEvents[kind], id, r.DomainID, report.Counts())
	})
	return report, err
}

func (s *Service) CreateRole(ctx context.Context, name string) (*models.Role, error) {
	return s.createRole(ctx, ids.NewRoleID(), name)
}

func (s *Service) createRole(ctx context.Context, id ids.RoleID, name string) (*models.Role, error) {
	r, err := models.NewRole(id, name, requestcontext.Now(ctx))
	if err != nil {
		return nil, toValidation(err)
	}
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.CreateRole(ctx, r); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.New(dErrors.CodeConflict, fmt.Sprintf(
					"Conflict occurred attempting to store role - Duplicate entry found with name %s.", r.Name))
			}
			return wrapStoreErr(err, "role", r.ID.String())
		}
		return s.emit(ctx, audit.EventRoleCreated, r.ID.String(), "", nil)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// EnsureRole returns the role named name, creating it with id when absent.
// An empty id generates one.
func (s *Service) EnsureRole(ctx context.Context, id ids.RoleID, name string) (*models.Role, bool, error) {
	r, err := s.store.FindRoleByName(ctx, name)
	if err == nil {
		return r, false, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, false, wrapStoreErr(err, "role", name)
	}
	if id.IsNil() {
		id = ids.NewRoleID()
	}
	r, err = s.createRole(ctx, id, name)
	if err != nil {
		return nil, false, err
	}
	return r, true, nil
}

func (s *Service) GetRole(ctx context.Context, id ids.RoleID) (*models.Role, error) {
	r, err := s.store.FindRole(ctx, id)
	if err != nil {
		return nil, wrapStoreErr(err, "role", id.String())
	}
	return r, nil
}

func (s *Service) ListRoles(ctx context.Context, name string) ([]*models.Role, error) {
	out, err := s.store.ListRoles(ctx, name)
	if err != nil {
		return nil, wrapStoreErr(err, "role", "")
	}
	return out, nil
}

func (s *Service) DeleteRole(ctx context.Context, id ids.RoleID) error {
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		removed, err := s.store.DeleteRole(ctx, id)
		if err != nil {
			return wrapStoreErr(err, "role", id.String())
		}
		return s.emit(ctx, audit.EventRoleDeleted, id.String(), "", map[string]int{"grants": removed})
	})
}

type CredentialInput struct {
	UserID ids.UserID
	Type   string
	Blob   string
}

func (s *Service) CreateCredential(ctx context.Context, in CredentialInput) (*models.Credential, error) {
	c, err := models.NewCredential(ids.NewCredentialID(), in.UserID, in.Type, in.Blob, requestcontext.Now(ctx))
	if err != nil {
		return nil, toValidation(err)
	}
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		u, err := s.store.FindResource(ctx, models.KindUser, in.UserID.String())
		if err != nil {
			return wrapStoreErr(err, "user", in.UserID.String())
		}
		if err := s.store.CreateCredential(ctx, c); err != nil {
			if errors.Is(err, sentinel.ErrReferenced) {
				return notFound("user", in.UserID.String())
			}
			return wrapStoreErr(err, "credential", c.ID.String())
		}
		return s.emit(ctx, audit.EventCredentialCreated, c.ID.String(), u.DomainID, nil)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) GetCredential(ctx context.Context, id ids.CredentialID) (*models.Credential, error) {
	c, err := s.store.FindCredential(ctx, id)
	if err != nil {
		return nil, wrapStoreErr(err, "credential", id.String())
	}
	return c, nil
}

func (s *Service) ListCredentials(ctx context.Context, userID ids.UserID) ([]*models.Credential, error) {
	out, err := s.store.ListCredentials(ctx, userID)
	if err != nil {
		return nil, wrapStoreErr(err, "credential", "")
	}
	return out, nil
}

func (s *Service) DeleteCredential(ctx context.Context, id ids.CredentialID) error {
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.DeleteCredential(ctx, id); err != nil {
			return wrapStoreErr(err, "credential", id.String())
		}
		return s.emit(ctx, audit.EventCredentialDeleted, id.String(), "", nil)
	})
}

// AddMembership puts a user in a group. Both must belong to the same domain.
func (s *Service) AddMembership(ctx context.Context, m models.Membership) error {
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		g, err := s.GetResource(ctx, models.KindGroup, m.GroupID.String())
		if err != nil {
			return err
		}
		u, err := s.GetResource(ctx, models.KindUser, m.UserID.String())
		if err != nil {
			return err
		}
		if g.DomainID != u.DomainID {
			return dErrors.New(dErrors.CodeValidation, "User and group must belong to the same domain.")
		}
		if err := s.store.AddMembership(ctx, m); err != nil {
			return wrapStoreErr(err, "membership", m.GroupID.String())
		}
		return s.emit(ctx, audit.EventMembershipAdded, m.UserID.String(), g.DomainID, nil)
	})
}

func (s *Service) RemoveMembership(ctx context.Context, m models.Membership) error {
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.RemoveMembership(ctx, m); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, fmt.Sprintf(
					"User %s is not a member of group %s.", m.UserID, m.GroupID))
			}
			return wrapStoreErr(err, "membership", m.GroupID.String())
		}
		return s.emit(ctx, audit.EventMembershipRemoved, m.UserID.String(), "", nil)
	})
}

// checkGrantParts resolves the role, actor and target of g and returns the
// domain the grant applies to.
func (s *Service) checkGrantParts(ctx context.Context, g models.Grant) (ids.DomainID, error) {
	if _, err := s.GetRole(ctx, g.RoleID); err != nil {
		return "", err
	}
	if _, err := s.GetResource(ctx, g.ActorKind.ResourceKind(), g.ActorID); err != nil {
		return "", err
	}
	return s.checkTarget(ctx, g.TargetKind, g.TargetID)
}

func (s *Service) checkTarget(ctx context.Context, kind models.TargetKind, id string) (ids.DomainID, error) {
	if kind == models.TargetDomain {
		return ids.DomainID(id), s.domains.CheckDomain(ctx, ids.DomainID(id))
	}
	p, err := s.GetResource(ctx, models.KindProject, id)
	if err != nil {
		return "", err
	}
	return p.DomainID, nil
}

// Grant assigns a role. Granting an existing assignment succeeds.
func (s *Service) Grant(ctx context.Context, g models.Grant) error {
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		domainID, err := s.checkGrantParts(ctx, g)
		if err != nil {
			return err
		}
		if err := s.store.CreateGrant(ctx, g); err != nil {
			if errors.Is(err, sentinel.ErrReferenced) {
				return notFound("role", g.RoleID.String())
			}
			return wrapStoreErr(err, "grant", g.RoleID.String())
		}
		return s.emit(ctx, audit.EventGrantCreated, g.ActorID, domainID, nil)
	})
}

// CheckGrant returns nil when g exists and a not_found error otherwise.
func (s *Service) CheckGrant(ctx context.Context, g models.Grant) error {
	if _, err := s.checkGrantParts(ctx, g); err != nil {
		return err
	}
	ok, err := s.store.HasGrant(ctx, g)
	if err != nil {
		return wrapStoreErr(err, "grant", g.RoleID.String())
	}
	if !ok {
		return grantNotFound(g)
	}
	return nil
}

func (s *Service) RevokeGrant(ctx context.Context, g models.Grant) error {
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		domainID, err := s.checkGrantParts(ctx, g)
		if err != nil {
			return err
		}
		if err := s.store.DeleteGrant(ctx, g); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return grantNotFound(g)
			}
			return wrapStoreErr(err, "grant", g.RoleID.String())
		}
		return s.emit(ctx, audit.EventGrantRevoked, g.ActorID, domainID, nil)
	})
}

// ListGrantedRoles returns the roles an actor holds on a target.
func (s *Service) ListGrantedRoles(ctx context.Context, actor models.ActorKind, actorID string, target models.TargetKind, targetID string) ([]*models.Role, error) {
	if _, err := s.GetResource(ctx, actor.ResourceKind(), actorID); err != nil {
		return nil, err
	}
	if _, err := s.checkTarget(ctx, target, targetID); err != nil {
		return nil, err
	}
	roles, err := s.store.ListGrantedRoles(ctx, actor, actorID, target, targetID)
	if err != nil {
		return nil, wrapStoreErr(err, "grant", actorID)
	}
	return roles, nil
}

// PurgeDomain deletes everything scoped to domainID. Call it inside the
// transaction that deletes the domain.
func (s *Service) PurgeDomain(ctx context.Context, domainID ids.DomainID) (models.CascadeReport, error) {
	report, err := s.store.PurgeDomain(ctx, domainID)
	if err != nil {
		return models.CascadeReport{}, err
	}
	return report, nil
}

func (s *Service) emit(ctx context.Context, event audit.AuditEvent, subject string, domainID ids.DomainID, counts map[string]int) error {
	if s.publisher == nil {
		s.logger.InfoContext(ctx, string(event), "subject", subject, "domain_id", domainID)
		return nil
	}
	err := s.publisher.Emit(ctx, audit.Event{
		Action:   string(event),
		Subject:  subject,
		DomainID: domainID.String(),
		Counts:   counts,
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit event")
	}
	return nil
}

func grantNotFound(g models.Grant) error {
	return dErrors.New(dErrors.CodeNotFound, fmt.Sprintf(
		"Could not find role assignment with role: %s, %s: %s, %s: %s.",
		g.RoleID, g.ActorKind, g.ActorID, g.TargetKind, g.TargetID))
}

func notFound(kind, id string) error {
	return dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("Could not find %s: %s.", kind, id))
}

func toValidation(err error) error {
	if err != nil && dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		return dErrors.New(dErrors.CodeValidation, dErrors.Message(err))
	}
	return err
}

func wrapStoreErr(err error, kind, id string) error {
	if _, ok := dErrors.CodeOf(err); ok {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return notFound(kind, id)
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.New(dErrors.CodeConflict, fmt.Sprintf("Conflict occurred attempting to store %s.", kind))
	case errors.Is(err, sentinel.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "The identity backend is temporarily unavailable.")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, kind+" store failure")
	}
}
