// Package store persists users, groups, projects, roles, credentials,
// memberships and grants.
package store

import (
	"context"

	"github.com/cernops/keystone/internal/identity/models"
	"github.com/cernops/keystone/pkg/ids"
)

// Store is implemented by InMemory and PostgresStore. Cascading deletes
// report how many dependent rows they removed.
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

var (
	_ Store = (*InMemory)(nil)
	_ Store = (*PostgresStore)(nil)
)
