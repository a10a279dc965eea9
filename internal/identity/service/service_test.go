package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"

	"github.com/cernops/keystone/internal/identity/models"
	"github.com/cernops/keystone/internal/identity/service/mocks"
	"github.com/cernops/keystone/internal/identity/store"
	dErrors "github.com/cernops/keystone/pkg/domainerrors"
	"github.com/cernops/keystone/pkg/ids"
	"github.com/cernops/keystone/pkg/platform/audit"
	"github.com/cernops/keystone/pkg/platform/audit/publisher"
	auditmemory "github.com/cernops/keystone/pkg/platform/audit/store/memory"
	"github.com/cernops/keystone/pkg/platform/sentinel"
	"github.com/cernops/keystone/pkg/requestcontext"
)

// knownDomains accepts the listed domain IDs.
type knownDomains map[ids.DomainID]bool

func (k knownDomains) CheckDomain(_ context.Context, id ids.DomainID) error {
	if !k[id] {
		return dErrors.New(dErrors.CodeNotFound, "Could not find domain: "+id.String()+".")
	}
	return nil
}

type ServiceSuite struct {
	suite.Suite
	ctx        context.Context
	store      *store.InMemory
	auditStore *auditmemory.InMemoryStore
	service    *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	s.store = store.NewInMemory()
	s.auditStore = auditmemory.NewInMemoryStore()
	s.service = New(s.store, knownDomains{"d1": true, "d2": true},
		WithAuditPublisher(publisher.New(s.auditStore)),
		WithPasswordCost(bcrypt.MinCost),
	)
}

func (s *ServiceSuite) create(kind models.Kind, domain ids.DomainID, name string) *models.Resource {
	r, err := s.service.CreateResource(s.ctx, ResourceInput{Kind: kind, DomainID: domain, Name: name, Enabled: true})
	s.Require().NoError(err)
	return r
}

func (s *ServiceSuite) requireCode(err error, code dErrors.Code) {
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, code), "want %s, got %v", code, err)
}

func (s *ServiceSuite) TestCreateResource() {
	s.Run("same user name in two domains", func() {
		a := s.create(models.KindUser, "d1", "alice")
		b := s.create(models.KindUser, "d2", "alice")
		s.NotEqual(a.ID, b.ID)
		s.Len(a.ID, 32)
	})

	s.Run("same user name twice in one domain conflicts", func() {
		_, err := s.service.CreateResource(s.ctx, ResourceInput{Kind: models.KindUser, DomainID: "d1", Name: "Alice"})
		s.requireCode(err, dErrors.CodeConflict)
		s.Contains(dErrors.Message(err), "at domain ID d1")
	})

	s.Run("project and group names are scoped the same way", func() {
		s.create(models.KindProject, "d1", "web")
		s.create(models.KindProject, "d2", "web")
		s.create(models.KindGroup, "d1", "web")
		_, err := s.service.CreateResource(s.ctx, ResourceInput{Kind: models.KindProject, DomainID: "d1", Name: "WEB"})
		s.requireCode(err, dErrors.CodeConflict)
	})

	s.Run("unknown domain", func() {
		_, err := s.service.CreateResource(s.ctx, ResourceInput{Kind: models.KindGroup, DomainID: "nope", Name: "g"})
		s.requireCode(err, dErrors.CodeNotFound)
	})

	s.Run("blank name", func() {
		_, err := s.service.CreateResource(s.ctx, ResourceInput{Kind: models.KindGroup, DomainID: "d1", Name: "  "})
		s.requireCode(err, dErrors.CodeValidation)
	})

	s.Run("emits created events", func() {
		s.Len(s.auditStore.ListByAction(s.ctx, audit.EventUserCreated), 2)
		s.Len(s.auditStore.ListByAction(s.ctx, audit.EventProjectCreated), 2)
	})
}

func (s *ServiceSuite) TestPasswordsAreHashed() {
	u, err := s.service.CreateResource(s.ctx, ResourceInput{
		Kind: models.KindUser, DomainID: "d1", Name: "bob", Password: "s3cret", Email: "bob@example.org",
	})
	s.Require().NoError(err)
	s.NotEqual("s3cret", u.PasswordHash)
	s.NoError(bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("s3cret")))
	s.Equal("bob@example.org", u.Email)

	p, err := s.service.CreateResource(s.ctx, ResourceInput{
		Kind: models.KindProject, DomainID: "d1", Name: "p", Password: "ignored",
	})
	s.Require().NoError(err)
	s.Empty(p.PasswordHash)

	_, err = s.service.CreateResource(s.ctx, ResourceInput{
		Kind: models.KindUser, DomainID: "d1", Name: "long", Password: string(make([]byte, 80)),
	})
	s.requireCode(err, dErrors.CodeValidation)
}

func (s *ServiceSuite) TestGetAndDeleteResource() {
	u := s.create(models.KindUser, "d1", "carol")

	_, err := s.service.GetResource(s.ctx, models.KindGroup, u.ID)
	s.requireCode(err, dErrors.CodeNotFound)

	c, err := s.service.CreateCredential(s.ctx, CredentialInput{UserID: ids.UserID(u.ID), Type: "ec2", Blob: `{"access":"a"}`})
	s.Require().NoError(err)

	report, err := s.service.DeleteResource(s.ctx, models.KindUser, u.ID)
	s.Require().NoError(err)
	s.Equal(1, report.Credentials)

	_, err = s.service.GetCredential(s.ctx, c.ID)
	s.requireCode(err, dErrors.CodeNotFound)

	events := s.auditStore.ListByAction(s.ctx, audit.EventUserDeleted)
	s.Require().Len(events, 1)
	s.Equal("d1", events[0].DomainID)
	s.Equal(1, events[0].Counts["credentials"])

	_, err = s.service.DeleteResource(s.ctx, models.KindUser, u.ID)
	s.requireCode(err, dErrors.CodeNotFound)
}

func (s *ServiceSuite) TestRoles() {
	r, err := s.service.CreateRole(s.ctx, "admin")
	s.Require().NoError(err)

	_, err = s.service.CreateRole(s.ctx, "ADMIN")
	s.requireCode(err, dErrors.CodeConflict)
	s.Contains(dErrors.Message(err), "Duplicate entry found with name ADMIN")

	existing, created, err := s.service.EnsureRole(s.ctx, "", "admin")
	s.Require().NoError(err)
	s.False(created)
	s.Equal(r.ID, existing.ID)

	seeded, created, err := s.service.EnsureRole(s.ctx, "reader-role", "reader")
	s.Require().NoError(err)
	s.True(created)
	s.Equal(ids.RoleID("reader-role"), seeded.ID)

	roles, err := s.service.ListRoles(s.ctx, "")
	s.Require().NoError(err)
	s.Len(roles, 2)

	s.Require().NoError(s.service.DeleteRole(s.ctx, r.ID))
	s.requireCode(s.service.DeleteRole(s.ctx, r.ID), dErrors.CodeNotFound)
}

func (s *ServiceSuite) TestCredentials() {
	u := s.create(models.KindUser, "d1", "dave")

	_, err := s.service.CreateCredential(s.ctx, CredentialInput{UserID: "missing", Type: "ec2", Blob: "x"})
	s.requireCode(err, dErrors.CodeNotFound)

	_, err = s.service.CreateCredential(s.ctx, CredentialInput{UserID: ids.UserID(u.ID), Type: "", Blob: "x"})
	s.requireCode(err, dErrors.CodeValidation)

	c, err := s.service.CreateCredential(s.ctx, CredentialInput{UserID: ids.UserID(u.ID), Type: "totp", Blob: "seed"})
	s.Require().NoError(err)

	list, err := s.service.ListCredentials(s.ctx, ids.UserID(u.ID))
	s.Require().NoError(err)
	s.Len(list, 1)

	s.Require().NoError(s.service.DeleteCredential(s.ctx, c.ID))
	s.requireCode(s.service.DeleteCredential(s.ctx, c.ID), dErrors.CodeNotFound)
}

func (s *ServiceSuite) TestMemberships() {
	u := s.create(models.KindUser, "d1", "erin")
	g := s.create(models.KindGroup, "d1", "ops")
	foreign := s.create(models.KindGroup, "d2", "ops")

	m := models.Membership{GroupID: ids.GroupID(g.ID), UserID: ids.UserID(u.ID)}
	s.Require().NoError(s.service.AddMembership(s.ctx, m))
	s.Require().NoError(s.service.AddMembership(s.ctx, m))

	err := s.service.AddMembership(s.ctx, models.Membership{GroupID: ids.GroupID(foreign.ID), UserID: ids.UserID(u.ID)})
	s.requireCode(err, dErrors.CodeValidation)

	err = s.service.AddMembership(s.ctx, models.Membership{GroupID: "missing", UserID: ids.UserID(u.ID)})
	s.requireCode(err, dErrors.CodeNotFound)

	s.Require().NoError(s.service.RemoveMembership(s.ctx, m))
	s.requireCode(s.service.RemoveMembership(s.ctx, m), dErrors.CodeNotFound)
}

func (s *ServiceSuite) TestGrants() {
	u := s.create(models.KindUser, "d1", "frank")
	p := s.create(models.KindProject, "d1", "web")
	role, err := s.service.CreateRole(s.ctx, "member")
	s.Require().NoError(err)

	onDomain := models.Grant{RoleID: role.ID, ActorKind: models.ActorUser, ActorID: u.ID, TargetKind: models.TargetDomain, TargetID: "d1"}
	onProject := models.Grant{RoleID: role.ID, ActorKind: models.ActorUser, ActorID: u.ID, TargetKind: models.TargetProject, TargetID: p.ID}

	s.requireCode(s.service.CheckGrant(s.ctx, onDomain), dErrors.CodeNotFound)
	s.Require().NoError(s.service.Grant(s.ctx, onDomain))
	s.Require().NoError(s.service.Grant(s.ctx, onProject))
	s.NoError(s.service.CheckGrant(s.ctx, onDomain))

	roles, err := s.service.ListGrantedRoles(s.ctx, models.ActorUser, u.ID, models.TargetDomain, "d1")
	s.Require().NoError(err)
	s.Require().Len(roles, 1)
	s.Equal("member", roles[0].Name)

	s.Run("missing parts are not found", func() {
		bad := onDomain
		bad.TargetID = "nope"
		s.requireCode(s.service.Grant(s.ctx, bad), dErrors.CodeNotFound)

		bad = onDomain
		bad.RoleID = "nope"
		s.requireCode(s.service.Grant(s.ctx, bad), dErrors.CodeNotFound)

		bad = onDomain
		bad.ActorKind = models.ActorGroup
		s.requireCode(s.service.Grant(s.ctx, bad), dErrors.CodeNotFound)
	})

	s.Require().NoError(s.service.RevokeGrant(s.ctx, onDomain))
	s.requireCode(s.service.RevokeGrant(s.ctx, onDomain), dErrors.CodeNotFound)

	report, err := s.service.DeleteResource(s.ctx, models.KindProject, p.ID)
	s.Require().NoError(err)
	s.Equal(1, report.Grants)

	s.Len(s.auditStore.ListByAction(s.ctx, audit.EventGrantCreated), 2)
	s.Len(s.auditStore.ListByAction(s.ctx, audit.EventGrantRevoked), 1)
}

func (s *ServiceSuite) TestPurgeDomain() {
	s.create(models.KindUser, "d1", "gina")
	s.create(models.KindGroup, "d1", "ops")
	kept := s.create(models.KindUser, "d2", "gina")

	report, err := s.service.PurgeDomain(s.ctx, "d1")
	s.Require().NoError(err)
	s.Equal(1, report.Users)
	s.Equal(1, report.Groups)

	left, err := s.service.ListResources(s.ctx, models.ResourceFilter{})
	s.Require().NoError(err)
	s.Require().Len(left, 1)
	s.Equal(kept.ID, left[0].ID)
}

func (s *ServiceSuite) TestAuditFailureRollsBackCompliance() {
	u := s.create(models.KindUser, "d1", "hank")
	s.auditStore.FailWith(errors.New("audit down"))

	_, err := s.service.DeleteResource(s.ctx, models.KindUser, u.ID)
	s.requireCode(err, dErrors.CodeInternal)
}

func TestService_StoreErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code dErrors.Code
	}{
		{"not found", sentinel.ErrNotFound, dErrors.CodeNotFound},
		{"unavailable", sentinel.ErrUnavailable, dErrors.CodeUnavailable},
		{"deadline", context.DeadlineExceeded, dErrors.CodeUnavailable},
		{"unexpected", errors.New("boom"), dErrors.CodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			st := mocks.NewMockStore(ctrl)
			st.EXPECT().FindRole(gomock.Any(), ids.RoleID("r1")).Return(nil, tc.err)

			svc := New(st, mocks.NewMockDomainChecker(ctrl))
			_, err := svc.GetRole(context.Background(), "r1")
			if !dErrors.HasCode(err, tc.code) {
				t.Fatalf("want %s, got %v", tc.code, err)
			}
		})
	}
}

func TestService_CreateChecksDomainInTransaction(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)
	domains := mocks.NewMockDomainChecker(ctrl)
	pub := mocks.NewMockAuditPublisher(ctrl)

	gomock.InOrder(
		domains.EXPECT().CheckDomain(gomock.Any(), ids.DomainID("d1")).Return(nil),
		st.EXPECT().CreateResource(gomock.Any(), gomock.Any()).Return(sentinel.ErrReferenced),
	)

	svc := New(st, domains, WithAuditPublisher(pub))
	_, err := svc.CreateResource(context.Background(), ResourceInput{Kind: models.KindGroup, DomainID: "d1", Name: "g"})
	if !dErrors.HasCode(err, dErrors.CodeNotFound) {
		t.Fatalf("want not_found, got %v", err)
	}
}
