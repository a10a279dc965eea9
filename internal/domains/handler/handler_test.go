package handler

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/cernops/keystone/internal/auth"
	"github.com/cernops/keystone/internal/domains/handler/mocks"
	"github.com/cernops/keystone/internal/domains/models"
	"github.com/cernops/keystone/internal/domains/service"
	"github.com/cernops/keystone/internal/platform/middleware"
	dErrors "github.com/cernops/keystone/pkg/domainerrors"
	"github.com/cernops/keystone/pkg/ids"
	"github.com/cernops/keystone/pkg/platform/sentinel"
	"github.com/cernops/keystone/pkg/requestcontext"
	"github.com/cernops/keystone/pkg/testutil"
)

const (
	baseURL      = "https://identity.example.com"
	maxBodyBytes = 1024
)

var (
	admin  = requestcontext.Caller{UserID: "admin-1", Roles: []string{auth.RoleAdmin}}
	reader = requestcontext.Caller{UserID: "reader-1", Roles: []string{auth.RoleReader}}
)

type DomainHandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	service *mocks.MockService
	router  http.Handler
}

func TestDomainHandlerSuite(t *testing.T) {
	suite.Run(t, new(DomainHandlerSuite))
}

func (s *DomainHandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	r := chi.NewRouter()
	r.NotFound(middleware.NotFound)
	r.MethodNotAllowed(middleware.MethodNotAllowed)
	r.Use(middleware.MaxBody(maxBodyBytes))
	r.Use(middleware.RequireJSON)
	New(s.service, logger, baseURL).Register(r)
	s.router = r
}

func (s *DomainHandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *DomainHandlerSuite) do(req *http.Request, caller *requestcontext.Caller) *httptest.ResponseRecorder {
	if caller != nil {
		req = testutil.WithCaller(req, *caller)
	}
	return testutil.DoRequest(s.router, req)
}

func sampleDomain(id string, enabled bool) *models.Domain {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return &models.Domain{ID: ids.DomainID(id), Name: "Domain " + id, Description: "desc", Enabled: enabled, CreatedAt: now, UpdatedAt: now}
}

func (s *DomainHandlerSuite) TestList() {
	s.Run("returns domains with collection links", func() {
		s.service.EXPECT().List(gomock.Any(), models.Filter{}).Return(&models.ListResult{
			Domains: []*models.Domain{sampleDomain("d1", true), sampleDomain("d2", false)},
		}, nil)

		res := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/v3/domains"), &reader)
		testutil.AssertStatus(s.T(), res, http.StatusOK)

		body := testutil.UnmarshalResponse[map[string]any](s.T(), res)
		domains := (*body)["domains"].([]any)
		s.Len(domains, 2)
		first := domains[0].(map[string]any)
		s.Equal("d1", first["id"])
		s.Equal(baseURL+"/v3/domains/d1", first["links"].(map[string]any)["self"])

		links := (*body)["links"].(map[string]any)
		s.Equal(baseURL+"/v3/domains", links["self"])
		s.Contains(links, "previous")
		s.Nil(links["previous"])
		s.Nil(links["next"])
		s.NotContains(*body, "truncated")
	})

	s.Run("passes filters and reports truncation", func() {
		disabled := false
		s.service.EXPECT().List(gomock.Any(), models.Filter{Name: "acme", Enabled: &disabled}).
			Return(&models.ListResult{Domains: []*models.Domain{sampleDomain("d3", false)}, Truncated: true}, nil)

		res := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/v3/domains?name=acme&enabled=off"), &admin)
		testutil.AssertStatus(s.T(), res, http.StatusOK)
		body := testutil.UnmarshalResponse[DomainsEnvelope](s.T(), res)
		s.True(body.Truncated)
		s.Equal(baseURL+"/v3/domains?name=acme&enabled=off", body.Links.Self)
	})

	s.Run("empty enabled filter is a bad request", func() {
		res := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/v3/domains?enabled="), &admin)
		testutil.AssertErrorStatus(s.T(), res, http.StatusBadRequest)
	})

	s.Run("unauthenticated", func() {
		res := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/v3/domains"), nil)
		testutil.AssertErrorStatus(s.T(), res, http.StatusUnauthorized)
	})

	s.Run("backend unavailable", func() {
		s.service.EXPECT().List(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.Wrap(sentinel.ErrUnavailable, dErrors.CodeUnavailable, "The identity backend is temporarily unavailable."))
		res := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/v3/domains"), &admin)
		testutil.AssertErrorStatus(s.T(), res, http.StatusServiceUnavailable)
	})
}

func (s *DomainHandlerSuite) TestCreate() {
	s.Run("creates with enabled defaulting to true", func() {
		s.service.EXPECT().Create(gomock.Any(), service.CreateInput{Name: "acme", Description: "Acme Corp", Enabled: true}).
			Return(sampleDomain("new1", true), nil)

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v3/domains",
			map[string]any{"domain": map[string]any{"name": "acme", "description": "Acme Corp"}})
		res := s.do(req, &admin)
		testutil.AssertStatus(s.T(), res, http.StatusCreated)
		s.Equal(baseURL+"/v3/domains/new1", res.Header().Get("Location"))

		body := testutil.UnmarshalResponse[DomainEnvelope](s.T(), res)
		s.Equal("new1", body.Domain.ID)
		s.True(body.Domain.Enabled)
	})

	s.Run("honours enabled=false", func() {
		s.service.EXPECT().Create(gomock.Any(), service.CreateInput{Name: "off", Enabled: false}).
			Return(sampleDomain("new2", false), nil)
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v3/domains",
			map[string]any{"domain": map[string]any{"name": "off", "enabled": false}})
		testutil.AssertStatus(s.T(), s.do(req, &admin), http.StatusCreated)
	})

	badBodies := map[string]string{
		"client supplied id": `{"domain":{"id":"mine","name":"x"}}`,
		"missing domain":     `{"name":"x"}`,
		"missing name":       `{"domain":{"description":"x"}}`,
		"blank name":         `{"domain":{"name":"  "}}`,
		"malformed json":     `{"domain":`,
		"wrong enabled type": `{"domain":{"name":"x","enabled":"yes"}}`,
	}
	for name, body := range badBodies {
		s.Run("bad request: "+name, func() {
			req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/v3/domains", "application/json", body)
			testutil.AssertErrorStatus(s.T(), s.do(req, &admin), http.StatusBadRequest)
		})
	}

	s.Run("duplicate name conflicts", func() {
		s.service.EXPECT().Create(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeConflict, "Duplicate entry"))
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v3/domains", map[string]any{"domain": map[string]any{"name": "dup"}})
		testutil.AssertErrorStatus(s.T(), s.do(req, &admin), http.StatusConflict)
	})

	s.Run("non-JSON content type", func() {
		req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/v3/domains", "text/plain", `{"domain":{"name":"x"}}`)
		testutil.AssertErrorStatus(s.T(), s.do(req, &admin), http.StatusUnsupportedMediaType)
	})

	s.Run("oversized body", func() {
		body := fmt.Sprintf(`{"domain":{"name":"x","description":"%s"}}`, strings.Repeat("a", maxBodyBytes))
		req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/v3/domains", "application/json", body)
		testutil.AssertErrorStatus(s.T(), s.do(req, &admin), http.StatusRequestEntityTooLarge)
	})

	s.Run("readers cannot create", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v3/domains", map[string]any{"domain": map[string]any{"name": "x"}})
		testutil.AssertErrorStatus(s.T(), s.do(req, &reader), http.StatusForbidden)
	})
}

func (s *DomainHandlerSuite) TestShow() {
	s.Run("returns the domain", func() {
		s.service.EXPECT().Get(gomock.Any(), ids.DomainID("d1")).Return(sampleDomain("d1", true), nil)
		res := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/v3/domains/d1"), &reader)
		testutil.AssertStatus(s.T(), res, http.StatusOK)
		body := testutil.UnmarshalResponse[DomainEnvelope](s.T(), res)
		s.Equal("Domain d1", body.Domain.Name)
		s.Equal(baseURL+"/v3/domains/d1", body.Domain.Links.Self)
	})

	s.Run("unknown domain", func() {
		s.service.EXPECT().Get(gomock.Any(), ids.DomainID("nope")).
			Return(nil, dErrors.New(dErrors.CodeNotFound, "Could not find domain: nope."))
		res := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/v3/domains/nope"), &reader)
		testutil.AssertErrorStatus(s.T(), res, http.StatusNotFound)
	})

	s.Run("malformed ID", func() {
		res := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/v3/domains/"+strings.Repeat("x", ids.MaxLength+1)), &reader)
		testutil.AssertErrorStatus(s.T(), res, http.StatusBadRequest)
	})

	s.Run("members lack read access", func() {
		member := requestcontext.Caller{UserID: "m", Roles: []string{auth.RoleMember}}
		res := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/v3/domains/d1"), &member)
		testutil.AssertErrorStatus(s.T(), res, http.StatusForbidden)
	})
}

func (s *DomainHandlerSuite) TestUpdate() {
	s.Run("applies a partial update", func() {
		disabled := false
		s.service.EXPECT().Update(gomock.Any(), ids.DomainID("d1"), models.Patch{Enabled: &disabled}).
			Return(sampleDomain("d1", false), nil)

		req := testutil.NewJSONRequest(s.T(), http.MethodPatch, "/v3/domains/d1",
			map[string]any{"domain": map[string]any{"enabled": false}})
		res := s.do(req, &admin)
		testutil.AssertStatus(s.T(), res, http.StatusOK)
		body := testutil.UnmarshalResponse[DomainEnvelope](s.T(), res)
		s.False(body.Domain.Enabled)
	})

	s.Run("matching body ID is accepted", func() {
		s.service.EXPECT().Update(gomock.Any(), ids.DomainID("d1"), gomock.Any()).Return(sampleDomain("d1", true), nil)
		req := testutil.NewJSONRequest(s.T(), http.MethodPatch, "/v3/domains/d1",
			map[string]any{"domain": map[string]any{"id": "d1", "description": "new"}})
		testutil.AssertStatus(s.T(), s.do(req, &admin), http.StatusOK)
	})

	s.Run("differing body ID is a bad request", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPatch, "/v3/domains/d1",
			map[string]any{"domain": map[string]any{"id": "d2"}})
		testutil.AssertErrorStatus(s.T(), s.do(req, &admin), http.StatusBadRequest)
	})

	s.Run("forbidden business rule", func() {
		s.service.EXPECT().Update(gomock.Any(), ids.DomainID("default"), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeForbidden, "The default domain cannot be disabled."))
		req := testutil.NewJSONRequest(s.T(), http.MethodPatch, "/v3/domains/default",
			map[string]any{"domain": map[string]any{"enabled": false}})
		testutil.AssertErrorStatus(s.T(), s.do(req, &admin), http.StatusForbidden)
	})

	s.Run("rename conflict", func() {
		s.service.EXPECT().Update(gomock.Any(), ids.DomainID("d1"), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeConflict, "Duplicate entry"))
		req := testutil.NewJSONRequest(s.T(), http.MethodPatch, "/v3/domains/d1",
			map[string]any{"domain": map[string]any{"name": "taken"}})
		testutil.AssertErrorStatus(s.T(), s.do(req, &admin), http.StatusConflict)
	})

	s.Run("non-JSON content type", func() {
		req := testutil.NewRequestWithBody(s.T(), http.MethodPatch, "/v3/domains/d1", "application/xml", "<domain/>")
		testutil.AssertErrorStatus(s.T(), s.do(req, &admin), http.StatusUnsupportedMediaType)
	})
}

func (s *DomainHandlerSuite) TestDelete() {
	s.Run("deletes a disabled domain", func() {
		s.service.EXPECT().Delete(gomock.Any(), ids.DomainID("d1")).Return(nil)
		res := s.do(testutil.NewRequest(s.T(), http.MethodDelete, "/v3/domains/d1"), &admin)
		testutil.AssertStatus(s.T(), res, http.StatusNoContent)
		s.Empty(res.Body.String())
	})

	s.Run("enabled domain is forbidden", func() {
		s.service.EXPECT().Delete(gomock.Any(), ids.DomainID("d2")).
			Return(dErrors.New(dErrors.CodeForbidden, "Cannot delete a domain that is enabled, please disable it first."))
		res := s.do(testutil.NewRequest(s.T(), http.MethodDelete, "/v3/domains/d2"), &admin)
		testutil.AssertStatus(s.T(), res, http.StatusForbidden)
		s.Contains(testutil.UnmarshalErrorResponse(s.T(), res).Message, "disable it first")
	})

	s.Run("body with foreign content type", func() {
		req := testutil.NewRequestWithBody(s.T(), http.MethodDelete, "/v3/domains/d1", "text/plain", "please")
		testutil.AssertErrorStatus(s.T(), s.do(req, &admin), http.StatusUnsupportedMediaType)
	})

	s.Run("internal errors do not leak detail", func() {
		s.service.EXPECT().Delete(gomock.Any(), ids.DomainID("d3")).
			Return(dErrors.Wrap(fmt.Errorf("pq: relation grants does not exist"), dErrors.CodeInternal, "domain store failure"))
		res := s.do(testutil.NewRequest(s.T(), http.MethodDelete, "/v3/domains/d3"), &admin)
		testutil.AssertStatus(s.T(), res, http.StatusInternalServerError)
		s.NotContains(res.Body.String(), "relation")
	})
}

func (s *DomainHandlerSuite) TestRouting() {
	s.Run("unsupported method on a known route", func() {
		res := s.do(testutil.NewRequest(s.T(), http.MethodPut, "/v3/domains"), &admin)
		testutil.AssertErrorStatus(s.T(), res, http.StatusMethodNotAllowed)
	})

	s.Run("unknown route", func() {
		res := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/v3/domain"), &admin)
		testutil.AssertErrorStatus(s.T(), res, http.StatusNotFound)
	})
}

func TestOperations(t *testing.T) {
	t.Run("success code is never a documented error", func(t *testing.T) {
		for _, op := range Operations {
			if slices.Contains(op.Errors, op.Success) {
				t.Errorf("%s lists its success code %d as an error", op.Name, op.Success)
			}
		}
	})

	t.Run("delete documents 403 for enabled domains", func(t *testing.T) {
		for _, op := range Operations {
			if op.Name == OpDeleteDomain && !slices.Contains(op.Errors, http.StatusForbidden) {
				t.Fatal("delete_domain must document 403")
			}
		}
	})

	t.Run("mutations require write access", func(t *testing.T) {
		for _, op := range Operations {
			want := auth.Write
			if op.Method == http.MethodGet {
				want = auth.Read
			}
			if op.Access != want {
				t.Errorf("%s has access %v, want %v", op.Name, op.Access, want)
			}
		}
	})

	t.Run("every operation is registered", func(t *testing.T) {
		r := chi.NewRouter()
		New(nil, slog.New(slog.DiscardHandler), "").Register(r)
		registered := map[string]bool{}
		err := chi.Walk(r, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
			registered[method+" "+route] = true
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		for _, op := range Operations {
			if !registered[op.Method+" "+op.Pattern] {
				t.Errorf("%s %s is not registered", op.Method, op.Pattern)
			}
		}
	})
}
