package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cernops/keystone/internal/auth"
	"github.com/cernops/keystone/internal/identity/models"
	"github.com/cernops/keystone/internal/identity/service"
	dErrors "github.com/cernops/keystone/pkg/domainerrors"
	"github.com/cernops/keystone/pkg/ids"
	"github.com/cernops/keystone/pkg/platform/httputil"
	"github.com/cernops/keystone/pkg/requestcontext"
)

// Service defines the identity operations exposed over HTTP.
type Service interface {
	CreateResource(ctx context.Context, in service.ResourceInput) (*models.Resource, error)
	GetResource(ctx context.Context, kind models.Kind, id string) (*models.Resource, error)
	ListResources(ctx context.Context, filter models.ResourceFilter) ([]*models.Resource, error)
	DeleteResource(ctx context.Context, kind models.Kind, id string) (models.CascadeReport, error)

	CreateRole(ctx context.Context, name string) (*models.Role, error)
	GetRole(ctx context.Context, id ids.RoleID) (*models.Role, error)
	ListRoles(ctx context.Context, name string) ([]*models.Role, error)
	DeleteRole(ctx context.Context, id ids.RoleID) error

	CreateCredential(ctx context.Context, in service.CredentialInput) (*models.Credential, error)
	GetCredential(ctx context.Context, id ids.CredentialID) (*models.Credential, error)
	ListCredentials(ctx context.Context, userID ids.UserID) ([]*models.Credential, error)
	DeleteCredential(ctx context.Context, id ids.CredentialID) error

	AddMembership(ctx context.Context, m models.Membership) error
	RemoveMembership(ctx context.Context, m models.Membership) error

	Grant(ctx context.Context, g models.Grant) error
	CheckGrant(ctx context.Context, g models.Grant) error
	RevokeGrant(ctx context.Context, g models.Grant) error
	ListGrantedRoles(ctx context.Context, actor models.ActorKind, actorID string, target models.TargetKind, targetID string) ([]*models.Role, error)
}

var _ Service = (*service.Service)(nil)

// Handler serves users, groups, projects, roles, credentials, group
// membership and role assignments.
type Handler struct {
	service Service
	logger  *slog.Logger
	baseURL string
}

func New(svc Service, logger *slog.Logger, baseURL string) *Handler {
	return &Handler{service: svc, logger: logger, baseURL: baseURL}
}

type route struct {
	method  string
	pattern string
	access  auth.Access
	handler http.HandlerFunc
}

const actorPath = "/{actor_kind:users|groups}/{actor_id}/roles"

// idParam names the path parameter of a resource, e.g. "user_id". Sibling
// routes share parameter names.
func idParam(kind models.Kind) string {
	return string(kind) + "_id"
}

func (h *Handler) routes() []route {
	var rs []route
	for _, kind := range []models.Kind{models.KindUser, models.KindGroup, models.KindProject} {
		base := "/v3/" + kind.Plural()
		item := base + "/{" + idParam(kind) + "}"
		rs = append(rs,
			route{http.MethodGet, base, auth.Read, h.handleListResources(kind)},
			route{http.MethodPost, base, auth.Write, h.handleCreateResource(kind)},
			route{http.MethodGet, item, auth.Read, h.handleGetResource(kind)},
			route{http.MethodDelete, item, auth.Write, h.handleDeleteResource(kind)},
		)
	}
	return append(rs,
		route{http.MethodGet, "/v3/roles", auth.Read, h.HandleListRoles},
		route{http.MethodPost, "/v3/roles", auth.Write, h.HandleCreateRole},
		route{http.MethodGet, "/v3/roles/{role_id}", auth.Read, h.HandleGetRole},
		route{http.MethodDelete, "/v3/roles/{role_id}", auth.Write, h.HandleDeleteRole},

		route{http.MethodGet, "/v3/credentials", auth.Read, h.HandleListCredentials},
		route{http.MethodPost, "/v3/credentials", auth.Write, h.HandleCreateCredential},
		route{http.MethodGet, "/v3/credentials/{credential_id}", auth.Read, h.HandleGetCredential},
		route{http.MethodDelete, "/v3/credentials/{credential_id}", auth.Write, h.HandleDeleteCredential},

		route{http.MethodPut, "/v3/groups/{group_id}/users/{user_id}", auth.Write, h.HandleAddMembership},
		route{http.MethodDelete, "/v3/groups/{group_id}/users/{user_id}", auth.Write, h.HandleRemoveMembership},

		route{http.MethodGet, "/v3/domains/{domain_id}" + actorPath, auth.Read, h.handleListGrants(models.TargetDomain)},
		route{http.MethodPut, "/v3/domains/{domain_id}" + actorPath + "/{role_id}", auth.Write, h.handleGrant(models.TargetDomain)},
		route{http.MethodHead, "/v3/domains/{domain_id}" + actorPath + "/{role_id}", auth.Read, h.handleCheckGrant(models.TargetDomain)},
		route{http.MethodDelete, "/v3/domains/{domain_id}" + actorPath + "/{role_id}", auth.Write, h.handleRevokeGrant(models.TargetDomain)},
		route{http.MethodPut, "/v3/projects/{project_id}" + actorPath + "/{role_id}", auth.Write, h.handleGrant(models.TargetProject)},
		route{http.MethodDelete, "/v3/projects/{project_id}" + actorPath + "/{role_id}", auth.Write, h.handleRevokeGrant(models.TargetProject)},
	)
}

// Register mounts every identity route on r behind its access check.
func (h *Handler) Register(r chi.Router) {
	for _, rt := range h.routes() {
		r.With(auth.Require(rt.access)).Method(rt.method, rt.pattern, rt.handler)
	}
}

func (h *Handler) handleListResources(kind models.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		filter, err := ParseResourceFilter(kind, r.URL.Query())
		if err != nil {
			h.writeError(ctx, w, err, "invalid "+string(kind)+" list filter")
			return
		}
		rs, err := h.service.ListResources(ctx, filter)
		if err != nil {
			h.writeError(ctx, w, err, "failed to list "+kind.Plural())
			return
		}
		base := httputil.BaseURL(r, h.baseURL)
		httputil.WriteJSON(w, http.StatusOK, resourcesEnvelope(base, selfURL(base, r), kind, rs))
	}
}

func (h *Handler) handleCreateResource(kind models.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req ResourceRequest
		if err := httputil.DecodeJSON(r, &req); err != nil {
			h.writeError(ctx, w, err, "invalid create "+string(kind)+" request")
			return
		}
		in, err := req.Validate(kind)
		if err != nil {
			h.writeError(ctx, w, err, "invalid create "+string(kind)+" request")
			return
		}
		res, err := h.service.CreateResource(ctx, in)
		if err != nil {
			h.writeError(ctx, w, err, "failed to create "+string(kind))
			return
		}
		base := httputil.BaseURL(r, h.baseURL)
		w.Header().Set("Location", resourceURL(base, res))
		httputil.WriteJSON(w, http.StatusCreated, resourceEnvelope(base, res))
	}
}

func (h *Handler) handleGetResource(kind models.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, err := ids.Parse(string(kind), chi.URLParam(r, idParam(kind)))
		if err != nil {
			h.writeError(ctx, w, err, "invalid "+string(kind)+" ID")
			return
		}
		res, err := h.service.GetResource(ctx, kind, id)
		if err != nil {
			h.writeError(ctx, w, err, "failed to get "+string(kind))
			return
		}
		httputil.WriteJSON(w, http.StatusOK, resourceEnvelope(httputil.BaseURL(r, h.baseURL), res))
	}
}

func (h *Handler) handleDeleteResource(kind models.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, err := ids.Parse(string(kind), chi.URLParam(r, idParam(kind)))
		if err != nil {
			h.writeError(ctx, w, err, "invalid "+string(kind)+" ID")
			return
		}
		if _, err := h.service.DeleteResource(ctx, kind, id); err != nil {
			h.writeError(ctx, w, err, "failed to delete "+string(kind))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) HandleListRoles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	if q.Has("name") && q.Get("name") == "" {
		h.writeError(ctx, w, dErrors.New(dErrors.CodeBadRequest, "name filter cannot be empty"), "invalid role list filter")
		return
	}
	roles, err := h.service.ListRoles(ctx, q.Get("name"))
	if err != nil {
		h.writeError(ctx, w, err, "failed to list roles")
		return
	}
	base := httputil.BaseURL(r, h.baseURL)
	httputil.WriteJSON(w, http.StatusOK, toRolesEnvelope(base, selfURL(base, r), roles))
}

func (h *Handler) HandleCreateRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req CreateRoleRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, err, "invalid create role request")
		return
	}
	name, err := req.Validate()
	if err != nil {
		h.writeError(ctx, w, err, "invalid create role request")
		return
	}
	role, err := h.service.CreateRole(ctx, name)
	if err != nil {
		h.writeError(ctx, w, err, "failed to create role")
		return
	}
	base := httputil.BaseURL(r, h.baseURL)
	w.Header().Set("Location", roleURL(base, role))
	httputil.WriteJSON(w, http.StatusCreated, RoleEnvelope{Role: toRoleResponse(base, role)})
}

func (h *Handler) HandleGetRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := ids.ParseRoleID(chi.URLParam(r, "role_id"))
	if err != nil {
		h.writeError(ctx, w, err, "invalid role ID")
		return
	}
	role, err := h.service.GetRole(ctx, id)
	if err != nil {
		h.writeError(ctx, w, err, "failed to get role")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, RoleEnvelope{Role: toRoleResponse(httputil.BaseURL(r, h.baseURL), role)})
}

func (h *Handler) HandleDeleteRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := ids.ParseRoleID(chi.URLParam(r, "role_id"))
	if err != nil {
		h.writeError(ctx, w, err, "invalid role ID")
		return
	}
	if err := h.service.DeleteRole(ctx, id); err != nil {
		h.writeError(ctx, w, err, "failed to delete role")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleListCredentials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var userID ids.UserID
	if q := r.URL.Query(); q.Has("user_id") {
		var err error
		if userID, err = ids.ParseUserID(q.Get("user_id")); err != nil {
			h.writeError(ctx, w, err, "invalid credential list filter")
			return
		}
	}
	creds, err := h.service.ListCredentials(ctx, userID)
	if err != nil {
		h.writeError(ctx, w, err, "failed to list credentials")
		return
	}
	base := httputil.BaseURL(r, h.baseURL)
	out := CredentialsEnvelope{Credentials: make([]CredentialResponse, 0, len(creds)), Links: CollectionLinks{Self: selfURL(base, r)}}
	for _, c := range creds {
		out.Credentials = append(out.Credentials, toCredentialResponse(base, c))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) HandleCreateCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req CreateCredentialRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, err, "invalid create credential request")
		return
	}
	in, err := req.Validate()
	if err != nil {
		h.writeError(ctx, w, err, "invalid create credential request")
		return
	}
	c, err := h.service.CreateCredential(ctx, in)
	if err != nil {
		h.writeError(ctx, w, err, "failed to create credential")
		return
	}
	base := httputil.BaseURL(r, h.baseURL)
	w.Header().Set("Location", credentialURL(base, c))
	httputil.WriteJSON(w, http.StatusCreated, CredentialEnvelope{Credential: toCredentialResponse(base, c)})
}

func (h *Handler) HandleGetCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := ids.ParseCredentialID(chi.URLParam(r, "credential_id"))
	if err != nil {
		h.writeError(ctx, w, err, "invalid credential ID")
		return
	}
	c, err := h.service.GetCredential(ctx, id)
	if err != nil {
		h.writeError(ctx, w, err, "failed to get credential")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, CredentialEnvelope{Credential: toCredentialResponse(httputil.BaseURL(r, h.baseURL), c)})
}

func (h *Handler) HandleDeleteCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := ids.ParseCredentialID(chi.URLParam(r, "credential_id"))
	if err != nil {
		h.writeError(ctx, w, err, "invalid credential ID")
		return
	}
	if err := h.service.DeleteCredential(ctx, id); err != nil {
		h.writeError(ctx, w, err, "failed to delete credential")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func selfURL(base string, r *http.Request) string {
	self := base + r.URL.Path
	if r.URL.RawQuery != "" {
		self += "?" + r.URL.RawQuery
	}
	return self
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error, msg string) {
	code, _ := dErrors.CodeOf(err)
	status := dErrors.HTTPStatus(code)
	attrs := []any{
		"request_id", requestcontext.RequestID(ctx),
		"status", status,
		"error", err,
	}
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}
