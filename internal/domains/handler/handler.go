package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cernops/keystone/internal/auth"
	"github.com/cernops/keystone/internal/domains/models"
	"github.com/cernops/keystone/internal/domains/service"
	dErrors "github.com/cernops/keystone/pkg/domainerrors"
	"github.com/cernops/keystone/pkg/ids"
	"github.com/cernops/keystone/pkg/platform/httputil"
	"github.com/cernops/keystone/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/domains-mocks.go -package=mocks Service

// Service defines the domain operations exposed over HTTP.
type Service interface {
	List(ctx context.Context, filter models.Filter) (*models.ListResult, error)
	Create(ctx context.Context, in service.CreateInput) (*models.Domain, error)
	Get(ctx context.Context, id ids.DomainID) (*models.Domain, error)
	Update(ctx context.Context, id ids.DomainID, patch models.Patch) (*models.Domain, error)
	Delete(ctx context.Context, id ids.DomainID) error
}

// Handler serves /v3/domains.
type Handler struct {
	service Service
	logger  *slog.Logger
	baseURL string
}

// New creates a Handler. An empty baseURL derives links from each request.
func New(svc Service, logger *slog.Logger, baseURL string) *Handler {
	return &Handler{service: svc, logger: logger, baseURL: baseURL}
}

// Register mounts every entry of Operations on r behind its access check.
func (h *Handler) Register(r chi.Router) {
	handlers := map[string]http.HandlerFunc{
		OpListDomains:  h.HandleList,
		OpCreateDomain: h.HandleCreate,
		OpShowDomain:   h.HandleGet,
		OpUpdateDomain: h.HandleUpdate,
		OpDeleteDomain: h.HandleDelete,
	}
	for _, op := range Operations {
		r.With(auth.Require(op.Access)).Method(op.Method, op.Pattern, handlers[op.Name])
	}
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter, err := ParseListFilter(r.URL.Query())
	if err != nil {
		h.writeError(ctx, w, err, "invalid domain list filter")
		return
	}

	res, err := h.service.List(ctx, filter)
	if err != nil {
		h.writeError(ctx, w, err, "failed to list domains")
		return
	}

	base := httputil.BaseURL(r, h.baseURL)
	self := base + r.URL.Path
	if r.URL.RawQuery != "" {
		self += "?" + r.URL.RawQuery
	}
	httputil.WriteJSON(w, http.StatusOK, toDomainsEnvelope(base, self, res))
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req CreateDomainRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, err, "invalid create domain request")
		return
	}
	in, err := req.Validate()
	if err != nil {
		h.writeError(ctx, w, err, "invalid create domain request")
		return
	}

	d, err := h.service.Create(ctx, in)
	if err != nil {
		h.writeError(ctx, w, err, "failed to create domain")
		return
	}

	base := httputil.BaseURL(r, h.baseURL)
	w.Header().Set("Location", domainURL(base, d))
	httputil.WriteJSON(w, http.StatusCreated, DomainEnvelope{Domain: toDomainResponse(base, d)})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := ids.ParseDomainID(chi.URLParam(r, "domain_id"))
	if err != nil {
		h.writeError(ctx, w, err, "invalid domain ID")
		return
	}

	d, err := h.service.Get(ctx, id)
	if err != nil {
		h.writeError(ctx, w, err, "failed to get domain")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, DomainEnvelope{Domain: toDomainResponse(httputil.BaseURL(r, h.baseURL), d)})
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := ids.ParseDomainID(chi.URLParam(r, "domain_id"))
	if err != nil {
		h.writeError(ctx, w, err, "invalid domain ID")
		return
	}
	var req UpdateDomainRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, err, "invalid update domain request")
		return
	}
	patch, err := req.Validate(id)
	if err != nil {
		h.writeError(ctx, w, err, "invalid update domain request")
		return
	}

	d, err := h.service.Update(ctx, id, patch)
	if err != nil {
		h.writeError(ctx, w, err, "failed to update domain")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, DomainEnvelope{Domain: toDomainResponse(httputil.BaseURL(r, h.baseURL), d)})
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := ids.ParseDomainID(chi.URLParam(r, "domain_id"))
	if err != nil {
		h.writeError(ctx, w, err, "invalid domain ID")
		return
	}

	if err := h.service.Delete(ctx, id); err != nil {
		h.writeError(ctx, w, err, "failed to delete domain")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeError logs client errors at warn and server errors at error before
// writing the envelope.
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
