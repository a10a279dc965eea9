// Package httptransport assembles the service router. Modules register their
// own routes; this package owns the shared middleware chain.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cernops/keystone/internal/apidoc"
	"github.com/cernops/keystone/internal/platform/metrics"
	"github.com/cernops/keystone/internal/platform/middleware"
	"github.com/cernops/keystone/pkg/platform/middleware/metadata"
	"github.com/cernops/keystone/pkg/platform/middleware/requesttime"
)

// Registrar mounts a module's routes.
type Registrar interface {
	Register(r chi.Router)
}

// Deps holds what NewRouter wires together.
type Deps struct {
	Logger    *slog.Logger
	Validator middleware.TokenValidator
	Metrics   *metrics.Metrics
	// Gatherer backs the metrics endpoint. Nil disables it.
	Gatherer       prometheus.Gatherer
	MetricsPath    string
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	// Modules register behind token authentication.
	Modules []Registrar
}

// NewRouter builds the root handler. Every route gets request IDs, panic
// recovery, access logging, client metadata and a pinned request time.
// Module routes also get the body limit, the JSON content type check and
// token authentication.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	if d.Metrics != nil {
		r.Use(middleware.LatencyMiddleware(d.Metrics))
	}
	r.Use(middleware.Timeout(d.RequestTimeout))

	r.NotFound(middleware.NotFound)
	r.MethodNotAllowed(middleware.MethodNotAllowed)

	if d.Gatherer != nil {
		path := d.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}
	apidoc.Register(r)

	r.Group(func(r chi.Router) {
		if d.MaxBodyBytes > 0 {
			r.Use(middleware.MaxBody(d.MaxBodyBytes))
		}
		r.Use(middleware.RequireJSON)
		r.Use(middleware.RequireToken(d.Validator, logger))
		for _, m := range d.Modules {
			m.Register(r)
		}
	})

	return r
}
