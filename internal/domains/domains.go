// Package domains wires the domain service and its HTTP handler.
package domains

import (
	"log/slog"

	"github.com/cernops/keystone/internal/domains/handler"
	"github.com/cernops/keystone/internal/domains/service"
)

// Service exposes the domain lifecycle.
type Service = service.Service

// Handler serves the /v3/domains routes.
type Handler = handler.Handler

// NewService constructs the domain service.
func NewService(store service.DomainStore, opts ...service.Option) *Service {
	return service.New(store, opts...)
}

// NewHandler constructs the HTTP handler. baseURL prefixes resource links.
func NewHandler(s *Service, logger *slog.Logger, baseURL string) *Handler {
	return handler.New(s, logger, baseURL)
}
