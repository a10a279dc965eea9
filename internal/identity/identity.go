// Package identity wires the identity service and its HTTP handler.
package identity

import (
	"log/slog"

	"github.com/cernops/keystone/internal/identity/handler"
	"github.com/cernops/keystone/internal/identity/service"
)

type Service = service.Service

type Handler = handler.Handler

func NewService(store service.Store, domains service.DomainChecker, opts ...service.Option) *Service {
	return service.New(store, domains, opts...)
}

func NewHandler(s *Service, logger *slog.Logger, baseURL string) *Handler {
	return handler.New(s, logger, baseURL)
}
