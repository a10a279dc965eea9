// Package logger builds the service *slog.Logger on top of zap.
package logger

import (
	"log/slog"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"

	"github.com/cernops/keystone/internal/platform/config"
)

// New returns a slog logger backed by a zap core: human-readable console
// output in development, JSON in production. The returned sync func flushes
// buffered entries and should be deferred by main.
func New(environment string) (*slog.Logger, func() error, error) {
	var (
		zl  *zap.Logger
		err error
	)
	if environment == config.ProductionEnvironment {
		zl, err = zap.NewProduction()
	} else {
		zl, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, nil, err
	}
	return FromZap(zl), zl.Sync, nil
}

// FromZap adapts an existing zap logger.
func FromZap(zl *zap.Logger) *slog.Logger {
	return slog.New(zapslog.NewHandler(zl.Core(), zapslog.WithCaller(true)))
}

// NewNop discards everything. Used by tests.
func NewNop() *slog.Logger {
	return slog.New(zapslog.NewHandler(zapcore.NewNopCore()))
}
