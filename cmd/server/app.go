package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/cernops/keystone/internal/auth"
	"github.com/cernops/keystone/internal/domains"
	domainAdapters "github.com/cernops/keystone/internal/domains/adapters"
	domainMetrics "github.com/cernops/keystone/internal/domains/metrics"
	domainService "github.com/cernops/keystone/internal/domains/service"
	domainStore "github.com/cernops/keystone/internal/domains/store"
	"github.com/cernops/keystone/internal/identity"
	identityAdapters "github.com/cernops/keystone/internal/identity/adapters"
	identityService "github.com/cernops/keystone/internal/identity/service"
	identityStore "github.com/cernops/keystone/internal/identity/store"
	"github.com/cernops/keystone/internal/platform/config"
	"github.com/cernops/keystone/internal/platform/kafka"
	httpMetrics "github.com/cernops/keystone/internal/platform/metrics"
	"github.com/cernops/keystone/internal/platform/postgres"
	"github.com/cernops/keystone/internal/platform/redis"
	httptransport "github.com/cernops/keystone/internal/transport/http"
	"github.com/cernops/keystone/pkg/ids"
	"github.com/cernops/keystone/pkg/platform/audit"
	"github.com/cernops/keystone/pkg/platform/audit/outbox"
	"github.com/cernops/keystone/pkg/platform/audit/publisher"
	auditmemory "github.com/cernops/keystone/pkg/platform/audit/store/memory"
	auditpostgres "github.com/cernops/keystone/pkg/platform/audit/store/postgres"
	"github.com/cernops/keystone/pkg/platform/circuit"
	txcontext "github.com/cernops/keystone/pkg/platform/tx"
)

// app is the wired service. Postgres, Redis and Kafka are optional: without
// a database URL every store lives in memory, without Redis there is no
// domain cache and without brokers the outbox is not relayed.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry

	db       *postgres.DB
	redis    *redis.Client
	producer *kafka.Producer
	outbox   *outbox.Worker

	domains  *domainService.Service
	identity *identityService.Service
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			a.close()
		}
	}()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if cfg.Database.URL != "" {
		if a.db, err = postgres.Open(ctx, cfg.Database); err != nil {
			return nil, err
		}
	}
	if a.redis, err = redis.New(ctx, cfg.Redis); err != nil {
		return nil, err
	}

	dm := domainMetrics.New(a.registry)
	var (
		runner    txcontext.Runner
		dStore    domainStore.Store
		iStore    identityService.Store
		auditSink audit.Store
	)
	if a.db != nil {
		runner = txcontext.NewSQLRunner(a.db.SQL, cfg.Database.TxTimeout)
		breaker := circuit.New("domains-postgres",
			circuit.WithFailureThreshold(cfg.Database.BreakerFailures),
			circuit.WithCooldown(cfg.Database.BreakerCooldown),
		)
		dStore = domainStore.NewGuard(domainStore.NewPostgres(a.db.SQL), breaker, logger, dm)
		iStore = identityStore.NewPostgres(a.db.SQL)
		auditSink = auditpostgres.New(a.db.SQL)
	} else {
		logger.WarnContext(ctx, "no database configured, using in-memory stores")
		runner = txcontext.NewMemoryRunner()
		dStore = domainStore.NewInMemory()
		iStore = identityStore.NewInMemory()
		auditSink = auditmemory.NewInMemoryStore()
	}
	if a.redis != nil {
		dStore = domainStore.NewRedisCache(dStore, a.redis.Client, cfg.Redis.CacheTTL, logger, dm)
	}

	auditPublisher := publisher.New(auditSink,
		publisher.WithLogger(logger),
		publisher.WithMetrics(publisher.NewMetrics(a.registry)),
	)

	a.identity = identity.NewService(iStore, identityAdapters.NewDomainChecker(dStore),
		identityService.WithLogger(logger),
		identityService.WithAuditPublisher(auditPublisher),
		identityService.WithTx(runner),
	)
	a.domains = domains.NewService(dStore,
		domainService.WithLogger(logger),
		domainService.WithAuditPublisher(auditPublisher),
		domainService.WithMetrics(dm),
		domainService.WithTx(runner),
		domainService.WithPurger(domainAdapters.NewIdentityPurger(a.identity)),
		domainService.WithDefaultDomainID(ids.DomainID(cfg.Identity.DefaultDomainID)),
		domainService.WithListLimit(cfg.HTTP.ListLimit),
	)

	if len(cfg.Kafka.Brokers) > 0 {
		source, ok := auditSink.(outbox.Source)
		if !ok {
			return nil, errors.New("kafka publishing requires a database for the outbox")
		}
		if a.producer, err = kafka.NewProducer(cfg.Kafka, logger); err != nil {
			return nil, err
		}
		if err = a.producer.EnsureTopic(ctx, cfg.Kafka.Partitions); err != nil {
			return nil, err
		}
		a.outbox = outbox.New(source, a.producer,
			outbox.WithInterval(cfg.Kafka.PollInterval),
			outbox.WithBatchSize(cfg.Kafka.BatchSize),
			outbox.WithLogger(logger),
		)
	}
	return a, nil
}

func (a *app) validator() (*auth.Validator, error) {
	var jwt *auth.JWTService
	if a.cfg.Auth.JWTSigningKey != "" {
		jwt = auth.NewJWTService(a.cfg.Auth.JWTSigningKey, a.cfg.Auth.Issuer, a.cfg.Auth.Audience)
	}
	if jwt == nil && a.cfg.Auth.AdminToken == "" {
		return nil, errors.New("either auth.adminToken or auth.jwtSigningKey must be set")
	}
	return auth.NewValidator(a.cfg.Auth.AdminToken, jwt), nil
}

func (a *app) router() (http.Handler, error) {
	v, err := a.validator()
	if err != nil {
		return nil, err
	}
	return httptransport.NewRouter(httptransport.Deps{
		Logger:         a.logger,
		Validator:      v,
		Metrics:        httpMetrics.New(a.registry),
		Gatherer:       a.registry,
		MetricsPath:    a.cfg.HTTP.MetricsPath,
		RequestTimeout: a.cfg.HTTP.RequestTimeout,
		MaxBodyBytes:   a.cfg.HTTP.MaxBodyBytes,
		Modules: []httptransport.Registrar{
			domains.NewHandler(a.domains, a.logger, a.cfg.HTTP.BaseURL),
			identity.NewHandler(a.identity, a.logger, a.cfg.HTTP.BaseURL),
		},
	}), nil
}

func (a *app) close() {
	if a.producer != nil {
		a.producer.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("could not close redis client", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("could not close postgres connection", "error", err)
		}
	}
}

// openDB is used by the maintenance commands, which all need a database.
func openDB(ctx context.Context, cfg *config.Config) (*postgres.DB, error) {
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	return postgres.Open(ctx, cfg.Database)
}
