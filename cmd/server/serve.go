package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cernops/keystone/internal/bootstrap"
	"github.com/cernops/keystone/internal/platform/httpserver"
	"github.com/cernops/keystone/pkg/ids"
)

func serveCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Starts the API server and the audit outbox relay",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, c)
		},
	}
}

func serve(ctx context.Context, c *cli) error {
	cfg, logger := c.cfg, c.logger

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	seed, err := bootstrap.Load(cfg.Identity.BootstrapFile, ids.DomainID(cfg.Identity.DefaultDomainID))
	if err != nil {
		return err
	}
	res, err := bootstrap.Apply(ctx, seed, a.domains, a.identity, logger)
	if err != nil {
		return err
	}
	logger.InfoContext(ctx, "bootstrap applied", "domains_created", res.DomainsCreated, "roles_created", res.RolesCreated)

	router, err := a.router()
	if err != nil {
		return err
	}
	server := httpserver.New(cfg.HTTP, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.InfoContext(gctx, "starting webserver", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if a.outbox != nil {
		g.Go(func() error {
			logger.InfoContext(gctx, "starting outbox relay", "topic", cfg.Kafka.Topic)
			if err := a.outbox.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("stopping webserver")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GracefulShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if a.outbox != nil {
			// Relay what the drained requests committed before exiting.
			if _, err := a.outbox.Drain(shutdownCtx); err != nil {
				logger.Warn("final outbox drain failed", "error", err)
			}
		}
		return nil
	})
	return g.Wait()
}
