package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	cli "github.com/urfave/cli/v3"

	"github.com/giselles-ai/giselle-sub007/internal/api"
	"github.com/giselles-ai/giselle-sub007/internal/auth"
	"github.com/giselles-ai/giselle-sub007/internal/config"
	"github.com/giselles-ai/giselle-sub007/internal/crypto"
	"github.com/giselles-ai/giselle-sub007/internal/engine"
	"github.com/giselles-ai/giselle-sub007/internal/metrics"
	"github.com/giselles-ai/giselle-sub007/internal/provider"
	"github.com/giselles-ai/giselle-sub007/internal/repository"
	"github.com/giselles-ai/giselle-sub007/internal/services"
	"github.com/giselles-ai/giselle-sub007/internal/services/live"
	"github.com/giselles-ai/giselle-sub007/internal/services/scheduler"
	"github.com/giselles-ai/giselle-sub007/internal/storage"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP API and the trigger scheduler",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Usage:   "Override the configured server port",
				Sources: cli.EnvVars("PORT"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			cfg, err := config.LoadDefault(command.String("config"))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if port := command.Int("port"); port != 0 {
				cfg.Server.Port = int(port)
			}
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer closeStore()

	vault, err := crypto.FromConfig(cfg.Vault.Key)
	if err != nil {
		return fmt.Errorf("vault: %w", err)
	}
	if cfg.Vault.Key == "" {
		slog.Warn("vault key not configured, secrets and webhook secrets cannot be stored")
	}

	models := provider.FromConfig(cfg.Providers)
	slog.Info("language model providers", "providers", models.Names())
	model := provider.NewRetrying(models, provider.PolicyFromConfig(cfg.Runner.Retry))

	bus := engine.NewEventBus()
	workspaceRepo := repository.NewWorkspaceRepository(store)
	triggerRepo := repository.NewTriggerRepository(store)

	generations := services.NewGenerationService(repository.NewGenerationRepository(store), model, bus)
	acts := services.NewActService(
		repository.NewActRepository(store),
		workspaceRepo,
		generations,
		engine.NewRunner(bus, cfg.Runner.MaxParallel),
		nil,
		bus,
	)
	triggers := services.NewTriggerService(triggerRepo, vault, acts)

	sched := scheduler.New(triggerRepo, acts)
	triggers.SetScheduler(sched)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	distributor := live.New(acts, live.Options{
		PollInterval: cfg.Live.PollInterval,
		Timeout:      cfg.Live.Timeout,
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg, distributor.Subscribers)
	detach := m.Attach(bus)
	defer detach()

	var tokens *auth.Tokens
	if cfg.Auth.JWTSecret != "" {
		tokens = auth.NewTokens(cfg.Auth.JWTSecret)
	} else {
		slog.Warn("auth.jwt_secret not set, API is unauthenticated")
	}

	srv := api.NewServer(api.Deps{
		Workspaces:  services.NewWorkspaceService(workspaceRepo),
		Acts:        acts,
		Generations: generations,
		Triggers:    triggers,
		Apps:        services.NewAppService(repository.NewAppRepository(store), acts),
		Secrets:     services.NewSecretService(repository.NewSecretRepository(store), vault),
		Live:        distributor,
		Authorizer:  auth.NewAuthorizer(cfg.Auth.JWTSecret),
		Tokens:      tokens,
		Metrics:     m,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting giselle server", "addr", httpServer.Addr, "storage", cfg.Storage.Driver)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown", "err", err)
	}
	if err := acts.Shutdown(shutdownCtx); err != nil {
		slog.Error("act shutdown", "err", err)
	}
	return nil
}
