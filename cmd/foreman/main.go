package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/Foreman/internal/api"
	"github.com/MikeSquared-Agency/Foreman/internal/config"
	"github.com/MikeSquared-Agency/Foreman/internal/enforce"
	"github.com/MikeSquared-Agency/Foreman/internal/executor"
	"github.com/MikeSquared-Agency/Foreman/internal/hermes"
	"github.com/MikeSquared-Agency/Foreman/internal/orchestrator"
	"github.com/MikeSquared-Agency/Foreman/internal/prompt"
	"github.com/MikeSquared-Agency/Foreman/internal/registry"
	"github.com/MikeSquared-Agency/Foreman/internal/scaffold"
	"github.com/MikeSquared-Agency/Foreman/internal/scoring"
	"github.com/MikeSquared-Agency/Foreman/internal/ticket"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Ticket storage: postgres when configured, in-memory otherwise. The
	// memory store is for local development, nothing survives a restart.
	var store ticket.Store
	if cfg.Database.URL != "" {
		pg, err := ticket.NewPostgresStore(ctx, cfg.Database.URL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		store = pg
		logger.Info("connected to database")
	} else {
		store = ticket.NewMemoryStore()
		logger.Warn("no database configured, using in-memory ticket store")
	}
	defer store.Close()

	// Hermes (optional)
	var bus hermes.Client
	if cfg.Hermes.URL != "" {
		hc, err := hermes.NewNATSClient(ctx, cfg.Hermes.URL, logger)
		if err != nil {
			logger.Warn("failed to connect to hermes, running without events", "error", err)
		} else {
			bus = hc
			defer hc.Close()
			logger.Info("connected to hermes")
		}
	}

	reg, err := registry.New(cfg.Profiles, logger)
	if err != nil {
		logger.Error("failed to init profile registry", "error", err)
		os.Exit(1)
	}
	defer reg.Close()

	scorer := scoring.NewScorer(scoring.WeightSet{
		Verb:         cfg.Scoring.Weights.Verb,
		Volume:       cfg.Scoring.Weights.Volume,
		Scope:        cfg.Scoring.Weights.Scope,
		Coordination: cfg.Scoring.Weights.Coordination,
	}, cfg.Scoring.Brackets)
	selector := scoring.NewSelector(cfg.Resources, scorer)

	composer, err := prompt.NewComposer(scorer, logger)
	if err != nil {
		logger.Error("failed to init prompt composer", "error", err)
		os.Exit(1)
	}
	defer composer.Close()

	tickets := ticket.NewService(store, cfg.Ticketing, logger)

	classifier, err := enforce.NewClassifier(cfg.Enforcement.CategoryGlobs)
	if err != nil {
		logger.Error("invalid category globs", "error", err)
		os.Exit(1)
	}
	monitor, err := enforce.NewMonitor(cfg.Enforcement.AllowLists, classifier, store, bus, logger)
	if err != nil {
		logger.Error("invalid enforcement allow-lists", "error", err)
		os.Exit(1)
	}

	exec := executor.NewHTTPClient(cfg.Executor.URL, cfg.Executor.Token, cfg.ExecutorTimeout())
	scaffoldClient := scaffold.NewHTTPClient(cfg.Scaffold.URL, cfg.Scaffold.Token)

	orch := orchestrator.New(reg, scorer, selector, composer, tickets, monitor, exec, bus, cfg, logger)
	disp := orchestrator.NewDispatcher(orch, logger)
	disp.Start(ctx)
	defer disp.Stop()
	logger.Info("dispatcher started", "workers", cfg.Dispatch.MaxConcurrent)

	router := api.NewRouter(api.Deps{
		Dispatcher:   disp,
		Orchestrator: orch,
		Tickets:      tickets,
		Monitor:      monitor,
		Registry:     reg,
		Composer:     composer,
		Scorer:       scorer,
		Selector:     selector,
		Scaffold:     scaffoldClient,
		Bus:          bus,
		AdminToken:   cfg.Server.AdminToken,
		Logger:       logger,
	})
	apiServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: api.NewMetricsRouter(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("API server starting", "port", cfg.Server.Port)
		if err := apiServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("metrics server starting", "port", cfg.Server.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		logger.Info("shutting down...")
	case <-gctx.Done():
		logger.Error("server error, shutting down")
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = apiServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)

	if err := g.Wait(); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
