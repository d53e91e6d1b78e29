// Package main provides the entry point for the harvest service server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scholium/harvest-service/internal/config"
	"github.com/scholium/harvest-service/internal/database"
	"github.com/scholium/harvest-service/internal/events"
	"github.com/scholium/harvest-service/internal/observability"
	"github.com/scholium/harvest-service/internal/papersources"
	"github.com/scholium/harvest-service/internal/papersources/arxiv"
	"github.com/scholium/harvest-service/internal/papersources/openalex"
	"github.com/scholium/harvest-service/internal/papersources/semanticscholar"
	"github.com/scholium/harvest-service/internal/pipeline"
	"github.com/scholium/harvest-service/internal/repository"
	httpserver "github.com/scholium/harvest-service/internal/server/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("harvest-service server starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL.
	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info().Msg("database connection established")

	// Run migrations if configured.
	if cfg.Database.MigrationAutoRun {
		migrator, err := database.NewMigrator(db, cfg.Database.MigrationPath, logger)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		defer func() {
			if closeErr := migrator.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close migrator")
			}
		}()

		if err := migrator.Up(); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	// Create repositories.
	paperRepo := repository.NewPgPaperRepository(db)
	runRepo := repository.NewPgRunRepository(db)

	metrics := observability.NewMetrics("harvest")

	// Register the configured source adapters.
	registry := buildRegistry(cfg.PaperSources, metrics)
	defer registry.CloseAll()
	for _, source := range registry.EnabledSources() {
		logger.Info().Str("source", source.Name()).Msg("paper source enabled")
	}

	opts := []pipeline.Option{pipeline.WithMetrics(metrics)}
	if cfg.Events.Enabled {
		publisher := events.NewKafkaPublisher(events.Config{
			Brokers: cfg.Events.Brokers,
			Topic:   cfg.Events.Topic,
		}, logger, metrics)
		defer func() {
			if closeErr := publisher.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close event publisher")
			}
		}()
		opts = append(opts, pipeline.WithPublisher(publisher))
		logger.Info().Strs("brokers", cfg.Events.Brokers).Str("topic", cfg.Events.Topic).Msg("event publisher enabled")
	}

	orchestrator := pipeline.NewOrchestrator(registry, paperRepo, runRepo, logger, opts...)

	httpCfg := httpserver.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     2 * time.Minute,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}
	if cfg.Metrics.Enabled {
		httpCfg.MetricsPath = cfg.Metrics.Path
	}

	httpSrv := httpserver.NewServer(httpCfg, orchestrator, runRepo, paperRepo, db, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	logger.Info().Str("http_address", httpCfg.Address).Msg("harvest-service is ready")

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	// Graceful shutdown.
	logger.Info().Msg("shutting down harvest-service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	logger.Info().Msg("harvest-service shutdown complete")
	return nil
}

// buildRegistry constructs the source registry from configuration. Disabled
// sources are still registered so the registry can report them; the registry
// skips them at search time.
func buildRegistry(cfg config.PaperSourcesConfig, metrics *observability.Metrics) *papersources.Registry {
	registry := papersources.NewRegistry()

	registry.Register(arxiv.New(arxiv.Config{
		BaseURL:   cfg.ArXiv.BaseURL,
		Timeout:   cfg.ArXiv.Timeout,
		RateLimit: cfg.ArXiv.RateLimit,
		BurstSize: cfg.ArXiv.BurstSize,
		Enabled:   cfg.ArXiv.Enabled,
		Metrics:   metrics,
	}))

	registry.Register(semanticscholar.New(semanticscholar.Config{
		BaseURL:   cfg.SemanticScholar.BaseURL,
		APIKey:    cfg.SemanticScholar.APIKey,
		Timeout:   cfg.SemanticScholar.Timeout,
		RateLimit: cfg.SemanticScholar.RateLimit,
		BurstSize: cfg.SemanticScholar.BurstSize,
		Enabled:   cfg.SemanticScholar.Enabled,
		Metrics:   metrics,
	}))

	registry.Register(openalex.New(openalex.Config{
		BaseURL:   cfg.OpenAlex.BaseURL,
		Email:     cfg.OpenAlex.Email,
		Timeout:   cfg.OpenAlex.Timeout,
		RateLimit: cfg.OpenAlex.RateLimit,
		BurstSize: cfg.OpenAlex.BurstSize,
		Enabled:   cfg.OpenAlex.Enabled,
		Metrics:   metrics,
	}))

	return registry
}
