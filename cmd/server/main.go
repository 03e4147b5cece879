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

	"github.com/chaniweb/backend/config"
	"github.com/chaniweb/backend/internal/app"
	httpDelivery "github.com/chaniweb/backend/internal/delivery/http"
	"github.com/chaniweb/backend/internal/infrastructure/logging"
	"github.com/chaniweb/backend/internal/usecase"
	"github.com/rs/zerolog"
)

const version = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: "chaniweb-backend",
	})

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	logger.Info().
		Str("version", version).
		Str("environment", cfg.Server.Environment).
		Str("port", cfg.Server.Port).
		Str("cache", cfg.Cache.Type).
		Str("catalog_source", cfg.Catalog.Source).
		Msg("Starting ChaniWeb backend")

	// Initialize infrastructure dependencies
	cacheRepo, err := app.NewCache(cfg.Cache)
	if err != nil {
		return fmt.Errorf("init cache: %w", err)
	}
	defer cacheRepo.Close()

	// Enable debug mode in development environment
	debug := cfg.Server.Environment == "development"
	provider, err := app.NewCatalogProvider(cfg.Catalog, debug, logger)
	if err != nil {
		return fmt.Errorf("init catalog provider: %w", err)
	}

	// Initialize usecase layer
	engine := usecase.BuildComparisonEngine(app.EngineConfig(cfg.Matching), logger)
	catalogs := usecase.NewCatalogService(provider, logger)
	comparisons := usecase.NewComparisonService(
		cacheRepo,
		catalogs,
		engine,
		usecase.ComparisonServiceConfig{CacheTTL: cfg.Cache.TTL},
		logger,
	)

	logger.Info().
		Float64("similarity_threshold", cfg.Matching.SimilarityThreshold).
		Float64("quantity_tolerance", cfg.Matching.QuantityTolerance).
		Bool("fuzzy", cfg.Matching.EnableFuzzyMatching).
		Str("unrecognized_unit_policy", cfg.Matching.UnrecognizedUnitPolicy).
		Msg("Matching configured")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A failed initial load is not fatal; the first query retries it
	if _, err := catalogs.Refresh(ctx); err != nil {
		logger.Warn().Err(err).Msg("Initial catalog load failed")
	}
	go catalogs.Run(ctx, cfg.Catalog.RefreshInterval)

	handler := httpDelivery.NewHandler(comparisons, catalogs, logger)
	router := httpDelivery.SetupRouter(cfg, handler, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("Server listening")
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info().Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
		return srv.Close()
	}

	logger.Info().Msg("Server stopped")
	return nil
}
