// Package main provides the catalog assistant API server entrypoint.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/bootstrap"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/config"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/observability"
)

// version is set at build time with -ldflags.
var version = "dev"

func main() {
	cfgPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})

	logger.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("store", cfg.Store.Driver).
		Str("cache", cfg.Cache.Driver).
		Str("version", version).
		Msg("Starting catalog assistant API")

	ctx := context.Background()
	app, err := bootstrap.New(ctx, cfg, logger, bootstrap.Options{Migrate: cfg.IsDevelopment()})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize engine")
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to release resources")
		}
	}()

	if err := app.Ready(ctx); err != nil {
		// Serve anyway; /ready reports the outage until the store comes back.
		logger.Warn().Err(err).Msg("Content store not reachable at startup")
	}

	deps := RouterDeps{
		Engine:    app.Engine,
		Ready:     app.Ready,
		Server:    cfg.Server,
		RateLimit: cfg.RateLimit,
		Version:   version,
	}
	if app.Metrics != nil {
		deps.Metrics = app.Metrics.Handler()
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      NewRouter(logger, deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("HTTP server listening")
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Server error")
		}
	case sig := <-shutdown:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
		if err := srv.Close(); err != nil {
			logger.Error().Err(err).Msg("Forced shutdown failed")
		}
	}

	logger.Info().Msg("Server stopped")
}
