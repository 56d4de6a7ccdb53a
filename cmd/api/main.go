// Package main provides the entrypoint for the pollenwatch API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/pollenwatch/pollenwatch/internal/api"
	"github.com/pollenwatch/pollenwatch/internal/api/middleware"
	"github.com/pollenwatch/pollenwatch/internal/config"
	"github.com/pollenwatch/pollenwatch/internal/coordinator"
	"github.com/pollenwatch/pollenwatch/internal/pollen"
	"github.com/pollenwatch/pollenwatch/internal/pollen/googlepollen"
	"github.com/pollenwatch/pollenwatch/internal/provider/resilience"
	"github.com/pollenwatch/pollenwatch/internal/scheduler"
	"github.com/pollenwatch/pollenwatch/internal/sensor"
	"github.com/pollenwatch/pollenwatch/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "pollenwatch-api"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting pollenwatch API")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.OTELEnabled {
		log.Info().
			Str("otlp_endpoint", cfg.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	resilienceCfg := resilience.DefaultConfig(googlepollen.ProviderName)
	resilienceCfg.Timeout = cfg.FetchTimeout

	client := googlepollen.NewClient(googlepollen.ClientConfig{
		APIKey:     cfg.APIKey,
		Language:   cfg.Language,
		HTTPClient: resilience.NewClient(resilienceCfg),
		Logger:     log,
	})

	// Probe the upstream once so configuration mistakes surface at startup
	// with a usable reason instead of as repeated refresh failures.
	probeCtx, cancelProbe := context.WithTimeout(ctx, cfg.FetchTimeout)
	err = client.Validate(probeCtx, cfg.Latitude, cfg.Longitude)
	cancelProbe()
	switch {
	case err == nil:
		log.Info().Msg("upstream credentials validated")
	case errors.Is(err, googlepollen.ErrInvalidAPIKey):
		log.Fatal().Err(err).Msg("the Google Pollen API rejected the configured key")
	case errors.Is(err, pollen.ErrInvalidCoordinates):
		log.Fatal().Err(err).Msg("the configured coordinates are out of range")
	default:
		// A transient outage at startup is not fatal; the schedule retries.
		log.Warn().Err(err).Msg("upstream unreachable at startup, continuing")
	}

	c, err := coordinator.New(coordinator.Config{
		Client:       client,
		Latitude:     cfg.Latitude,
		Longitude:    cfg.Longitude,
		FetchTimeout: cfg.FetchTimeout,
		Logger:       log,
		Meter:        tp.Meter,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create coordinator")
	}

	registry := sensor.NewRegistry(c)

	sched := scheduler.New(c, cfg.RefreshInterval, log)
	if err := sched.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start refresh schedule")
	}
	defer sched.Stop()

	router := api.NewRouter(api.RouterConfig{
		Version:     Version,
		Logger:      log,
		Metrics:     metrics,
		Coordinator: c,
		Registry:    registry,
		Provider:    client,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info().
			Str("port", cfg.Port).
			Float64("latitude", cfg.Latitude).
			Float64("longitude", cfg.Longitude).
			Dur("refresh_interval", cfg.RefreshInterval).
			Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
