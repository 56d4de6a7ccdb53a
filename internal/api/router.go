// Package api provides the HTTP API for pollenwatch.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/pollenwatch/pollenwatch/internal/api/handler"
	"github.com/pollenwatch/pollenwatch/internal/api/middleware"
	"github.com/pollenwatch/pollenwatch/internal/coordinator"
	"github.com/pollenwatch/pollenwatch/internal/sensor"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	Logger      zerolog.Logger
	Metrics     *middleware.Metrics
	Coordinator *coordinator.Coordinator
	Registry    *sensor.Registry
	Provider    handler.Provider
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware - order matters
	r.Use(middleware.RequestID)        // Generate/propagate request ID first
	r.Use(middleware.Tracing())        // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction

	sensorHandler := handler.NewSensorHandler(cfg.Registry)
	refreshHandler := handler.NewRefreshHandler(cfg.Coordinator)
	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.Coordinator, cfg.Provider)

	refreshRateLimit := middleware.RateLimitByIP(middleware.RefreshRateLimit)   // 10 req/min
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit) // 100 req/min

	r.Route("/v1", func(r chi.Router) {
		r.Route("/sensors", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/", sensorHandler.List)
			r.Get("/{sensorID}", sensorHandler.Get)
		})

		r.With(refreshRateLimit).Post("/refresh", refreshHandler.Trigger)

		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})
	})

	return r
}
