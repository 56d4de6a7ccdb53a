// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds the full service configuration. One Config describes one
// monitored coordinate; running several locations means several processes.
type Config struct {
	// APIKey is the Google Maps Platform API key.
	APIKey string `validate:"required"`

	// Latitude and Longitude identify the monitored location.
	Latitude  float64 `validate:"gte=-90,lte=90"`
	Longitude float64 `validate:"gte=-180,lte=180"`

	// RefreshInterval is the wall-clock spacing between refresh attempts.
	RefreshInterval time.Duration `validate:"min=1m"`

	// FetchTimeout bounds a single upstream fetch.
	FetchTimeout time.Duration `validate:"min=1s"`

	// Language for upstream display strings (BCP 47 code).
	Language string `validate:"required"`

	// Port the HTTP API listens on.
	Port string `validate:"required"`

	// Env is the deployment environment name.
	Env string

	// OTELEnabled turns on telemetry export.
	OTELEnabled bool

	// OTLPEndpoint receives traces and metrics when telemetry is enabled.
	OTLPEndpoint string
}

// Load reads configuration from the environment, with .env support for local
// development, and validates it. Validation failures are setup errors; the
// service refuses to start on a bad configuration.
func Load() (*Config, error) {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	latitude, err := getenvFloat("POLLEN_LATITUDE")
	if err != nil {
		return nil, err
	}
	longitude, err := getenvFloat("POLLEN_LONGITUDE")
	if err != nil {
		return nil, err
	}
	refreshInterval, err := getenvDuration("POLLEN_REFRESH_INTERVAL", 6*time.Hour)
	if err != nil {
		return nil, err
	}
	fetchTimeout, err := getenvDuration("POLLEN_FETCH_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		APIKey:          os.Getenv("POLLEN_API_KEY"),
		Latitude:        latitude,
		Longitude:       longitude,
		RefreshInterval: refreshInterval,
		FetchTimeout:    fetchTimeout,
		Language:        getenvDefault("POLLEN_LANGUAGE", "en"),
		Port:            getenvDefault("APP_PORT", "8080"),
		Env:             getenvDefault("APP_ENV", "development"),
		OTELEnabled:     os.Getenv("OTEL_ENABLED") == "true",
		OTLPEndpoint:    getenvDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvFloat(key string) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
