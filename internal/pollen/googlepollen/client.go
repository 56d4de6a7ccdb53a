// Package googlepollen implements the Google Pollen API provider client.
package googlepollen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/pollenwatch/pollenwatch/internal/pollen"
	"github.com/pollenwatch/pollenwatch/internal/provider/resilience"
)

const (
	// ProviderName identifies this provider.
	ProviderName = "googlepollen"

	// DefaultBaseURL is the forecast lookup endpoint.
	DefaultBaseURL = "https://pollen.googleapis.com/v1/forecast:lookup"

	// DefaultLanguage is the language for upstream display strings.
	DefaultLanguage = "en"
)

// ErrInvalidAPIKey is returned when the upstream rejects the credentials
// (401) or the key has no access to the Pollen API (403). Retrying cannot
// fix it; it needs reconfiguration.
var ErrInvalidAPIKey = errors.New("invalid or unauthorized api key")

// ClientConfig holds configuration for the client.
type ClientConfig struct {
	// APIKey is the Google Maps Platform API key (required).
	APIKey string

	// BaseURL overrides the lookup endpoint (optional, used in tests).
	BaseURL string

	// Language for upstream display strings (optional, defaults to "en").
	Language string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient *resilience.Client

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client fetches pollen forecasts from the Google Pollen API.
type Client struct {
	apiKey     string
	baseURL    string
	language   string
	httpClient *resilience.Client
	logger     zerolog.Logger
}

// NewClient creates a new Google Pollen client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	language := cfg.Language
	if language == "" {
		language = DefaultLanguage
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultConfig(ProviderName))
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		language:   language,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Health returns upstream health as seen by the underlying HTTP client.
func (c *Client) Health() resilience.Health {
	return c.httpClient.Health()
}

// Forecast fetches current conditions plus the forecast window for a
// coordinate and parses them into a snapshot.
func (c *Client) Forecast(ctx context.Context, lat, lon float64, days int) (*pollen.Snapshot, error) {
	if err := pollen.ValidateCoordinates(lat, lon); err != nil {
		return nil, err
	}
	if days < 1 || days > pollen.MaxForecastDays {
		days = pollen.MaxForecastDays
	}

	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("location.latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("location.longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("days", strconv.Itoa(days))
	params.Set("languageCode", c.language)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("%w: status 401", ErrInvalidAPIKey)
	case resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: key has no access to the Pollen API", ErrInvalidAPIKey)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	snapshot, err := pollen.ParseForecast(body, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("region", snapshot.RegionCode).
		Int("days", days).
		Msg("fetched pollen forecast")

	return snapshot, nil
}

// Validate performs a one-shot probe fetch to confirm the key and coordinate
// work. Used at setup; failures here are configuration errors, not runtime
// coordinator failures.
func (c *Client) Validate(ctx context.Context, lat, lon float64) error {
	_, err := c.Forecast(ctx, lat, lon, 1)
	return err
}
