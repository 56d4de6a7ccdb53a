// Package coordinator owns the single source of truth for the current pollen
// snapshot of one configured coordinate.
package coordinator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"golang.org/x/sync/singleflight"

	"github.com/pollenwatch/pollenwatch/internal/pollen"
	"github.com/pollenwatch/pollenwatch/internal/pollen/googlepollen"
)

// ErrAuthLatched is returned once the upstream has rejected the API key.
// Scheduled retries cannot fix a bad key; the coordinator stops fetching
// until the process is reconfigured and restarted.
var ErrAuthLatched = errors.New("api key rejected, reconfiguration required")

// State describes the coordinator lifecycle.
type State string

const (
	// StateUninitialized means no refresh has been attempted yet.
	StateUninitialized State = "UNINITIALIZED"

	// StateReady means a valid snapshot is held. The coordinator stays READY
	// across later failures; the previous snapshot keeps serving reads.
	StateReady State = "READY"

	// StateFailedNoData means every attempt so far has failed and readers
	// see no data. The schedule keeps retrying.
	StateFailedNoData State = "FAILED_NO_DATA"
)

// Fetcher fetches a pollen snapshot for a coordinate.
type Fetcher interface {
	Forecast(ctx context.Context, lat, lon float64, days int) (*pollen.Snapshot, error)
	Name() string
}

// Config holds configuration for the coordinator.
type Config struct {
	// Client fetches from the upstream (required).
	Client Fetcher

	// Latitude and Longitude identify the monitored location.
	Latitude  float64
	Longitude float64

	// FetchTimeout bounds a single refresh attempt (default: 30s).
	FetchTimeout time.Duration

	// Logger for coordinator operations.
	Logger zerolog.Logger

	// Meter records refresh metrics (optional).
	Meter metric.Meter
}

// Coordinator refreshes the snapshot on demand, collapses concurrent refresh
// requests into one upstream call, and serves the last known-good snapshot
// to any number of readers. Reads never trigger fetches.
type Coordinator struct {
	client       Fetcher
	lat, lon     float64
	fetchTimeout time.Duration
	logger       zerolog.Logger

	group    singleflight.Group
	snapshot atomic.Pointer[pollen.Snapshot]

	mu                  sync.Mutex
	attempted           bool
	authLatched         bool
	consecutiveFailures int
	lastAttemptAt       time.Time
	lastError           error

	refreshCount    metric.Int64Counter
	refreshDuration metric.Float64Histogram
}

// New creates a coordinator. It performs no fetch; call Refresh (directly or
// via the scheduler) to obtain the first snapshot.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Client == nil {
		return nil, errors.New("coordinator: client is required")
	}
	if err := pollen.ValidateCoordinates(cfg.Latitude, cfg.Longitude); err != nil {
		return nil, err
	}

	fetchTimeout := cfg.FetchTimeout
	if fetchTimeout == 0 {
		fetchTimeout = 30 * time.Second
	}

	meter := cfg.Meter
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("coordinator")
	}

	refreshCount, err := meter.Int64Counter("pollen.refresh.count",
		metric.WithDescription("Refresh attempts by outcome"))
	if err != nil {
		return nil, err
	}
	refreshDuration, err := meter.Float64Histogram("pollen.refresh.duration",
		metric.WithDescription("Refresh duration in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &Coordinator{
		client:          cfg.Client,
		lat:             cfg.Latitude,
		lon:             cfg.Longitude,
		fetchTimeout:    fetchTimeout,
		logger:          cfg.Logger,
		refreshCount:    refreshCount,
		refreshDuration: refreshDuration,
	}, nil
}

// Refresh fetches a new snapshot. Concurrent callers share a single in-flight
// upstream call and all observe its result. On failure the previous snapshot
// is retained and the error returned; the caller decides whether it matters
// (the scheduler just logs it).
func (c *Coordinator) Refresh(ctx context.Context) (*pollen.Snapshot, error) {
	c.mu.Lock()
	if c.authLatched {
		c.mu.Unlock()
		return nil, ErrAuthLatched
	}
	c.mu.Unlock()

	result, err, shared := c.group.Do("refresh", func() (interface{}, error) {
		return c.doRefresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug().Msg("refresh request joined in-flight fetch")
	}
	return result.(*pollen.Snapshot), nil
}

func (c *Coordinator) doRefresh(ctx context.Context) (*pollen.Snapshot, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	start := time.Now()
	snapshot, err := c.client.Forecast(fetchCtx, c.lat, c.lon, pollen.MaxForecastDays)
	duration := time.Since(start)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempted = true
	c.lastAttemptAt = time.Now()

	if err != nil {
		c.consecutiveFailures++
		c.lastError = err
		c.recordRefresh(ctx, duration, refreshOutcome(err))

		if errors.Is(err, googlepollen.ErrInvalidAPIKey) {
			c.authLatched = true
			c.logger.Error().Err(err).
				Str("provider", c.client.Name()).
				Msg("api key rejected, disabling refresh until reconfigured")
			return nil, err
		}

		// Parse failures get their own log line for diagnosis; the retry
		// policy is the same as for any transient failure.
		event := c.logger.Warn().Err(err).
			Int("consecutive_failures", c.consecutiveFailures).
			Bool("stale_snapshot_retained", c.snapshot.Load() != nil)
		if isParseError(err) {
			event.Msg("pollen response unusable, keeping previous snapshot")
		} else {
			event.Msg("pollen refresh failed, keeping previous snapshot")
		}
		return nil, err
	}

	c.consecutiveFailures = 0
	c.lastError = nil
	c.snapshot.Store(snapshot)
	c.recordRefresh(ctx, duration, "success")

	c.logger.Info().
		Str("region", snapshot.RegionCode).
		Time("fetched_at", snapshot.FetchedAt).
		Msg("pollen snapshot updated")

	return snapshot, nil
}

func isParseError(err error) bool {
	return errors.Is(err, pollen.ErrMalformedResponse) || errors.Is(err, pollen.ErrIndexOutOfRange)
}

func refreshOutcome(err error) string {
	switch {
	case errors.Is(err, googlepollen.ErrInvalidAPIKey):
		return "auth_error"
	case isParseError(err):
		return "parse_error"
	default:
		return "fetch_error"
	}
}

func (c *Coordinator) recordRefresh(ctx context.Context, duration time.Duration, outcome string) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	c.refreshCount.Add(ctx, 1, attrs)
	c.refreshDuration.Record(ctx, duration.Seconds(), attrs)
}

// Current returns the held snapshot without triggering a fetch. ok is false
// while no refresh has ever succeeded.
func (c *Coordinator) Current() (*pollen.Snapshot, bool) {
	snapshot := c.snapshot.Load()
	return snapshot, snapshot != nil
}

// Available reports whether readers should consider entity values valid.
// Once true it stays true for the process lifetime: transient failures serve
// the previous snapshot.
func (c *Coordinator) Available() bool {
	return c.snapshot.Load() != nil
}

// State returns the coordinator lifecycle state.
func (c *Coordinator) State() State {
	if c.snapshot.Load() != nil {
		return StateReady
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attempted {
		return StateFailedNoData
	}
	return StateUninitialized
}

// Status is a point-in-time view of coordinator health for diagnostics.
type Status struct {
	State               State      `json:"state"`
	AuthLatched         bool       `json:"authLatched"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	LastAttemptAt       *time.Time `json:"lastAttemptAt,omitempty"`
	LastSuccessAt       *time.Time `json:"lastSuccessAt,omitempty"`
	LastError           string     `json:"lastError,omitempty"`
	RegionCode          string     `json:"regionCode,omitempty"`
}

// Status returns the current coordinator status.
func (c *Coordinator) Status() Status {
	snapshot := c.snapshot.Load()

	c.mu.Lock()
	defer c.mu.Unlock()

	status := Status{
		State:               StateUninitialized,
		AuthLatched:         c.authLatched,
		ConsecutiveFailures: c.consecutiveFailures,
	}
	if snapshot != nil {
		status.State = StateReady
		fetchedAt := snapshot.FetchedAt
		status.LastSuccessAt = &fetchedAt
		status.RegionCode = snapshot.RegionCode
	} else if c.attempted {
		status.State = StateFailedNoData
	}
	if !c.lastAttemptAt.IsZero() {
		at := c.lastAttemptAt
		status.LastAttemptAt = &at
	}
	if c.lastError != nil {
		status.LastError = c.lastError.Error()
	}
	return status
}
