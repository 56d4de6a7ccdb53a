// Package scheduler drives the coordinator's fixed refresh cadence.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"github.com/pollenwatch/pollenwatch/internal/coordinator"
)

// DefaultInterval is the wall-clock spacing between refresh attempts. The
// upstream data changes slowly and the interval also respects its rate
// limits, so failures wait for the next tick rather than retrying sooner.
const DefaultInterval = 6 * time.Hour

// Scheduler periodically refreshes the coordinator.
type Scheduler struct {
	scheduler   *gocron.Scheduler
	coordinator *coordinator.Coordinator
	interval    time.Duration
	logger      zerolog.Logger
}

// New creates a scheduler around a coordinator. If interval is zero,
// DefaultInterval is used.
func New(c *coordinator.Coordinator, interval time.Duration, logger zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		scheduler:   gocron.NewScheduler(time.UTC),
		coordinator: c,
		interval:    interval,
		logger:      logger,
	}
}

// Start schedules the refresh job and starts the scheduler. The first run
// fires immediately so readers get data at startup instead of waiting a full
// interval; subsequent runs follow the fixed cadence whether or not the
// previous attempt succeeded.
func (s *Scheduler) Start() error {
	_, err := s.scheduler.Every(s.interval).StartImmediately().Do(s.runRefresh)
	if err != nil {
		return err
	}
	s.scheduler.StartAsync()
	s.logger.Info().Dur("interval", s.interval).Msg("refresh schedule started")
	return nil
}

func (s *Scheduler) runRefresh() {
	_, err := s.coordinator.Refresh(context.Background())
	switch {
	case err == nil:
		// Outcome already logged by the coordinator.
	case errors.Is(err, coordinator.ErrAuthLatched):
		s.logger.Debug().Msg("refresh skipped, api key latched as invalid")
	default:
		s.logger.Warn().Err(err).Msg("scheduled refresh failed, next attempt at regular interval")
	}
}

// Stop stops the schedule. An in-flight refresh is not cancelled; it simply
// becomes the last one.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
	s.logger.Info().Msg("refresh schedule stopped")
}
