package usecase

import (
	"context"
	"io"
	"log/slog"
	"time"

	"AdobeDigest/internal/ports"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context, trigger time.Time) error

// Scheduler wires the cron driver with a job, normally scrape followed by publish.
type Scheduler struct {
	driver ports.Scheduler
	job    Job
	logger *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring jobs.
func NewScheduler(driver ports.Scheduler, job Job, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Scheduler{driver: driver, job: job, logger: logger}
}

// Start registers the job with the driver. Job errors are logged; the schedule keeps going.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.job == nil {
		return nil
	}

	return s.driver.Start(ctx, func(trigger time.Time) {
		s.logger.Info("scheduled run started", "trigger", trigger)
		if err := s.job(ctx, trigger); err != nil {
			s.logger.Error("scheduled run failed", "error", err)
			return
		}
		s.logger.Info("scheduled run finished", "elapsed", time.Since(trigger).Round(time.Millisecond))
	})
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
