// Package scheduler runs jobs on a fixed interval.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Scheduler wraps a gocron scheduler. A job never overlaps a still running
// invocation of itself.
type Scheduler struct {
	cron   *gocron.Scheduler
	logger *slog.Logger
}

// New creates a stopped Scheduler.
func New(logger *slog.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{cron: s, logger: logger}
}

// Every registers job to run immediately on Start and then every interval.
// The job receives ctx and is skipped once ctx is done.
func (s *Scheduler) Every(ctx context.Context, name string, interval time.Duration, job Job) error {
	_, err := s.cron.Every(interval).Tag(name).Do(func() {
		if ctx.Err() != nil {
			return
		}
		start := time.Now()
		if err := job(ctx); err != nil {
			s.logger.Error("scheduled job failed", "job", name, "error", err)
			return
		}
		s.logger.Debug("scheduled job finished", "job", name, "duration", time.Since(start))
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return nil
}

// Start runs the scheduler in the background.
func (s *Scheduler) Start() {
	s.cron.StartAsync()
}

// Stop halts scheduling and waits for running jobs.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
