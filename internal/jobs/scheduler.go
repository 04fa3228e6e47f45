// Package jobs runs periodic maintenance on a cron schedule.
package jobs

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// SessionPurger removes expired sessions.
type SessionPurger interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Sweeper drops stale in-memory state, such as rate limiter buckets.
type Sweeper interface {
	Cleanup()
}

type Scheduler struct {
	cron     *cron.Cron
	schedule string
	sessions SessionPurger
	sweepers []Sweeper
	logger   *slog.Logger
}

// NewScheduler builds a scheduler that runs the cleanup task on schedule, a
// standard cron expression or descriptor such as "@every 15m".
func NewScheduler(schedule string, sessions SessionPurger, logger *slog.Logger, sweepers ...Sweeper) *Scheduler {
	if schedule == "" {
		schedule = "@every 15m"
	}
	return &Scheduler{
		cron:     cron.New(),
		schedule: schedule,
		sessions: sessions,
		sweepers: sweepers,
		logger:   logger,
	}
}

// Start registers the cleanup task and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.schedule, func() { s.RunCleanup(ctx) }); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("scheduler started", "cleanup_schedule", s.schedule)
	return nil
}

// RunCleanup purges expired sessions and sweeps in-memory state once.
func (s *Scheduler) RunCleanup(ctx context.Context) {
	if s.sessions != nil {
		n, err := s.sessions.DeleteExpired(ctx)
		if err != nil {
			s.logger.Error("purge expired sessions", "error", err)
		} else if n > 0 {
			s.logger.Info("purged expired sessions", "count", n)
		}
	}
	for _, sw := range s.sweepers {
		sw.Cleanup()
	}
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}
