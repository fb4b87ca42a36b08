package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/degreeday-logger/internal/dglogger"
)

// Refresher runs one refresh cycle over all running loggers.
type Refresher interface {
	RefreshAll(ctx context.Context) dglogger.CycleReport
}

// CachePurger drops expired sample cache entries.
type CachePurger interface {
	Purge() int
}

// Scheduler periodically refreshes running loggers and purges the sample cache.
type Scheduler struct {
	scheduler *gocron.Scheduler
	refresher Refresher
	cache     CachePurger
	interval  time.Duration
	timeout   time.Duration
	logger    *slog.Logger
}

// New creates a new Scheduler. cache may be nil.
func New(refresher Refresher, cache CachePurger, interval time.Duration, tz *time.Location, logger *slog.Logger) *Scheduler {
	if tz == nil {
		tz = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	s := gocron.NewScheduler(tz)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		refresher: refresher,
		cache:     cache,
		interval:  interval,
		timeout:   2 * time.Minute,
		logger:    logger.With("component", "scheduler"),
	}
}

// Start schedules the periodic jobs and starts the underlying scheduler.
// The refresh job runs once immediately.
func (s *Scheduler) Start() error {
	_, err := s.scheduler.Every(s.interval).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		report := s.refresher.RefreshAll(ctx)
		s.logger.Debug("refresh job completed",
			"refreshed", report.Refreshed,
			"skipped", report.Skipped,
			"failed", report.Failed,
		)
	})
	if err != nil {
		return err
	}

	if s.cache != nil {
		_, err = s.scheduler.Every(time.Hour).WaitForSchedule().Do(func() {
			if n := s.cache.Purge(); n > 0 {
				s.logger.Info("purged expired samples", "entries", n)
			}
		})
		if err != nil {
			return err
		}
	}

	s.scheduler.StartAsync()
	s.logger.Info("scheduler started", "interval", s.interval)
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
