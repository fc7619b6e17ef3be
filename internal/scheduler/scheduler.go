// Package scheduler periodically refreshes the dataset and drops cached models
// so new CSV snapshots and retrained artifacts are picked up without a restart.
package scheduler

import (
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/couchcryptid/air-quality-forecast/internal/observability"
)

// Reloader re-reads a data source.
type Reloader interface {
	Reload() error
}

// Purger drops cached state.
type Purger interface {
	Purge()
}

// Scheduler runs Refresh every interval.
type Scheduler struct {
	scheduler *gocron.Scheduler
	reloader  Reloader
	cache     Purger
	interval  time.Duration
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// New creates a Scheduler. Either reloader or cache may be nil.
func New(interval time.Duration, reloader Reloader, cache Purger, logger *slog.Logger, metrics *observability.Metrics) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		reloader:  reloader,
		cache:     cache,
		interval:  interval,
		logger:    logger,
		metrics:   metrics,
	}
}

// Start schedules the refresh job and starts the underlying scheduler. The
// first run happens one interval from now since data was loaded at startup.
func (s *Scheduler) Start() error {
	if s.reloader == nil && s.cache == nil {
		s.logger.Info("scheduler: nothing to refresh")
		return nil
	}
	if _, err := s.scheduler.Every(s.interval).WaitForSchedule().Do(s.Refresh); err != nil {
		return err
	}
	s.scheduler.StartAsync()
	s.logger.Info("scheduler started", "interval", s.interval)
	return nil
}

// Refresh reloads the data source and purges the model cache. A failed reload
// keeps the previous snapshot; the cache is purged either way.
func (s *Scheduler) Refresh() {
	if s.reloader != nil {
		if err := s.reloader.Reload(); err != nil {
			s.metrics.DatasetReloads.WithLabelValues("error").Inc()
			s.logger.Error("dataset reload failed, serving previous snapshot", "error", err)
		} else {
			s.metrics.DatasetReloads.WithLabelValues("success").Inc()
		}
	}
	if s.cache != nil {
		s.cache.Purge()
		s.logger.Debug("model cache purged")
	}
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
