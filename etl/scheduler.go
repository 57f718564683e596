package etl

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"turbinelens/config"
	"turbinelens/database"
	"turbinelens/mart"
)

// RunCleaner deletes expired ingestion runs.
type RunCleaner interface {
	CleanupOldRuns(retentionDays int, now time.Time) (database.CleanupResult, error)
}

// MartRefresher rebuilds the alert mart.
type MartRefresher interface {
	Refresh() (mart.Stats, error)
}

// Scheduler handles periodic retention cleanup and mart refresh
type Scheduler struct {
	cfg         *config.Config
	repo        RunCleaner
	martBuilder MartRefresher
	ticker      *time.Ticker
	quit        chan struct{}
	stopOnce    sync.Once
	now         func() time.Time
}

// NewScheduler creates a new scheduler
func NewScheduler(cfg *config.Config, repo RunCleaner, martBuilder MartRefresher) *Scheduler {
	return &Scheduler{
		cfg:         cfg,
		repo:        repo,
		martBuilder: martBuilder,
		quit:        make(chan struct{}),
		now:         time.Now,
	}
}

// Start begins the scheduling loop
func (s *Scheduler) Start() {
	if !s.cfg.Scheduler.Enabled {
		log.Info().Msg("scheduler is disabled by config")
		return
	}

	interval := time.Duration(s.cfg.Scheduler.IntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 60 * time.Minute
	}

	log.Info().Dur("interval", interval).Int("retention_days", s.cfg.Retention.IngestionDays).Msg("starting scheduler")
	s.ticker = time.NewTicker(interval)

	go func() {
		for {
			select {
			case <-s.ticker.C:
				s.RunJob()
			case <-s.quit:
				s.ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	if s.ticker != nil {
		s.stopOnce.Do(func() { close(s.quit) })
	}
}

// RunJob executes the retention cleanup and mart refresh
func (s *Scheduler) RunJob() {
	log.Debug().Msg("scheduler job starting")

	if days := s.cfg.Retention.IngestionDays; days > 0 {
		res, err := s.repo.CleanupOldRuns(days, s.now())
		if err != nil {
			log.Error().Err(err).Msg("run cleanup failed")
		} else if res.Runs > 0 || res.CacheEntries > 0 {
			log.Info().Int64("runs", res.Runs).Int64("records", res.Records).Int64("alerts", res.Alerts).
				Int64("cache_entries", res.CacheEntries).Msg("retention cleanup completed")
		}
	}

	if _, err := s.martBuilder.Refresh(); err != nil {
		log.Error().Err(err).Msg("mart refresh failed")
	}

	log.Debug().Msg("scheduler job finished")
}
