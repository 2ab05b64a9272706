// Package scheduler triggers the rank recompute job on a fixed cadence.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shoplog/scoring-engine/internal/config"
	"github.com/shoplog/scoring-engine/pkg/logger"
)

// RecomputeJob is the job the scheduler drives.
type RecomputeJob interface {
	Run(ctx context.Context) error
}

// Service owns the cron instance and the manual trigger used by tests and
// the admin endpoint.
type Service struct {
	cfg  *config.SchedulerConfig
	job  RecomputeJob
	log  *logger.Logger
	cron *cron.Cron
}

// NewService creates a new scheduler service.
func NewService(cfg *config.SchedulerConfig, job RecomputeJob, log *logger.Logger) *Service {
	return &Service{
		cfg: cfg,
		job: job,
		log: log,
	}
}

// Start registers the recompute job and starts the cron scheduler.
func (s *Service) Start() error {
	if !s.cfg.Enabled {
		s.log.Info().Msg("Scheduler is disabled in configuration")
		return nil
	}

	location, err := s.cfg.GetLocation()
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", s.cfg.Timezone, err)
	}

	s.cron = cron.New(cron.WithLocation(location))

	_, err = s.cron.AddFunc(s.cfg.RecomputeSchedule, func() {
		s.runRecompute(context.Background())
	})
	if err != nil {
		return fmt.Errorf("failed to register rank recompute job: %w", err)
	}

	s.cron.Start()

	entries := s.cron.Entries()
	nextRun := ""
	if len(entries) > 0 {
		nextRun = entries[0].Next.Format(time.RFC3339)
	}

	s.log.Info().
		Str("schedule", s.cfg.RecomputeSchedule).
		Str("timezone", s.cfg.Timezone).
		Str("next_run", nextRun).
		Msg("Scheduler started")
	return nil
}

// Stop gracefully shuts down the scheduler, waiting for a running job.
func (s *Service) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.log.Info().Msg("Scheduler stopped")
	}
}

// RunNow triggers one recompute immediately, outside the cron cadence.
func (s *Service) RunNow(ctx context.Context) error {
	return s.job.Run(ctx)
}

// runRecompute executes a scheduled run. Failures are logged only; the job
// retries from a clean full scan on the next cadence tick.
func (s *Service) runRecompute(ctx context.Context) {
	if err := s.job.Run(ctx); err != nil {
		s.log.Error().Err(err).Msg("Scheduled rank recompute failed")
	}
}
