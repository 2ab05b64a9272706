// Package rank implements the scheduled full recompute of exact ranks.
package rank

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/shoplog/scoring-engine/internal/metrics"
	"github.com/shoplog/scoring-engine/internal/models"
	"github.com/shoplog/scoring-engine/internal/repository"
	"github.com/shoplog/scoring-engine/internal/service/scoring"
	"github.com/shoplog/scoring-engine/pkg/logger"
)

// Job re-sorts all aggregates, assigns exact 1-based positional ranks,
// reclassifies tiers defensively from the stored totals and prunes daily
// counters past the retention window.
//
// The job writes in batches so it never holds one long transaction that
// would block ordinary awards. It is a pure function of current aggregate
// state: re-running it with no intervening awards writes identical values,
// so an interrupted run leaves every committed batch valid.
type Job struct {
	store         *repository.DB
	aggRepo       *repository.AggregateRepository
	dailyRepo     *repository.DailyCounterRepository
	tiers         scoring.TierTable
	batchSize     int
	retentionDays int
	loc           *time.Location
	log           *logger.Logger
	now           func() time.Time
}

// NewJob creates the recompute job.
func NewJob(
	store *repository.DB,
	aggRepo *repository.AggregateRepository,
	dailyRepo *repository.DailyCounterRepository,
	tiers scoring.TierTable,
	batchSize int,
	retentionDays int,
	loc *time.Location,
	log *logger.Logger,
) *Job {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Job{
		store:         store,
		aggRepo:       aggRepo,
		dailyRepo:     dailyRepo,
		tiers:         tiers,
		batchSize:     batchSize,
		retentionDays: retentionDays,
		loc:           loc,
		log:           log,
		now:           time.Now,
	}
}

// SetClock overrides the job clock. Used in tests.
func (j *Job) SetClock(now func() time.Time) {
	j.now = now
}

// Run executes one full recompute. Errors are returned for logging by the
// caller; no partial-state recovery is needed because the next run rescans
// from scratch.
func (j *Job) Run(ctx context.Context) error {
	start := time.Now()
	defer func() {
		metrics.ObserveRankRecomputeDuration(time.Since(start).Seconds())
	}()

	j.log.Info().Msg("Running rank recompute job")

	ranked, err := j.recomputeRanks(ctx)
	if err != nil {
		metrics.RecordRankRecomputeRun("error")
		return err
	}

	pruned, err := j.pruneCounters()
	if err != nil {
		metrics.RecordRankRecomputeRun("error")
		return err
	}

	metrics.RecordRankRecomputeRun("success")
	metrics.SetRankRecomputeLastRun()
	metrics.SetTrackedUsers(int64(ranked))

	j.log.Info().
		Int("users_ranked", ranked).
		Int64("counters_pruned", pruned).
		Dur("duration", time.Since(start)).
		Msg("Rank recompute complete")
	return nil
}

// recomputeRanks walks the aggregates in leaderboard order and writes each
// row's positional rank and reclassified tier, one transaction per batch.
// Rank and tier writes do not change the sort keys, so offset pagination
// stays consistent with respect to the job's own writes; awards committing
// concurrently may shift a few rows, which the next run corrects.
func (j *Job) recomputeRanks(ctx context.Context) (int, error) {
	ranked := 0
	for offset := 0; ; offset += j.batchSize {
		batch, err := j.aggRepo.ListOrdered(offset, j.batchSize)
		if err != nil {
			return ranked, fmt.Errorf("load aggregate batch at %d: %w", offset, err)
		}
		if len(batch) == 0 {
			break
		}

		err = j.store.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			aggTx := j.aggRepo.WithTx(&repository.DB{DB: tx})
			for i, agg := range batch {
				rank := offset + i + 1
				tier := j.tiers.Classify(agg.TotalPoints)
				if err := aggTx.UpdateRankAndTier(agg.UserID, rank, tier); err != nil {
					return fmt.Errorf("write rank for user %d: %w", agg.UserID, err)
				}
			}
			return nil
		})
		if err != nil {
			return ranked, fmt.Errorf("commit rank batch at %d: %w", offset, err)
		}
		ranked += len(batch)

		if len(batch) < j.batchSize {
			break
		}
	}
	return ranked, nil
}

// pruneCounters deletes daily counters older than the retention window.
func (j *Job) pruneCounters() (int64, error) {
	cutoff := j.now().In(j.loc).AddDate(0, 0, -j.retentionDays)
	pruned, err := j.dailyRepo.PruneOlderThan(models.DayKey(cutoff, j.loc))
	if err != nil {
		return 0, fmt.Errorf("prune daily counters: %w", err)
	}
	return pruned, nil
}
