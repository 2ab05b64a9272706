// Package scoring implements the activity recorder: it converts discrete
// user actions into point awards, maintains the per-user ranking aggregate
// (points, tier, streak) and triggers badge evaluation after each award.
package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"

	"github.com/shoplog/scoring-engine/internal/config"
	"github.com/shoplog/scoring-engine/internal/metrics"
	"github.com/shoplog/scoring-engine/internal/models"
	"github.com/shoplog/scoring-engine/internal/repository"
	"github.com/shoplog/scoring-engine/pkg/logger"
)

// BadgeEvaluator evaluates badge rules for one user. It runs strictly after
// the award transaction commits so it observes the post-award totals.
type BadgeEvaluator interface {
	EvaluateUser(ctx context.Context, userID uint) ([]models.Badge, error)
}

// AwardInput describes one activity to score.
type AwardInput struct {
	UserID        uint            `json:"user_id"`
	ActivityType  string          `json:"activity_type"`
	ReferenceID   *string         `json:"reference_id,omitempty"`
	ReferenceType *string         `json:"reference_type,omitempty"`
	Multiplier    float64         `json:"multiplier,omitempty"` // 0 means 1
	Metadata      json.RawMessage `json:"metadata,omitempty"`
}

// RankChange reports a tier or approximate-rank movement caused by an award.
type RankChange struct {
	OldTier string `json:"old_tier"`
	NewTier string `json:"new_tier"`
	OldRank *int   `json:"old_rank,omitempty"`
	NewRank int    `json:"new_rank"`
}

// AwardResult is the outcome of a successful award.
type AwardResult struct {
	Record     *models.ActivityRecord `json:"activity"`
	NewBadges  []models.Badge         `json:"new_badges"`
	RankChange *RankChange            `json:"rank_change,omitempty"`
}

// Service is the activity recorder.
type Service struct {
	store        *repository.DB
	activityRepo *repository.ActivityRepository
	aggRepo      *repository.AggregateRepository
	tracker      *DailyActivityTracker
	badges       BadgeEvaluator
	scoring      *config.ScoringConfig
	tiers        TierTable
	loc          *time.Location
	log          *logger.Logger
	now          func() time.Time
}

// NewService creates a new scoring service.
func NewService(
	store *repository.DB,
	activityRepo *repository.ActivityRepository,
	aggRepo *repository.AggregateRepository,
	tracker *DailyActivityTracker,
	badges BadgeEvaluator,
	scoring *config.ScoringConfig,
	loc *time.Location,
	log *logger.Logger,
) *Service {
	return &Service{
		store:        store,
		activityRepo: activityRepo,
		aggRepo:      aggRepo,
		tracker:      tracker,
		badges:       badges,
		scoring:      scoring,
		tiers:        NewTierTable(scoring.Tiers),
		loc:          loc,
		log:          log,
		now:          time.Now,
	}
}

// SetClock overrides the service clock. Used in tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Tiers returns the tier table the service classifies with.
func (s *Service) Tiers() TierTable {
	return s.tiers
}

// Award validates the activity, enforces the daily cap, then appends the
// activity record, applies the points to the aggregate and updates today's
// counter in one transaction. Badge evaluation runs best-effort after the
// transaction commits.
func (s *Service) Award(ctx context.Context, input AwardInput) (*AwardResult, error) {
	start := time.Now()

	st := s.scoring.ScoreType(input.ActivityType)
	if st == nil {
		metrics.RecordAward(input.ActivityType, "unknown_type")
		return nil, fmt.Errorf("%w: %q", ErrUnknownActivityType, input.ActivityType)
	}

	multiplier := input.Multiplier
	if multiplier == 0 {
		multiplier = 1
	}
	if multiplier < 0 || math.IsNaN(multiplier) || math.IsInf(multiplier, 0) {
		metrics.RecordAward(input.ActivityType, "invalid_multiplier")
		return nil, fmt.Errorf("%w: %v", ErrInvalidMultiplier, input.Multiplier)
	}

	now := s.now()

	limited, err := s.tracker.LimitReached(input.UserID, st, now)
	if err != nil {
		return nil, s.storeErr("daily limit check", err)
	}
	if limited {
		metrics.RecordAward(input.ActivityType, "daily_limit")
		metrics.RecordDailyLimitRejection(input.ActivityType)
		return nil, fmt.Errorf("%w: %s cap is %d/day", ErrDailyLimitExceeded, st.Type, st.DailyCap)
	}

	points := int(math.Round(float64(st.Points) * multiplier))

	// Pre-award snapshot for the rank-change report.
	prev, err := s.aggRepo.GetByUserID(input.UserID)
	if err != nil {
		return nil, s.storeErr("aggregate read", err)
	}
	oldTier := s.tiers.Lowest()
	var oldRank *int
	if prev != nil {
		oldTier = prev.Tier
		ahead, err := s.aggRepo.CountWithMorePoints(prev.TotalPoints)
		if err != nil {
			return nil, s.storeErr("rank count", err)
		}
		rank := int(ahead) + 1
		oldRank = &rank
	}

	record := &models.ActivityRecord{
		UserID:        input.UserID,
		ActivityType:  st.Type,
		PointsAwarded: points,
		ReferenceID:   input.ReferenceID,
		ReferenceType: input.ReferenceType,
		Metadata:      input.Metadata,
		CreatedAt:     now,
	}

	var (
		newPoints int64
		newTier   string
		streak    int
	)

	err = s.store.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txDB := &repository.DB{DB: tx}

		if err := s.activityRepo.WithTx(txDB).Create(record); err != nil {
			return fmt.Errorf("append activity record: %w", err)
		}

		aggTx := s.aggRepo.WithTx(txDB)
		agg, err := aggTx.GetOrCreate(input.UserID, s.tiers.Lowest())
		if err != nil {
			return fmt.Errorf("fetch-or-create aggregate: %w", err)
		}

		// Store-level increment, then a read inside the same transaction.
		// The read sees our increment, so the tier is derived from the
		// post-award total even when awards for this user race.
		if err := aggTx.IncrementPoints(input.UserID, points); err != nil {
			return fmt.Errorf("increment points: %w", err)
		}
		fresh, err := aggTx.GetByUserID(input.UserID)
		if err != nil {
			return fmt.Errorf("reload aggregate: %w", err)
		}
		newPoints = fresh.TotalPoints
		newTier = s.tiers.Classify(newPoints)

		activeYesterday, err := s.tracker.ActiveYesterday(txDB, input.UserID, now)
		if err != nil {
			return fmt.Errorf("streak lookup: %w", err)
		}
		streak = nextStreak(agg.StreakDays, agg.LastActivityAt, now, s.loc, activeYesterday)

		if err := aggTx.UpdateDerived(input.UserID, newTier, streak, now); err != nil {
			return fmt.Errorf("update aggregate: %w", err)
		}

		if err := s.tracker.Record(txDB, input.UserID, now, points); err != nil {
			return fmt.Errorf("record daily counter: %w", err)
		}
		return nil
	})
	if err != nil {
		metrics.RecordAward(input.ActivityType, "store_error")
		return nil, s.storeErr("award transaction", err)
	}

	ahead, err := s.aggRepo.CountWithMorePoints(newPoints)
	if err != nil {
		return nil, s.storeErr("rank count", err)
	}
	newRank := int(ahead) + 1

	var rankChange *RankChange
	if newTier != oldTier || oldRank == nil || *oldRank != newRank {
		rankChange = &RankChange{
			OldTier: oldTier,
			NewTier: newTier,
			OldRank: oldRank,
			NewRank: newRank,
		}
	}

	// Badge evaluation is best-effort: a failure here never rolls back the
	// committed award, it is logged and the badges are omitted.
	var newBadges []models.Badge
	if s.badges != nil {
		newBadges, err = s.badges.EvaluateUser(ctx, input.UserID)
		if err != nil {
			s.log.Warn().
				Err(err).
				Uint("user_id", input.UserID).
				Msg("Badge evaluation failed after award")
			newBadges = nil
		}
	}

	metrics.RecordAward(input.ActivityType, "success")
	metrics.ObserveAwardDuration(time.Since(start).Seconds())

	s.log.Info().
		Uint("user_id", input.UserID).
		Str("activity_type", st.Type).
		Int("points", points).
		Int64("total_points", newPoints).
		Str("tier", newTier).
		Int("streak_days", streak).
		Msg("Activity awarded")

	return &AwardResult{
		Record:     record,
		NewBadges:  newBadges,
		RankChange: rankChange,
	}, nil
}

func (s *Service) storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(ErrStoreUnavailable, err))
}
