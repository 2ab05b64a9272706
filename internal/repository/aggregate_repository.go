package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/shoplog/scoring-engine/internal/models"
)

// AggregateRepository handles the per-user ranking aggregate rows.
type AggregateRepository struct {
	db *DB
}

// NewAggregateRepository creates a new aggregate repository.
func NewAggregateRepository(db *DB) *AggregateRepository {
	return &AggregateRepository{db: db}
}

// WithTx returns a copy of the repository bound to an open transaction.
func (r *AggregateRepository) WithTx(tx *DB) *AggregateRepository {
	return &AggregateRepository{db: tx}
}

// GetByUserID retrieves a user's aggregate row, or nil if the user has no
// recorded activity yet.
func (r *AggregateRepository) GetByUserID(userID uint) (*models.UserRankingAggregate, error) {
	var agg models.UserRankingAggregate
	err := r.db.Where("user_id = ?", userID).First(&agg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

// GetOrCreate fetches a user's aggregate row, creating it with zero points,
// a zero streak and the given lowest tier on first contact. LastActivityAt
// stays at the zero time until the first award's derived-field update, so
// streak computation can tell a brand-new row from a same-day repeat.
func (r *AggregateRepository) GetOrCreate(userID uint, lowestTier string) (*models.UserRankingAggregate, error) {
	agg := models.UserRankingAggregate{
		UserID: userID,
		Tier:   lowestTier,
	}
	err := r.db.
		Where(models.UserRankingAggregate{UserID: userID}).
		Attrs(agg).
		FirstOrCreate(&agg).Error
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

// IncrementPoints applies a store-level atomic increment to a user's total.
// Run inside the award transaction so the subsequent derived-field update
// observes the new total.
func (r *AggregateRepository) IncrementPoints(userID uint, points int) error {
	return r.db.Model(&models.UserRankingAggregate{}).
		Where("user_id = ?", userID).
		UpdateColumn("total_points", gorm.Expr("total_points + ?", points)).Error
}

// UpdateDerived writes the recomputed tier, streak and last-activity fields.
func (r *AggregateRepository) UpdateDerived(userID uint, tier string, streakDays int, lastActivityAt time.Time) error {
	return r.db.Model(&models.UserRankingAggregate{}).
		Where("user_id = ?", userID).
		UpdateColumns(map[string]interface{}{
			"tier":             tier,
			"streak_days":      streakDays,
			"last_activity_at": lastActivityAt,
			"updated_at":       time.Now(),
		}).Error
}

// CountWithMorePoints counts aggregates with strictly more points. The
// approximate rank of a user is 1 plus this count.
func (r *AggregateRepository) CountWithMorePoints(points int64) (int64, error) {
	var count int64
	err := r.db.Model(&models.UserRankingAggregate{}).
		Where("total_points > ?", points).
		Count(&count).Error
	return count, err
}

// CountAhead counts aggregates that sort ahead of the given (points,
// lastActivityAt) pair in leaderboard order: more points, or equal points
// reached earlier.
func (r *AggregateRepository) CountAhead(points int64, lastActivityAt time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&models.UserRankingAggregate{}).
		Where("total_points > ? OR (total_points = ? AND last_activity_at < ?)",
			points, points, lastActivityAt).
		Count(&count).Error
	return count, err
}

// Count returns the total number of tracked users.
func (r *AggregateRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.UserRankingAggregate{}).Count(&count).Error
	return count, err
}

// leaderboardOrder is the single ordering used by every ranked view:
// highest points first, earlier achievement winning ties. The trailing
// user_id keeps the order total, so repeated scans are deterministic.
const leaderboardOrder = "total_points DESC, last_activity_at ASC, user_id ASC"

// ListOrdered returns a page of aggregates in leaderboard order.
func (r *AggregateRepository) ListOrdered(offset, limit int) ([]models.UserRankingAggregate, error) {
	var aggs []models.UserRankingAggregate
	q := r.db.Order(leaderboardOrder)
	if offset > 0 {
		q = q.Offset(offset)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&aggs).Error
	return aggs, err
}

// ListByTier returns aggregates of one tier in leaderboard order.
func (r *AggregateRepository) ListByTier(tier string, limit int) ([]models.UserRankingAggregate, error) {
	var aggs []models.UserRankingAggregate
	q := r.db.Where("tier = ?", tier).Order(leaderboardOrder)
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&aggs).Error
	return aggs, err
}

// GetByUserIDs returns the aggregates for a set of users, keyed by user ID.
func (r *AggregateRepository) GetByUserIDs(userIDs []uint) (map[uint]models.UserRankingAggregate, error) {
	var aggs []models.UserRankingAggregate
	if len(userIDs) == 0 {
		return map[uint]models.UserRankingAggregate{}, nil
	}
	if err := r.db.Where("user_id IN ?", userIDs).Find(&aggs).Error; err != nil {
		return nil, err
	}
	byID := make(map[uint]models.UserRankingAggregate, len(aggs))
	for _, agg := range aggs {
		byID[agg.UserID] = agg
	}
	return byID, nil
}

// UpdateRankAndTier overwrites a user's exact rank and tier. Used by the
// rank recompute job, which rewrites whole rows rather than applying deltas.
func (r *AggregateRepository) UpdateRankAndTier(userID uint, rank int, tier string) error {
	return r.db.Model(&models.UserRankingAggregate{}).
		Where("user_id = ?", userID).
		UpdateColumns(map[string]interface{}{
			"current_rank": rank,
			"tier":         tier,
			"updated_at":   time.Now(),
		}).Error
}
