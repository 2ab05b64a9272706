package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shoplog/scoring-engine/internal/models"
)

// DailyCounterRepository handles the per-user/per-day activity counters.
type DailyCounterRepository struct {
	db *DB
}

// NewDailyCounterRepository creates a new daily counter repository.
func NewDailyCounterRepository(db *DB) *DailyCounterRepository {
	return &DailyCounterRepository{db: db}
}

// WithTx returns a copy of the repository bound to an open transaction.
func (r *DailyCounterRepository) WithTx(tx *DB) *DailyCounterRepository {
	return &DailyCounterRepository{db: tx}
}

// Record upserts the counter row for (userID, day), incrementing the earned
// points and activity count in place so concurrent awards never lose counts.
func (r *DailyCounterRepository) Record(userID uint, day string, points int) error {
	counter := models.DailyActivityCounter{
		UserID:        userID,
		Day:           day,
		PointsEarned:  points,
		ActivityCount: 1,
	}
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "day"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"points_earned":  gorm.Expr("points_earned + ?", points),
			"activity_count": gorm.Expr("activity_count + 1"),
			"updated_at":     time.Now(),
		}),
	}).Create(&counter).Error
}

// Exists reports whether a counter row exists for (userID, day).
func (r *DailyCounterRepository) Exists(userID uint, day string) (bool, error) {
	var count int64
	err := r.db.Model(&models.DailyActivityCounter{}).
		Where("user_id = ? AND day = ?", userID, day).
		Count(&count).Error
	return count > 0, err
}

// Get returns the counter row for (userID, day), or nil if absent.
func (r *DailyCounterRepository) Get(userID uint, day string) (*models.DailyActivityCounter, error) {
	var counter models.DailyActivityCounter
	err := r.db.Where("user_id = ? AND day = ?", userID, day).First(&counter).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &counter, nil
}

// PruneOlderThan deletes counter rows for days before the cutoff day key and
// returns how many rows were removed. Day keys sort lexicographically.
func (r *DailyCounterRepository) PruneOlderThan(cutoffDay string) (int64, error) {
	res := r.db.Where("day < ?", cutoffDay).Delete(&models.DailyActivityCounter{})
	return res.RowsAffected, res.Error
}
