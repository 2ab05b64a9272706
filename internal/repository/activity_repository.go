package repository

import (
	"time"

	"github.com/shoplog/scoring-engine/internal/models"
)

// ActivityRepository handles the append-only activity log.
type ActivityRepository struct {
	db *DB
}

// NewActivityRepository creates a new activity repository.
func NewActivityRepository(db *DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// WithTx returns a copy of the repository bound to an open transaction.
func (r *ActivityRepository) WithTx(tx *DB) *ActivityRepository {
	return &ActivityRepository{db: tx}
}

// Create appends a new activity record. Records are immutable afterwards.
func (r *ActivityRepository) Create(record *models.ActivityRecord) error {
	return r.db.Create(record).Error
}

// CountInWindow returns how many records of one type a user logged in
// [start, end). Used for daily cap checks.
func (r *ActivityRepository) CountInWindow(userID uint, activityType string, start, end time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&models.ActivityRecord{}).
		Where("user_id = ? AND activity_type = ? AND created_at >= ? AND created_at < ?",
			userID, activityType, start, end).
		Count(&count).Error
	return count, err
}

// CountByType returns a user's lifetime record count for one activity type.
func (r *ActivityRepository) CountByType(userID uint, activityType string) (int64, error) {
	var count int64
	err := r.db.Model(&models.ActivityRecord{}).
		Where("user_id = ? AND activity_type = ?", userID, activityType).
		Count(&count).Error
	return count, err
}

// RecentByUser returns a user's most recent activity records.
func (r *ActivityRepository) RecentByUser(userID uint, limit int) ([]models.ActivityRecord, error) {
	var records []models.ActivityRecord
	err := r.db.
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// WeeklyTotal is one row of the weekly points aggregation.
type WeeklyTotal struct {
	UserID uint  `json:"user_id"`
	Points int64 `json:"points"`
}

// WeeklyTotals sums points awarded per user since the given time, ordered by
// the summed points descending.
func (r *ActivityRepository) WeeklyTotals(since time.Time, limit int) ([]WeeklyTotal, error) {
	var totals []WeeklyTotal
	q := r.db.Model(&models.ActivityRecord{}).
		Select("user_id, SUM(points_awarded) AS points").
		Where("created_at >= ?", since).
		Group("user_id").
		Order("points DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Scan(&totals).Error
	return totals, err
}
