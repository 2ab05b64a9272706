package models

import (
	"time"
)

// UserRankingAggregate is the mutable per-user summary row derived from the
// activity log: total points, tier, streak and the last exact rank. One row
// per user, created lazily on the first award.
//
// TotalPoints only ever grows. Tier always reflects the current TotalPoints.
// CurrentRank is exact right after a rank recompute and approximate between
// runs.
type UserRankingAggregate struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	TotalPoints    int64     `gorm:"not null;default:0;index" json:"total_points"`
	CurrentRank    *int      `json:"current_rank,omitempty"`
	Tier           string    `gorm:"not null;size:50" json:"tier"`
	StreakDays     int       `gorm:"not null;default:0" json:"streak_days"`
	LastActivityAt time.Time `gorm:"not null" json:"last_activity_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName specifies the table name for UserRankingAggregate model.
func (UserRankingAggregate) TableName() string {
	return "user_ranking_aggregates"
}

// DailyActivityCounter tracks per-user points and activity counts for one
// calendar day. Day is a date in YYYY-MM-DD form in the reference timezone,
// which keeps equality and retention comparisons portable across drivers.
// Rows past the retention window are pruned by the rank recompute job.
type DailyActivityCounter struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        uint      `gorm:"not null;uniqueIndex:idx_daily_user_day" json:"user_id"`
	Day           string    `gorm:"not null;size:10;uniqueIndex:idx_daily_user_day;index" json:"day"`
	PointsEarned  int       `gorm:"not null;default:0" json:"points_earned"`
	ActivityCount int       `gorm:"not null;default:0" json:"activity_count"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName specifies the table name for DailyActivityCounter model.
func (DailyActivityCounter) TableName() string {
	return "daily_activity_counters"
}

// DayKey formats a point in time as a counter day key in the given location.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}
