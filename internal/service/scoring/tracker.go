package scoring

import (
	"time"

	"github.com/shoplog/scoring-engine/internal/config"
	"github.com/shoplog/scoring-engine/internal/models"
	"github.com/shoplog/scoring-engine/internal/repository"
)

// DailyActivityTracker maintains the per-user/per-day counters and answers
// rate-limit questions. The cap check counts same-day activity records of
// the capped type, because the counter row aggregates across all types.
type DailyActivityTracker struct {
	activityRepo *repository.ActivityRepository
	dailyRepo    *repository.DailyCounterRepository
	loc          *time.Location
}

// NewDailyActivityTracker creates a new tracker.
func NewDailyActivityTracker(
	activityRepo *repository.ActivityRepository,
	dailyRepo *repository.DailyCounterRepository,
	loc *time.Location,
) *DailyActivityTracker {
	return &DailyActivityTracker{
		activityRepo: activityRepo,
		dailyRepo:    dailyRepo,
		loc:          loc,
	}
}

// LimitReached reports whether today's record count for the score type
// already meets its daily cap. Uncapped types never hit the limit.
func (t *DailyActivityTracker) LimitReached(userID uint, st *config.ScoreType, now time.Time) (bool, error) {
	if st.DailyCap <= 0 {
		return false, nil
	}
	start, end := t.dayBounds(now)
	count, err := t.activityRepo.CountInWindow(userID, st.Type, start, end)
	if err != nil {
		return false, err
	}
	return count >= int64(st.DailyCap), nil
}

// Record upserts today's counter row inside the award transaction.
func (t *DailyActivityTracker) Record(tx *repository.DB, userID uint, now time.Time, points int) error {
	return t.dailyRepo.WithTx(tx).Record(userID, models.DayKey(now, t.loc), points)
}

// ActiveYesterday reports whether the user has a counter row for the
// calendar day before now.
func (t *DailyActivityTracker) ActiveYesterday(tx *repository.DB, userID uint, now time.Time) (bool, error) {
	yesterday := models.DayKey(now.In(t.loc).AddDate(0, 0, -1), t.loc)
	return t.dailyRepo.WithTx(tx).Exists(userID, yesterday)
}

// dayBounds returns the [start, end) instants of now's calendar day in the
// reference timezone.
func (t *DailyActivityTracker) dayBounds(now time.Time) (time.Time, time.Time) {
	local := now.In(t.loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, t.loc)
	return start, start.AddDate(0, 0, 1)
}
