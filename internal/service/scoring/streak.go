package scoring

import (
	"time"

	"github.com/shoplog/scoring-engine/internal/models"
)

// nextStreak computes the streak value after an award at `now`.
//
// Calendar dates are taken in the reference timezone. The same-day case is
// checked first so repeated awards within one day never touch the streak;
// only the first activity of a day can extend or reset it. activeYesterday
// reports whether a daily counter row exists for yesterday, which covers
// users whose aggregate was last touched today by a concurrent award.
func nextStreak(prev int, lastActivityAt, now time.Time, loc *time.Location, activeYesterday bool) int {
	today := models.DayKey(now, loc)
	yesterday := models.DayKey(now.In(loc).AddDate(0, 0, -1), loc)

	var last string
	if !lastActivityAt.IsZero() {
		last = models.DayKey(lastActivityAt, loc)
	}

	switch {
	case last == today:
		// Same-day repeat, streak unchanged.
		return prev
	case activeYesterday || last == yesterday:
		return prev + 1
	default:
		// Streak broken (or first ever activity), restart at one.
		return 1
	}
}
