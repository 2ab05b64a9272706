package rank

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/shoplog/scoring-engine/internal/config"
	"github.com/shoplog/scoring-engine/internal/models"
	"github.com/shoplog/scoring-engine/internal/repository"
	"github.com/shoplog/scoring-engine/internal/service/scoring"
	"github.com/shoplog/scoring-engine/pkg/logger"
)

func setupTestDB(t *testing.T) (*repository.DB, func()) {
	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = gormDB.AutoMigrate(
		&models.UserRankingAggregate{},
		&models.DailyActivityCounter{},
	)
	require.NoError(t, err)

	cleanup := func() {
		sqlDB, _ := gormDB.DB()
		_ = sqlDB.Close()
	}

	return &repository.DB{DB: gormDB}, cleanup
}

func setupJob(t *testing.T, db *repository.DB, batchSize int) *Job {
	t.Helper()

	aggRepo := repository.NewAggregateRepository(db)
	dailyRepo := repository.NewDailyCounterRepository(db)
	tiers := scoring.NewTierTable(config.DefaultTiers())

	return NewJob(db, aggRepo, dailyRepo, tiers, batchSize, 90, time.UTC, logger.Nop())
}

func seedAggregate(t *testing.T, db *repository.DB, userID uint, points int64, tier string, lastActivityAt time.Time) {
	t.Helper()
	agg := &models.UserRankingAggregate{
		UserID:         userID,
		TotalPoints:    points,
		Tier:           tier,
		LastActivityAt: lastActivityAt,
	}
	require.NoError(t, db.Create(agg).Error)
}

func rankOf(t *testing.T, db *repository.DB, userID uint) (int, string) {
	t.Helper()
	agg, err := repository.NewAggregateRepository(db).GetByUserID(userID)
	require.NoError(t, err)
	require.NotNil(t, agg)
	require.NotNil(t, agg.CurrentRank, "user %d has no rank written", userID)
	return *agg.CurrentRank, agg.Tier
}

func TestRun_AssignsPositionalRanks(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	seedAggregate(t, db, 1, 500, "SILVER", base)
	seedAggregate(t, db, 2, 500, "SILVER", base.Add(-time.Hour)) // earlier, wins the tie
	seedAggregate(t, db, 3, 300, "SILVER", base)

	job := setupJob(t, db, 100)
	require.NoError(t, job.Run(context.Background()))

	// Exact ranks are positional: tied totals get distinct consecutive ranks
	r2, _ := rankOf(t, db, 2)
	r1, _ := rankOf(t, db, 1)
	r3, _ := rankOf(t, db, 3)
	assert.Equal(t, 1, r2)
	assert.Equal(t, 2, r1)
	assert.Equal(t, 3, r3)
}

func TestRun_Idempotent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	for i := uint(1); i <= 5; i++ {
		seedAggregate(t, db, i, int64(i*100), "BRONZE", base)
	}

	job := setupJob(t, db, 100)
	require.NoError(t, job.Run(context.Background()))

	first := make(map[uint]int)
	for i := uint(1); i <= 5; i++ {
		r, _ := rankOf(t, db, i)
		first[i] = r
	}

	// A second run with no intervening awards writes identical values
	require.NoError(t, job.Run(context.Background()))
	for i := uint(1); i <= 5; i++ {
		r, _ := rankOf(t, db, i)
		assert.Equal(t, first[i], r, "rank of user %d changed on re-run", i)
	}
}

func TestRun_BatchesSmallerThanRowCount(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	const users = 17
	for i := uint(1); i <= users; i++ {
		seedAggregate(t, db, i, int64(1000-int(i)), "BRONZE", base)
	}

	// Batch size 5 forces four batches over 17 rows
	job := setupJob(t, db, 5)
	require.NoError(t, job.Run(context.Background()))

	for i := uint(1); i <= users; i++ {
		r, _ := rankOf(t, db, i)
		assert.Equal(t, int(i), r, "user %d", i)
	}
}

func TestRun_ReclassifiesTier(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	// Stored tier is stale relative to the point total
	seedAggregate(t, db, 1, 1500, "BRONZE", base)

	job := setupJob(t, db, 100)
	require.NoError(t, job.Run(context.Background()))

	_, tier := rankOf(t, db, 1)
	assert.Equal(t, "GOLD", tier)
}

func TestRun_DoesNotTouchPoints(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	seedAggregate(t, db, 1, 777, "SILVER", base)

	job := setupJob(t, db, 100)
	require.NoError(t, job.Run(context.Background()))

	agg, err := repository.NewAggregateRepository(db).GetByUserID(1)
	require.NoError(t, err)
	assert.Equal(t, int64(777), agg.TotalPoints)
	assert.True(t, agg.LastActivityAt.Equal(base))
}

func TestRun_PrunesOldCounters(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	dailyRepo := repository.NewDailyCounterRepository(db)
	require.NoError(t, dailyRepo.Record(1, "2025-11-01", 10)) // past retention
	require.NoError(t, dailyRepo.Record(1, "2026-03-09", 10)) // recent

	job := setupJob(t, db, 100)
	job.SetClock(func() time.Time {
		return time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)
	})
	require.NoError(t, job.Run(context.Background()))

	exists, err := dailyRepo.Exists(1, "2025-11-01")
	require.NoError(t, err)
	assert.False(t, exists, "counter past retention should be pruned")

	exists, err = dailyRepo.Exists(1, "2026-03-09")
	require.NoError(t, err)
	assert.True(t, exists, "recent counter should survive")
}

func TestRun_EmptyStore(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	job := setupJob(t, db, 100)
	require.NoError(t, job.Run(context.Background()))
}
