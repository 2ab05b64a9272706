package repository

import (
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/shoplog/scoring-engine/internal/models"
)

// setupTestDB creates an in-memory SQLite database for testing.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}

	// Enable foreign key constraints (SQLite default is off)
	db.Exec("PRAGMA foreign_keys = ON")

	err = db.AutoMigrate(
		&models.ActivityRecord{},
		&models.UserRankingAggregate{},
		&models.DailyActivityCounter{},
		&models.Badge{},
		&models.UserBadge{},
	)
	if err != nil {
		t.Fatalf("Failed to auto-migrate tables: %v", err)
	}

	return &DB{db}
}

// createTestAggregate seeds an aggregate row directly.
func createTestAggregate(t *testing.T, db *DB, userID uint, points int64, tier string, lastActivityAt time.Time) *models.UserRankingAggregate {
	t.Helper()

	agg := &models.UserRankingAggregate{
		UserID:         userID,
		TotalPoints:    points,
		Tier:           tier,
		LastActivityAt: lastActivityAt,
	}
	if err := db.Create(agg).Error; err != nil {
		t.Fatalf("Failed to create test aggregate: %v", err)
	}
	return agg
}

// createTestActivity seeds one activity record directly.
func createTestActivity(t *testing.T, db *DB, userID uint, activityType string, points int, at time.Time) *models.ActivityRecord {
	t.Helper()

	record := &models.ActivityRecord{
		UserID:        userID,
		ActivityType:  activityType,
		PointsAwarded: points,
		CreatedAt:     at,
	}
	if err := db.Create(record).Error; err != nil {
		t.Fatalf("Failed to create test activity: %v", err)
	}
	return record
}
