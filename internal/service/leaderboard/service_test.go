package leaderboard

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/shoplog/scoring-engine/internal/config"
	"github.com/shoplog/scoring-engine/internal/models"
	"github.com/shoplog/scoring-engine/internal/repository"
	"github.com/shoplog/scoring-engine/pkg/logger"
)

// Mock repositories for testing
type mockAggregateRepository struct {
	aggregates []models.UserRankingAggregate
}

func (m *mockAggregateRepository) sorted() []models.UserRankingAggregate {
	out := make([]models.UserRankingAggregate, len(m.aggregates))
	copy(out, m.aggregates)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TotalPoints != out[j].TotalPoints {
			return out[i].TotalPoints > out[j].TotalPoints
		}
		if !out[i].LastActivityAt.Equal(out[j].LastActivityAt) {
			return out[i].LastActivityAt.Before(out[j].LastActivityAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

func (m *mockAggregateRepository) ListOrdered(offset, limit int) ([]models.UserRankingAggregate, error) {
	all := m.sorted()
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (m *mockAggregateRepository) ListByTier(tier string, limit int) ([]models.UserRankingAggregate, error) {
	var out []models.UserRankingAggregate
	for _, agg := range m.sorted() {
		if agg.Tier == tier {
			out = append(out, agg)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockAggregateRepository) GetByUserID(userID uint) (*models.UserRankingAggregate, error) {
	for i := range m.aggregates {
		if m.aggregates[i].UserID == userID {
			agg := m.aggregates[i]
			return &agg, nil
		}
	}
	return nil, nil
}

func (m *mockAggregateRepository) GetByUserIDs(userIDs []uint) (map[uint]models.UserRankingAggregate, error) {
	out := make(map[uint]models.UserRankingAggregate)
	for _, id := range userIDs {
		for _, agg := range m.aggregates {
			if agg.UserID == id {
				out[id] = agg
			}
		}
	}
	return out, nil
}

func (m *mockAggregateRepository) CountAhead(points int64, lastActivityAt time.Time) (int64, error) {
	var count int64
	for _, agg := range m.aggregates {
		if agg.TotalPoints > points ||
			(agg.TotalPoints == points && agg.LastActivityAt.Before(lastActivityAt)) {
			count++
		}
	}
	return count, nil
}

func (m *mockAggregateRepository) CountWithMorePoints(points int64) (int64, error) {
	var count int64
	for _, agg := range m.aggregates {
		if agg.TotalPoints > points {
			count++
		}
	}
	return count, nil
}

func (m *mockAggregateRepository) Count() (int64, error) {
	return int64(len(m.aggregates)), nil
}

type mockActivityRepository struct {
	weekly []repository.WeeklyTotal
	recent map[uint][]models.ActivityRecord
}

func (m *mockActivityRepository) WeeklyTotals(since time.Time, limit int) ([]repository.WeeklyTotal, error) {
	if limit > 0 && len(m.weekly) > limit {
		return m.weekly[:limit], nil
	}
	return m.weekly, nil
}

func (m *mockActivityRepository) RecentByUser(userID uint, limit int) ([]models.ActivityRecord, error) {
	return m.recent[userID], nil
}

type mockBadgeRepository struct {
	counts map[uint]int64
	badges map[uint][]models.UserBadge
}

func (m *mockBadgeRepository) GetUserBadgeCount(userID uint) (int64, error) {
	return m.counts[userID], nil
}

func (m *mockBadgeRepository) GetUserBadges(userID uint) ([]models.UserBadge, error) {
	return m.badges[userID], nil
}

// memoryCache is an in-process Cache for testing the snapshot path.
type memoryCache struct {
	values map[string]string
	gets   int
	sets   int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: make(map[string]string)}
}

func (c *memoryCache) Get(ctx context.Context, key string) (string, error) {
	c.gets++
	return c.values[key], nil
}

func (c *memoryCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	c.sets++
	c.values[key] = value
	return nil
}

func (c *memoryCache) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(c.values, key)
	}
	return nil
}

// Test setup helper
func setupTestService(aggs []models.UserRankingAggregate) (*Service, *mockAggregateRepository, *mockActivityRepository, *mockBadgeRepository) {
	aggRepo := &mockAggregateRepository{aggregates: aggs}
	activityRepo := &mockActivityRepository{recent: make(map[uint][]models.ActivityRecord)}
	badgeRepo := &mockBadgeRepository{
		counts: make(map[uint]int64),
		badges: make(map[uint][]models.UserBadge),
	}
	cfg := config.LeaderboardConfig{DefaultLimit: 10, MaxLimit: 100, CacheTTLSeconds: 30}

	service := NewService(aggRepo, activityRepo, badgeRepo, nil, cfg, logger.Nop())
	return service, aggRepo, activityRepo, badgeRepo
}

func at(day int) time.Time {
	return time.Date(2026, 3, day, 12, 0, 0, 0, time.UTC)
}

func TestGlobal_TieBrokenByEarlierActivity(t *testing.T) {
	// Two users tied on points: the one who got there earlier ranks higher
	service, _, _, _ := setupTestService([]models.UserRankingAggregate{
		{UserID: 1, TotalPoints: 500, Tier: "SILVER", LastActivityAt: at(5)},
		{UserID: 2, TotalPoints: 500, Tier: "SILVER", LastActivityAt: at(3)},
		{UserID: 3, TotalPoints: 300, Tier: "SILVER", LastActivityAt: at(4)},
	})

	entries, err := service.Global(context.Background(), 10)
	if err != nil {
		t.Fatalf("Global() failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}

	expected := []uint{2, 1, 3}
	for i, want := range expected {
		if entries[i].UserID != want {
			t.Errorf("Position %d: expected user %d, got %d", i+1, want, entries[i].UserID)
		}
		if entries[i].Rank != i+1 {
			t.Errorf("Position %d: expected rank %d, got %d", i+1, i+1, entries[i].Rank)
		}
	}
}

func TestGlobal_LimitClamped(t *testing.T) {
	var aggs []models.UserRankingAggregate
	for i := uint(1); i <= 150; i++ {
		aggs = append(aggs, models.UserRankingAggregate{
			UserID: i, TotalPoints: int64(i), LastActivityAt: at(1),
		})
	}
	service, _, _, _ := setupTestService(aggs)

	// Over the max
	entries, err := service.Global(context.Background(), 500)
	if err != nil {
		t.Fatalf("Global() failed: %v", err)
	}
	if len(entries) != 100 {
		t.Errorf("Expected limit clamped to 100, got %d entries", len(entries))
	}

	// Zero means default
	entries, err = service.Global(context.Background(), 0)
	if err != nil {
		t.Fatalf("Global() failed: %v", err)
	}
	if len(entries) != 10 {
		t.Errorf("Expected default limit of 10, got %d entries", len(entries))
	}
}

func TestTier_FiltersAndRanksWithinTier(t *testing.T) {
	service, _, _, _ := setupTestService([]models.UserRankingAggregate{
		{UserID: 1, TotalPoints: 5000, Tier: "PLATINUM", LastActivityAt: at(1)},
		{UserID: 2, TotalPoints: 400, Tier: "SILVER", LastActivityAt: at(2)},
		{UserID: 3, TotalPoints: 250, Tier: "SILVER", LastActivityAt: at(3)},
	})

	entries, err := service.Tier(context.Background(), "SILVER", 10)
	if err != nil {
		t.Fatalf("Tier() failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 silver entries, got %d", len(entries))
	}
	if entries[0].UserID != 2 || entries[0].Rank != 1 {
		t.Errorf("Expected user 2 at tier rank 1, got user %d rank %d",
			entries[0].UserID, entries[0].Rank)
	}
}

func TestWeekly_JoinsAggregateFields(t *testing.T) {
	service, _, activityRepo, badgeRepo := setupTestService([]models.UserRankingAggregate{
		{UserID: 1, TotalPoints: 900, Tier: "SILVER", StreakDays: 4, LastActivityAt: at(9)},
		{UserID: 2, TotalPoints: 5000, Tier: "PLATINUM", StreakDays: 1, LastActivityAt: at(8)},
	})
	activityRepo.weekly = []repository.WeeklyTotal{
		{UserID: 1, Points: 120},
		{UserID: 2, Points: 80},
	}
	badgeRepo.counts[1] = 3

	entries, err := service.Weekly(context.Background(), 10)
	if err != nil {
		t.Fatalf("Weekly() failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}

	// Weekly rank follows weekly points, not lifetime points
	if entries[0].UserID != 1 {
		t.Errorf("Expected user 1 first by weekly points, got user %d", entries[0].UserID)
	}
	if entries[0].WeeklyPoints != 120 {
		t.Errorf("Expected 120 weekly points, got %d", entries[0].WeeklyPoints)
	}
	if entries[0].TotalPoints != 900 {
		t.Errorf("Expected lifetime total 900 joined in, got %d", entries[0].TotalPoints)
	}
	if entries[0].BadgeCount != 3 {
		t.Errorf("Expected badge count 3, got %d", entries[0].BadgeCount)
	}
}

func TestAroundMe_CenteredWindow(t *testing.T) {
	var aggs []models.UserRankingAggregate
	// Users 1..10 with descending points: user 1 has 1000, user 10 has 100
	for i := uint(1); i <= 10; i++ {
		aggs = append(aggs, models.UserRankingAggregate{
			UserID: i, TotalPoints: int64(1100 - i*100), LastActivityAt: at(1),
		})
	}
	service, _, _, _ := setupTestService(aggs)

	entries, err := service.AroundMe(context.Background(), 5, 5)
	if err != nil {
		t.Fatalf("AroundMe() failed: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("Expected window of 5, got %d", len(entries))
	}
	// User 5 sits at rank 5; the window covers ranks 3..7
	if entries[0].Rank != 3 || entries[4].Rank != 7 {
		t.Errorf("Expected ranks 3..7, got %d..%d", entries[0].Rank, entries[4].Rank)
	}
	found := false
	for _, e := range entries {
		if e.UserID == 5 {
			found = true
		}
	}
	if !found {
		t.Error("Expected the requesting user inside the window")
	}
}

func TestAroundMe_ClampedAtTop(t *testing.T) {
	var aggs []models.UserRankingAggregate
	for i := uint(1); i <= 10; i++ {
		aggs = append(aggs, models.UserRankingAggregate{
			UserID: i, TotalPoints: int64(1100 - i*100), LastActivityAt: at(1),
		})
	}
	service, _, _, _ := setupTestService(aggs)

	// The leader's window starts at rank 1, not at a negative offset
	entries, err := service.AroundMe(context.Background(), 1, 5)
	if err != nil {
		t.Fatalf("AroundMe() failed: %v", err)
	}
	if entries[0].Rank != 1 {
		t.Errorf("Expected window starting at rank 1, got %d", entries[0].Rank)
	}
	if len(entries) != 5 {
		t.Errorf("Expected full window of 5, got %d", len(entries))
	}
}

func TestAroundMe_ClampedAtBottom(t *testing.T) {
	var aggs []models.UserRankingAggregate
	for i := uint(1); i <= 10; i++ {
		aggs = append(aggs, models.UserRankingAggregate{
			UserID: i, TotalPoints: int64(1100 - i*100), LastActivityAt: at(1),
		})
	}
	service, _, _, _ := setupTestService(aggs)

	entries, err := service.AroundMe(context.Background(), 10, 5)
	if err != nil {
		t.Fatalf("AroundMe() failed: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("Expected full window of 5, got %d", len(entries))
	}
	if entries[len(entries)-1].Rank != 10 {
		t.Errorf("Expected window ending at rank 10, got %d", entries[len(entries)-1].Rank)
	}
}

func TestAroundMe_UnrankedUser(t *testing.T) {
	service, _, _, _ := setupTestService(nil)

	_, err := service.AroundMe(context.Background(), 42, 5)
	if !errors.Is(err, ErrNotRanked) {
		t.Errorf("Expected ErrNotRanked, got %v", err)
	}
}

func TestPosition_ApproximateRank(t *testing.T) {
	service, _, _, _ := setupTestService([]models.UserRankingAggregate{
		{UserID: 1, TotalPoints: 500, LastActivityAt: at(1)},
		{UserID: 2, TotalPoints: 500, LastActivityAt: at(2)},
		{UserID: 3, TotalPoints: 300, LastActivityAt: at(3)},
	})

	// Approximate rank counts strictly-more points only, so both tied users
	// report rank 1
	for _, userID := range []uint{1, 2} {
		entry, err := service.Position(context.Background(), userID)
		if err != nil {
			t.Fatalf("Position(%d) failed: %v", userID, err)
		}
		if entry.Rank != 1 {
			t.Errorf("User %d: expected approximate rank 1, got %d", userID, entry.Rank)
		}
	}

	entry, err := service.Position(context.Background(), 3)
	if err != nil {
		t.Fatalf("Position(3) failed: %v", err)
	}
	if entry.Rank != 3 {
		t.Errorf("Expected rank 3, got %d", entry.Rank)
	}
}

func TestUserStats(t *testing.T) {
	exactRank := 2
	service, _, activityRepo, badgeRepo := setupTestService([]models.UserRankingAggregate{
		{UserID: 1, TotalPoints: 750, Tier: "SILVER", StreakDays: 6,
			CurrentRank: &exactRank, LastActivityAt: at(9)},
		{UserID: 2, TotalPoints: 900, Tier: "SILVER", LastActivityAt: at(8)},
	})
	badgeRepo.badges[1] = []models.UserBadge{{UserID: 1, BadgeID: 1}}
	activityRepo.recent[1] = []models.ActivityRecord{
		{UserID: 1, ActivityType: "RECEIPT_SCAN", PointsAwarded: 25},
	}

	stats, err := service.UserStats(context.Background(), 1)
	if err != nil {
		t.Fatalf("UserStats() failed: %v", err)
	}
	if stats.TotalPoints != 750 {
		t.Errorf("Expected 750 total points, got %d", stats.TotalPoints)
	}
	if stats.Rank != 2 {
		t.Errorf("Expected approximate rank 2, got %d", stats.Rank)
	}
	if stats.ExactRank == nil || *stats.ExactRank != 2 {
		t.Errorf("Expected exact rank 2 from last recompute, got %v", stats.ExactRank)
	}
	if len(stats.Badges) != 1 {
		t.Errorf("Expected 1 badge, got %d", len(stats.Badges))
	}
	if len(stats.RecentActivity) != 1 {
		t.Errorf("Expected 1 recent activity, got %d", len(stats.RecentActivity))
	}
}

func TestGlobal_CacheSnapshot(t *testing.T) {
	aggRepo := &mockAggregateRepository{aggregates: []models.UserRankingAggregate{
		{UserID: 1, TotalPoints: 500, Tier: "SILVER", LastActivityAt: at(1)},
	}}
	activityRepo := &mockActivityRepository{recent: make(map[uint][]models.ActivityRecord)}
	badgeRepo := &mockBadgeRepository{
		counts: make(map[uint]int64),
		badges: make(map[uint][]models.UserBadge),
	}
	c := newMemoryCache()
	cfg := config.LeaderboardConfig{DefaultLimit: 10, MaxLimit: 100, CacheTTLSeconds: 30}
	service := NewService(aggRepo, activityRepo, badgeRepo, c, cfg, logger.Nop())

	first, err := service.Global(context.Background(), 10)
	if err != nil {
		t.Fatalf("Global() failed: %v", err)
	}
	if c.sets != 1 {
		t.Fatalf("Expected 1 cache write, got %d", c.sets)
	}

	// Mutate the store; the cached snapshot still serves the old view
	aggRepo.aggregates[0].TotalPoints = 9999

	second, err := service.Global(context.Background(), 10)
	if err != nil {
		t.Fatalf("Global() second call failed: %v", err)
	}
	if second[0].TotalPoints != first[0].TotalPoints {
		t.Errorf("Expected cached snapshot (points %d), got %d",
			first[0].TotalPoints, second[0].TotalPoints)
	}
	if c.sets != 1 {
		t.Errorf("Expected no second cache write, got %d", c.sets)
	}
}
