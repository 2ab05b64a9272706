// Package leaderboard builds the ranked views over the aggregate store:
// global, per-tier, weekly, contextual window and single-user position.
// All reads are point-in-time snapshots; staleness between writes is
// acceptable, which is also why the short-TTL cache needs no invalidation.
package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shoplog/scoring-engine/internal/cache"
	"github.com/shoplog/scoring-engine/internal/config"
	"github.com/shoplog/scoring-engine/internal/models"
	"github.com/shoplog/scoring-engine/internal/repository"
	"github.com/shoplog/scoring-engine/pkg/logger"
)

// ErrNotRanked is returned for users with no aggregate row yet.
var ErrNotRanked = errors.New("user has no ranking yet")

// AggregateRepository interface for aggregate reads.
type AggregateRepository interface {
	ListOrdered(offset, limit int) ([]models.UserRankingAggregate, error)
	ListByTier(tier string, limit int) ([]models.UserRankingAggregate, error)
	GetByUserID(userID uint) (*models.UserRankingAggregate, error)
	GetByUserIDs(userIDs []uint) (map[uint]models.UserRankingAggregate, error)
	CountAhead(points int64, lastActivityAt time.Time) (int64, error)
	CountWithMorePoints(points int64) (int64, error)
	Count() (int64, error)
}

// ActivityRepository interface for the weekly aggregation and recent feed.
type ActivityRepository interface {
	WeeklyTotals(since time.Time, limit int) ([]repository.WeeklyTotal, error)
	RecentByUser(userID uint, limit int) ([]models.ActivityRecord, error)
}

// BadgeRepository interface for badge counts on entries.
type BadgeRepository interface {
	GetUserBadgeCount(userID uint) (int64, error)
	GetUserBadges(userID uint) ([]models.UserBadge, error)
}

// Entry represents a single entry in a leaderboard view.
type Entry struct {
	Rank           int       `json:"rank"`
	UserID         uint      `json:"user_id"`
	TotalPoints    int64     `json:"total_points"`
	WeeklyPoints   int64     `json:"weekly_points,omitempty"`
	Tier           string    `json:"tier"`
	StreakDays     int       `json:"streak_days"`
	BadgeCount     int       `json:"badge_count"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// UserStats is the self view: aggregate, rank, badges, recent activity.
type UserStats struct {
	UserID         uint                    `json:"user_id"`
	TotalPoints    int64                   `json:"total_points"`
	Tier           string                  `json:"tier"`
	StreakDays     int                     `json:"streak_days"`
	Rank           int                     `json:"rank"`
	ExactRank      *int                    `json:"exact_rank,omitempty"`
	LastActivityAt time.Time               `json:"last_activity_at"`
	Badges         []models.UserBadge      `json:"badges"`
	RecentActivity []models.ActivityRecord `json:"recent_activity"`
}

// Service builds leaderboard views.
type Service struct {
	aggRepo      AggregateRepository
	activityRepo ActivityRepository
	badgeRepo    BadgeRepository
	cache        cache.Cache
	cfg          config.LeaderboardConfig
	log          *logger.Logger
	now          func() time.Time
}

// NewService creates a new leaderboard service. cache may be nil, in which
// case every view reads the store directly.
func NewService(
	aggRepo AggregateRepository,
	activityRepo ActivityRepository,
	badgeRepo BadgeRepository,
	c cache.Cache,
	cfg config.LeaderboardConfig,
	log *logger.Logger,
) *Service {
	return &Service{
		aggRepo:      aggRepo,
		activityRepo: activityRepo,
		badgeRepo:    badgeRepo,
		cache:        c,
		cfg:          cfg,
		log:          log,
		now:          time.Now,
	}
}

// SetClock overrides the service clock. Used in tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Global returns the top entries ordered by points, earlier achievement
// winning ties.
func (s *Service) Global(ctx context.Context, limit int) ([]Entry, error) {
	limit = s.clampLimit(limit)
	key := fmt.Sprintf("leaderboard:global:%d", limit)
	if entries, ok := s.cached(ctx, key); ok {
		return entries, nil
	}

	aggs, err := s.aggRepo.ListOrdered(0, limit)
	if err != nil {
		return nil, fmt.Errorf("list aggregates: %w", err)
	}
	entries := s.toEntries(aggs, 1)
	s.store(ctx, key, entries)
	return entries, nil
}

// Tier returns the top entries of one tier in the same ordering.
func (s *Service) Tier(ctx context.Context, tier string, limit int) ([]Entry, error) {
	limit = s.clampLimit(limit)
	key := fmt.Sprintf("leaderboard:tier:%s:%d", tier, limit)
	if entries, ok := s.cached(ctx, key); ok {
		return entries, nil
	}

	aggs, err := s.aggRepo.ListByTier(tier, limit)
	if err != nil {
		return nil, fmt.Errorf("list tier aggregates: %w", err)
	}
	entries := s.toEntries(aggs, 1)
	s.store(ctx, key, entries)
	return entries, nil
}

// Weekly sums points awarded in the trailing seven days per user and joins
// the aggregate display fields.
func (s *Service) Weekly(ctx context.Context, limit int) ([]Entry, error) {
	limit = s.clampLimit(limit)
	key := fmt.Sprintf("leaderboard:weekly:%d", limit)
	if entries, ok := s.cached(ctx, key); ok {
		return entries, nil
	}

	since := s.now().Add(-7 * 24 * time.Hour)
	totals, err := s.activityRepo.WeeklyTotals(since, limit)
	if err != nil {
		return nil, fmt.Errorf("weekly totals: %w", err)
	}

	userIDs := make([]uint, len(totals))
	for i, t := range totals {
		userIDs[i] = t.UserID
	}
	aggs, err := s.aggRepo.GetByUserIDs(userIDs)
	if err != nil {
		return nil, fmt.Errorf("join aggregates: %w", err)
	}

	entries := make([]Entry, 0, len(totals))
	for i, t := range totals {
		agg := aggs[t.UserID]
		entries = append(entries, Entry{
			Rank:           i + 1,
			UserID:         t.UserID,
			TotalPoints:    agg.TotalPoints,
			WeeklyPoints:   t.Points,
			Tier:           agg.Tier,
			StreakDays:     agg.StreakDays,
			BadgeCount:     s.badgeCount(t.UserID),
			LastActivityAt: agg.LastActivityAt,
		})
	}
	s.store(ctx, key, entries)
	return entries, nil
}

// AroundMe returns a window of windowSize entries centered on the user's
// position in the full order, clamped at both ends of the list.
func (s *Service) AroundMe(ctx context.Context, userID uint, windowSize int) ([]Entry, error) {
	if windowSize <= 0 {
		windowSize = s.cfg.DefaultLimit
	}

	agg, err := s.aggRepo.GetByUserID(userID)
	if err != nil {
		return nil, fmt.Errorf("load aggregate: %w", err)
	}
	if agg == nil {
		return nil, ErrNotRanked
	}

	ahead, err := s.aggRepo.CountAhead(agg.TotalPoints, agg.LastActivityAt)
	if err != nil {
		return nil, fmt.Errorf("count ahead: %w", err)
	}
	total, err := s.aggRepo.Count()
	if err != nil {
		return nil, fmt.Errorf("count aggregates: %w", err)
	}

	// ahead is the user's zero-based position; center the window on it.
	start := int(ahead) - windowSize/2
	if start+windowSize > int(total) {
		start = int(total) - windowSize
	}
	if start < 0 {
		start = 0
	}

	aggs, err := s.aggRepo.ListOrdered(start, windowSize)
	if err != nil {
		return nil, fmt.Errorf("list window: %w", err)
	}
	return s.toEntries(aggs, start+1), nil
}

// Position returns the user's own entry with its approximate rank, computed
// as one plus the number of aggregates with strictly more points.
func (s *Service) Position(ctx context.Context, userID uint) (*Entry, error) {
	agg, err := s.aggRepo.GetByUserID(userID)
	if err != nil {
		return nil, fmt.Errorf("load aggregate: %w", err)
	}
	if agg == nil {
		return nil, ErrNotRanked
	}

	more, err := s.aggRepo.CountWithMorePoints(agg.TotalPoints)
	if err != nil {
		return nil, fmt.Errorf("count more points: %w", err)
	}

	entry := s.toEntry(*agg, int(more)+1)
	return &entry, nil
}

// UserStats returns the self view: aggregate fields, approximate rank, the
// exact rank from the last recompute when present, badges and recent
// activity.
func (s *Service) UserStats(ctx context.Context, userID uint) (*UserStats, error) {
	agg, err := s.aggRepo.GetByUserID(userID)
	if err != nil {
		return nil, fmt.Errorf("load aggregate: %w", err)
	}
	if agg == nil {
		return nil, ErrNotRanked
	}

	more, err := s.aggRepo.CountWithMorePoints(agg.TotalPoints)
	if err != nil {
		return nil, fmt.Errorf("count more points: %w", err)
	}

	userBadges, err := s.badgeRepo.GetUserBadges(userID)
	if err != nil {
		return nil, fmt.Errorf("load badges: %w", err)
	}

	recent, err := s.activityRepo.RecentByUser(userID, 10)
	if err != nil {
		return nil, fmt.Errorf("load recent activity: %w", err)
	}

	return &UserStats{
		UserID:         userID,
		TotalPoints:    agg.TotalPoints,
		Tier:           agg.Tier,
		StreakDays:     agg.StreakDays,
		Rank:           int(more) + 1,
		ExactRank:      agg.CurrentRank,
		LastActivityAt: agg.LastActivityAt,
		Badges:         userBadges,
		RecentActivity: recent,
	}, nil
}

func (s *Service) toEntries(aggs []models.UserRankingAggregate, firstRank int) []Entry {
	entries := make([]Entry, len(aggs))
	for i, agg := range aggs {
		entries[i] = s.toEntry(agg, firstRank+i)
	}
	return entries
}

func (s *Service) toEntry(agg models.UserRankingAggregate, rank int) Entry {
	return Entry{
		Rank:           rank,
		UserID:         agg.UserID,
		TotalPoints:    agg.TotalPoints,
		Tier:           agg.Tier,
		StreakDays:     agg.StreakDays,
		BadgeCount:     s.badgeCount(agg.UserID),
		LastActivityAt: agg.LastActivityAt,
	}
}

func (s *Service) badgeCount(userID uint) int {
	count, err := s.badgeRepo.GetUserBadgeCount(userID)
	if err != nil {
		s.log.Warn().Err(err).Uint("user_id", userID).Msg("Failed to get badge count")
		return 0
	}
	return int(count)
}

func (s *Service) clampLimit(limit int) int {
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}
	if s.cfg.MaxLimit > 0 && limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}
	return limit
}

func (s *Service) cached(ctx context.Context, key string) ([]Entry, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Leaderboard cache read failed")
		return nil, false
	}
	if raw == "" {
		return nil, false
	}
	var entries []Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Leaderboard cache entry corrupt")
		return nil, false
	}
	return entries, true
}

func (s *Service) store(ctx context.Context, key string, entries []Entry) {
	if s.cache == nil || s.cfg.CacheTTLSeconds <= 0 {
		return
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return
	}
	ttl := time.Duration(s.cfg.CacheTTLSeconds) * time.Second
	if err := s.cache.Set(ctx, key, string(raw), ttl); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Leaderboard cache write failed")
	}
}
