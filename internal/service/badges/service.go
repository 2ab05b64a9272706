// Package badges provides badge rule evaluation and awarding. Rules are a
// fixed, typed criterion table loaded from configuration; the badge rows in
// the store are display catalog entries kept in sync with that table.
package badges

import (
	"context"
	"fmt"
	"time"

	"github.com/shoplog/scoring-engine/internal/config"
	"github.com/shoplog/scoring-engine/internal/metrics"
	"github.com/shoplog/scoring-engine/internal/models"
	"github.com/shoplog/scoring-engine/pkg/logger"
)

// BadgeRepository interface for badge catalog and award operations.
type BadgeRepository interface {
	GetAll() ([]models.Badge, error)
	SyncCatalog(badges []models.Badge) error
	HasUserEarnedBadge(userID, badgeID uint) (bool, error)
	AwardBadge(userID, badgeID uint, awardedAt time.Time) error
	GetUserBadges(userID uint) ([]models.UserBadge, error)
}

// ActivityRepository interface for the activity counts rules test against.
type ActivityRepository interface {
	CountByType(userID uint, activityType string) (int64, error)
}

// AggregateRepository interface for the streak lookup.
type AggregateRepository interface {
	GetByUserID(userID uint) (*models.UserRankingAggregate, error)
}

// Service evaluates the rule table and awards badges at most once.
type Service struct {
	badgeRepo    BadgeRepository
	activityRepo ActivityRepository
	aggRepo      AggregateRepository
	rules        []Rule
	byName       map[string]models.Badge
	log          *logger.Logger
	now          func() time.Time
}

// NewService creates a new badge service from the configured rule table.
func NewService(
	badgeRepo BadgeRepository,
	activityRepo ActivityRepository,
	aggRepo AggregateRepository,
	ruleCfg []config.BadgeRule,
	log *logger.Logger,
) *Service {
	return &Service{
		badgeRepo:    badgeRepo,
		activityRepo: activityRepo,
		aggRepo:      aggRepo,
		rules:        RulesFromConfig(ruleCfg),
		byName:       make(map[string]models.Badge),
		log:          log,
		now:          time.Now,
	}
}

// SetClock overrides the service clock. Used in tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// SyncCatalog upserts the configured badges into the store and refreshes the
// in-process name index. Call once at startup before evaluation.
func (s *Service) SyncCatalog(ctx context.Context) error {
	catalog := make([]models.Badge, len(s.rules))
	for i, rule := range s.rules {
		catalog[i] = models.Badge{
			Name:        rule.BadgeName,
			Description: rule.Description,
			Icon:        rule.Icon,
		}
	}
	if err := s.badgeRepo.SyncCatalog(catalog); err != nil {
		return fmt.Errorf("sync badge catalog: %w", err)
	}

	stored, err := s.badgeRepo.GetAll()
	if err != nil {
		return fmt.Errorf("load badge catalog: %w", err)
	}
	byName := make(map[string]models.Badge, len(stored))
	for _, badge := range stored {
		byName[badge.Name] = badge
	}
	s.byName = byName

	s.log.Info().Int("badges", len(stored)).Msg("Badge catalog synced")
	return nil
}

// EvaluateUser tests every rule the user has not earned yet and awards the
// ones now satisfied. Earned badges are never re-evaluated; a rule that was
// satisfied once stays earned via the existence check.
func (s *Service) EvaluateUser(ctx context.Context, userID uint) ([]models.Badge, error) {
	var newlyEarned []models.Badge

	for _, rule := range s.rules {
		badge, ok := s.byName[rule.BadgeName]
		if !ok {
			// Catalog not synced for this rule; skip rather than fail the
			// whole evaluation.
			s.log.Warn().Str("badge", rule.BadgeName).Msg("Badge rule has no catalog entry")
			continue
		}

		earned, err := s.badgeRepo.HasUserEarnedBadge(userID, badge.ID)
		if err != nil {
			return newlyEarned, fmt.Errorf("check badge %q: %w", rule.BadgeName, err)
		}
		if earned {
			continue
		}

		satisfied, err := s.ruleSatisfied(rule, userID)
		if err != nil {
			return newlyEarned, fmt.Errorf("evaluate badge %q: %w", rule.BadgeName, err)
		}
		if !satisfied {
			continue
		}

		if err := s.badgeRepo.AwardBadge(userID, badge.ID, s.now()); err != nil {
			return newlyEarned, fmt.Errorf("award badge %q: %w", rule.BadgeName, err)
		}

		metrics.RecordBadgeAwarded(badge.Name)
		s.log.Info().
			Uint("user_id", userID).
			Str("badge", badge.Name).
			Msg("Badge awarded")
		newlyEarned = append(newlyEarned, badge)
	}

	return newlyEarned, nil
}

// GetUserBadges retrieves all badges earned by a user.
func (s *Service) GetUserBadges(ctx context.Context, userID uint) ([]models.UserBadge, error) {
	return s.badgeRepo.GetUserBadges(userID)
}

// GetBadgeCatalog retrieves all available badges.
func (s *Service) GetBadgeCatalog(ctx context.Context) ([]models.Badge, error) {
	return s.badgeRepo.GetAll()
}
