package repository

import (
	"time"

	"gorm.io/gorm/clause"

	"github.com/shoplog/scoring-engine/internal/models"
)

// BadgeRepository handles the badge catalog and per-user badge awards.
type BadgeRepository struct {
	db *DB
}

// NewBadgeRepository creates a new badge repository.
func NewBadgeRepository(db *DB) *BadgeRepository {
	return &BadgeRepository{db: db}
}

// GetAll retrieves all badges from the catalog.
func (r *BadgeRepository) GetAll() ([]models.Badge, error) {
	var badges []models.Badge
	err := r.db.Order("created_at ASC").Find(&badges).Error
	return badges, err
}

// GetByName retrieves a badge by its name.
func (r *BadgeRepository) GetByName(name string) (*models.Badge, error) {
	var badge models.Badge
	err := r.db.Where("name = ?", name).First(&badge).Error
	if err != nil {
		return nil, err
	}
	return &badge, nil
}

// SyncCatalog upserts the configured badges into the catalog so the rule
// table and the displayed catalog stay aligned across deploys.
func (r *BadgeRepository) SyncCatalog(badges []models.Badge) error {
	for i := range badges {
		err := r.db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "name"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"description": badges[i].Description,
				"icon":        badges[i].Icon,
				"updated_at":  time.Now(),
			}),
		}).Create(&badges[i]).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// HasUserEarnedBadge checks if a user has earned a specific badge.
func (r *BadgeRepository) HasUserEarnedBadge(userID, badgeID uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.UserBadge{}).
		Where("user_id = ? AND badge_id = ?", userID, badgeID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// AwardBadge awards a badge to a user at most once. A concurrent duplicate
// award hits the unique (user_id, badge_id) index and is silently dropped.
func (r *BadgeRepository) AwardBadge(userID, badgeID uint, awardedAt time.Time) error {
	userBadge := &models.UserBadge{
		UserID:    userID,
		BadgeID:   badgeID,
		AwardedAt: awardedAt,
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "badge_id"}},
		DoNothing: true,
	}).Create(userBadge).Error
}

// GetUserBadges retrieves all badges earned by a user with details preloaded.
func (r *BadgeRepository) GetUserBadges(userID uint) ([]models.UserBadge, error) {
	var userBadges []models.UserBadge
	err := r.db.
		Where("user_id = ?", userID).
		Preload("Badge").
		Order("awarded_at DESC").
		Find(&userBadges).Error
	return userBadges, err
}

// GetUserBadgeCount returns the total number of badges a user has earned.
func (r *BadgeRepository) GetUserBadgeCount(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.UserBadge{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}
