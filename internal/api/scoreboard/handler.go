// Package scoreboard provides the REST API surface of the scoring engine:
// activity awards, leaderboard views, badge reads and the manual recompute
// trigger. The authenticated user is taken from the X-User-ID header set by
// the identity layer in front of this service.
package scoreboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shoplog/scoring-engine/internal/models"
	"github.com/shoplog/scoring-engine/internal/service/leaderboard"
	"github.com/shoplog/scoring-engine/internal/service/scoring"
	"github.com/shoplog/scoring-engine/pkg/logger"
)

// ScoringService interface for award operations.
type ScoringService interface {
	Award(ctx context.Context, input scoring.AwardInput) (*scoring.AwardResult, error)
}

// LeaderboardService interface for ranked views.
type LeaderboardService interface {
	Global(ctx context.Context, limit int) ([]leaderboard.Entry, error)
	Tier(ctx context.Context, tier string, limit int) ([]leaderboard.Entry, error)
	Weekly(ctx context.Context, limit int) ([]leaderboard.Entry, error)
	AroundMe(ctx context.Context, userID uint, windowSize int) ([]leaderboard.Entry, error)
	Position(ctx context.Context, userID uint) (*leaderboard.Entry, error)
	UserStats(ctx context.Context, userID uint) (*leaderboard.UserStats, error)
}

// BadgeService interface for badge reads.
type BadgeService interface {
	GetUserBadges(ctx context.Context, userID uint) ([]models.UserBadge, error)
	GetBadgeCatalog(ctx context.Context) ([]models.Badge, error)
}

// Recomputer triggers a rank recompute outside the cron cadence.
type Recomputer interface {
	RunNow(ctx context.Context) error
}

// HealthChecker reports store health.
type HealthChecker interface {
	Health() error
}

// Handler handles scoring API requests.
type Handler struct {
	scoringService     ScoringService
	leaderboardService LeaderboardService
	badgeService       BadgeService
	recomputer         Recomputer
	health             HealthChecker
	log                *logger.Logger
}

// NewHandler creates a new API handler.
func NewHandler(
	scoringService ScoringService,
	leaderboardService LeaderboardService,
	badgeService BadgeService,
	recomputer Recomputer,
	health HealthChecker,
	log *logger.Logger,
) *Handler {
	return &Handler{
		scoringService:     scoringService,
		leaderboardService: leaderboardService,
		badgeService:       badgeService,
		recomputer:         recomputer,
		health:             health,
		log:                log,
	}
}

// RegisterRoutes registers all API routes on the router.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.GetHealth)

	api := r.Group("/api/v1")
	{
		api.POST("/activities", h.PostActivity)
		api.GET("/leaderboard", h.GetGlobalLeaderboard)
		api.GET("/leaderboard/tier/:tier", h.GetTierLeaderboard)
		api.GET("/leaderboard/weekly", h.GetWeeklyLeaderboard)
		api.GET("/leaderboard/me", h.GetLeaderboardAroundMe)
		api.GET("/users/:id/rank", h.GetUserRank)
		api.GET("/users/:id/badges", h.GetUserBadges)
		api.GET("/users/:id/stats", h.GetUserStats)
		api.GET("/badges", h.GetBadgeCatalog)
		api.POST("/admin/recompute", h.PostRecompute)
	}
}

// awardRequest is the body of POST /api/v1/activities.
type awardRequest struct {
	ActivityType  string                 `json:"activity_type" binding:"required"`
	ReferenceID   *string                `json:"reference_id,omitempty"`
	ReferenceType *string                `json:"reference_type,omitempty"`
	Multiplier    float64                `json:"multiplier,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// PostActivity records one activity for the authenticated user.
// POST /api/v1/activities.
func (h *Handler) PostActivity(c *gin.Context) {
	userID, err := h.authenticatedUser(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	var req awardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	input := scoring.AwardInput{
		UserID:        userID,
		ActivityType:  req.ActivityType,
		ReferenceID:   req.ReferenceID,
		ReferenceType: req.ReferenceType,
		Multiplier:    req.Multiplier,
	}
	if req.Metadata != nil {
		raw, err := json.Marshal(req.Metadata)
		if err != nil {
			h.errorResponse(c, http.StatusBadRequest, "invalid metadata")
			return
		}
		input.Metadata = raw
	}

	result, err := h.scoringService.Award(c.Request.Context(), input)
	if err != nil {
		switch {
		case errors.Is(err, scoring.ErrUnknownActivityType),
			errors.Is(err, scoring.ErrInvalidMultiplier):
			h.errorResponse(c, http.StatusBadRequest, err.Error())
		case errors.Is(err, scoring.ErrDailyLimitExceeded):
			h.errorResponse(c, http.StatusTooManyRequests, err.Error())
		case errors.Is(err, scoring.ErrStoreUnavailable):
			h.log.Error().Err(err).Uint("user_id", userID).Msg("Award failed on store error")
			h.errorResponse(c, http.StatusServiceUnavailable, "store temporarily unavailable, retry")
		default:
			h.log.Error().Err(err).Uint("user_id", userID).Msg("Award failed")
			h.errorResponse(c, http.StatusInternalServerError, "failed to record activity")
		}
		return
	}

	c.JSON(http.StatusCreated, result)
}

// GetGlobalLeaderboard returns the global leaderboard.
// GET /api/v1/leaderboard?limit=25.
func (h *Handler) GetGlobalLeaderboard(c *gin.Context) {
	limit, err := h.parseLimit(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.leaderboardService.Global(c.Request.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get global leaderboard")
		h.errorResponse(c, http.StatusInternalServerError, "failed to retrieve leaderboard")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"leaderboard":  entries,
		"generated_at": time.Now().UTC(),
	})
}

// GetTierLeaderboard returns the leaderboard for one tier.
// GET /api/v1/leaderboard/tier/:tier?limit=25.
func (h *Handler) GetTierLeaderboard(c *gin.Context) {
	tier := c.Param("tier")
	limit, err := h.parseLimit(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.leaderboardService.Tier(c.Request.Context(), tier, limit)
	if err != nil {
		h.log.Error().Err(err).Str("tier", tier).Msg("Failed to get tier leaderboard")
		h.errorResponse(c, http.StatusInternalServerError, "failed to retrieve leaderboard")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tier":         tier,
		"leaderboard":  entries,
		"generated_at": time.Now().UTC(),
	})
}

// GetWeeklyLeaderboard returns the trailing-seven-day leaderboard.
// GET /api/v1/leaderboard/weekly?limit=25.
func (h *Handler) GetWeeklyLeaderboard(c *gin.Context) {
	limit, err := h.parseLimit(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.leaderboardService.Weekly(c.Request.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get weekly leaderboard")
		h.errorResponse(c, http.StatusInternalServerError, "failed to retrieve leaderboard")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"leaderboard":  entries,
		"generated_at": time.Now().UTC(),
	})
}

// GetLeaderboardAroundMe returns a window centered on the caller's position.
// GET /api/v1/leaderboard/me?window=11.
func (h *Handler) GetLeaderboardAroundMe(c *gin.Context) {
	userID, err := h.authenticatedUser(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	window := 11
	if w := c.Query("window"); w != "" {
		window, err = strconv.Atoi(w)
		if err != nil || window < 1 {
			h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid window parameter: %s", w))
			return
		}
	}

	entries, err := h.leaderboardService.AroundMe(c.Request.Context(), userID, window)
	if err != nil {
		if errors.Is(err, leaderboard.ErrNotRanked) {
			h.errorResponse(c, http.StatusNotFound, "no ranking yet, record an activity first")
			return
		}
		h.log.Error().Err(err).Uint("user_id", userID).Msg("Failed to get contextual leaderboard")
		h.errorResponse(c, http.StatusInternalServerError, "failed to retrieve leaderboard")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":      userID,
		"leaderboard":  entries,
		"generated_at": time.Now().UTC(),
	})
}

// GetUserRank returns a user's own leaderboard entry.
// GET /api/v1/users/:id/rank.
func (h *Handler) GetUserRank(c *gin.Context) {
	userID, err := h.parseUserID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	entry, err := h.leaderboardService.Position(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, leaderboard.ErrNotRanked) {
			h.errorResponse(c, http.StatusNotFound, "user has no ranking yet")
			return
		}
		h.log.Error().Err(err).Uint("user_id", userID).Msg("Failed to get user rank")
		h.errorResponse(c, http.StatusInternalServerError, "failed to retrieve rank")
		return
	}

	c.JSON(http.StatusOK, entry)
}

// GetUserBadges returns badges earned by a specific user.
// GET /api/v1/users/:id/badges.
func (h *Handler) GetUserBadges(c *gin.Context) {
	userID, err := h.parseUserID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	userBadges, err := h.badgeService.GetUserBadges(c.Request.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Uint("user_id", userID).Msg("Failed to get user badges")
		h.errorResponse(c, http.StatusInternalServerError, "failed to retrieve user badges")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":      userID,
		"badges":       userBadges,
		"total_badges": len(userBadges),
	})
}

// GetUserStats returns the self view for a specific user.
// GET /api/v1/users/:id/stats.
func (h *Handler) GetUserStats(c *gin.Context) {
	userID, err := h.parseUserID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	stats, err := h.leaderboardService.UserStats(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, leaderboard.ErrNotRanked) {
			h.errorResponse(c, http.StatusNotFound, "user has no activity yet")
			return
		}
		h.log.Error().Err(err).Uint("user_id", userID).Msg("Failed to get user stats")
		h.errorResponse(c, http.StatusInternalServerError, "failed to retrieve user statistics")
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GetBadgeCatalog returns all available badges.
// GET /api/v1/badges.
func (h *Handler) GetBadgeCatalog(c *gin.Context) {
	badges, err := h.badgeService.GetBadgeCatalog(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get badge catalog")
		h.errorResponse(c, http.StatusInternalServerError, "failed to retrieve badge catalog")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"badges":       badges,
		"total_badges": len(badges),
	})
}

// PostRecompute triggers one rank recompute immediately.
// POST /api/v1/admin/recompute.
func (h *Handler) PostRecompute(c *gin.Context) {
	if err := h.recomputer.RunNow(c.Request.Context()); err != nil {
		h.log.Error().Err(err).Msg("Manual rank recompute failed")
		h.errorResponse(c, http.StatusInternalServerError, "recompute failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "completed"})
}

// GetHealth reports store health.
// GET /health.
func (h *Handler) GetHealth(c *gin.Context) {
	if err := h.health.Health(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Helper functions

// authenticatedUser reads the user ID the identity layer set on the request.
func (h *Handler) authenticatedUser(c *gin.Context) (uint, error) {
	idStr := c.GetHeader("X-User-ID")
	if idStr == "" {
		return 0, fmt.Errorf("missing X-User-ID header")
	}
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid X-User-ID header: %s", idStr)
	}
	return uint(id), nil
}

// parseUserID extracts and validates the user ID from the URL parameter.
func (h *Handler) parseUserID(c *gin.Context) (uint, error) {
	idStr := c.Param("id")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid user ID: %s", idStr)
	}
	return uint(id), nil
}

// parseLimit extracts and validates the limit query parameter. Zero means
// the service default.
func (h *Handler) parseLimit(c *gin.Context) (int, error) {
	limitStr := c.Query("limit")
	if limitStr == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit < 1 {
		return 0, fmt.Errorf("invalid limit parameter: %s", limitStr)
	}
	return limit, nil
}

// errorResponse sends a standardized error response.
func (h *Handler) errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}
