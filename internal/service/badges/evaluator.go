package badges

import (
	"fmt"

	"github.com/shoplog/scoring-engine/internal/config"
)

// CriterionKind enumerates the supported badge predicates.
type CriterionKind string

const (
	// ActivityCount is satisfied when the lifetime count of one activity
	// type reaches the threshold.
	ActivityCount CriterionKind = "activity_count"
	// StreakDays is satisfied when the current streak reaches the threshold.
	StreakDays CriterionKind = "streak_days"
)

// Rule is one entry of the typed criterion table.
type Rule struct {
	BadgeName    string
	Description  string
	Icon         string
	Kind         CriterionKind
	ActivityType string // only for ActivityCount
	Threshold    int
}

// RulesFromConfig converts validated badge configuration into the rule table.
func RulesFromConfig(cfg []config.BadgeRule) []Rule {
	rules := make([]Rule, len(cfg))
	for i, b := range cfg {
		rules[i] = Rule{
			BadgeName:    b.Name,
			Description:  b.Description,
			Icon:         b.Icon,
			Kind:         CriterionKind(b.Criterion),
			ActivityType: b.ActivityType,
			Threshold:    b.Threshold,
		}
	}
	return rules
}

// ruleSatisfied tests a single rule's predicate against the user's history.
func (s *Service) ruleSatisfied(rule Rule, userID uint) (bool, error) {
	switch rule.Kind {
	case ActivityCount:
		count, err := s.activityRepo.CountByType(userID, rule.ActivityType)
		if err != nil {
			return false, err
		}
		return count >= int64(rule.Threshold), nil

	case StreakDays:
		agg, err := s.aggRepo.GetByUserID(userID)
		if err != nil {
			return false, err
		}
		if agg == nil {
			return false, nil
		}
		return agg.StreakDays >= rule.Threshold, nil

	default:
		return false, fmt.Errorf("unsupported criterion kind: %s", rule.Kind)
	}
}
