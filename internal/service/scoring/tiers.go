package scoring

import (
	"github.com/shoplog/scoring-engine/internal/config"
)

// TierTable classifies point totals into named tiers using a fixed ascending
// threshold table. Config validation guarantees the thresholds are strictly
// ascending and start at zero, which makes Classify monotonic in points.
type TierTable struct {
	tiers []config.Tier
}

// NewTierTable creates a tier table from validated configuration.
func NewTierTable(tiers []config.Tier) TierTable {
	return TierTable{tiers: tiers}
}

// Classify returns the name of the highest tier whose threshold is at most
// the given point total.
func (t TierTable) Classify(points int64) string {
	current := t.tiers[0].Name
	for _, tier := range t.tiers {
		if points >= tier.MinPoints {
			current = tier.Name
		} else {
			break
		}
	}
	return current
}

// Lowest returns the name of the lowest tier, the default for new users.
func (t TierTable) Lowest() string {
	return t.tiers[0].Name
}

// Contains reports whether the given name is a configured tier.
func (t TierTable) Contains(name string) bool {
	for _, tier := range t.tiers {
		if tier.Name == name {
			return true
		}
	}
	return false
}

// Names returns the tier names in ascending threshold order.
func (t TierTable) Names() []string {
	names := make([]string, len(t.tiers))
	for i, tier := range t.tiers {
		names[i] = tier.Name
	}
	return names
}
