package scoring

import (
	"testing"

	"github.com/shoplog/scoring-engine/internal/config"
)

func TestTierTable_Classify(t *testing.T) {
	table := NewTierTable(config.DefaultTiers())

	tests := []struct {
		name     string
		points   int64
		expected string
	}{
		{"Zero points", 0, "BRONZE"},
		{"Just below silver", 199, "BRONZE"},
		{"Exactly silver threshold", 200, "SILVER"},
		{"Mid silver", 999, "SILVER"},
		{"Exactly gold threshold", 1000, "GOLD"},
		{"Exactly platinum threshold", 5000, "PLATINUM"},
		{"Exactly diamond threshold", 20000, "DIAMOND"},
		{"Far beyond top tier", 1000000, "DIAMOND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := table.Classify(tt.points)
			if got != tt.expected {
				t.Errorf("Classify(%d) = %q, expected %q", tt.points, got, tt.expected)
			}
		})
	}
}

func TestTierTable_ClassifyMonotonic(t *testing.T) {
	table := NewTierTable(config.DefaultTiers())

	// The tier index never decreases as points grow
	rank := func(name string) int {
		for i, n := range table.Names() {
			if n == name {
				return i
			}
		}
		return -1
	}

	prev := -1
	for points := int64(0); points <= 25000; points += 50 {
		r := rank(table.Classify(points))
		if r < prev {
			t.Fatalf("Tier rank decreased at %d points", points)
		}
		prev = r
	}
}

func TestTierTable_LowestAndContains(t *testing.T) {
	table := NewTierTable(config.DefaultTiers())

	if table.Lowest() != "BRONZE" {
		t.Errorf("Expected lowest tier BRONZE, got %q", table.Lowest())
	}
	if !table.Contains("GOLD") {
		t.Error("Expected GOLD to be a configured tier")
	}
	if table.Contains("WOOD") {
		t.Error("Did not expect WOOD to be a configured tier")
	}
}
