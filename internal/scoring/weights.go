package scoring

import (
	"fmt"
	"math"
)

// weightTolerance is how far the weight sum may drift from 1.0.
const weightTolerance = 1e-3

// Weights controls how much each signal contributes to the composite score.
// Personalization signals (AIMatch, DurationMatch, Recency) and discovery
// signals (Trending, SocialBuzz, Popularity) must together sum to 1.0.
type Weights struct {
	AIMatch       float64 `yaml:"ai_match" json:"ai_match"`
	DurationMatch float64 `yaml:"duration_match" json:"duration_match"`
	Recency       float64 `yaml:"recency" json:"recency"`
	Trending      float64 `yaml:"trending" json:"trending"`
	SocialBuzz    float64 `yaml:"social_buzz" json:"social_buzz"`
	Popularity    float64 `yaml:"popularity" json:"popularity"`
}

// DefaultWeights returns the stock 70/30 personalization/discovery split.
func DefaultWeights() Weights {
	return Weights{
		AIMatch:       0.50,
		DurationMatch: 0.05,
		Recency:       0.10,
		Trending:      0.15,
		SocialBuzz:    0.10,
		Popularity:    0.10,
	}
}

// Sum returns the total of all six weights.
func (w Weights) Sum() float64 {
	return w.AIMatch + w.DurationMatch + w.Recency + w.Trending + w.SocialBuzz + w.Popularity
}

// Validate reports an error when any weight is negative or the weights do
// not sum to 1.0.
func (w Weights) Validate() error {
	named := []struct {
		name  string
		value float64
	}{
		{"ai_match", w.AIMatch},
		{"duration_match", w.DurationMatch},
		{"recency", w.Recency},
		{"trending", w.Trending},
		{"social_buzz", w.SocialBuzz},
		{"popularity", w.Popularity},
	}
	for _, n := range named {
		if n.value < 0 || math.IsNaN(n.value) {
			return fmt.Errorf("weight %s must be a non-negative number, got %v", n.name, n.value)
		}
	}
	if total := w.Sum(); math.Abs(total-1.0) >= weightTolerance {
		return fmt.Errorf("weights must sum to 1.0, got %.4f", total)
	}
	return nil
}
