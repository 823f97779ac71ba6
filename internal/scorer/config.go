// Package scorer converts a FeatureVector into a 0-100 commercial
// attractiveness score with a tier and rule-based guidance.
package scorer

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/product-scorer/internal/config"
)

// weightTolerance is how far the category weights may drift from 1.0.
const weightTolerance = 0.001

// DefaultScorerConfig returns a config.ScorerConfig with the shipped weights.
// Weights sum to 1.0.
func DefaultScorerConfig() config.ScorerConfig {
	return config.ScorerConfig{
		DemandWeight:  0.35,
		PriceWeight:   0.30,
		ContentWeight: 0.20,
		MarketWeight:  0.15,
	}
}

// WeightSum returns the sum of all category weights.
func WeightSum(c config.ScorerConfig) float64 {
	return c.DemandWeight + c.PriceWeight + c.ContentWeight + c.MarketWeight
}

// ValidateConfig checks that a ScorerConfig is internally consistent.
func ValidateConfig(c config.ScorerConfig) error {
	var errs []string

	// Fixed order keeps the message stable.
	weights := []struct {
		name string
		w    float64
	}{
		{"demand_weight", c.DemandWeight},
		{"price_weight", c.PriceWeight},
		{"content_weight", c.ContentWeight},
		{"market_weight", c.MarketWeight},
	}
	for _, w := range weights {
		if w.w < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", w.name))
		}
	}

	if sum := WeightSum(c); math.Abs(sum-1) > weightTolerance {
		errs = append(errs, fmt.Sprintf("weights should sum to 1.0, got %.3f", sum))
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
