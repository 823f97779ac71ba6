package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultScorerConfig(t *testing.T) {
	cfg := DefaultScorerConfig()
	assert.InDelta(t, 1.0, WeightSum(cfg), 0.0001)
	assert.NoError(t, ValidateConfig(cfg))
}

func TestValidateConfig_NegativeWeight(t *testing.T) {
	cfg := DefaultScorerConfig()
	cfg.PriceWeight = -0.1
	cfg.DemandWeight = 0.75

	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "price_weight must be >= 0")
}

func TestValidateConfig_Sum(t *testing.T) {
	tests := []struct {
		name    string
		market  float64
		wantErr bool
	}{
		{"exact", 0.15, false},
		{"within tolerance", 0.1505, false},
		{"too high", 0.25, true},
		{"too low", 0.05, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultScorerConfig()
			cfg.MarketWeight = tt.market
			err := ValidateConfig(cfg)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "weights should sum to 1.0")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
