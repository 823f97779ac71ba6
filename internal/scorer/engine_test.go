package scorer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/product-scorer/internal/features"
	"github.com/sells-group/product-scorer/internal/model"
)

// uniformVector sets every sub-score and composite to v.
func uniformVector(id string, v, confidence float64) features.FeatureVector {
	return features.FeatureVector{
		ProductID:                 id,
		RatingScore:               v,
		ReviewVolumeScore:         v,
		DemandTierScore:           v,
		PriceCompetitivenessScore: v,
		BSRCompetitivenessScore:   v,
		PrimeEligibilityScore:     v,
		ContentRichnessScore:      v,
		CategorySpecificityScore:  v,
		BrandRecognitionScore:     v,
		DataFreshnessScore:        v,
		MarketSaturationScore:     v,
		DemandStrength:            v,
		PriceAdvantage:            v,
		ContentQuality:            v,
		MarketOpportunity:         v,
		FeatureConfidence:         confidence,
	}
}

func TestScore_ZeroVector(t *testing.T) {
	r := Score(features.FeatureVector{ProductID: "p-0"})

	assert.Equal(t, "p-0", r.ProductID)
	assert.Equal(t, 0, r.OverallScore)
	assert.Equal(t, model.TierD, r.Tier)
	// Breakdown is not dampened by confidence; an empty market still scores openness.
	assert.Equal(t, model.ScoreBreakdown{Demand: 0, Price: 0, Content: 0, Market: 9}, r.Breakdown)
	assert.Len(t, r.Recommendations, MaxListItems)
	assert.Len(t, r.RiskFactors, MaxListItems)
	assert.Equal(t, []string{"Underserved market with few competitors"}, r.Opportunities)
}

func TestScore_AllOnesCeiling(t *testing.T) {
	r := Score(uniformVector("p-1", 1, 1))

	assert.Equal(t, 91, r.OverallScore)
	assert.Equal(t, model.TierAPlus, r.Tier)
	assert.Equal(t, model.ScoreBreakdown{Demand: 35, Price: 30, Content: 20, Market: 6}, r.Breakdown)
	assert.Empty(t, r.Recommendations)
	assert.Equal(t, []string{"Saturated market with entrenched competitors"}, r.RiskFactors)
	assert.Len(t, r.Opportunities, MaxListItems)
}

func TestScore_BestExtractableVector(t *testing.T) {
	fv := uniformVector("p-best", 1, 1)
	fv.MarketSaturationScore = 0.2

	r := Score(fv)
	assert.Equal(t, 98, r.OverallScore)
	assert.Equal(t, 13, r.Breakdown.Market)
}

func TestScore_ConfidenceDampens(t *testing.T) {
	full := Score(uniformVector("p", 1, 1))
	half := Score(uniformVector("p", 1, 0.6))

	assert.Equal(t, 55, half.OverallScore)
	assert.Equal(t, full.Breakdown, half.Breakdown)
	assert.Contains(t, half.RiskFactors, "Incomplete product data lowers score confidence")
}

func TestScore_Deterministic(t *testing.T) {
	fv := uniformVector("p", 0.63, 0.8)
	assert.Equal(t, Score(fv), Score(fv))
}

func TestScore_OverallInRange(t *testing.T) {
	for _, v := range []float64{0, 0.1, 0.33, 0.5, 0.77, 1} {
		for _, c := range []float64{0, 0.5, 1} {
			r := Score(uniformVector("p", v, c))
			assert.GreaterOrEqual(t, r.OverallScore, 0)
			assert.LessOrEqual(t, r.OverallScore, 100)
			assert.True(t, r.Tier.Valid())
		}
	}
}

func TestTierFor(t *testing.T) {
	tests := []struct {
		score int
		want  model.Tier
	}{
		{100, model.TierAPlus},
		{90, model.TierAPlus},
		{89, model.TierA},
		{80, model.TierA},
		{79, model.TierB},
		{70, model.TierB},
		{69, model.TierC},
		{60, model.TierC},
		{59, model.TierD},
		{0, model.TierD},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TierFor(tt.score), "score %d", tt.score)
	}
}

func TestBatchScore_StableDescending(t *testing.T) {
	fvs := []features.FeatureVector{
		uniformVector("low", 0.2, 1),
		uniformVector("high", 1, 1),
		uniformVector("tie-a", 0.6, 1),
		uniformVector("tie-b", 0.6, 1),
		uniformVector("mid", 0.8, 1),
	}

	results := BatchScore(fvs)
	require.Len(t, results, len(fvs))

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ProductID
	}
	assert.Equal(t, []string{"high", "mid", "tie-a", "tie-b", "low"}, ids)

	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].OverallScore, results[i].OverallScore)
	}
}

func TestBatchScore_Empty(t *testing.T) {
	assert.Empty(t, BatchScore(nil))
}

func TestNewEngine_CustomWeights(t *testing.T) {
	cfg := DefaultScorerConfig()
	cfg.DemandWeight = 0.50
	cfg.MarketWeight = 0.0
	e, err := NewEngine(cfg)
	require.NoError(t, err)

	r := e.Score(uniformVector("p", 1, 1))
	assert.Equal(t, 100, r.OverallScore)
	assert.Equal(t, 50, r.Breakdown.Demand)
	assert.Equal(t, 0, r.Breakdown.Market)
}

func TestNewEngine_InvalidWeights(t *testing.T) {
	cfg := DefaultScorerConfig()
	cfg.DemandWeight = 0.9
	_, err := NewEngine(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weights should sum to 1.0")
}

func TestResultToRecord(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := Score(uniformVector("p-9", 1, 1))

	rec := r.ToRecord(now)
	assert.Equal(t, "p-9", rec.ProductID)
	assert.Equal(t, r.OverallScore, rec.OverallScore)
	assert.Equal(t, r.Breakdown, rec.Breakdown)
	assert.Equal(t, r.Tier, rec.Tier)
	assert.Equal(t, r.Opportunities, rec.Opportunities)
	assert.Equal(t, now, rec.ScoredAt)
	assert.Equal(t, now, rec.UpdatedAt)
}
