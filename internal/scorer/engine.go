package scorer

import (
	"math"
	"sort"
	"time"

	"github.com/sells-group/product-scorer/internal/config"
	"github.com/sells-group/product-scorer/internal/features"
	"github.com/sells-group/product-scorer/internal/model"
)

// Tier lower bounds, inclusive.
const (
	TierAPlusMin = 90
	TierAMin     = 80
	TierBMin     = 70
	TierCMin     = 60
)

// MaxListItems caps each of the generated guidance lists.
const MaxListItems = 5

// Result is the outcome of scoring one FeatureVector.
type Result struct {
	ProductID         string               `json:"product_id"`
	OverallScore      int                  `json:"overall_score"`
	Breakdown         model.ScoreBreakdown `json:"score_breakdown"`
	Tier              model.Tier           `json:"score_tier"`
	Recommendations   []string             `json:"recommendations"`
	RiskFactors       []string             `json:"risk_factors"`
	Opportunities     []string             `json:"opportunities"`
	FeatureConfidence float64              `json:"feature_confidence"`
}

// ToRecord converts a Result into the persisted form stamped at now.
func (r Result) ToRecord(now time.Time) model.ScoreRecord {
	return model.ScoreRecord{
		ProductID:         r.ProductID,
		OverallScore:      r.OverallScore,
		Breakdown:         r.Breakdown,
		Tier:              r.Tier,
		Recommendations:   r.Recommendations,
		RiskFactors:       r.RiskFactors,
		Opportunities:     r.Opportunities,
		FeatureConfidence: r.FeatureConfidence,
		ScoredAt:          now,
		UpdatedAt:         now,
	}
}

// Engine scores feature vectors with a fixed set of category weights.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	cfg config.ScorerConfig
}

// NewEngine validates cfg and returns an Engine using it.
func NewEngine(cfg config.ScorerConfig) (*Engine, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

var defaultEngine = &Engine{cfg: DefaultScorerConfig()}

// DefaultEngine returns the Engine backing the package-level Score.
func DefaultEngine() *Engine { return defaultEngine }

// Score scores fv with the default weights.
func Score(fv features.FeatureVector) Result {
	return defaultEngine.Score(fv)
}

// BatchScore scores every vector with the default weights.
func BatchScore(fvs []features.FeatureVector) []Result {
	return defaultEngine.BatchScore(fvs)
}

// Score computes the overall score, breakdown, tier and guidance for fv.
// The same vector always yields the same Result.
func (e *Engine) Score(fv features.FeatureVector) Result {
	demand := e.cfg.DemandWeight * features.DemandComposite(fv.RatingScore, fv.ReviewVolumeScore, fv.DemandTierScore)
	price := e.cfg.PriceWeight * features.PriceComposite(fv.PriceCompetitivenessScore, fv.BSRCompetitivenessScore, fv.PrimeEligibilityScore)
	content := e.cfg.ContentWeight * features.ContentComposite(fv.ContentRichnessScore, fv.CategorySpecificityScore, fv.BrandRecognitionScore)
	market := e.cfg.MarketWeight * features.MarketComposite(fv.MarketSaturationScore, fv.DataFreshnessScore)

	raw := demand + price + content + market
	adjusted := raw * features.Clamp01(fv.FeatureConfidence)
	overall := clampScore(int(math.Round(adjusted * 100)))

	return Result{
		ProductID:    fv.ProductID,
		OverallScore: overall,
		Breakdown: model.ScoreBreakdown{
			Demand:  clampScore(int(math.Round(demand * 100))),
			Price:   clampScore(int(math.Round(price * 100))),
			Content: clampScore(int(math.Round(content * 100))),
			Market:  clampScore(int(math.Round(market * 100))),
		},
		Tier:              TierFor(overall),
		Recommendations:   applyRules(recommendationRules, fv),
		RiskFactors:       applyRules(riskRules, fv),
		Opportunities:     applyRules(opportunityRules, fv),
		FeatureConfidence: fv.FeatureConfidence,
	}
}

// BatchScore scores each vector independently and returns the results
// ordered by overall score, highest first. Ties keep their input order.
func (e *Engine) BatchScore(fvs []features.FeatureVector) []Result {
	results := make([]Result, len(fvs))
	for i, fv := range fvs {
		results[i] = e.Score(fv)
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].OverallScore > results[j].OverallScore
	})
	return results
}

// TierFor maps an overall score onto its tier.
func TierFor(score int) model.Tier {
	switch {
	case score >= TierAPlusMin:
		return model.TierAPlus
	case score >= TierAMin:
		return model.TierA
	case score >= TierBMin:
		return model.TierB
	case score >= TierCMin:
		return model.TierC
	default:
		return model.TierD
	}
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
