// Package features turns normalized catalog snapshots into a FeatureVector,
// the [0,1]-scaled numeric form the scorer consumes.
package features

import (
	"math"
	"time"

	"github.com/sells-group/product-scorer/internal/model"
)

// FeatureVector is the normalized numeric summary of one product. Every score
// field lies in [0,1]. FeatureConfidence measures input completeness and is
// applied by the scorer as a dampener, not as a weighted category.
type FeatureVector struct {
	ProductID string           `json:"product_id"`
	Source    model.SourceKind `json:"source"`

	// Demand signals.
	RatingScore       float64 `json:"rating_score"`
	ReviewVolumeScore float64 `json:"review_volume_score"`
	DemandTierScore   float64 `json:"demand_tier_score"`

	// Price signals.
	PriceCompetitivenessScore float64 `json:"price_competitiveness_score"`
	BSRCompetitivenessScore   float64 `json:"bsr_competitiveness_score"`
	PrimeEligibilityScore     float64 `json:"prime_eligibility_score"`

	// Content signals.
	ContentRichnessScore     float64 `json:"content_richness_score"`
	CategorySpecificityScore float64 `json:"category_specificity_score"`
	BrandRecognitionScore    float64 `json:"brand_recognition_score"`

	// Market signals.
	DataFreshnessScore    float64 `json:"data_freshness_score"`
	MarketSaturationScore float64 `json:"market_saturation_score"`

	// Composites.
	DemandStrength    float64 `json:"demand_strength"`
	PriceAdvantage    float64 `json:"price_advantage"`
	ContentQuality    float64 `json:"content_quality"`
	MarketOpportunity float64 `json:"market_opportunity"`

	FeatureConfidence float64   `json:"feature_confidence"`
	ExtractedAt       time.Time `json:"extracted_at"`
}

// Sub-weights shared by the composite scores and the scorer's categories.
const (
	DemandRatingWeight       = 0.40
	DemandReviewVolumeWeight = 0.35
	DemandTierWeight         = 0.25

	PriceCompetitivenessWeight = 0.50
	PriceBSRWeight             = 0.30
	PricePrimeWeight           = 0.20

	ContentRichnessWeight = 0.60
	ContentCategoryWeight = 0.20
	ContentBrandWeight    = 0.20

	MarketOpennessWeight  = 0.60 // applied to 1 - saturation
	MarketFreshnessWeight = 0.40
)

// Extraction constants.
const (
	MaxRating           = 5.0
	ReviewVolumeCap     = 100_000
	BSRRankCap          = 100_000
	ImageCountCap       = 10
	MinImagesCounted    = 3
	ImageContentWeight  = 0.6
	TextContentWeight   = 0.4
	MinDescriptionChars = 50
	MaxDescriptionChars = 2000
	CategoryLevelStep   = 0.2
	FreshnessWindow     = 24 * time.Hour
	NonPrimeScore       = 0.3

	BaseConfidence        = 0.5
	RatingConfidenceBoost = 0.2
	PriceConfidenceBoost  = 0.2
	ImageConfidenceBoost  = 0.1
	TextConfidenceBoost   = 0.1
	TextConfidenceMinLen  = 100
)

// DemandComposite combines the demand sub-scores.
func DemandComposite(rating, reviewVolume, demandTier float64) float64 {
	return Clamp01(DemandRatingWeight*rating + DemandReviewVolumeWeight*reviewVolume + DemandTierWeight*demandTier)
}

// PriceComposite combines the price sub-scores.
func PriceComposite(competitiveness, bsr, prime float64) float64 {
	return Clamp01(PriceCompetitivenessWeight*competitiveness + PriceBSRWeight*bsr + PricePrimeWeight*prime)
}

// ContentComposite combines the content sub-scores.
func ContentComposite(richness, category, brand float64) float64 {
	return Clamp01(ContentRichnessWeight*richness + ContentCategoryWeight*category + ContentBrandWeight*brand)
}

// MarketComposite combines the market sub-scores. High saturation lowers the result.
func MarketComposite(saturation, freshness float64) float64 {
	return Clamp01(MarketOpennessWeight*(1-saturation) + MarketFreshnessWeight*freshness)
}

// Clamp01 bounds v to [0,1]. NaN maps to 0.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
