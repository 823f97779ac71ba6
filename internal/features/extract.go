package features

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sells-group/product-scorer/internal/config"
	"github.com/sells-group/product-scorer/internal/model"
)

// Input is everything extraction reads for one product. Price and
// Storefront may be nil.
type Input struct {
	Product model.NormalizedProduct
	Price   *model.NormalizedPriceSnapshot
	// Storefront is reserved for storefront-derived signals. It is accepted
	// and carried through but no feature reads it yet.
	Storefront *model.NormalizedShopifyProduct
}

// DefaultConfig returns the shipped extraction heuristics.
func DefaultConfig() config.FeatureConfig {
	return config.FeatureConfig{
		BrandAllowList:        append([]string(nil), config.DefaultBrandAllowList...),
		GenericBrands:         append([]string(nil), config.DefaultGenericBrands...),
		SaturationHighReviews: 10_000,
		SaturationLowReviews:  100,
		SaturationRatingFloor: 4.0,
	}
}

// demandTierFunc derives the demand tier for one source kind.
type demandTierFunc func(rating *float64, reviews *int) float64

const defaultDemandTier = 0.3

var demandTierStrategies = map[model.SourceKind]demandTierFunc{
	model.SourceImport:     importDemandTier,
	model.SourceStorefront: storefrontDemandTier,
}

// Extractor maps normalized snapshots onto a FeatureVector. It performs no
// I/O; the clock is injected so freshness is reproducible.
type Extractor struct {
	cfg     config.FeatureConfig
	generic map[string]bool
	now     func() time.Time
}

// NewExtractor creates an Extractor. A nil now uses time.Now.
func NewExtractor(cfg config.FeatureConfig, now func() time.Time) *Extractor {
	if now == nil {
		now = time.Now
	}
	generic := make(map[string]bool, len(cfg.GenericBrands))
	for _, g := range cfg.GenericBrands {
		generic[strings.ToLower(strings.TrimSpace(g))] = true
	}
	return &Extractor{cfg: cfg, generic: generic, now: now}
}

// Extract computes the feature vector for one product.
func (e *Extractor) Extract(in Input) FeatureVector {
	p := in.Product
	now := e.now().UTC()

	fv := FeatureVector{
		ProductID:   p.ID,
		Source:      p.SourceKind(),
		ExtractedAt: now,
	}

	fv.RatingScore = ratingScore(p.Rating)
	fv.ReviewVolumeScore = reviewVolumeScore(p.RatingsTotal)
	fv.DemandTierScore = demandTierScore(fv.Source, p.Rating, p.RatingsTotal)

	fv.PriceCompetitivenessScore = priceCompetitivenessScore(in.Price)
	fv.BSRCompetitivenessScore = bsrScore(in.Price)
	fv.PrimeEligibilityScore = primeScore(in.Price)

	fv.ContentRichnessScore = contentRichnessScore(p.ImageCount(), p.Description)
	fv.CategorySpecificityScore = categorySpecificityScore(p.Category)
	fv.BrandRecognitionScore = e.brandRecognitionScore(p.Brand)

	fv.DataFreshnessScore = freshnessScore(p.UpdatedAt, now)
	fv.MarketSaturationScore = e.marketSaturationScore(p.Rating, p.RatingsTotal)

	fv.DemandStrength = DemandComposite(fv.RatingScore, fv.ReviewVolumeScore, fv.DemandTierScore)
	fv.PriceAdvantage = PriceComposite(fv.PriceCompetitivenessScore, fv.BSRCompetitivenessScore, fv.PrimeEligibilityScore)
	fv.ContentQuality = ContentComposite(fv.ContentRichnessScore, fv.CategorySpecificityScore, fv.BrandRecognitionScore)
	fv.MarketOpportunity = MarketComposite(fv.MarketSaturationScore, fv.DataFreshnessScore)

	fv.FeatureConfidence = confidence(in)

	return fv
}

// ratingScore returns rating/5, or 0 without a rating.
func ratingScore(rating *float64) float64 {
	if rating == nil {
		return 0
	}
	return Clamp01(*rating / MaxRating)
}

// reviewVolumeScore scales the review count logarithmically up to ReviewVolumeCap.
func reviewVolumeScore(reviews *int) float64 {
	if reviews == nil || *reviews <= 0 {
		return 0
	}
	return Clamp01(math.Log(float64(*reviews)) / math.Log(ReviewVolumeCap))
}

func demandTierScore(kind model.SourceKind, rating *float64, reviews *int) float64 {
	if fn, ok := demandTierStrategies[kind]; ok {
		return fn(rating, reviews)
	}
	return defaultDemandTier
}

// importDemandTier grades marketplace imports on review depth and rating.
func importDemandTier(rating *float64, reviews *int) float64 {
	if rating == nil || reviews == nil {
		return defaultDemandTier
	}
	switch {
	case *reviews > 5000 && *rating >= 4.5:
		return 1.0
	case *reviews > 1000 && *rating >= 4.0:
		return 0.6
	default:
		return defaultDemandTier
	}
}

// storefrontDemandTier is flat: storefront products have no marketplace history.
func storefrontDemandTier(_ *float64, _ *int) float64 {
	return 0.6
}

// priceCompetitivenessScore returns the markup over cost, 0.5 when only one
// price is known, and 0 without price data.
func priceCompetitivenessScore(p *model.NormalizedPriceSnapshot) float64 {
	if p == nil {
		return 0
	}
	hasCurrent := p.CurrentPrice != nil && *p.CurrentPrice > 0
	hasCost := p.CostPrice != nil && *p.CostPrice > 0
	switch {
	case hasCurrent && hasCost:
		return Clamp01((*p.CurrentPrice - *p.CostPrice) / *p.CostPrice)
	case hasCurrent || hasCost:
		return 0.5
	default:
		return 0
	}
}

// bsrScore maps best-seller rank onto [0,1]; rank 1 scores 1.
func bsrScore(p *model.NormalizedPriceSnapshot) float64 {
	if p == nil || p.BSRRank == nil || *p.BSRRank <= 0 {
		return 0
	}
	return Clamp01(1 - math.Log(float64(*p.BSRRank))/math.Log(BSRRankCap))
}

// primeScore penalizes non-prime listings without zeroing them.
func primeScore(p *model.NormalizedPriceSnapshot) float64 {
	if p != nil && p.IsPrime {
		return 1.0
	}
	return NonPrimeScore
}

func contentRichnessScore(images int, description string) float64 {
	var imageScore float64
	if images >= MinImagesCounted {
		imageScore = math.Min(float64(images)/ImageCountCap, 1)
	}

	var textScore float64
	n := utf8.RuneCountInString(strings.TrimSpace(description))
	switch {
	case n >= MaxDescriptionChars:
		textScore = 1
	case n > MinDescriptionChars:
		textScore = float64(n-MinDescriptionChars) / float64(MaxDescriptionChars-MinDescriptionChars)
	}

	return Clamp01(ImageContentWeight*imageScore + TextContentWeight*textScore)
}

// categorySpecificityScore rewards deeper category paths, 0.2 per level past the root.
func categorySpecificityScore(category string) float64 {
	levels := 0
	for _, seg := range strings.FieldsFunc(category, func(r rune) bool {
		return r == '>' || r == '/' || r == '|'
	}) {
		if strings.TrimSpace(seg) != "" {
			levels++
		}
	}
	return Clamp01(float64(levels-1) * CategoryLevelStep)
}

// freshnessScore decays linearly to 0 over FreshnessWindow.
func freshnessScore(updatedAt, now time.Time) float64 {
	if updatedAt.IsZero() {
		return 0
	}
	age := now.Sub(updatedAt)
	if age <= 0 {
		return 1
	}
	if age >= FreshnessWindow {
		return 0
	}
	return Clamp01(1 - float64(age)/float64(FreshnessWindow))
}

// marketSaturationScore buckets products by review depth and rating. Many
// reviews with a weak rating means an entrenched, crowded market.
func (e *Extractor) marketSaturationScore(rating *float64, reviews *int) float64 {
	n := 0
	if reviews != nil {
		n = *reviews
	}
	switch {
	case n > e.cfg.SaturationHighReviews && rating != nil && *rating < e.cfg.SaturationRatingFloor:
		return 0.8
	case n > e.cfg.SaturationHighReviews:
		return 0.6
	case n < e.cfg.SaturationLowReviews:
		return 0.2
	default:
		return 0.4
	}
}

func (e *Extractor) brandRecognitionScore(brand string) float64 {
	b := strings.ToLower(strings.TrimSpace(brand))
	if b != "" {
		for _, known := range e.cfg.BrandAllowList {
			known = strings.ToLower(strings.TrimSpace(known))
			if known != "" && strings.Contains(b, known) {
				return 1.0
			}
		}
	}

	n := utf8.RuneCountInString(b)
	switch {
	case n > 2 && !e.generic[b]:
		return 0.6
	case n > 1:
		return 0.4
	default:
		return 0.3
	}
}

// confidence estimates input completeness.
func confidence(in Input) float64 {
	c := BaseConfidence
	if in.Product.Rating != nil && in.Product.RatingsTotal != nil {
		c += RatingConfidenceBoost
	}
	if in.Price != nil {
		c += PriceConfidenceBoost
	}
	if in.Product.ImageCount() >= 1 {
		c += ImageConfidenceBoost
	}
	if utf8.RuneCountInString(strings.TrimSpace(in.Product.Description)) > TextConfidenceMinLen {
		c += TextConfidenceBoost
	}
	return math.Min(c, 1)
}
