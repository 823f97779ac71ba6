package scorer

import "github.com/sells-group/product-scorer/internal/features"

// rule emits message when match holds for a vector.
type rule struct {
	match   func(fv features.FeatureVector) bool
	message string
}

// Rules are evaluated in table order. Only the first MaxListItems matches are
// kept; there is no ranking beyond table position.
var recommendationRules = []rule{
	{func(fv features.FeatureVector) bool { return fv.ContentRichnessScore < 0.5 },
		"Add more product images and expand the description"},
	{func(fv features.FeatureVector) bool { return fv.PriceCompetitivenessScore < 0.3 },
		"Review pricing: margin over cost is thin or unknown"},
	{func(fv features.FeatureVector) bool { return fv.PrimeEligibilityScore < 1 },
		"Enroll the listing in Prime fulfillment"},
	{func(fv features.FeatureVector) bool { return fv.CategorySpecificityScore < 0.4 },
		"Assign a more specific category path"},
	{func(fv features.FeatureVector) bool { return fv.DataFreshnessScore < 0.5 },
		"Refresh product data; the snapshot is getting old"},
	{func(fv features.FeatureVector) bool { return fv.BrandRecognitionScore < 0.5 },
		"Strengthen brand presentation on the listing"},
	{func(fv features.FeatureVector) bool { return fv.ReviewVolumeScore < 0.3 },
		"Run a review generation campaign"},
}

var riskRules = []rule{
	{func(fv features.FeatureVector) bool { return fv.RatingScore < 0.7 },
		"Low customer rating"},
	{func(fv features.FeatureVector) bool { return fv.MarketSaturationScore >= 0.6 },
		"Saturated market with entrenched competitors"},
	{func(fv features.FeatureVector) bool { return fv.PriceCompetitivenessScore == 0 },
		"No usable price data"},
	{func(fv features.FeatureVector) bool { return fv.DataFreshnessScore == 0 },
		"Product data is stale"},
	{func(fv features.FeatureVector) bool { return fv.FeatureConfidence < 0.7 },
		"Incomplete product data lowers score confidence"},
	{func(fv features.FeatureVector) bool { return fv.BSRCompetitivenessScore < 0.2 },
		"Weak best-seller rank"},
}

var opportunityRules = []rule{
	{func(fv features.FeatureVector) bool { return fv.DemandStrength >= 0.7 },
		"Strong proven demand"},
	{func(fv features.FeatureVector) bool { return fv.MarketSaturationScore <= 0.2 },
		"Underserved market with few competitors"},
	{func(fv features.FeatureVector) bool { return fv.PriceCompetitivenessScore >= 0.7 },
		"Healthy margin over cost"},
	{func(fv features.FeatureVector) bool { return fv.BrandRecognitionScore >= 1 },
		"Well-known brand"},
	{func(fv features.FeatureVector) bool { return fv.ContentQuality >= 0.8 },
		"Listing content is ready for promotion"},
	{func(fv features.FeatureVector) bool { return fv.BSRCompetitivenessScore >= 0.7 },
		"Top best-seller rank"},
}

// applyRules returns the messages of the first MaxListItems matching rules.
// The result is never nil.
func applyRules(rules []rule, fv features.FeatureVector) []string {
	out := make([]string, 0, MaxListItems)
	for _, r := range rules {
		if len(out) == MaxListItems {
			break
		}
		if r.match(fv) {
			out = append(out, r.message)
		}
	}
	return out
}
