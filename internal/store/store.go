// Package store persists feature vectors, scores, the analysis audit log
// and the normalized catalog.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/product-scorer/internal/features"
	"github.com/sells-group/product-scorer/internal/model"
)

// DefaultListLimit applies when a list call passes limit <= 0.
const DefaultListLimit = 100

// Store defines the persistence interface for the scoring pipeline.
//
// Single-row reads return (nil, nil) when the row does not exist; a non-nil
// error always means the read itself failed.
type Store interface {
	// Feature vectors
	UpsertFeatureVector(ctx context.Context, fv features.FeatureVector) error
	GetFeatureVector(ctx context.Context, productID string) (*features.FeatureVector, error)

	// Scores
	UpsertScore(ctx context.Context, rec model.ScoreRecord) error
	GetScore(ctx context.Context, productID string) (*model.ScoreRecord, error)
	TopScores(ctx context.Context, limit int) ([]model.ScoreRecord, error)
	ScoresByTier(ctx context.Context, tier model.Tier, limit int) ([]model.ScoreRecord, error)
	ScoreStats(ctx context.Context) (*model.ScoreStats, error)

	// Audit log
	AppendAnalysisLog(ctx context.Context, entry model.AnalysisLogEntry) error
	ListAnalysisLog(ctx context.Context, productID string, limit int) ([]model.AnalysisLogEntry, error)

	// Catalog
	UpsertProducts(ctx context.Context, entries []model.CatalogEntry) (int64, error)
	GetCatalogEntry(ctx context.Context, productID string) (*model.CatalogEntry, error)
	ListRescoreCandidates(ctx context.Context, cutoff time.Time, limit int) ([]model.CatalogEntry, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// UpsertAnalysis writes the feature vector and then the score. The two
// writes are not atomic: when the score write fails the vector stays
// persisted and the error is returned.
func UpsertAnalysis(ctx context.Context, st Store, fv features.FeatureVector, rec model.ScoreRecord) error {
	if err := st.UpsertFeatureVector(ctx, fv); err != nil {
		return eris.Wrapf(err, "store: upsert analysis %s", fv.ProductID)
	}
	if err := st.UpsertScore(ctx, rec); err != nil {
		return eris.Wrapf(err, "store: upsert analysis %s", rec.ProductID)
	}
	return nil
}

// Column lists shared by both backends.
var (
	vectorColumns = []string{
		"product_id", "source",
		"rating_score", "review_volume_score", "demand_tier_score",
		"price_competitiveness_score", "bsr_competitiveness_score", "prime_eligibility_score",
		"content_richness_score", "category_specificity_score", "brand_recognition_score",
		"data_freshness_score", "market_saturation_score",
		"demand_strength", "price_advantage", "content_quality", "market_opportunity",
		"feature_confidence", "extracted_at",
	}

	scoreColumns = []string{
		"product_id", "overall_score",
		"demand_score", "price_score", "content_score", "market_score",
		"score_tier", "recommendations", "risk_factors", "opportunities",
		"feature_confidence", "scored_at", "updated_at",
	}

	logColumns = []string{
		"id", "product_id", "previous_score", "new_score", "score_change",
		"processing_time_ms", "triggered_by", "error_message", "created_at",
	}

	productColumns = []string{"id", "source", "product", "price", "storefront", "updated_at"}
)

// upsertQuery builds an INSERT ... ON CONFLICT (key) DO UPDATE statement that
// overwrites every non-key column. Both Postgres and SQLite accept it.
func upsertQuery(table string, cols []string, key string, placeholder func(i int) string) string {
	ph := make([]string, len(cols))
	var set []string
	for i, c := range cols {
		ph[i] = placeholder(i + 1)
		if c != key {
			set = append(set, fmt.Sprintf("%s = excluded.%s", c, c))
		}
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		table, strings.Join(cols, ", "), strings.Join(ph, ", "), key, strings.Join(set, ", "))
}

func insertQuery(table string, cols []string, placeholder func(i int) string) string {
	ph := make([]string, len(cols))
	for i := range cols {
		ph[i] = placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), strings.Join(ph, ", "))
}

func dollar(i int) string { return fmt.Sprintf("$%d", i) }
func question(int) string { return "?" }

func vectorArgs(fv features.FeatureVector) []any {
	return []any{
		fv.ProductID, fv.Source.String(),
		fv.RatingScore, fv.ReviewVolumeScore, fv.DemandTierScore,
		fv.PriceCompetitivenessScore, fv.BSRCompetitivenessScore, fv.PrimeEligibilityScore,
		fv.ContentRichnessScore, fv.CategorySpecificityScore, fv.BrandRecognitionScore,
		fv.DataFreshnessScore, fv.MarketSaturationScore,
		fv.DemandStrength, fv.PriceAdvantage, fv.ContentQuality, fv.MarketOpportunity,
		fv.FeatureConfidence, fv.ExtractedAt.UTC(),
	}
}

// scoreArgs returns the row values for rec. List columns are JSON arrays,
// never null.
func scoreArgs(rec model.ScoreRecord) ([]any, error) {
	lists := make([][]byte, 3)
	for i, l := range [][]string{rec.Recommendations, rec.RiskFactors, rec.Opportunities} {
		if l == nil {
			l = []string{}
		}
		b, err := json.Marshal(l)
		if err != nil {
			return nil, eris.Wrap(err, "store: marshal score list")
		}
		lists[i] = b
	}
	return []any{
		rec.ProductID, rec.OverallScore,
		rec.Breakdown.Demand, rec.Breakdown.Price, rec.Breakdown.Content, rec.Breakdown.Market,
		string(rec.Tier), lists[0], lists[1], lists[2],
		rec.FeatureConfidence, rec.ScoredAt.UTC(), rec.UpdatedAt.UTC(),
	}, nil
}

func logArgs(e model.AnalysisLogEntry) []any {
	var errMsg *string
	if e.ErrorMessage != "" {
		errMsg = &e.ErrorMessage
	}
	return []any{
		e.ID, e.ProductID, e.PreviousScore, e.NewScore, e.ScoreChange,
		e.ProcessingTimeMs, e.TriggeredBy, errMsg, e.CreatedAt.UTC(),
	}
}

// productArgs returns the catalog row for e. Absent snapshots are stored as NULL.
func productArgs(e model.CatalogEntry) ([]any, error) {
	product, err := json.Marshal(e.Product)
	if err != nil {
		return nil, eris.Wrapf(err, "store: marshal product %s", e.Product.ID)
	}
	var price, storefront any
	if e.Price != nil {
		b, err := json.Marshal(e.Price)
		if err != nil {
			return nil, eris.Wrapf(err, "store: marshal price %s", e.Product.ID)
		}
		price = b
	}
	if e.Storefront != nil {
		b, err := json.Marshal(e.Storefront)
		if err != nil {
			return nil, eris.Wrapf(err, "store: marshal storefront %s", e.Product.ID)
		}
		storefront = b
	}
	updated := e.Product.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	return []any{e.Product.ID, e.Product.SourceKind().String(), product, price, storefront, updated.UTC()}, nil
}

type scannable interface {
	Scan(dest ...any) error
}

// scanFeatureVector returns the driver's error unwrapped so callers can
// detect missing rows.
func scanFeatureVector(row scannable) (*features.FeatureVector, error) {
	var fv features.FeatureVector
	var source string
	err := row.Scan(
		&fv.ProductID, &source,
		&fv.RatingScore, &fv.ReviewVolumeScore, &fv.DemandTierScore,
		&fv.PriceCompetitivenessScore, &fv.BSRCompetitivenessScore, &fv.PrimeEligibilityScore,
		&fv.ContentRichnessScore, &fv.CategorySpecificityScore, &fv.BrandRecognitionScore,
		&fv.DataFreshnessScore, &fv.MarketSaturationScore,
		&fv.DemandStrength, &fv.PriceAdvantage, &fv.ContentQuality, &fv.MarketOpportunity,
		&fv.FeatureConfidence, &fv.ExtractedAt,
	)
	if err != nil {
		return nil, err
	}
	fv.Source = model.ParseSource(source)
	fv.ExtractedAt = fv.ExtractedAt.UTC()
	return &fv, nil
}

func scanScoreRecord(row scannable) (*model.ScoreRecord, error) {
	var rec model.ScoreRecord
	var tier string
	var recs, risks, opps []byte
	err := row.Scan(
		&rec.ProductID, &rec.OverallScore,
		&rec.Breakdown.Demand, &rec.Breakdown.Price, &rec.Breakdown.Content, &rec.Breakdown.Market,
		&tier, &recs, &risks, &opps,
		&rec.FeatureConfidence, &rec.ScoredAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Tier = model.Tier(tier)
	for _, l := range []struct {
		raw []byte
		dst *[]string
	}{
		{recs, &rec.Recommendations},
		{risks, &rec.RiskFactors},
		{opps, &rec.Opportunities},
	} {
		if len(l.raw) == 0 {
			*l.dst = []string{}
			continue
		}
		if err := json.Unmarshal(l.raw, l.dst); err != nil {
			return nil, eris.Wrapf(err, "store: unmarshal score lists for %s", rec.ProductID)
		}
	}
	rec.ScoredAt = rec.ScoredAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return &rec, nil
}

func scanLogEntry(row scannable) (*model.AnalysisLogEntry, error) {
	var e model.AnalysisLogEntry
	var errMsg *string
	err := row.Scan(
		&e.ID, &e.ProductID, &e.PreviousScore, &e.NewScore, &e.ScoreChange,
		&e.ProcessingTimeMs, &e.TriggeredBy, &errMsg, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if errMsg != nil {
		e.ErrorMessage = *errMsg
	}
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}

func scanCatalogEntry(row scannable) (*model.CatalogEntry, error) {
	var product, price, storefront []byte
	if err := row.Scan(&product, &price, &storefront); err != nil {
		return nil, err
	}
	var e model.CatalogEntry
	if err := json.Unmarshal(product, &e.Product); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal product")
	}
	if len(price) > 0 {
		e.Price = &model.NormalizedPriceSnapshot{}
		if err := json.Unmarshal(price, e.Price); err != nil {
			return nil, eris.Wrapf(err, "store: unmarshal price %s", e.Product.ID)
		}
	}
	if len(storefront) > 0 {
		e.Storefront = &model.NormalizedShopifyProduct{}
		if err := json.Unmarshal(storefront, e.Storefront); err != nil {
			return nil, eris.Wrapf(err, "store: unmarshal storefront %s", e.Product.ID)
		}
	}
	return &e, nil
}

func newScoreStats() *model.ScoreStats {
	counts := make(map[model.Tier]int, len(model.Tiers))
	for _, t := range model.Tiers {
		counts[t] = 0
	}
	return &model.ScoreStats{TierCounts: counts}
}

func listLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}

func join(cols []string) string { return strings.Join(cols, ", ") }
