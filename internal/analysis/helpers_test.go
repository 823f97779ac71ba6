package analysis

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sells-group/product-scorer/internal/config"
	"github.com/sells-group/product-scorer/internal/features"
	"github.com/sells-group/product-scorer/internal/model"
	"github.com/sells-group/product-scorer/internal/store"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

// memStore is an in-memory Store with injectable failures.
type memStore struct {
	store.Store

	mu      sync.Mutex
	vectors map[string]features.FeatureVector
	scores  map[string]model.ScoreRecord
	logs    []model.AnalysisLogEntry
	catalog []model.CatalogEntry

	getScoreErr  error
	scoreErr     error
	logErr       error
	candidateErr error
	failScoreFor map[string]bool

	lastCutoff time.Time
	lastLimit  int
}

func newMemStore() *memStore {
	return &memStore{
		vectors:      make(map[string]features.FeatureVector),
		scores:       make(map[string]model.ScoreRecord),
		failScoreFor: make(map[string]bool),
	}
}

func (m *memStore) UpsertFeatureVector(_ context.Context, fv features.FeatureVector) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors[fv.ProductID] = fv
	return nil
}

func (m *memStore) UpsertScore(_ context.Context, rec model.ScoreRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scoreErr != nil {
		return m.scoreErr
	}
	if m.failScoreFor[rec.ProductID] {
		return context.DeadlineExceeded
	}
	m.scores[rec.ProductID] = rec
	return nil
}

func (m *memStore) GetScore(_ context.Context, id string) (*model.ScoreRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getScoreErr != nil {
		return nil, m.getScoreErr
	}
	rec, ok := m.scores[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *memStore) AppendAnalysisLog(_ context.Context, e model.AnalysisLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.logErr != nil {
		return m.logErr
	}
	m.logs = append(m.logs, e)
	return nil
}

func (m *memStore) ListRescoreCandidates(_ context.Context, cutoff time.Time, limit int) ([]model.CatalogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastCutoff, m.lastLimit = cutoff, limit
	if m.candidateErr != nil {
		return nil, m.candidateErr
	}
	return m.catalog, nil
}

func (m *memStore) scoreCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.scores)
}

func (m *memStore) logEntries() []model.AnalysisLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.AnalysisLogEntry(nil), m.logs...)
}

// countingExtractor returns a fixed vector and counts calls.
type countingExtractor struct {
	calls atomic.Int64
	panic bool
}

func (c *countingExtractor) Extract(in features.Input) features.FeatureVector {
	c.calls.Add(1)
	if c.panic {
		panic("extractor exploded")
	}
	return features.FeatureVector{
		ProductID:                 in.Product.ID,
		RatingScore:               1,
		ReviewVolumeScore:         1,
		DemandTierScore:           1,
		PriceCompetitivenessScore: 1,
		BSRCompetitivenessScore:   1,
		PrimeEligibilityScore:     1,
		ContentRichnessScore:      1,
		CategorySpecificityScore:  1,
		BrandRecognitionScore:     1,
		DataFreshnessScore:        1,
		MarketSaturationScore:     1,
		FeatureConfidence:         1,
		ExtractedAt:               testNow,
	}
}

func newTestAnalyzer(st store.Store, ext FeatureExtractor, opts ...Option) *Analyzer {
	base := []Option{
		WithClock(fixedClock),
		WithExtractor(ext),
		WithSleep(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }),
	}
	return New(st, config.AnalysisConfig{}, append(base, opts...)...)
}

func product(id string) model.NormalizedProduct {
	return model.NormalizedProduct{ID: id, Title: "Product " + id, Source: "import"}
}

func input(id string) features.Input {
	return features.Input{Product: product(id)}
}

func storedScore(id string, score int, age time.Duration) model.ScoreRecord {
	return model.ScoreRecord{
		ProductID:    id,
		OverallScore: score,
		Tier:         model.TierC,
		ScoredAt:     testNow.Add(-age),
		UpdatedAt:    testNow.Add(-age),
	}
}
