// Package analysis orchestrates feature extraction, scoring and persistence
// for single products and batches, with staleness-aware caching and an
// audit trail.
package analysis

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/product-scorer/internal/config"
	"github.com/sells-group/product-scorer/internal/features"
	"github.com/sells-group/product-scorer/internal/model"
	"github.com/sells-group/product-scorer/internal/scorer"
	"github.com/sells-group/product-scorer/internal/store"
)

// Defaults used when AnalysisConfig leaves a value unset.
const (
	DefaultBatchSize  = 10
	DefaultBatchPause = 100 * time.Millisecond
	DefaultStaleness  = 24 * time.Hour
)

// FeatureExtractor turns normalized snapshots into a FeatureVector.
type FeatureExtractor interface {
	Extract(in features.Input) features.FeatureVector
}

// Scorer scores a FeatureVector.
type Scorer interface {
	Score(fv features.FeatureVector) scorer.Result
}

// Options controls a single analysis.
type Options struct {
	// ForceRescore bypasses the freshness cache.
	ForceRescore bool
	// LogAnalysis appends an audit entry for the attempt.
	LogAnalysis bool
	// TriggeredBy labels the audit entry (e.g. "cli", "rescore").
	TriggeredBy string
}

// Result is the outcome of analyzing one product. Failures are reported
// through Success and Err; Analyze never returns an error or panics.
type Result struct {
	ProductID  string
	Success    bool
	Cached     bool
	Score      *model.ScoreRecord
	Err        error
	LogOutcome LogOutcome
	Elapsed    time.Duration
}

// Analyzer runs the extract, score and persist pipeline against a Store.
type Analyzer struct {
	store      store.Store
	extractor  FeatureExtractor
	scorer     Scorer
	audit      *AuditLog
	staleness  time.Duration
	batchSize  int
	batchPause time.Duration
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithExtractor replaces the feature extractor.
func WithExtractor(e FeatureExtractor) Option {
	return func(a *Analyzer) { a.extractor = e }
}

// WithScorer replaces the scoring engine.
func WithScorer(s Scorer) Option {
	return func(a *Analyzer) { a.scorer = s }
}

// WithClock replaces the wall clock used for staleness and timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// WithSleep replaces the inter-chunk pause.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(a *Analyzer) { a.sleep = sleep }
}

// New creates an Analyzer over st. Zero fields in cfg fall back to the
// package defaults.
func New(st store.Store, cfg config.AnalysisConfig, opts ...Option) *Analyzer {
	a := &Analyzer{
		store:      st,
		audit:      NewAuditLog(st),
		staleness:  DefaultStaleness,
		batchSize:  DefaultBatchSize,
		batchPause: DefaultBatchPause,
		now:        time.Now,
		sleep:      sleepContext,
		scorer:     scorer.DefaultEngine(),
	}
	if cfg.StalenessHours > 0 {
		a.staleness = time.Duration(cfg.StalenessHours) * time.Hour
	}
	if cfg.BatchSize > 0 {
		a.batchSize = cfg.BatchSize
	}
	if cfg.BatchPauseMs > 0 {
		a.batchPause = time.Duration(cfg.BatchPauseMs) * time.Millisecond
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.extractor == nil {
		a.extractor = features.NewExtractor(features.DefaultConfig(), a.now)
	}
	return a
}

// outcome is what one pipeline run produced before it is reported.
type outcome struct {
	previous *model.ScoreRecord
	record   *model.ScoreRecord
	cached   bool
}

// Analyze scores one product, reusing a fresh stored score unless forced.
func (a *Analyzer) Analyze(ctx context.Context, in features.Input, opts Options) Result {
	start := a.now()
	id := in.Product.ID
	log := zap.L().With(zap.String("product_id", id))

	out, err := a.run(ctx, in, opts)
	res := Result{ProductID: id, Elapsed: a.now().Sub(start)}

	if err != nil {
		res.Err = err
		log.Error("analysis: failed", zap.Error(err), zap.Duration("elapsed", res.Elapsed))
		if opts.LogAnalysis {
			res.LogOutcome = a.audit.Write(ctx, failureEntry(id, out.previous, err, res.Elapsed, opts.TriggeredBy, a.now().UTC()))
		}
		return res
	}

	res.Success = true
	if out.cached {
		res.Cached = true
		res.Score = out.previous
		log.Debug("analysis: cache hit", zap.Int("score", out.previous.OverallScore))
		return res
	}

	res.Score = out.record
	log.Info("analysis: scored",
		zap.Int("score", out.record.OverallScore),
		zap.String("tier", string(out.record.Tier)),
		zap.Duration("elapsed", res.Elapsed),
	)
	if opts.LogAnalysis {
		res.LogOutcome = a.audit.Write(ctx, successEntry(id, out.previous, out.record.OverallScore, res.Elapsed, opts.TriggeredBy, a.now().UTC()))
	}
	return res
}

// run executes the pipeline. Panics from any stage come back as errors.
func (a *Analyzer) run(ctx context.Context, in features.Input, opts Options) (out outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("analysis: recovered panic for %s: %v", in.Product.ID, r)
		}
	}()

	id := in.Product.ID
	if id == "" {
		return out, eris.New("analysis: product id is required")
	}

	now := a.now().UTC()

	prev, readErr := a.store.GetScore(ctx, id)
	if readErr != nil {
		// An unreadable prior score is treated as absent.
		zap.L().Warn("analysis: read previous score", zap.String("product_id", id), zap.Error(readErr))
		prev = nil
	}
	out.previous = prev

	if !opts.ForceRescore && prev != nil && prev.Age(now) < a.staleness {
		out.cached = true
		return out, nil
	}

	fv := a.extractor.Extract(in)
	result := a.scorer.Score(fv)
	rec := result.ToRecord(now)

	if err := store.UpsertAnalysis(ctx, a.store, fv, rec); err != nil {
		return out, eris.Wrapf(err, "analysis: persist %s", id)
	}
	out.record = &rec
	return out, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
