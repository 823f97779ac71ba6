package analysis

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/product-scorer/internal/features"
	"github.com/sells-group/product-scorer/internal/model"
)

// RescoreSummary reports a system-wide rescore.
type RescoreSummary struct {
	Processed int `json:"processed"`
	Errors    int `json:"errors"`
}

// span is a half-open index range [start, end).
type span struct{ start, end int }

// chunks splits n items into consecutive spans of at most size.
func chunks(n, size int) []span {
	if size <= 0 {
		size = DefaultBatchSize
	}
	out := make([]span, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		out = append(out, span{start: start, end: min(start+size, n)})
	}
	return out
}

// AnalyzeProducts analyzes products in fixed-size chunks. Items within a
// chunk run concurrently and the whole chunk is awaited before a fixed pause
// and the next chunk. Results match the input order. Price and storefront
// snapshots are looked up by product id; missing entries mean no snapshot.
func (a *Analyzer) AnalyzeProducts(
	ctx context.Context,
	products []model.NormalizedProduct,
	prices map[string]*model.NormalizedPriceSnapshot,
	storefronts map[string]*model.NormalizedShopifyProduct,
	opts Options,
) []Result {
	results := make([]Result, len(products))
	spans := chunks(len(products), a.batchSize)

	for ci, sp := range spans {
		if ci > 0 {
			if err := a.sleep(ctx, a.batchPause); err != nil {
				cause := eris.Wrap(err, "analysis: batch interrupted")
				for i := sp.start; i < len(products); i++ {
					results[i] = Result{ProductID: products[i].ID, Err: cause}
				}
				zap.L().Warn("analysis: batch interrupted",
					zap.Int("remaining", len(products)-sp.start),
					zap.Error(err),
				)
				return results
			}
		}

		g, gctx := errgroup.WithContext(ctx)
		for i := sp.start; i < sp.end; i++ {
			i := i
			p := products[i]
			g.Go(func() error {
				results[i] = a.Analyze(gctx, features.Input{
					Product:    p,
					Price:      prices[p.ID],
					Storefront: storefronts[p.ID],
				}, opts)
				return nil
			})
		}
		_ = g.Wait() // Analyze reports failures in its Result

		zap.L().Debug("analysis: chunk complete",
			zap.Int("chunk", ci+1),
			zap.Int("chunks", len(spans)),
			zap.Int("size", sp.end-sp.start),
		)
	}
	return results
}

// RescoreAll force-rescores up to limit catalog products whose score is at
// least minAgeHours old or missing. The error is non-nil only when the
// candidates cannot be listed; per-product failures are counted in Errors.
func (a *Analyzer) RescoreAll(ctx context.Context, limit, minAgeHours int) (RescoreSummary, error) {
	cutoff := a.now().UTC().Add(-time.Duration(minAgeHours) * time.Hour)

	entries, err := a.store.ListRescoreCandidates(ctx, cutoff, limit)
	if err != nil {
		return RescoreSummary{}, eris.Wrap(err, "analysis: list rescore candidates")
	}

	products := make([]model.NormalizedProduct, len(entries))
	prices := make(map[string]*model.NormalizedPriceSnapshot, len(entries))
	storefronts := make(map[string]*model.NormalizedShopifyProduct, len(entries))
	for i, e := range entries {
		products[i] = e.Product
		if e.Price != nil {
			prices[e.Product.ID] = e.Price
		}
		if e.Storefront != nil {
			storefronts[e.Product.ID] = e.Storefront
		}
	}

	results := a.AnalyzeProducts(ctx, products, prices, storefronts, Options{
		ForceRescore: true,
		LogAnalysis:  true,
		TriggeredBy:  "rescore",
	})

	var summary RescoreSummary
	for _, r := range results {
		summary.Processed++
		if !r.Success {
			summary.Errors++
		}
	}

	zap.L().Info("analysis: rescore complete",
		zap.Int("candidates", len(entries)),
		zap.Int("processed", summary.Processed),
		zap.Int("errors", summary.Errors),
		zap.Time("cutoff", cutoff),
	)
	return summary, nil
}
