package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/product-scorer/internal/analysis"
	"github.com/sells-group/product-scorer/internal/features"
	"github.com/sells-group/product-scorer/internal/scorer"
	"github.com/sells-group/product-scorer/internal/store"
)

var rescoreCmd = &cobra.Command{
	Use:   "rescore",
	Short: "Force-rescore products with stale or missing scores",
	Long: `Rescores up to --limit catalog products whose score is at least
--min-age-hours old, never-scored products first. Products are analyzed in
chunks with a short pause between chunks. Every attempt is written to the
analysis log with triggered_by=rescore.`,
	RunE: runRescore,
}

func init() {
	f := rescoreCmd.Flags()
	f.Int("limit", 0, "maximum products to rescore (0=use config default)")
	f.Int("min-age-hours", -1, "minimum score age in hours (-1=use config default)")
	rootCmd.AddCommand(rescoreCmd)
}

func runRescore(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	limit, _ := cmd.Flags().GetInt("limit")
	minAge, _ := cmd.Flags().GetInt("min-age-hours")
	if limit <= 0 {
		limit = cfg.Analysis.RescoreLimit
	}
	if minAge < 0 {
		minAge = cfg.Analysis.RescoreMinAgeHours
	}

	st, err := openStore(ctx, "analysis")
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	an, err := newAnalyzer(st)
	if err != nil {
		return err
	}

	zap.L().Info("starting rescore", zap.Int("limit", limit), zap.Int("min_age_hours", minAge))

	summary, err := an.RescoreAll(ctx, limit, minAge)
	if err != nil {
		return eris.Wrap(err, "rescore")
	}

	fmt.Fprintf(os.Stdout, "Processed: %d\nErrors:    %d\n", summary.Processed, summary.Errors)
	return nil
}

// newAnalyzer builds an Analyzer from the loaded config.
func newAnalyzer(st store.Store) (*analysis.Analyzer, error) {
	eng, err := scorer.NewEngine(cfg.Scorer)
	if err != nil {
		return nil, err
	}
	return analysis.New(st, cfg.Analysis,
		analysis.WithScorer(eng),
		analysis.WithExtractor(features.NewExtractor(cfg.Features, nil)),
	), nil
}
