package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/product-scorer/internal/analysis"
	"github.com/sells-group/product-scorer/internal/features"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze and score a single catalog product",
	Long: `Scores one product from the imported catalog. A stored score younger
than analysis.staleness_hours is returned as-is unless --force is set.

Examples:
  analyze --product B0001
  analyze --product B0001 --force --no-log`,
	RunE: runAnalyze,
}

func init() {
	f := analyzeCmd.Flags()
	f.String("product", "", "product id to analyze (required)")
	f.Bool("force", false, "ignore a fresh stored score")
	f.Bool("no-log", false, "skip the analysis audit entry")
	_ = analyzeCmd.MarkFlagRequired("product")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	productID, _ := cmd.Flags().GetString("product")
	force, _ := cmd.Flags().GetBool("force")
	noLog, _ := cmd.Flags().GetBool("no-log")

	st, err := openStore(ctx, "analysis")
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	entry, err := st.GetCatalogEntry(ctx, productID)
	if err != nil {
		return eris.Wrapf(err, "analyze: load product %s", productID)
	}
	if entry == nil {
		return eris.Errorf("analyze: product %s not found in catalog (run import first)", productID)
	}

	an, err := newAnalyzer(st)
	if err != nil {
		return err
	}

	res := an.Analyze(ctx, features.Input{
		Product:    entry.Product,
		Price:      entry.Price,
		Storefront: entry.Storefront,
	}, analysis.Options{
		ForceRescore: force,
		LogAnalysis:  !noLog,
		TriggeredBy:  "cli",
	})

	printAnalysis(os.Stdout, res)
	if !res.Success {
		return eris.Wrapf(res.Err, "analyze: %s", productID)
	}
	return nil
}

// printAnalysis writes a human-readable summary of one analysis.
func printAnalysis(out io.Writer, res analysis.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Product:\t%s\n", res.ProductID)
	if !res.Success {
		_, _ = fmt.Fprintf(w, "Status:\tfailed\n")
		if res.Err != nil {
			_, _ = fmt.Fprintf(w, "Error:\t%s\n", res.Err)
		}
		_ = w.Flush()
		return
	}

	status := "scored"
	if res.Cached {
		status = "cached"
	}
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", status)
	_, _ = fmt.Fprintf(w, "Audit log:\t%s\n", res.LogOutcome)
	if s := res.Score; s != nil {
		_, _ = fmt.Fprintf(w, "Score:\t%d / 100 (%s)\n", s.OverallScore, s.Tier)
		_, _ = fmt.Fprintf(w, "Breakdown:\tdemand %d  price %d  content %d  market %d\n",
			s.Breakdown.Demand, s.Breakdown.Price, s.Breakdown.Content, s.Breakdown.Market)
		_, _ = fmt.Fprintf(w, "Confidence:\t%.2f\n", s.FeatureConfidence)
		_, _ = fmt.Fprintf(w, "Scored at:\t%s\n", s.ScoredAt.Format("2006-01-02 15:04:05"))
	}
	_ = w.Flush()

	if s := res.Score; s != nil {
		printList(out, "Recommendations", s.Recommendations)
		printList(out, "Risk factors", s.RiskFactors)
		printList(out, "Opportunities", s.Opportunities)
	}
}

func printList(out io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	_, _ = fmt.Fprintf(out, "\n%s:\n", title)
	for _, it := range items {
		_, _ = fmt.Fprintf(out, "  - %s\n", strings.TrimSpace(it))
	}
}
