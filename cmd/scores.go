package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/product-scorer/internal/model"
)

var scoresCmd = &cobra.Command{
	Use:   "scores",
	Short: "Read back stored scores and the analysis log",
	Long: `Queries stored scores. Every subcommand accepts --format table|csv|xlsx
and --output (required for xlsx).

Examples:
  # Top 25 products
  scores top --limit 25

  # All A+ products to a spreadsheet
  scores tier A+ --format xlsx --output a-plus.xlsx

  # Audit trail for one product
  scores log --product B0001`,
}

// -- scores top --

var scoresTopCmd = &cobra.Command{
	Use:   "top",
	Short: "List the highest scores",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		format, output, err := outputFlags(cmd)
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")

		st, err := openStore(ctx, "store")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		recs, err := st.TopScores(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "scores top")
		}
		if len(recs) == 0 {
			fmt.Fprintln(os.Stderr, "No scores found.")
			return nil
		}
		return writeOutput(scoresTable(recs), format, output)
	},
}

// -- scores tier --

var scoresTierCmd = &cobra.Command{
	Use:   "tier <A+|A|B|C|D>",
	Short: "List scores in one tier",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		tier := model.Tier(args[0])
		if !tier.Valid() {
			return eris.Errorf("scores tier: unknown tier %q", args[0])
		}
		format, output, err := outputFlags(cmd)
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")

		st, err := openStore(ctx, "store")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		recs, err := st.ScoresByTier(ctx, tier, limit)
		if err != nil {
			return eris.Wrap(err, "scores tier")
		}
		if len(recs) == 0 {
			fmt.Fprintf(os.Stderr, "No scores in tier %s.\n", tier)
			return nil
		}
		return writeOutput(scoresTable(recs), format, output)
	},
}

// -- scores stats --

var scoresStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate score statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		format, output, err := outputFlags(cmd)
		if err != nil {
			return err
		}

		st, err := openStore(ctx, "store")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		stats, err := st.ScoreStats(ctx)
		if err != nil {
			return eris.Wrap(err, "scores stats")
		}
		return writeOutput(statsTable(stats), format, output)
	},
}

// -- scores show --

var scoresShowCmd = &cobra.Command{
	Use:   "show <product-id>",
	Short: "Show the stored score of one product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		format, output, err := outputFlags(cmd)
		if err != nil {
			return err
		}

		st, err := openStore(ctx, "store")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rec, err := st.GetScore(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "scores show")
		}
		if rec == nil {
			return eris.Errorf("scores show: no score for product %s", args[0])
		}
		return writeOutput(scoresTable([]model.ScoreRecord{*rec}), format, output)
	},
}

// -- scores log --

var scoresLogCmd = &cobra.Command{
	Use:   "log",
	Short: "List analysis log entries, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		format, output, err := outputFlags(cmd)
		if err != nil {
			return err
		}
		productID, _ := cmd.Flags().GetString("product")
		limit, _ := cmd.Flags().GetInt("limit")

		st, err := openStore(ctx, "store")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		entries, err := st.ListAnalysisLog(ctx, productID, limit)
		if err != nil {
			return eris.Wrap(err, "scores log")
		}
		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "No log entries found.")
			return nil
		}
		return writeOutput(logTable(entries), format, output)
	},
}

func outputFlags(cmd *cobra.Command) (format, output string, err error) {
	format, _ = cmd.Flags().GetString("format")
	output, _ = cmd.Flags().GetString("output")
	return format, output, validateFormat(format)
}

func init() {
	pf := scoresCmd.PersistentFlags()
	pf.String("format", formatTable, "output format: table, csv or xlsx")
	pf.String("output", "", "output file path (default: stdout)")

	scoresTopCmd.Flags().Int("limit", 20, "maximum rows")
	scoresTierCmd.Flags().Int("limit", 100, "maximum rows")
	scoresLogCmd.Flags().Int("limit", 50, "maximum rows")
	scoresLogCmd.Flags().String("product", "", "only entries for this product id")

	scoresCmd.AddCommand(scoresTopCmd, scoresTierCmd, scoresStatsCmd, scoresShowCmd, scoresLogCmd)
	rootCmd.AddCommand(scoresCmd)
}
