package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/product-scorer/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "product-scorer",
	Short: "Scores catalog products for marketing selection",
	Long: `Turns normalized catalog snapshots into 0-100 commercial attractiveness
scores with a tier, recommendations, risks and opportunities. Scores are
cached for analysis.staleness_hours and every analysis can be audited.

Settings come from ./config.yaml and SCORER_* environment variables.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadRuntime,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("log-level", "", "override log.level (debug, info, warn, error)")
	pf.String("database-url", "", "override store.database_url")
}

// loadRuntime loads config, applies flag overrides and installs the logger.
func loadRuntime(cmd *cobra.Command, _ []string) error {
	c, err := config.Load()
	if err != nil {
		return eris.Wrap(err, "load config")
	}
	if v := flagValue(cmd, "log-level"); v != "" {
		c.Log.Level = v
	}
	if v := flagValue(cmd, "database-url"); v != "" {
		c.Store.DatabaseURL = v
	}
	cfg = c

	if err := config.InitLogger(cfg.Log); err != nil {
		return eris.Wrap(err, "init logger")
	}
	return nil
}

// flagValue reads a local or inherited persistent flag.
func flagValue(cmd *cobra.Command, name string) string {
	if f := cmd.Flag(name); f != nil {
		return f.Value.String()
	}
	return ""
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
