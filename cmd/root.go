package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tier-ranker/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "tier-ranker",
	Short: "Supplement tier ranking and integrity engine",
	Long: "Recomputes five-axis tier ranks (price, cost-effectiveness, content, evidence, safety) " +
		"and an overall rank for every in-stock product, audits stored ranks for integrity problems " +
		"and scans rank change history for anomalies.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		if err := c.Validate(); err != nil {
			return err
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
