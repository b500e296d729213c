package main

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tier-ranker/internal/history"
	"github.com/sells-group/tier-ranker/internal/monitoring"
	"github.com/sells-group/tier-ranker/internal/ranker"
	"github.com/sells-group/tier-ranker/internal/report"
	"github.com/sells-group/tier-ranker/internal/store"
	"github.com/sells-group/tier-ranker/internal/tables"
)

var (
	rankApply  bool
	rankFormat string
	rankOut    string
)

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Recompute tier ranks for every in-stock product",
	Long: "Computes ranks for all in-stock products and prints the products whose stored ranks differ. " +
		"Nothing is written unless --apply is given.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		format, err := report.ParseFormat(rankFormat)
		if err != nil {
			return err
		}
		tb, err := loadTables()
		if err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		out := io.Writer(os.Stdout)
		if rankOut != "" {
			f, err := os.Create(rankOut)
			if err != nil {
				return eris.Wrap(err, "rank: create report file")
			}
			defer f.Close() //nolint:errcheck
			out = f
		}

		run, apply, err := runRank(ctx, st, tb, rankApply)
		if err != nil {
			return err
		}
		if err := report.New(format, out).Run(run, apply); err != nil {
			return err
		}

		if apply != nil {
			alerter := monitoring.NewAlerter(cfg.Monitoring)
			alerter.SendAlerts(ctx, alerter.EvaluateApply(apply))
		}
		return nil
	},
}

// runRank computes ranks and, when apply is set, writes changed products back.
// apply is nil in the returned values for a preview.
func runRank(ctx context.Context, st store.Store, tb *tables.Tables, apply bool) (*ranker.RunResult, *ranker.ApplyResult, error) {
	log := zap.L().With(zap.String("component", "rank"), zap.Bool("apply", apply))

	products, err := st.ListProducts(ctx)
	if err != nil {
		return nil, nil, eris.Wrap(err, "rank: list products")
	}
	log.Info("loaded products", zap.Int("count", len(products)))

	start := time.Now()
	run, err := ranker.NewEngine(tb, engineOptions()).Compute(ctx, products)
	if err != nil {
		return nil, nil, err
	}
	log.Info("ranks computed",
		zap.Int("ranked", len(run.Products)),
		zap.Int("skipped", len(run.Skipped)),
		zap.Int("updates_needed", len(run.UpdatesNeeded())),
		zap.Duration("elapsed", time.Since(start)),
	)

	if !apply {
		return run, nil, nil
	}

	res := ranker.Apply(ctx, st, run, history.NewTracker(), applyOptions())
	log.Info("write-back complete",
		zap.Int("succeeded", res.Succeeded),
		zap.Int("failed", res.Failed),
		zap.Int("history_entries", res.History),
	)
	return run, &res, nil
}

func init() {
	rankCmd.Flags().BoolVar(&rankApply, "apply", false, "write changed ranks back to the store")
	rankCmd.Flags().StringVar(&rankFormat, "format", "table", "report format (table, markdown, json)")
	rankCmd.Flags().StringVar(&rankOut, "out", "", "write the report to a file instead of stdout")
	rootCmd.AddCommand(rankCmd)
}
