package main

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tier-ranker/internal/history"
	"github.com/sells-group/tier-ranker/internal/monitoring"
	"github.com/sells-group/tier-ranker/internal/report"
	"github.com/sells-group/tier-ranker/internal/store"
)

var (
	anomaliesProductID string
	anomaliesSince     time.Duration
	anomaliesFormat    string
	anomaliesAlert     bool
)

var anomaliesCmd = &cobra.Command{
	Use:   "anomalies",
	Short: "Scan rank change history for suspicious patterns",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		format, err := report.ParseFormat(anomaliesFormat)
		if err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		reports, err := runAnomalies(ctx, st, history.NewDetector(), anomaliesProductID, anomaliesSince)
		if err != nil {
			return err
		}
		if err := report.New(format, os.Stdout).Anomalies(reports); err != nil {
			return err
		}

		if anomaliesAlert {
			alerter := monitoring.NewAlerter(cfg.Monitoring)
			alerts := alerter.EvaluateAnomalies(reports)
			sent := alerter.SendAlerts(ctx, alerts)
			zap.L().Info("anomaly alerts",
				zap.Int("triggered", len(alerts)),
				zap.Int("sent", sent),
			)
		}
		return nil
	},
}

// runAnomalies loads history (optionally for one product and a trailing window)
// and builds one report per product.
func runAnomalies(ctx context.Context, st store.Store, d *history.Detector, productID string, since time.Duration) ([]history.AnomalyReport, error) {
	filter := store.HistoryFilter{ProductID: productID}
	if since > 0 {
		filter.Since = time.Now().Add(-since)
	}
	entries, err := st.ListHistory(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "anomalies: list history")
	}

	if productID != "" {
		return []history.AnomalyReport{d.DetectRankAnomalies(entries, productID)}, nil
	}
	return d.DetectAll(entries), nil
}

func init() {
	anomaliesCmd.Flags().StringVar(&anomaliesProductID, "product", "", "scan a single product by ID")
	anomaliesCmd.Flags().DurationVar(&anomaliesSince, "since", 0, "only consider history newer than this (e.g. 720h); 0 scans everything")
	anomaliesCmd.Flags().StringVar(&anomaliesFormat, "format", "table", "report format (table, markdown, json)")
	anomaliesCmd.Flags().BoolVar(&anomaliesAlert, "alert", false, "post high-risk reports to monitoring.webhook_url")
	rootCmd.AddCommand(anomaliesCmd)
}
