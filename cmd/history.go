package main

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tier-ranker/internal/history"
	"github.com/sells-group/tier-ranker/internal/model"
	"github.com/sells-group/tier-ranker/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect rank change history",
}

var (
	exportFormat    string
	exportOut       string
	exportProductID string
	exportSource    string
	exportSince     string
	exportUntil     string
)

var historyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export rank change history as CSV or XLSX",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		filter, err := historyFilter(exportProductID, exportSource, exportSince, exportUntil)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		out := io.Writer(os.Stdout)
		if exportOut != "" {
			f, err := os.Create(exportOut)
			if err != nil {
				return eris.Wrap(err, "history export: create file")
			}
			defer f.Close() //nolint:errcheck
			out = f
		} else if exportFormat == "xlsx" {
			return eris.New("history export: --out is required for xlsx")
		}

		n, err := exportHistory(ctx, st, filter, exportFormat, out)
		if err != nil {
			return err
		}
		zap.L().Info("history exported",
			zap.Int("entries", n),
			zap.String("format", exportFormat),
			zap.String("out", exportOut),
		)
		return nil
	},
}

// historyFilter parses filter flags. Dates are YYYY-MM-DD (UTC) or RFC 3339.
func historyFilter(productID, source, since, until string) (store.HistoryFilter, error) {
	f := store.HistoryFilter{ProductID: productID}
	if source != "" {
		s := model.ChangeSource(strings.ToLower(source))
		if !s.Valid() {
			return f, eris.Errorf("history: unknown source %q (manual, auto-calculation, sync, fix)", source)
		}
		f.Source = s
	}
	var err error
	if f.Since, err = parseTimeFlag(since); err != nil {
		return f, eris.Wrap(err, "history: --since")
	}
	if f.Until, err = parseTimeFlag(until); err != nil {
		return f, eris.Wrap(err, "history: --until")
	}
	return f, nil
}

func parseTimeFlag(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, time.UTC); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, eris.Errorf("invalid time %q (want YYYY-MM-DD or RFC 3339)", s)
	}
	return t.UTC(), nil
}

// exportHistory writes matching entries in format (csv or xlsx) and returns how many were written.
func exportHistory(ctx context.Context, st store.Store, filter store.HistoryFilter, format string, w io.Writer) (int, error) {
	entries, err := st.ListHistory(ctx, filter)
	if err != nil {
		return 0, eris.Wrap(err, "history export: list")
	}
	switch format {
	case "csv", "":
		err = history.ExportCSV(w, entries)
	case "xlsx":
		err = history.ExportXLSX(w, entries)
	default:
		return 0, eris.Errorf("history export: unknown format %q (csv, xlsx)", format)
	}
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

func init() {
	historyExportCmd.Flags().StringVar(&exportFormat, "format", "csv", "export format (csv, xlsx)")
	historyExportCmd.Flags().StringVar(&exportOut, "out", "", "output file (default stdout; required for xlsx)")
	historyExportCmd.Flags().StringVar(&exportProductID, "product", "", "only entries for this product ID")
	historyExportCmd.Flags().StringVar(&exportSource, "source", "", "only entries from this source")
	historyExportCmd.Flags().StringVar(&exportSince, "since", "", "only entries at or after this time")
	historyExportCmd.Flags().StringVar(&exportUntil, "until", "", "only entries before this time")

	historyCmd.AddCommand(historyExportCmd)
	rootCmd.AddCommand(historyCmd)
}
