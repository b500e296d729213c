package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tier-ranker/internal/history"
	"github.com/sells-group/tier-ranker/internal/integrity"
	"github.com/sells-group/tier-ranker/internal/monitoring"
	"github.com/sells-group/tier-ranker/internal/report"
	"github.com/sells-group/tier-ranker/internal/store"
	"github.com/sells-group/tier-ranker/internal/tables"
)

var (
	servePort    int
	serveMonitor bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve read-only rank reports and metrics over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		tb, err := loadTables()
		if err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics := monitoring.NewMetrics(reg)

		if serveMonitor {
			checker := monitoring.NewChecker(
				monitoring.NewCollector(st, integrity.NewChecker(tb, integrityOptions()), history.NewDetector(), cfg.Monitoring.LookbackDays),
				monitoring.NewAlerter(cfg.Monitoring),
				metrics,
				cfg.Monitoring,
			)
			go checker.Run(ctx)
		}

		h := buildRouter(serverDeps{store: st, tables: tb, metrics: metrics, gatherer: reg})
		return startServer(ctx, h, resolvePort(servePort, cfg.Server.Port))
	},
}

type serverDeps struct {
	store    store.Store
	tables   *tables.Tables
	metrics  *monitoring.Metrics
	gatherer prometheus.Gatherer
}

// buildRouter wires the read-only endpoints. Nothing reachable here writes to the store.
func buildRouter(d serverDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := d.store.Ping(r.Context()); err != nil {
			zap.L().Warn("health: store ping failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if d.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", monitoring.Handler(d.gatherer))
	}

	r.Get("/products/{id}/integrity", func(w http.ResponseWriter, r *http.Request) {
		p, err := d.store.GetProduct(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeStoreError(w, err)
			return
		}
		res := integrity.NewChecker(d.tables, integrityOptions()).Check(p)
		writeJSON(w, http.StatusOK, res)
	})

	r.Get("/products/{id}/anomalies", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		entries, err := d.store.ListHistory(r.Context(), store.HistoryFilter{ProductID: id})
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, history.NewDetector().DetectRankAnomalies(entries, id))
	})

	r.Get("/history/export.csv", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter, err := historyFilter(q.Get("product"), q.Get("source"), q.Get("since"), q.Get("until"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		entries, err := d.store.ListHistory(r.Context(), filter)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="rank_history.csv"`)
		if err := history.ExportCSV(w, entries); err != nil {
			zap.L().Error("history export failed", zap.Error(err))
		}
	})

	r.Get("/runs/preview", func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		run, _, err := runRank(r.Context(), d.store, d.tables, false)
		if err != nil {
			d.metrics.ObserveRunFailure("preview")
			writeStoreError(w, err)
			return
		}
		d.metrics.ObserveRun(run, nil, time.Since(start))
		writeJSON(w, http.StatusOK, report.Summarize(run, nil))
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	zap.L().Error("request failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

// startServer serves h until ctx is cancelled, then shuts down gracefully.
func startServer(ctx context.Context, h http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server listen")
	}
	return nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveMonitor, "monitor", true, "run periodic integrity and anomaly scans with webhook alerts")
	rootCmd.AddCommand(serveCmd)
}
