// Package monitoring exposes Prometheus metrics for ranking runs and scans
// stored ranks for integrity problems and risky change histories, alerting
// through a webhook.
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/tier-ranker/internal/history"
	"github.com/sells-group/tier-ranker/internal/integrity"
	"github.com/sells-group/tier-ranker/internal/ranker"
)

const namespace = "tier_ranker"

// Metrics holds all Prometheus metrics for the ranker.
type Metrics struct {
	// Run metrics
	RunsTotal       *prometheus.CounterVec
	RunDuration     *prometheus.HistogramVec
	ProductsRanked  prometheus.Counter
	ProductsSkipped prometheus.Counter
	UpdatesNeeded   prometheus.Gauge
	RankChanges     *prometheus.CounterVec
	WritesTotal     *prometheus.CounterVec
	LastSuccessful  prometheus.Gauge

	// Scan metrics
	IntegrityFindings *prometheus.CounterVec
	InvalidProducts   prometheus.Gauge
	AnomalyRiskScore  prometheus.Histogram
	HighRiskProducts  prometheus.Gauge
	AlertsSent        prometheus.Counter
}

// NewMetrics creates every metric and registers it with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "total",
			Help:      "Ranking runs by mode and status",
		}, []string{"mode", "status"}),
		RunDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "duration_seconds",
			Help:      "Ranking run phase duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}, []string{"phase"}),
		ProductsRanked: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "products_ranked_total",
			Help:      "Products that received computed ranks",
		}),
		ProductsSkipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "products_skipped_total",
			Help:      "Products skipped for unusable data",
		}),
		UpdatesNeeded: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "updates_needed",
			Help:      "Products whose stored ranks differed in the latest run",
		}),
		RankChanges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "rank_changes_total",
			Help:      "Computed rank changes by field",
		}, []string{"field"}),
		WritesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "write",
			Name:      "total",
			Help:      "Rank write-backs by result",
		}, []string{"result"}),
		LastSuccessful: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that completed",
		}),
		IntegrityFindings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "integrity",
			Name:      "findings_total",
			Help:      "Integrity findings by code and severity",
		}, []string{"code", "severity"}),
		InvalidProducts: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "integrity",
			Name:      "invalid_products",
			Help:      "Products with at least one integrity error in the latest check",
		}),
		AnomalyRiskScore: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "anomaly",
			Name:      "risk_score",
			Help:      "Per-product anomaly risk scores",
			Buckets:   []float64{0, 20, 40, 60, 80, 100},
		}),
		HighRiskProducts: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "anomaly",
			Name:      "high_risk_products",
			Help:      "Products at or above the alert threshold in the latest scan",
		}),
		AlertsSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alert",
			Name:      "sent_total",
			Help:      "Alerts delivered to the webhook",
		}),
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// ObserveRun records a completed run. apply is nil in preview mode.
func (m *Metrics) ObserveRun(run *ranker.RunResult, apply *ranker.ApplyResult, elapsed time.Duration) {
	if m == nil || run == nil {
		return
	}
	mode := "preview"
	if apply != nil {
		mode = "apply"
	}

	updates := run.UpdatesNeeded()
	m.RunsTotal.WithLabelValues(mode, "complete").Inc()
	m.RunDuration.WithLabelValues("compute").Observe(elapsed.Seconds())
	m.ProductsRanked.Add(float64(len(run.Products)))
	m.ProductsSkipped.Add(float64(len(run.Skipped)))
	m.UpdatesNeeded.Set(float64(len(updates)))
	for _, p := range updates {
		if p.Before == nil {
			m.RankChanges.WithLabelValues("new").Inc()
			continue
		}
		for _, c := range history.DiffRatings(*p.Before, p.After) {
			m.RankChanges.WithLabelValues(string(c.Field)).Inc()
		}
	}

	if apply != nil {
		m.RunDuration.WithLabelValues("apply").Observe(apply.Duration.Seconds())
		m.WritesTotal.WithLabelValues("succeeded").Add(float64(apply.Succeeded))
		m.WritesTotal.WithLabelValues("failed").Add(float64(apply.Failed))
	}
	m.LastSuccessful.SetToCurrentTime()
}

// ObserveRunFailure records a run that aborted before producing results.
func (m *Metrics) ObserveRunFailure(mode string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(mode, "failed").Inc()
}

// ObserveIntegrity records one integrity pass.
func (m *Metrics) ObserveIntegrity(results []integrity.IntegrityCheckResult) {
	if m == nil {
		return
	}
	invalid := 0
	for _, r := range results {
		if !r.IsValid {
			invalid++
		}
		for _, f := range r.Errors {
			m.IntegrityFindings.WithLabelValues(string(f.Code), string(f.Severity)).Inc()
		}
		for _, f := range r.Warnings {
			m.IntegrityFindings.WithLabelValues(string(f.Code), string(f.Severity)).Inc()
		}
	}
	m.InvalidProducts.Set(float64(invalid))
}

// ObserveAnomalies records one anomaly scan against the alert threshold.
func (m *Metrics) ObserveAnomalies(reports []history.AnomalyReport, threshold float64) {
	if m == nil {
		return
	}
	high := 0
	for _, r := range reports {
		if r.InsufficientData {
			continue
		}
		m.AnomalyRiskScore.Observe(float64(r.RiskScore))
		if float64(r.RiskScore) >= threshold {
			high++
		}
	}
	m.HighRiskProducts.Set(float64(high))
}
