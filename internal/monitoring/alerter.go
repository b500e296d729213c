package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tier-ranker/internal/config"
	"github.com/sells-group/tier-ranker/internal/history"
	"github.com/sells-group/tier-ranker/internal/integrity"
	"github.com/sells-group/tier-ranker/internal/model"
	"github.com/sells-group/tier-ranker/internal/ranker"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertHighRiskProduct   AlertType = "high_risk_product"
	AlertCriticalIntegrity AlertType = "critical_integrity"
	AlertWriteFailures     AlertType = "write_failures"
	AlertHistoryFailures   AlertType = "history_failures"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	ProductID string         `json:"product_id,omitempty"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter turns scan and run results into alerts and sends them via webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	now    func() time.Time
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

// EvaluateAnomalies raises one alert per product whose risk score reaches the threshold.
func (a *Alerter) EvaluateAnomalies(reports []history.AnomalyReport) []Alert {
	var alerts []Alert
	now := a.now().UTC()

	for _, r := range reports {
		if r.InsufficientData || float64(r.RiskScore) < a.cfg.RiskAlertThreshold {
			continue
		}
		severity := "high"
		if r.RiskScore >= 80 {
			severity = "critical"
		}
		types := make([]string, 0, len(r.Anomalies))
		for _, an := range r.Anomalies {
			types = append(types, string(an.Type))
		}
		alerts = append(alerts, Alert{
			Type:      AlertHighRiskProduct,
			Severity:  severity,
			ProductID: r.ProductID,
			Message: fmt.Sprintf("Product %s has anomaly risk %d (threshold %.0f): %s",
				r.ProductID, r.RiskScore, a.cfg.RiskAlertThreshold, r.Recommendation),
			Details: map[string]any{
				"risk_score":     r.RiskScore,
				"anomaly_count":  len(r.Anomalies),
				"anomaly_types":  types,
				"history_events": r.EntryCount,
			},
			Timestamp: now,
		})
	}
	return alerts
}

// EvaluateIntegrity raises one alert per product with a critical finding.
func (a *Alerter) EvaluateIntegrity(results []integrity.IntegrityCheckResult) []Alert {
	var alerts []Alert
	now := a.now().UTC()

	for _, r := range results {
		var codes []string
		for _, f := range r.Errors {
			if f.Severity == model.SeverityCritical {
				codes = append(codes, string(f.Code))
			}
		}
		if len(codes) == 0 {
			continue
		}
		alerts = append(alerts, Alert{
			Type:      AlertCriticalIntegrity,
			Severity:  "critical",
			ProductID: r.ProductID,
			Message:   fmt.Sprintf("Product %s has %d critical integrity error(s)", r.ProductID, len(codes)),
			Details: map[string]any{
				"codes":      codes,
				"confidence": r.Confidence,
			},
			Timestamp: now,
		})
	}
	return alerts
}

// EvaluateApply raises alerts for failed rank write-backs and for ranks written without history.
func (a *Alerter) EvaluateApply(res *ranker.ApplyResult) []Alert {
	if res == nil {
		return nil
	}

	var alerts []Alert
	if res.Failed > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertWriteFailures,
			Severity: "high",
			Message: fmt.Sprintf("%d of %d rank write-back(s) failed",
				res.Failed, res.Failed+res.Succeeded),
			Details: map[string]any{
				"failed":      res.Failed,
				"succeeded":   res.Succeeded,
				"product_ids": failureIDs(res.Failures),
			},
			Timestamp: a.now().UTC(),
		})
	}
	if len(res.HistoryFailures) > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertHistoryFailures,
			Severity: "high",
			Message: fmt.Sprintf("%d rank change(s) written without a history entry",
				len(res.HistoryFailures)),
			Details: map[string]any{
				"product_ids": failureIDs(res.HistoryFailures),
			},
			Timestamp: a.now().UTC(),
		})
	}
	return alerts
}

func failureIDs(failures []ranker.WriteFailure) []string {
	ids := make([]string, 0, len(failures))
	for _, f := range failures {
		ids = append(ids, f.ProductID)
	}
	return ids
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.String("product_id", alert.ProductID),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
			zap.String("product_id", alert.ProductID),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
