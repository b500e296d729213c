package history

import (
	"fmt"
	"sort"
	"time"

	"github.com/sells-group/tier-ranker/internal/model"
)

// AnomalyType names a suspicious pattern in a product's change history.
type AnomalyType string

const (
	AnomalySuddenJump          AnomalyType = "SUDDEN_JUMP"
	AnomalyFrequentChange      AnomalyType = "FREQUENT_CHANGE"
	AnomalyInconsistentPattern AnomalyType = "INCONSISTENT_PATTERN"
	AnomalyManualOverride      AnomalyType = "MANUAL_OVERRIDE"
)

// DefaultWindow is the trailing window used for FREQUENT_CHANGE.
const DefaultWindow = 30 * 24 * time.Hour

// Thresholds.
const (
	jumpDelta            = 2
	jumpHighDelta        = 3
	frequentChanges      = 3
	frequentHighChanges  = 5
	manualConfidence     = 0.8
	manualHighConfidence = 0.5
	maxRiskScore         = 100
)

var severityWeights = map[model.Severity]int{
	model.SeverityCritical: 40,
	model.SeverityHigh:     25,
	model.SeverityMedium:   15,
	model.SeverityLow:      5,
}

// Anomaly is one finding inside an AnomalyReport.
type Anomaly struct {
	Type        AnomalyType       `json:"type"`
	Severity    model.Severity    `json:"severity"`
	Field       model.RatingField `json:"field,omitempty"`
	EntryID     string            `json:"entry_id,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	Description string            `json:"description"`
}

// AnomalyReport is derived on demand from one product's history.
type AnomalyReport struct {
	ProductID        string    `json:"product_id"`
	ProductName      string    `json:"product_name,omitempty"`
	EntryCount       int       `json:"entry_count"`
	InsufficientData bool      `json:"insufficient_data"`
	Anomalies        []Anomaly `json:"anomalies"`
	RiskScore        int       `json:"risk_score"`
	Recommendation   string    `json:"recommendation"`
}

// Detector scans history entries for anomalies.
type Detector struct {
	now    func() time.Time
	window time.Duration
}

// NewDetector creates a Detector with the wall clock and a 30-day window.
func NewDetector() *Detector {
	return &Detector{now: time.Now, window: DefaultWindow}
}

// DetectRankAnomalies analyses the entries of history that belong to productID.
// Fewer than two entries yields an insufficient-data report with risk 0.
func (d *Detector) DetectRankAnomalies(history []model.RankChangeHistory, productID string) AnomalyReport {
	entries := make([]model.RankChangeHistory, 0, len(history))
	for _, h := range history {
		if h.ProductID == productID {
			entries = append(entries, h)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})

	report := AnomalyReport{
		ProductID:  productID,
		EntryCount: len(entries),
		Anomalies:  []Anomaly{},
	}
	if len(entries) > 0 {
		report.ProductName = entries[len(entries)-1].ProductName
	}
	if len(entries) < 2 {
		report.InsufficientData = true
		report.Recommendation = "insufficient data: at least 2 history entries are required"
		return report
	}

	report.Anomalies = append(report.Anomalies, suddenJumps(entries)...)
	report.Anomalies = append(report.Anomalies, d.frequentChanges(entries)...)
	report.Anomalies = append(report.Anomalies, inconsistentPattern(entries[len(entries)-1])...)
	report.Anomalies = append(report.Anomalies, manualOverrides(entries)...)

	report.RiskScore = RiskScore(report.Anomalies)
	report.Recommendation = Recommendation(report.RiskScore)
	return report
}

func suddenJumps(entries []model.RankChangeHistory) []Anomaly {
	var out []Anomaly
	for _, e := range entries {
		for _, c := range e.Changes {
			if c.Initial() {
				continue
			}
			delta := abs(c.Delta)
			if delta < jumpDelta {
				continue
			}
			sev := model.SeverityMedium
			if delta >= jumpHighDelta {
				sev = model.SeverityHigh
			}
			out = append(out, Anomaly{
				Type:        AnomalySuddenJump,
				Severity:    sev,
				Field:       c.Field,
				EntryID:     e.ID,
				Timestamp:   e.Timestamp,
				Description: fmt.Sprintf("%s jumped %s -> %s (delta %+d)", c.Field, rankLabel(c.OldValue), rankLabel(c.NewValue), c.Delta),
			})
		}
	}
	return out
}

func (d *Detector) frequentChanges(entries []model.RankChangeHistory) []Anomaly {
	now := d.now()
	cutoff := now.Add(-d.window)

	counts := make(map[model.RatingField]int)
	latest := make(map[model.RatingField]time.Time)
	for _, e := range entries {
		if e.Timestamp.Before(cutoff) || e.Timestamp.After(now) {
			continue
		}
		for _, c := range e.Changes {
			counts[c.Field]++
			if e.Timestamp.After(latest[c.Field]) {
				latest[c.Field] = e.Timestamp
			}
		}
	}

	var out []Anomaly
	for _, f := range model.RatingFields {
		n := counts[f]
		if n < frequentChanges {
			continue
		}
		sev := model.SeverityMedium
		if n >= frequentHighChanges {
			sev = model.SeverityHigh
		}
		out = append(out, Anomaly{
			Type:        AnomalyFrequentChange,
			Severity:    sev,
			Field:       f,
			Timestamp:   latest[f],
			Description: fmt.Sprintf("%s changed %d times in the last %d days", f, n, int(d.window.Hours()/24)),
		})
	}
	return out
}

func inconsistentPattern(latest model.RankChangeHistory) []Anomaly {
	if latest.After.PriceRank != model.RankD || latest.After.CostEffectivenessRank != model.RankS {
		return nil
	}
	return []Anomaly{{
		Type:        AnomalyInconsistentPattern,
		Severity:    model.SeverityHigh,
		EntryID:     latest.ID,
		Timestamp:   latest.Timestamp,
		Description: "priceRank D with costEffectivenessRank S",
	}}
}

func manualOverrides(entries []model.RankChangeHistory) []Anomaly {
	var out []Anomaly
	for _, e := range entries {
		if e.Source != model.SourceManual || e.Confidence >= manualConfidence {
			continue
		}
		sev := model.SeverityLow
		if e.Confidence < manualHighConfidence {
			sev = model.SeverityHigh
		}
		desc := fmt.Sprintf("manual edit with confidence %.2f", e.Confidence)
		if e.UserID != "" {
			desc += " by " + e.UserID
		}
		out = append(out, Anomaly{
			Type:        AnomalyManualOverride,
			Severity:    sev,
			EntryID:     e.ID,
			Timestamp:   e.Timestamp,
			Description: desc,
		})
	}
	return out
}

// DetectAll produces one report per product present in history, ordered by product ID.
func (d *Detector) DetectAll(history []model.RankChangeHistory) []AnomalyReport {
	byProduct := make(map[string][]model.RankChangeHistory)
	for _, h := range history {
		byProduct[h.ProductID] = append(byProduct[h.ProductID], h)
	}
	ids := make([]string, 0, len(byProduct))
	for id := range byProduct {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]AnomalyReport, 0, len(ids))
	for _, id := range ids {
		out = append(out, d.DetectRankAnomalies(byProduct[id], id))
	}
	return out
}

// RiskScore sums severity weights, capped at 100.
func RiskScore(anomalies []Anomaly) int {
	score := 0
	for _, a := range anomalies {
		score += severityWeights[a.Severity]
	}
	if score > maxRiskScore {
		return maxRiskScore
	}
	return score
}

// Recommendation selects the action text for a risk score.
func Recommendation(risk int) string {
	switch {
	case risk >= 80:
		return "urgent: full re-verification of this product's ranks is required"
	case risk >= 60:
		return "recalculate ranks and recheck the source data"
	case risk >= 40:
		return "monitor this product for further changes"
	case risk >= 20:
		return "minor issues: address in routine maintenance"
	default:
		return "no action needed"
	}
}

func rankLabel(r model.Rank) string {
	if r == "" {
		return "(none)"
	}
	return string(r)
}
