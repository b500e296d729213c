package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/sells-group/tier-ranker/internal/history"
)

// Anomalies renders anomaly reports, riskiest product first. Products with
// insufficient history are counted but not listed.
func (r *Renderer) Anomalies(reports []history.AnomalyReport) error {
	sorted := make([]history.AnomalyReport, len(reports))
	copy(sorted, reports)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].RiskScore != sorted[j].RiskScore {
			return sorted[i].RiskScore > sorted[j].RiskScore
		}
		return sorted[i].ProductID < sorted[j].ProductID
	})

	if r.format == FormatJSON {
		return r.json(sorted)
	}

	var insufficient int
	summary := [][]string{}
	detail := [][]string{}
	for _, rep := range sorted {
		if rep.InsufficientData {
			insufficient++
			continue
		}
		if len(rep.Anomalies) == 0 {
			continue
		}
		summary = append(summary, []string{
			rep.ProductID, rep.ProductName, fmt.Sprintf("%d", rep.EntryCount),
			fmt.Sprintf("%d", len(rep.Anomalies)), fmt.Sprintf("%d", rep.RiskScore), rep.Recommendation,
		})
		for _, a := range rep.Anomalies {
			detail = append(detail, []string{
				rep.ProductID, string(a.Type), r.severity(a.Severity), string(a.Field),
				a.Timestamp.UTC().Format(time.RFC3339), a.Description,
			})
		}
	}

	r.title("Rank anomaly scan")
	r.line("Products scanned: %d", len(sorted))
	r.line("With anomalies: %d", len(summary))
	r.line("Insufficient history: %d", insufficient)
	r.blank()

	r.table([]string{"ID", "PRODUCT", "ENTRIES", "ANOMALIES", "RISK", "RECOMMENDATION"}, summary)
	if len(detail) > 0 {
		r.title("Anomalies")
		r.table([]string{"ID", "TYPE", "SEVERITY", "FIELD", "AT", "DESCRIPTION"}, detail)
	}
	return nil
}
