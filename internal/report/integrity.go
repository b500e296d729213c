package report

import (
	"fmt"

	"github.com/sells-group/tier-ranker/internal/integrity"
)

// Integrity renders findings for every product that has at least one,
// followed by a pass/fail tally.
func (r *Renderer) Integrity(results []integrity.IntegrityCheckResult) error {
	if r.format == FormatJSON {
		return r.json(results)
	}

	var valid, flagged int
	rows := [][]string{}
	var suggestions [][]string
	for _, res := range results {
		if res.IsValid {
			valid++
		}
		if len(res.Errors)+len(res.Warnings) > 0 {
			flagged++
		}
		for _, f := range res.Errors {
			rows = append(rows, []string{res.ProductID, "error", r.severity(f.Severity), string(f.Code), f.Message})
		}
		for _, f := range res.Warnings {
			rows = append(rows, []string{res.ProductID, "warning", r.severity(f.Severity), string(f.Code), f.Message})
		}
		for _, s := range res.Suggestions {
			suggestions = append(suggestions, []string{
				res.ProductID, s.Field, s.Current, s.Suggested, fmt.Sprintf("%.2f", s.Confidence), s.Reason,
			})
		}
	}

	r.title("Integrity check")
	r.line("Checked: %d", len(results))
	r.line("Valid: %d", valid)
	r.line("Invalid: %d", len(results)-valid)
	r.line("With findings: %d", flagged)
	r.blank()

	r.table([]string{"ID", "KIND", "SEVERITY", "CODE", "MESSAGE"}, rows)
	if len(suggestions) > 0 {
		r.title("Suggested fixes")
		r.table([]string{"ID", "FIELD", "CURRENT", "SUGGESTED", "CONFIDENCE", "REASON"}, suggestions)
	}
	return nil
}
