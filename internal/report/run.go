package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/sells-group/tier-ranker/internal/model"
	"github.com/sells-group/tier-ranker/internal/ranker"
)

// RunSummary is the JSON shape of a ranking run report.
type RunSummary struct {
	StartedAt     time.Time               `json:"started_at"`
	Mode          string                  `json:"mode"`
	Ranked        int                     `json:"ranked"`
	Groups        int                     `json:"groups"`
	UpdatesNeeded int                     `json:"updates_needed"`
	Updates       []ranker.ProductResult  `json:"updates"`
	Skipped       []ranker.SkippedProduct `json:"skipped"`
	Apply         *ranker.ApplyResult     `json:"apply,omitempty"`
}

// Summarize builds the report body for run. apply is nil in preview mode.
func Summarize(run *ranker.RunResult, apply *ranker.ApplyResult) RunSummary {
	updates := run.UpdatesNeeded()
	mode := "preview"
	if apply != nil {
		mode = "apply"
	}
	return RunSummary{
		StartedAt:     run.StartedAt,
		Mode:          mode,
		Ranked:        len(run.Products),
		Groups:        run.GroupCount,
		UpdatesNeeded: len(updates),
		Updates:       updates,
		Skipped:       run.Skipped,
		Apply:         apply,
	}
}

// Run renders a ranking run: updates with before/after ranks, skipped
// products with reasons and, in apply mode, write tallies and failures.
func (r *Renderer) Run(run *ranker.RunResult, apply *ranker.ApplyResult) error {
	s := Summarize(run, apply)
	if r.format == FormatJSON {
		return r.json(s)
	}

	r.title(fmt.Sprintf("Tier ranking run (%s)", s.Mode))
	r.line("Started: %s", s.StartedAt.UTC().Format(time.RFC3339))
	r.line("Ranked products: %d in %d ingredient groups", s.Ranked, s.Groups)
	r.line("Updates needed: %d", s.UpdatesNeeded)
	r.line("Skipped: %d", len(s.Skipped))
	r.blank()

	rows := make([][]string, 0, len(s.Updates))
	for _, p := range s.Updates {
		rows = append(rows, []string{
			p.ProductID,
			p.ProductName,
			p.Ingredient,
			beforeOverall(p.Before),
			string(p.After.OverallRank),
			fmt.Sprintf("%.1f", p.Scores.Overall),
			ChangeSummary(p.Before, p.After),
		})
	}
	r.table([]string{"ID", "PRODUCT", "INGREDIENT", "BEFORE", "AFTER", "SCORE", "CHANGES"}, rows)

	if len(s.Skipped) > 0 {
		r.title("Skipped products")
		skipped := make([][]string, 0, len(s.Skipped))
		for _, sk := range s.Skipped {
			skipped = append(skipped, []string{sk.ProductID, sk.ProductName, sk.Reason})
		}
		r.table([]string{"ID", "PRODUCT", "REASON"}, skipped)
	}

	if apply != nil {
		r.title("Write-back")
		r.line("Succeeded: %d", apply.Succeeded)
		r.line("Failed: %d", apply.Failed)
		r.line("History entries: %d", apply.History)
		r.line("History failures: %d", len(apply.HistoryFailures))
		r.line("Duration: %s", apply.Duration.Round(time.Millisecond))
		r.blank()
		failures := make([][]string, 0, len(apply.Failures))
		for _, f := range apply.Failures {
			failures = append(failures, []string{f.ProductID, f.ProductName, f.Error})
		}
		r.table([]string{"ID", "PRODUCT", "ERROR"}, failures)

		if len(apply.HistoryFailures) > 0 {
			r.title("History entries not recorded")
			missing := make([][]string, 0, len(apply.HistoryFailures))
			for _, f := range apply.HistoryFailures {
				missing = append(missing, []string{f.ProductID, f.ProductName, f.Error})
			}
			r.table([]string{"ID", "PRODUCT", "ERROR"}, missing)
		}
	}
	return nil
}

func beforeOverall(before *model.TierRatings) string {
	if before == nil {
		return "-"
	}
	return rankLabel(before.OverallRank)
}

// ChangeSummary lists differing fields as "field old→new", or "new" when
// nothing was stored before.
func ChangeSummary(before *model.TierRatings, after model.TierRatings) string {
	if before == nil {
		return "new"
	}
	var parts []string
	for _, f := range model.RatingFields {
		o, n := before.Get(f), after.Get(f)
		if o != n {
			parts = append(parts, fmt.Sprintf("%s %s→%s", f, rankLabel(o), rankLabel(n)))
		}
	}
	if len(parts) == 0 {
		return "scores only"
	}
	return strings.Join(parts, ", ")
}
