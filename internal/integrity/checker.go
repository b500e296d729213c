// Package integrity re-derives the expected relationships between a stored
// product's ranks, scores and raw attributes and reports every mismatch.
package integrity

import (
	"fmt"
	"time"

	"github.com/sells-group/tier-ranker/internal/model"
	"github.com/sells-group/tier-ranker/internal/ranker"
	"github.com/sells-group/tier-ranker/internal/tables"
)

// Code identifies the kind of finding.
type Code string

const (
	CodeMissingRatings        Code = "MISSING_TIER_RATINGS"
	CodeMissingField          Code = "MISSING_FIELD"
	CodeInvalidRank           Code = "INVALID_RANK"
	CodeLegacyMismatch        Code = "LEGACY_EVIDENCE_MISMATCH"
	CodeScoreRankMismatch     Code = "SCORE_RANK_MISMATCH"
	CodeImpossibleCombination Code = "IMPOSSIBLE_COMBINATION"
	CodeSuspiciousPriceCost   Code = "SUSPICIOUS_PRICE_COST"
	CodeOutdated              Code = "OUTDATED"
	CodeCostOutOfRange        Code = "COST_OUT_OF_RANGE"
)

// Sane band for derived cost per mg.
const (
	minCostPerUnit = 0.001
	maxCostPerUnit = 10
)

const legacySuggestionConfidence = 0.9

// Confidence multiplier applied per finding severity.
var severityPenalty = map[model.Severity]float64{
	model.SeverityCritical: 0.5,
	model.SeverityHigh:     0.7,
	model.SeverityMedium:   0.85,
	model.SeverityLow:      0.95,
}

// Finding is one error or warning.
type Finding struct {
	Code     Code           `json:"code"`
	Severity model.Severity `json:"severity"`
	Field    string         `json:"field,omitempty"`
	Message  string         `json:"message"`
}

// Suggestion proposes a corrected value for one field.
type Suggestion struct {
	Field      string  `json:"field"`
	Current    string  `json:"current"`
	Suggested  string  `json:"suggested"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}

// IntegrityCheckResult accumulates every check for one product.
type IntegrityCheckResult struct {
	ProductID   string       `json:"product_id"`
	ProductName string       `json:"product_name"`
	IsValid     bool         `json:"is_valid"`
	Errors      []Finding    `json:"errors"`
	Warnings    []Finding    `json:"warnings"`
	Suggestions []Suggestion `json:"suggestions"`
	Confidence  float64      `json:"confidence"`
}

func (r *IntegrityCheckResult) addError(code Code, sev model.Severity, field, format string, args ...any) {
	r.Errors = append(r.Errors, Finding{Code: code, Severity: sev, Field: field, Message: fmt.Sprintf(format, args...)})
	r.Confidence *= severityPenalty[sev]
}

func (r *IntegrityCheckResult) addWarning(code Code, sev model.Severity, field, format string, args ...any) {
	r.Warnings = append(r.Warnings, Finding{Code: code, Severity: sev, Field: field, Message: fmt.Sprintf(format, args...)})
	r.Confidence *= severityPenalty[sev]
}

// Options tunes a Checker.
type Options struct {
	StaleAfter time.Duration // default 7 days
}

// Checker inspects persisted records. It never modifies them.
type Checker struct {
	tables     *tables.Tables
	staleAfter time.Duration
}

// NewChecker creates a Checker. The tables resolve ingredient names when
// deriving cost per unit.
func NewChecker(t *tables.Tables, opts Options) *Checker {
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 7 * 24 * time.Hour
	}
	return &Checker{tables: t, staleAfter: opts.StaleAfter}
}

// Check runs every check against p. No check stops the others.
func (c *Checker) Check(p *model.ProductRecord) IntegrityCheckResult {
	res := IntegrityCheckResult{
		ProductID:   p.ID,
		ProductName: p.Name,
		Errors:      []Finding{},
		Warnings:    []Finding{},
		Suggestions: []Suggestion{},
		Confidence:  1.0,
	}

	c.checkPresence(p, &res)
	c.checkValues(p, &res)
	c.checkLegacy(p, &res)
	c.checkScores(p, &res)
	c.checkCombinations(p, &res)
	c.checkStaleness(p, &res)
	c.checkCost(p, &res)

	res.IsValid = len(res.Errors) == 0
	return res
}

// CheckAll checks every product in order.
func (c *Checker) CheckAll(products []model.ProductRecord) []IntegrityCheckResult {
	out := make([]IntegrityCheckResult, 0, len(products))
	for i := range products {
		out = append(out, c.Check(&products[i]))
	}
	return out
}

func (c *Checker) checkPresence(p *model.ProductRecord, res *IntegrityCheckResult) {
	if p.TierRatings == nil {
		res.addError(CodeMissingRatings, model.SeverityCritical, "tierRatings", "tierRatings is missing")
		return
	}
	for _, f := range model.RatingFields {
		if p.TierRatings.Get(f) == "" {
			res.addError(CodeMissingField, model.SeverityHigh, string(f), "tierRatings.%s is missing", f)
		}
	}
}

func (c *Checker) checkValues(p *model.ProductRecord, res *IntegrityCheckResult) {
	if p.TierRatings == nil {
		return
	}
	for _, f := range model.RatingFields {
		r := p.TierRatings.Get(f)
		if r == "" {
			continue
		}
		if !r.Valid() {
			res.addError(CodeInvalidRank, model.SeverityCritical, string(f), "tierRatings.%s has invalid value %q", f, r)
			continue
		}
		if r == model.RankSPlus && f != model.FieldOverallRank {
			res.addError(CodeInvalidRank, model.SeverityCritical, string(f), "tierRatings.%s cannot be S+ (only overallRank can)", f)
		}
	}
	if p.LegacyEvidenceLevel != "" && !p.LegacyEvidenceLevel.Valid() {
		res.addError(CodeInvalidRank, model.SeverityCritical, "evidenceLevel", "evidenceLevel has invalid value %q", p.LegacyEvidenceLevel)
	}
}

func (c *Checker) checkLegacy(p *model.ProductRecord, res *IntegrityCheckResult) {
	if p.Version() != model.RatingsVersionTiered || p.LegacyEvidenceLevel == "" {
		return
	}
	current := p.TierRatings.EvidenceRank
	if current == "" || p.LegacyEvidenceLevel == current {
		return
	}
	res.addError(CodeLegacyMismatch, model.SeverityHigh, "evidenceLevel",
		"legacy evidenceLevel %s disagrees with tierRatings.evidenceRank %s", p.LegacyEvidenceLevel, current)
	res.Suggestions = append(res.Suggestions, Suggestion{
		Field:      "evidenceLevel",
		Current:    string(p.LegacyEvidenceLevel),
		Suggested:  string(current),
		Reason:     "adopt tierRatings.evidenceRank and retire the legacy field",
		Confidence: legacySuggestionConfidence,
	})
}

func (c *Checker) checkScores(p *model.ProductRecord, res *IntegrityCheckResult) {
	if p.TierRatings == nil || p.Scores == nil {
		return
	}
	pairs := []struct {
		field model.RatingField
		name  string
		score float64
	}{
		{model.FieldEvidenceRank, "evidence", p.Scores.Evidence},
		{model.FieldSafetyRank, "safety", p.Scores.Safety},
		{model.FieldOverallRank, "overall", p.Scores.Overall},
	}
	for _, pair := range pairs {
		r := p.TierRatings.Get(pair.field)
		want, ok := model.ExpectedScoreRange(r)
		if !ok || want.Contains(pair.score) {
			continue
		}
		suggested := model.RankFromScore(pair.score)
		res.addWarning(CodeScoreRankMismatch, model.SeverityMedium, string(pair.field),
			"%s score %.1f is outside [%.0f, %.0f] expected for rank %s", pair.name, pair.score, want.Min, want.Max, r)
		res.Suggestions = append(res.Suggestions, Suggestion{
			Field:      string(pair.field),
			Current:    string(r),
			Suggested:  string(suggested),
			Reason:     fmt.Sprintf("%s score %.1f maps to %s", pair.name, pair.score, suggested),
			Confidence: 0.8,
		})
	}
}

func (c *Checker) checkCombinations(p *model.ProductRecord, res *IntegrityCheckResult) {
	t := p.TierRatings
	if t == nil {
		return
	}
	if t.OverallRank == model.RankSPlus && !ranker.IsFiveCrown(*t) {
		res.addError(CodeImpossibleCombination, model.SeverityCritical, string(model.FieldOverallRank),
			"overallRank S+ requires every axis rank to be S")
	}
	hardFail := t.SafetyRank == model.RankD || t.EvidenceRank == model.RankD
	if hardFail && t.OverallRank != "" && t.OverallRank != model.RankD {
		res.addError(CodeImpossibleCombination, model.SeverityCritical, string(model.FieldOverallRank),
			"overallRank %s with safetyRank %s and evidenceRank %s; a D in either must force D", t.OverallRank, t.SafetyRank, t.EvidenceRank)
	}
	if t.PriceRank == model.RankD && t.CostEffectivenessRank == model.RankS {
		res.addWarning(CodeSuspiciousPriceCost, model.SeverityMedium, string(model.FieldCostEffectivenessRank),
			"priceRank D with costEffectivenessRank S is suspicious; recommend recalculation")
	}
}

func (c *Checker) checkStaleness(p *model.ProductRecord, res *IntegrityCheckResult) {
	if p.TierRatings == nil || p.UpdatedAt.IsZero() {
		return
	}
	if p.LastCalculatedAt == nil {
		res.addWarning(CodeOutdated, model.SeverityLow, "lastCalculatedAt",
			"ranks have no calculation timestamp; recommend recalculation")
		return
	}
	if lag := p.UpdatedAt.Sub(*p.LastCalculatedAt); lag > c.staleAfter {
		res.addWarning(CodeOutdated, model.SeverityLow, "lastCalculatedAt",
			"ranks calculated %d days before the last product update; recommend recalculation", int(lag.Hours()/24))
	}
}

func (c *Checker) checkCost(p *model.ProductRecord, res *IntegrityCheckResult) {
	m, skip := ranker.Extract(c.tables, p)
	if skip != nil {
		return
	}
	if m.CostPerUnit < minCostPerUnit || m.CostPerUnit > maxCostPerUnit {
		res.addWarning(CodeCostOutOfRange, model.SeverityMedium, "price",
			"cost per mg %.4f is outside [%.3f, %.0f]; possible data entry error", m.CostPerUnit, minCostPerUnit, float64(maxCostPerUnit))
	}
}
