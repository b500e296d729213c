package ranker

import (
	"math"

	"github.com/sells-group/tier-ranker/internal/model"
	"github.com/sells-group/tier-ranker/internal/tables"
)

const (
	referenceBonusMin  = 5
	referenceBonus     = 10
	warningPenaltyMin  = 3
	warningPenalty     = 10
	hardFailScoreLimit = 50
)

// AxisInput is everything the aggregator needs for one product.
type AxisInput struct {
	Price             model.Rank
	CostEffectiveness model.Rank
	Content           model.Rank
	EvidenceScore     float64
	SafetyScore       float64
	ReferenceCount    int
	WarningCount      int
}

// Aggregation is the final ratings and scores for one product.
type Aggregation struct {
	Ratings model.TierRatings
	Scores  model.Scores
}

// AdjustEvidence applies the supporting-reference bonus.
func AdjustEvidence(score float64, references int) float64 {
	if references >= referenceBonusMin {
		score += referenceBonus
	}
	return math.Min(score, 100)
}

// AdjustSafety applies the recorded-warning penalty.
func AdjustSafety(score float64, warnings int) float64 {
	if warnings >= warningPenaltyMin {
		score -= warningPenalty
	}
	return math.Max(score, 0)
}

// Aggregate adjusts evidence and safety, derives their ranks and combines all
// five axes into the overall rank.
func Aggregate(in AxisInput, w tables.Weights) Aggregation {
	evidence := AdjustEvidence(in.EvidenceScore, in.ReferenceCount)
	safety := AdjustSafety(in.SafetyScore, in.WarningCount)

	ratings := model.TierRatings{
		PriceRank:             in.Price,
		CostEffectivenessRank: in.CostEffectiveness,
		ContentRank:           in.Content,
		EvidenceRank:          model.RankFromScore(evidence),
		SafetyRank:            model.RankFromScore(safety),
	}

	overall, score := OverallFromAxes(ratings, w)
	ratings.OverallRank = overall

	return Aggregation{
		Ratings: ratings,
		Scores: model.Scores{
			Evidence: evidence,
			Safety:   safety,
			Overall:  score,
		},
	}
}

// OverallFromAxes derives the overall rank and score from the five axis ranks
// of r. Hard-fail is checked before five-crown.
func OverallFromAxes(r model.TierRatings, w tables.Weights) (model.Rank, float64) {
	weighted := WeightedScore(r, w)

	if r.SafetyRank == model.RankD || r.EvidenceRank == model.RankD {
		return model.RankD, math.Min(weighted, hardFailScoreLimit)
	}
	if IsFiveCrown(r) {
		return model.RankSPlus, 100
	}
	return model.RankFromScore(weighted), weighted
}

// WeightedScore is the category-weighted sum of the axis rank values, capped at 100.
func WeightedScore(r model.TierRatings, w tables.Weights) float64 {
	s := model.RankValue(r.PriceRank)*w.Price +
		model.RankValue(r.CostEffectivenessRank)*w.CostEffectiveness +
		model.RankValue(r.ContentRank)*w.Content +
		model.RankValue(r.EvidenceRank)*w.Evidence +
		model.RankValue(r.SafetyRank)*w.Safety
	return math.Min(s, 100)
}

// IsFiveCrown reports whether every axis rank is S.
func IsFiveCrown(r model.TierRatings) bool {
	for _, f := range model.AxisFields {
		if r.Get(f) != model.RankS {
			return false
		}
	}
	return true
}
