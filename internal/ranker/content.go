package ranker

import (
	"github.com/sells-group/tier-ranker/internal/model"
	"github.com/sells-group/tier-ranker/internal/tables"
)

// groupMaxTolerance is the relative slack for "is the group maximum".
const groupMaxTolerance = 0.001

// FulfillmentRank maps a daily-amount / recommended-dose ratio to a base content rank.
func FulfillmentRank(ratio float64) model.Rank {
	switch {
	case ratio >= 5.0:
		return model.RankS
	case ratio >= 2.0:
		return model.RankA
	case ratio >= 1.0:
		return model.RankB
	case ratio >= 0.5:
		return model.RankC
	default:
		return model.RankD
	}
}

// contentEvaluator ranks daily amounts within one ingredient group.
type contentEvaluator struct {
	dose    float64
	hasDose bool
	max     float64
	dist    Distribution
}

func newContentEvaluator(t *tables.Tables, g IngredientGroup, trim Trim) contentEvaluator {
	amounts := g.values(func(m ProductMetrics) float64 { return m.DailyAmount })
	e := contentEvaluator{dist: NewDistribution(amounts, trim)}
	for _, a := range amounts {
		if a > e.max {
			e.max = a
		}
	}
	e.dose, e.hasDose = t.RecommendedDose(g.Ingredient)
	return e
}

// Rank scores daily against the recommended dose when one is known, upgrading
// the group maximum by one step. Without a dose it falls back to the group
// percentile, higher being better.
func (e contentEvaluator) Rank(daily float64) model.Rank {
	if !e.hasDose {
		return model.RankFromScore(e.dist.Percentile(daily))
	}

	r := FulfillmentRank(daily / e.dose)
	if e.isGroupMax(daily) {
		r = r.Upgrade()
	}
	return r
}

func (e contentEvaluator) isGroupMax(daily float64) bool {
	return e.max > 0 && daily >= e.max*(1-groupMaxTolerance)
}
