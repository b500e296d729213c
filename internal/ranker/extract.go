// Package ranker turns catalog products into tier ranks: metric extraction,
// ingredient grouping, trimmed percentile ranking, hybrid content scoring and
// weighted aggregation, run as a batch over the whole catalog.
package ranker

import (
	"fmt"
	"math"
	"sort"

	"github.com/sells-group/tier-ranker/internal/model"
	"github.com/sells-group/tier-ranker/internal/tables"
)

const (
	// multiIngredientThreshold is the distinct-ingredient count above which a
	// product is treated as multi-ingredient.
	multiIngredientThreshold = 3
	// multiIngredientTopN ingredients (by per-serving amount) are considered for multi-ingredient products.
	multiIngredientTopN = 5
)

var evidenceScale = map[model.Rank]float64{
	model.RankS: 95,
	model.RankA: 85,
	model.RankB: 75,
	model.RankC: 65,
	model.RankD: 55,
}

var safetyScale = map[model.Rank]float64{
	model.RankS: 100,
	model.RankA: 90,
	model.RankB: 80,
	model.RankC: 70,
	model.RankD: 60,
}

const (
	unsetEvidenceScore = 50
	unsetSafetyScore   = 75
)

// ProductMetrics is the flat, per-run view of one product. Never persisted.
type ProductMetrics struct {
	ProductID       string
	ProductName     string
	Ingredient      string // canonical primary ingredient
	Category        string
	Price           float64
	CostPerUnit     float64 // currency per mg of considered content
	DailyAmount     float64 // mg of the primary ingredient per day
	EvidenceScore   float64
	SafetyScore     float64
	ReferenceCount  int
	WarningCount    int
	MultiIngredient bool
}

// SkippedProduct records a product left out of a run and why.
type SkippedProduct struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Reason      string `json:"reason"`
}

type ingredientTotal struct {
	canonical string
	amount    float64
	evidence  model.Rank
	safety    model.Rank
	category  string
}

// Extract computes ProductMetrics for p. A non-nil SkippedProduct means p
// cannot be ranked this run; that is a data-quality outcome, not an error.
func Extract(t *tables.Tables, p *model.ProductRecord) (ProductMetrics, *SkippedProduct) {
	skip := func(format string, args ...any) (ProductMetrics, *SkippedProduct) {
		return ProductMetrics{}, &SkippedProduct{
			ProductID:   p.ID,
			ProductName: p.Name,
			Reason:      fmt.Sprintf(format, args...),
		}
	}

	switch {
	case !(p.Price > 0):
		return skip("price must be > 0 (got %v)", p.Price)
	case !(p.ServingsPerContainer > 0):
		return skip("servings per container must be > 0 (got %v)", p.ServingsPerContainer)
	case !(p.ServingsPerDay > 0):
		return skip("servings per day must be > 0 (got %v)", p.ServingsPerDay)
	case len(p.Ingredients) == 0:
		return skip("no ingredients")
	}

	distinct := dedupeIngredients(t, p.Ingredients)
	primary := distinct[0]
	if !(primary.amount > 0) {
		return skip("primary ingredient %q amount per serving must be > 0 (got %v)", primary.canonical, primary.amount)
	}

	considered := distinct
	multi := len(distinct) > multiIngredientThreshold
	if multi {
		considered = topByAmount(distinct, multiIngredientTopN)
	}

	var total, evidenceSum, safetySum float64
	for _, ing := range considered {
		if ing.amount <= 0 {
			continue
		}
		total += ing.amount
		evidenceSum += ing.amount * evidenceScore(ing.evidence)
		safetySum += ing.amount * safetyScore(ing.safety)
	}

	m := ProductMetrics{
		ProductID:       p.ID,
		ProductName:     p.Name,
		Ingredient:      primary.canonical,
		Category:        categoryFor(t, primary),
		Price:           p.Price,
		CostPerUnit:     p.Price / (total * p.ServingsPerContainer),
		DailyAmount:     primary.amount * p.ServingsPerDay,
		EvidenceScore:   evidenceSum / total,
		SafetyScore:     safetySum / total,
		ReferenceCount:  p.ReferenceCount,
		WarningCount:    p.WarningCount,
		MultiIngredient: multi,
	}

	for _, f := range []struct {
		name string
		v    float64
	}{
		{"price", m.Price},
		{"cost per unit", m.CostPerUnit},
		{"daily amount", m.DailyAmount},
		{"evidence score", m.EvidenceScore},
		{"safety score", m.SafetyScore},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return skip("non-finite %s", f.name)
		}
	}

	return m, nil
}

// dedupeIngredients merges entries sharing a canonical name, summing amounts
// and keeping first-listed order and ratings.
func dedupeIngredients(t *tables.Tables, ings []model.IngredientAmount) []ingredientTotal {
	index := make(map[string]int, len(ings))
	out := make([]ingredientTotal, 0, len(ings))
	for _, ing := range ings {
		name := ing.Name
		if name == "" {
			name = ing.IngredientID
		}
		c := t.Canonical(name)
		if i, ok := index[c]; ok {
			out[i].amount += ing.AmountPerServing
			continue
		}
		index[c] = len(out)
		out = append(out, ingredientTotal{
			canonical: c,
			amount:    ing.AmountPerServing,
			evidence:  ing.EvidenceLevel,
			safety:    ing.SafetyLevel,
			category:  ing.Category,
		})
	}
	return out
}

func topByAmount(ings []ingredientTotal, n int) []ingredientTotal {
	sorted := make([]ingredientTotal, len(ings))
	copy(sorted, ings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].amount > sorted[j].amount
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func categoryFor(t *tables.Tables, ing ingredientTotal) string {
	c := t.CategoryOf(ing.canonical)
	if c == t.DefaultCategory && ing.category != "" {
		return ing.category
	}
	return c
}

func evidenceScore(r model.Rank) float64 {
	if v, ok := evidenceScale[r]; ok {
		return v
	}
	return unsetEvidenceScore
}

func safetyScore(r model.Rank) float64 {
	if v, ok := safetyScale[r]; ok {
		return v
	}
	return unsetSafetyScore
}
