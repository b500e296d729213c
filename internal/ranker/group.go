package ranker

import "sort"

// IngredientGroup is the set of products competing on one canonical primary ingredient.
type IngredientGroup struct {
	Ingredient string
	Category   string
	Members    []ProductMetrics
}

// GroupByIngredient partitions metrics by canonical primary ingredient.
// Groups are sorted by ingredient; members keep input order.
func GroupByIngredient(metrics []ProductMetrics) []IngredientGroup {
	index := make(map[string]int)
	var groups []IngredientGroup
	for _, m := range metrics {
		i, ok := index[m.Ingredient]
		if !ok {
			i = len(groups)
			index[m.Ingredient] = i
			groups = append(groups, IngredientGroup{Ingredient: m.Ingredient, Category: m.Category})
		}
		groups[i].Members = append(groups[i].Members, m)
	}

	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Ingredient < groups[j].Ingredient
	})
	return groups
}

// values projects one metric out of the group's members.
func (g IngredientGroup) values(f func(ProductMetrics) float64) []float64 {
	out := make([]float64, len(g.Members))
	for i, m := range g.Members {
		out[i] = f(m)
	}
	return out
}
