// Package tables holds the immutable lookup tables the ranking engine is built
// with: category weight matrix, ingredient categories, recommended daily doses
// and ingredient aliases.
package tables

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// DefaultCategory is used when an ingredient has no category mapping.
const DefaultCategory = "その他"

// Weights is one row of the category weight matrix. Rows sum to 1.0.
type Weights struct {
	Price             float64 `yaml:"price" json:"price"`
	CostEffectiveness float64 `yaml:"cost_effectiveness" json:"cost_effectiveness"`
	Content           float64 `yaml:"content" json:"content"`
	Evidence          float64 `yaml:"evidence" json:"evidence"`
	Safety            float64 `yaml:"safety" json:"safety"`
}

// Sum returns the total of all axis weights.
func (w Weights) Sum() float64 {
	return w.Price + w.CostEffectiveness + w.Content + w.Evidence + w.Safety
}

// EqualWeights is the fallback row when neither the category nor the default category is configured.
var EqualWeights = Weights{Price: 0.2, CostEffectiveness: 0.2, Content: 0.2, Evidence: 0.2, Safety: 0.2}

// Tables bundles every lookup the engine consults. Build it once at startup
// and treat it as read-only afterwards; it is safe for concurrent readers.
type Tables struct {
	Weights         map[string]Weights
	Categories      map[string]string  // canonical ingredient -> category
	Doses           map[string]float64 // canonical ingredient -> recommended mg/day
	Aliases         map[string]string  // normalized alias -> canonical ingredient
	DefaultCategory string

	doseKeys []string // sorted longest-first for substring fallback
}

// New builds Tables from raw maps, normalizing every ingredient key.
func New(weights map[string]Weights, categories map[string]string, doses map[string]float64, aliases map[string]string) *Tables {
	t := &Tables{
		Weights:         make(map[string]Weights, len(weights)),
		Categories:      make(map[string]string, len(categories)),
		Doses:           make(map[string]float64, len(doses)),
		Aliases:         make(map[string]string, len(aliases)),
		DefaultCategory: DefaultCategory,
	}
	for k, v := range weights {
		t.Weights[strings.TrimSpace(k)] = v
	}
	for alias, canonical := range aliases {
		t.Aliases[Normalize(alias)] = Normalize(canonical)
	}
	for k, v := range categories {
		t.Categories[t.Canonical(k)] = strings.TrimSpace(v)
	}
	for k, v := range doses {
		t.Doses[t.Canonical(k)] = v
	}
	t.indexDoses()
	return t
}

func (t *Tables) indexDoses() {
	t.doseKeys = make([]string, 0, len(t.Doses))
	for k := range t.Doses {
		t.doseKeys = append(t.doseKeys, k)
	}
	sort.Slice(t.doseKeys, func(i, j int) bool {
		if len(t.doseKeys[i]) != len(t.doseKeys[j]) {
			return len(t.doseKeys[i]) > len(t.doseKeys[j])
		}
		return t.doseKeys[i] < t.doseKeys[j]
	})
}

// Canonical resolves an ingredient name to its canonical identity.
func (t *Tables) Canonical(name string) string {
	n := Normalize(name)
	if c, ok := t.Aliases[n]; ok {
		return c
	}
	return n
}

// CategoryOf returns the semantic category of a canonical ingredient.
func (t *Tables) CategoryOf(canonical string) string {
	if c, ok := t.Categories[canonical]; ok && c != "" {
		return c
	}
	return t.defaultCategory()
}

// WeightsFor returns the weight row for category, falling back to the default
// category and then to equal weights.
func (t *Tables) WeightsFor(category string) Weights {
	if w, ok := t.Weights[category]; ok {
		return w
	}
	if w, ok := t.Weights[t.defaultCategory()]; ok {
		return w
	}
	return EqualWeights
}

// RecommendedDose looks up the recommended daily dose (mg) for a canonical
// ingredient. Exact matches win; otherwise the longest dose key that contains,
// or is contained in, the name is used.
func (t *Tables) RecommendedDose(canonical string) (float64, bool) {
	if d, ok := t.Doses[canonical]; ok {
		return d, true
	}
	if canonical == "" {
		return 0, false
	}
	for _, k := range t.doseKeys {
		if strings.Contains(canonical, k) || strings.Contains(k, canonical) {
			return t.Doses[k], true
		}
	}
	return 0, false
}

func (t *Tables) defaultCategory() string {
	if t.DefaultCategory == "" {
		return DefaultCategory
	}
	return t.DefaultCategory
}

// Validate checks that the tables are internally consistent.
func (t *Tables) Validate() error {
	var errs []string

	if len(t.Weights) == 0 {
		errs = append(errs, "weight matrix is empty")
	}
	for name, w := range t.Weights {
		for axis, v := range map[string]float64{
			"price":              w.Price,
			"cost_effectiveness": w.CostEffectiveness,
			"content":            w.Content,
			"evidence":           w.Evidence,
			"safety":             w.Safety,
		} {
			if v < 0 || math.IsNaN(v) {
				errs = append(errs, fmt.Sprintf("%s.%s must be >= 0", name, axis))
			}
		}
		if sum := w.Sum(); math.Abs(sum-1) > 0.01 {
			errs = append(errs, fmt.Sprintf("%s weights should sum to 1.0, got %.3f", name, sum))
		}
	}
	if _, ok := t.Weights[t.defaultCategory()]; !ok && len(t.Weights) > 0 {
		errs = append(errs, fmt.Sprintf("default category %q has no weights", t.defaultCategory()))
	}
	for name, d := range t.Doses {
		if d <= 0 || math.IsNaN(d) || math.IsInf(d, 0) {
			errs = append(errs, fmt.Sprintf("dose for %s must be > 0", name))
		}
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return eris.Errorf("tables: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
