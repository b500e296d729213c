package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tier-ranker/internal/model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadProducts_JSON(t *testing.T) {
	path := writeFile(t, "products.json", `[
  {"id": "p1", "name": "Vitamin C", "price": 1200, "servings_per_container": 60, "servings_per_day": 1,
   "availability": "in-stock", "reference_count": 6,
   "ingredients": [{"ingredient_id": "ing-c", "name": "ビタミンC", "amount_per_serving": 500, "evidence_level": "A"}]}
]`)

	products, err := readProducts(path)
	require.NoError(t, err)
	require.Len(t, products, 1)
	p := products[0]
	assert.Equal(t, "p1", p.ID)
	assert.InDelta(t, 1200, p.Price, 0.001)
	require.Len(t, p.Ingredients, 1)
	assert.Equal(t, model.RankA, p.Ingredients[0].EvidenceLevel)
	assert.InDelta(t, 500, p.Ingredients[0].AmountPerServing, 0.001)
}

func TestReadProducts_YAML(t *testing.T) {
	path := writeFile(t, "products.yml", `
- id: p1
  name: Zinc 15
  price: 780
  servings_per_container: 90
  servings_per_day: 1
  ingredients:
    - name: 亜鉛
      amount_per_serving: 15
      safety_level: S
- id: p2
  name: Magnesium
  price: 1200
  servings_per_container: 30
  servings_per_day: 2
  availability: out-of-stock
  ingredients:
    - name: マグネシウム
      amount_per_serving: 150
`)

	products, err := readProducts(path)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "Zinc 15", products[0].Name)
	assert.Equal(t, model.RankS, products[0].Ingredients[0].SafetyLevel)
	assert.Equal(t, model.AvailabilityOutOfStock, products[1].Availability)
	assert.InDelta(t, 2, products[1].ServingsPerDay, 0.001)
}

func TestReadProducts_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    string
	}{
		{"duplicate id", "dup.json", `[{"id": "p1"}, {"id": "p1"}]`, "duplicate product id p1"},
		{"missing id", "noid.json", `[{"id": "p1"}, {"name": "anon"}]`, "product #2 has no id"},
		{"bad json", "bad.json", `{"id": `, "import: decode"},
		{"bad yaml", "bad.yaml", "- id: [unclosed", "import: parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readProducts(writeFile(t, tt.file, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := readProducts(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "import: read")
}
