package tables

// Category names used by the built-in tables.
const (
	CategoryWaterSolubleVitamin = "水溶性ビタミン"
	CategoryFatSolubleVitamin   = "脂溶性ビタミン"
	CategoryMineral             = "ミネラル"
	CategoryMultivitamin        = "マルチビタミン"
	CategoryOmega3              = "オメガ3"
)

// DefaultWeights returns the built-in category weight matrix.
func DefaultWeights() map[string]Weights {
	return map[string]Weights{
		CategoryWaterSolubleVitamin: {Price: 0.20, CostEffectiveness: 0.25, Content: 0.20, Evidence: 0.20, Safety: 0.15},
		CategoryFatSolubleVitamin:   {Price: 0.15, CostEffectiveness: 0.20, Content: 0.20, Evidence: 0.20, Safety: 0.25},
		CategoryMineral:             {Price: 0.15, CostEffectiveness: 0.20, Content: 0.25, Evidence: 0.20, Safety: 0.20},
		CategoryMultivitamin:        {Price: 0.15, CostEffectiveness: 0.25, Content: 0.15, Evidence: 0.20, Safety: 0.25},
		CategoryOmega3:              {Price: 0.15, CostEffectiveness: 0.25, Content: 0.20, Evidence: 0.25, Safety: 0.15},
		DefaultCategory:             {Price: 0.20, CostEffectiveness: 0.20, Content: 0.20, Evidence: 0.20, Safety: 0.20},
	}
}

// DefaultCategories returns the built-in ingredient -> category mapping.
func DefaultCategories() map[string]string {
	return map[string]string{
		"ビタミンC":     CategoryWaterSolubleVitamin,
		"ビタミンB1":    CategoryWaterSolubleVitamin,
		"ビタミンB6":    CategoryWaterSolubleVitamin,
		"ビタミンB12":   CategoryWaterSolubleVitamin,
		"葉酸":        CategoryWaterSolubleVitamin,
		"ビタミンD":     CategoryFatSolubleVitamin,
		"ビタミンE":     CategoryFatSolubleVitamin,
		"ビタミンA":     CategoryFatSolubleVitamin,
		"カルシウム":     CategoryMineral,
		"マグネシウム":    CategoryMineral,
		"亜鉛":        CategoryMineral,
		"鉄":         CategoryMineral,
		"マルチビタミン":   CategoryMultivitamin,
		"DHA":       CategoryOmega3,
		"EPA":       CategoryOmega3,
		"コエンザイムQ10": DefaultCategory,
	}
}

// DefaultDoses returns recommended daily amounts in mg.
func DefaultDoses() map[string]float64 {
	return map[string]float64{
		"ビタミンC":     100,
		"ビタミンB1":    1.2,
		"ビタミンB6":    1.3,
		"ビタミンB12":   0.0024,
		"葉酸":        0.24,
		"ビタミンD":     0.0085,
		"ビタミンE":     6,
		"ビタミンA":     0.85,
		"カルシウム":     650,
		"マグネシウム":    340,
		"亜鉛":        10,
		"鉄":         10,
		"DHA":       500,
		"EPA":       500,
		"コエンザイムQ10": 100,
	}
}

// DefaultAliases returns common alternate spellings mapped to canonical names.
func DefaultAliases() map[string]string {
	return map[string]string{
		"vitamin c":    "ビタミンC",
		"アスコルビン酸":      "ビタミンC",
		"vitamin d":    "ビタミンD",
		"vitamin d3":   "ビタミンD",
		"ビタミンD3":       "ビタミンD",
		"vitamin e":    "ビタミンE",
		"calcium":      "カルシウム",
		"magnesium":    "マグネシウム",
		"zinc":         "亜鉛",
		"iron":         "鉄",
		"folic acid":   "葉酸",
		"coq10":        "コエンザイムQ10",
		"coenzyme q10": "コエンザイムQ10",
		"multivitamin": "マルチビタミン",
		"マルチビタミン&ミネラル": "マルチビタミン",
	}
}
