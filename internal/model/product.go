package model

import "time"

// Availability values supplied by the catalog. Only in-stock products are ranked.
const (
	AvailabilityInStock    = "in-stock"
	AvailabilityOutOfStock = "out-of-stock"
)

// IngredientAmount is one entry of a product's ingredient list, with the
// catalog ratings already joined in.
type IngredientAmount struct {
	IngredientID     string  `json:"ingredient_id"`
	Name             string  `json:"name"`
	AmountPerServing float64 `json:"amount_per_serving"` // mg
	EvidenceLevel    Rank    `json:"evidence_level,omitempty"`
	SafetyLevel      Rank    `json:"safety_level,omitempty"`
	Category         string  `json:"category,omitempty"`
}

// TierRatings holds the five axis ranks plus the derived overall rank.
// It is always written wholesale.
type TierRatings struct {
	PriceRank             Rank `json:"price_rank"`
	CostEffectivenessRank Rank `json:"cost_effectiveness_rank"`
	ContentRank           Rank `json:"content_rank"`
	EvidenceRank          Rank `json:"evidence_rank"`
	SafetyRank            Rank `json:"safety_rank"`
	OverallRank           Rank `json:"overall_rank"`
}

// RatingField names one of the six TierRatings fields.
type RatingField string

const (
	FieldPriceRank             RatingField = "priceRank"
	FieldCostEffectivenessRank RatingField = "costEffectivenessRank"
	FieldContentRank           RatingField = "contentRank"
	FieldEvidenceRank          RatingField = "evidenceRank"
	FieldSafetyRank            RatingField = "safetyRank"
	FieldOverallRank           RatingField = "overallRank"
)

// RatingFields lists every TierRatings field in canonical order.
var RatingFields = []RatingField{
	FieldPriceRank,
	FieldCostEffectivenessRank,
	FieldContentRank,
	FieldEvidenceRank,
	FieldSafetyRank,
	FieldOverallRank,
}

// AxisFields lists the five axis fields (everything except overallRank).
var AxisFields = RatingFields[:5]

// Get returns the rank stored under field.
func (t TierRatings) Get(field RatingField) Rank {
	switch field {
	case FieldPriceRank:
		return t.PriceRank
	case FieldCostEffectivenessRank:
		return t.CostEffectivenessRank
	case FieldContentRank:
		return t.ContentRank
	case FieldEvidenceRank:
		return t.EvidenceRank
	case FieldSafetyRank:
		return t.SafetyRank
	case FieldOverallRank:
		return t.OverallRank
	default:
		return ""
	}
}

// With returns a copy of t with field set to r.
func (t TierRatings) With(field RatingField, r Rank) TierRatings {
	switch field {
	case FieldPriceRank:
		t.PriceRank = r
	case FieldCostEffectivenessRank:
		t.CostEffectivenessRank = r
	case FieldContentRank:
		t.ContentRank = r
	case FieldEvidenceRank:
		t.EvidenceRank = r
	case FieldSafetyRank:
		t.SafetyRank = r
	case FieldOverallRank:
		t.OverallRank = r
	}
	return t
}

// Scores are the numeric companions of the evidence, safety and overall ranks (0-100).
type Scores struct {
	Evidence float64 `json:"evidence"`
	Safety   float64 `json:"safety"`
	Overall  float64 `json:"overall"`
}

// RatingsVersion tags which rank representation a stored record carries.
type RatingsVersion int

const (
	RatingsVersionNone   RatingsVersion = 0 // no ranks stored
	RatingsVersionLegacy RatingsVersion = 1 // only the legacy evidenceLevel field
	RatingsVersionTiered RatingsVersion = 2 // tierRatings present (legacy field may coexist)
)

// ProductRecord is one catalog product as supplied by the content store.
type ProductRecord struct {
	ID                   string             `json:"id"`
	Name                 string             `json:"name"`
	Price                float64            `json:"price"`
	ServingsPerContainer float64            `json:"servings_per_container"`
	ServingsPerDay       float64            `json:"servings_per_day"`
	Availability         string             `json:"availability,omitempty"`
	Ingredients          []IngredientAmount `json:"ingredients"`
	ReferenceCount       int                `json:"reference_count"`
	WarningCount         int                `json:"warning_count"`

	// Persisted engine output.
	TierRatings      *TierRatings `json:"tier_ratings,omitempty"`
	Scores           *Scores      `json:"scores,omitempty"`
	LastCalculatedAt *time.Time   `json:"last_calculated_at,omitempty"`
	UpdatedAt        time.Time    `json:"updated_at"`

	// LegacyEvidenceLevel is the pre-tierRatings evidence field. Kept only so
	// the integrity checker can reconcile it against EvidenceRank.
	LegacyEvidenceLevel Rank `json:"evidence_level,omitempty"`
}

// Version reports which rank representation the record carries.
func (p *ProductRecord) Version() RatingsVersion {
	switch {
	case p.TierRatings != nil:
		return RatingsVersionTiered
	case p.LegacyEvidenceLevel != "":
		return RatingsVersionLegacy
	default:
		return RatingsVersionNone
	}
}

// PrimaryIngredient returns the first-listed ingredient, if any.
func (p *ProductRecord) PrimaryIngredient() (IngredientAmount, bool) {
	if len(p.Ingredients) == 0 {
		return IngredientAmount{}, false
	}
	return p.Ingredients[0], true
}

// RatingUpdate is the wholesale replacement written back for one product.
type RatingUpdate struct {
	ProductID    string      `json:"product_id"`
	TierRatings  TierRatings `json:"tier_ratings"`
	Scores       Scores      `json:"scores"`
	CalculatedAt time.Time   `json:"calculated_at"`
}
