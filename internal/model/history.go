package model

import "time"

// ChangeSource identifies what produced a rank change.
type ChangeSource string

const (
	SourceManual          ChangeSource = "manual"
	SourceAutoCalculation ChangeSource = "auto-calculation"
	SourceSync            ChangeSource = "sync"
	SourceFix             ChangeSource = "fix"
)

// Valid reports whether s is a known change source.
func (s ChangeSource) Valid() bool {
	switch s {
	case SourceManual, SourceAutoCalculation, SourceSync, SourceFix:
		return true
	default:
		return false
	}
}

// RankChange is one differing field inside a history entry.
type RankChange struct {
	Field    RatingField `json:"field"`
	OldValue Rank        `json:"old_value"`
	NewValue Rank        `json:"new_value"`
	Delta    int         `json:"delta"`
}

// Initial reports whether the change is a field's first assignment rather than a move between ranks.
func (c RankChange) Initial() bool {
	return !c.OldValue.Valid() && c.NewValue.Valid()
}

// RankChangeHistory is an immutable record of one observed rank change event.
// Corrections are new entries; stored entries are never edited.
type RankChangeHistory struct {
	ID          string       `json:"id"`
	ProductID   string       `json:"product_id"`
	ProductName string       `json:"product_name"`
	Timestamp   time.Time    `json:"timestamp"`
	Changes     []RankChange `json:"changes"`
	Source      ChangeSource `json:"source"`
	Confidence  float64      `json:"confidence"`
	UserID      string       `json:"user_id,omitempty"`
	Reason      string       `json:"reason,omitempty"`
	After       TierRatings  `json:"after"`
}

// Severity grades an anomaly or integrity finding.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)
