// Package history records rank change events and scans them for suspicious patterns.
package history

import (
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/tier-ranker/internal/model"
)

// Base confidence per change source.
var sourceConfidence = map[model.ChangeSource]float64{
	model.SourceAutoCalculation: 0.95,
	model.SourceSync:            0.90,
	model.SourceFix:             0.85,
	model.SourceManual:          0.70,
}

const (
	minConfidence = 0.1
	maxConfidence = 1.0
)

// ChangeMeta carries the descriptive fields of a history entry.
type ChangeMeta struct {
	ProductID   string
	ProductName string
	UserID      string
	Reason      string
	Timestamp   time.Time // zero means now
}

// Tracker builds history entries. It holds no state besides its clock and ID source.
type Tracker struct {
	now   func() time.Time
	newID func() string
}

// NewTracker creates a Tracker using the wall clock and random UUIDs.
func NewTracker() *Tracker {
	return &Tracker{
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
}

// RecordRankChange diffs old against new field by field and returns a new,
// immutable history entry. Identical ratings produce an entry with no changes.
func (t *Tracker) RecordRankChange(old, new model.TierRatings, source model.ChangeSource, meta ChangeMeta) model.RankChangeHistory {
	changes := DiffRatings(old, new)

	ts := meta.Timestamp
	if ts.IsZero() {
		ts = t.now()
	}

	return model.RankChangeHistory{
		ID:          t.newID(),
		ProductID:   meta.ProductID,
		ProductName: meta.ProductName,
		Timestamp:   ts.UTC(),
		Changes:     changes,
		Source:      source,
		Confidence:  Confidence(source, changes),
		UserID:      meta.UserID,
		Reason:      meta.Reason,
		After:       new,
	}
}

// DiffRatings returns one RankChange per differing field, in canonical field order.
func DiffRatings(old, new model.TierRatings) []model.RankChange {
	var changes []model.RankChange
	for _, f := range model.RatingFields {
		o, n := old.Get(f), new.Get(f)
		if o == n {
			continue
		}
		changes = append(changes, model.RankChange{
			Field:    f,
			OldValue: o,
			NewValue: n,
			Delta:    model.RankDelta(o, n),
		})
	}
	return changes
}

// Confidence scores how trustworthy a change event is. Large total movement
// and wide edits lower the source's base confidence. First assignments do not count as movement.
func Confidence(source model.ChangeSource, changes []model.RankChange) float64 {
	c, ok := sourceConfidence[source]
	if !ok {
		c = sourceConfidence[model.SourceManual]
	}

	total, moved := 0, 0
	for _, ch := range changes {
		if ch.Initial() {
			continue
		}
		total += abs(ch.Delta)
		moved++
	}

	switch {
	case total > 10:
		c *= 0.7
	case total > 5:
		c *= 0.85
	}
	if moved > 4 {
		c *= 0.9
	}

	return clamp(c, minConfidence, maxConfidence)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
