// Package store persists catalog products, their computed ranks and the
// append-only rank change history.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tier-ranker/internal/model"
)

// ErrNotFound is returned when a product does not exist.
var ErrNotFound = eris.New("store: not found")

// HistoryFilter narrows ListHistory. Zero values mean no restriction.
type HistoryFilter struct {
	ProductID string             `json:"product_id,omitempty"`
	Source    model.ChangeSource `json:"source,omitempty"`
	Since     time.Time          `json:"since,omitempty"`
	Until     time.Time          `json:"until,omitempty"`
	Limit     int                `json:"limit,omitempty"`
}

// Store is the persistence capability the ranking job runs against.
type Store interface {
	// Products
	ListProducts(ctx context.Context) ([]model.ProductRecord, error)
	GetProduct(ctx context.Context, id string) (*model.ProductRecord, error)
	UpsertProducts(ctx context.Context, products []model.ProductRecord) (int64, error)

	// Ranks
	ReplaceRatings(ctx context.Context, u model.RatingUpdate) error

	// History
	AppendHistory(ctx context.Context, h model.RankChangeHistory) error
	ListHistory(ctx context.Context, filter HistoryFilter) ([]model.RankChangeHistory, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// productColumns is the column order used by every product query.
var productColumns = []string{
	"id", "name", "price", "servings_per_container", "servings_per_day", "availability",
	"ingredients", "reference_count", "warning_count", "evidence_level",
	"tier_ratings", "scores", "last_calculated_at", "updated_at",
}

// importColumns are written by UpsertProducts. Rank columns belong to the engine.
var importColumns = []string{
	"id", "name", "price", "servings_per_container", "servings_per_day", "availability",
	"ingredients", "reference_count", "warning_count", "evidence_level", "updated_at",
}

var historyColumns = []string{
	"id", "product_id", "product_name", "ts", "source", "confidence",
	"user_id", "reason", "changes", "after_ratings",
}

type scannable interface {
	Scan(dest ...any) error
}

// productRow mirrors the products table with JSON columns still encoded.
type productRow struct {
	ID                   string
	Name                 string
	Price                float64
	ServingsPerContainer float64
	ServingsPerDay       float64
	Availability         string
	Ingredients          []byte
	ReferenceCount       int
	WarningCount         int
	EvidenceLevel        string
	TierRatings          []byte
	Scores               []byte
	LastCalculatedAt     *time.Time
	UpdatedAt            time.Time
}

func (r *productRow) decode() (*model.ProductRecord, error) {
	p := &model.ProductRecord{
		ID:                   r.ID,
		Name:                 r.Name,
		Price:                r.Price,
		ServingsPerContainer: r.ServingsPerContainer,
		ServingsPerDay:       r.ServingsPerDay,
		Availability:         r.Availability,
		ReferenceCount:       r.ReferenceCount,
		WarningCount:         r.WarningCount,
		LegacyEvidenceLevel:  model.Rank(r.EvidenceLevel),
		LastCalculatedAt:     r.LastCalculatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
	if len(r.Ingredients) > 0 {
		if err := json.Unmarshal(r.Ingredients, &p.Ingredients); err != nil {
			return nil, eris.Wrapf(err, "store: decode ingredients for %s", r.ID)
		}
	}
	if len(r.TierRatings) > 0 {
		p.TierRatings = &model.TierRatings{}
		if err := json.Unmarshal(r.TierRatings, p.TierRatings); err != nil {
			return nil, eris.Wrapf(err, "store: decode tier ratings for %s", r.ID)
		}
	}
	if len(r.Scores) > 0 {
		p.Scores = &model.Scores{}
		if err := json.Unmarshal(r.Scores, p.Scores); err != nil {
			return nil, eris.Wrapf(err, "store: decode scores for %s", r.ID)
		}
	}
	return p, nil
}

func encodeProduct(p *model.ProductRecord) (productRow, error) {
	ings := p.Ingredients
	if ings == nil {
		ings = []model.IngredientAmount{}
	}
	ingJSON, err := json.Marshal(ings)
	if err != nil {
		return productRow{}, eris.Wrapf(err, "store: encode ingredients for %s", p.ID)
	}
	availability := p.Availability
	if availability == "" {
		availability = model.AvailabilityInStock
	}
	updated := p.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	return productRow{
		ID:                   p.ID,
		Name:                 p.Name,
		Price:                p.Price,
		ServingsPerContainer: p.ServingsPerContainer,
		ServingsPerDay:       p.ServingsPerDay,
		Availability:         availability,
		Ingredients:          ingJSON,
		ReferenceCount:       p.ReferenceCount,
		WarningCount:         p.WarningCount,
		EvidenceLevel:        string(p.LegacyEvidenceLevel),
		UpdatedAt:            updated.UTC(),
	}, nil
}

// ratingsJSON encodes the wholesale rank replacement.
func ratingsJSON(u model.RatingUpdate) (ratings, scores []byte, err error) {
	if ratings, err = json.Marshal(u.TierRatings); err != nil {
		return nil, nil, eris.Wrapf(err, "store: encode tier ratings for %s", u.ProductID)
	}
	if scores, err = json.Marshal(u.Scores); err != nil {
		return nil, nil, eris.Wrapf(err, "store: encode scores for %s", u.ProductID)
	}
	return ratings, scores, nil
}

// historyRow mirrors the rank_history table.
type historyRow struct {
	ID          string
	ProductID   string
	ProductName string
	Timestamp   time.Time
	Source      string
	Confidence  float64
	UserID      string
	Reason      string
	Changes     []byte
	After       []byte
}

func encodeHistory(h model.RankChangeHistory) (historyRow, error) {
	if h.ID == "" {
		return historyRow{}, eris.New("store: history entry has no id")
	}
	changes := h.Changes
	if changes == nil {
		changes = []model.RankChange{}
	}
	changesJSON, err := json.Marshal(changes)
	if err != nil {
		return historyRow{}, eris.Wrapf(err, "store: encode changes for %s", h.ID)
	}
	afterJSON, err := json.Marshal(h.After)
	if err != nil {
		return historyRow{}, eris.Wrapf(err, "store: encode after ratings for %s", h.ID)
	}
	return historyRow{
		ID:          h.ID,
		ProductID:   h.ProductID,
		ProductName: h.ProductName,
		Timestamp:   h.Timestamp.UTC(),
		Source:      string(h.Source),
		Confidence:  h.Confidence,
		UserID:      h.UserID,
		Reason:      h.Reason,
		Changes:     changesJSON,
		After:       afterJSON,
	}, nil
}

func (r *historyRow) decode() (model.RankChangeHistory, error) {
	h := model.RankChangeHistory{
		ID:          r.ID,
		ProductID:   r.ProductID,
		ProductName: r.ProductName,
		Timestamp:   r.Timestamp.UTC(),
		Source:      model.ChangeSource(r.Source),
		Confidence:  r.Confidence,
		UserID:      r.UserID,
		Reason:      r.Reason,
	}
	if err := json.Unmarshal(r.Changes, &h.Changes); err != nil {
		return h, eris.Wrapf(err, "store: decode changes for %s", r.ID)
	}
	if err := json.Unmarshal(r.After, &h.After); err != nil {
		return h, eris.Wrapf(err, "store: decode after ratings for %s", r.ID)
	}
	return h, nil
}

// historyQuery builds the ListHistory SELECT. placeholder renders the n-th
// (1-based) bind parameter for the dialect; ts formats time bounds.
func historyQuery(f HistoryFilter, placeholder func(n int) string, ts func(time.Time) any) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, placeholder(len(args))))
	}

	if f.ProductID != "" {
		add("product_id = %s", f.ProductID)
	}
	if f.Source != "" {
		add("source = %s", string(f.Source))
	}
	if !f.Since.IsZero() {
		add("ts >= %s", ts(f.Since))
	}
	if !f.Until.IsZero() {
		add("ts < %s", ts(f.Until))
	}

	q := "SELECT " + strings.Join(historyColumns, ", ") + " FROM rank_history"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY ts, id"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += " LIMIT " + placeholder(len(args))
	}
	return q, args
}
