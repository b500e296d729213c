package monitoring

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/tier-ranker/internal/model"
	"github.com/sells-group/tier-ranker/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var fixedNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeSource serves canned products and history and records the last filter.
type fakeSource struct {
	products   []model.ProductRecord
	history    []model.RankChangeHistory
	productErr error
	historyErr error
	lastFilter store.HistoryFilter
}

func (f *fakeSource) ListProducts(_ context.Context) ([]model.ProductRecord, error) {
	return f.products, f.productErr
}

func (f *fakeSource) ListHistory(_ context.Context, filter store.HistoryFilter) ([]model.RankChangeHistory, error) {
	f.lastFilter = filter
	return f.history, f.historyErr
}

var errBoom = errors.New("boom")

func unranked(id string) model.ProductRecord {
	return model.ProductRecord{
		ID: id, Name: "Unranked " + id, Price: 1000, ServingsPerContainer: 30, ServingsPerDay: 1,
		Ingredients: []model.IngredientAmount{{Name: "ビタミンC", AmountPerServing: 500}},
		UpdatedAt:   fixedNow,
	}
}

// riskyHistory yields two low-confidence manual edits with large jumps for productID.
func riskyHistory(productID string) []model.RankChangeHistory {
	mk := func(id string, ago time.Duration, old, new model.Rank) model.RankChangeHistory {
		return model.RankChangeHistory{
			ID: id, ProductID: productID, ProductName: "Risky",
			Timestamp:  fixedNow.Add(-ago),
			Source:     model.SourceManual,
			Confidence: 0.3,
			Changes: []model.RankChange{
				{Field: model.FieldOverallRank, OldValue: old, NewValue: new, Delta: model.RankDelta(old, new)},
			},
			After: model.TierRatings{
				PriceRank: model.RankD, CostEffectivenessRank: model.RankD, ContentRank: model.RankD,
				EvidenceRank: model.RankD, SafetyRank: model.RankD, OverallRank: new,
			},
		}
	}
	return []model.RankChangeHistory{
		mk(productID+"-1", 48*time.Hour, model.RankD, model.RankS),
		mk(productID+"-2", 24*time.Hour, model.RankS, model.RankD),
	}
}
