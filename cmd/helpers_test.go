package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/tier-ranker/internal/config"
	"github.com/sells-group/tier-ranker/internal/model"
	"github.com/sells-group/tier-ranker/internal/store"
	"github.com/sells-group/tier-ranker/internal/tables"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// testConfig installs a config pointing at a fresh SQLite file and restores
// the previous global afterwards.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	prev := cfg
	t.Cleanup(func() { cfg = prev })

	c := &config.Config{}
	c.Store.Driver = "sqlite"
	c.Store.DatabaseURL = filepath.Join(t.TempDir(), "tier.db")
	c.Rank.TrimFraction = 0.05
	c.Rank.TrimMinGroup = 10
	c.Rank.StaleAfterDays = 7
	c.Rank.Concurrency = 2
	c.Write.MaxAttempts = 1
	c.Write.InitialBackoffMs = 1
	c.Write.MaxBackoffMs = 1
	c.Monitoring.RiskAlertThreshold = 60
	c.Monitoring.LookbackDays = 90
	c.Log.Level = "info"
	c.Log.Format = "json"
	cfg = c
	return c
}

// newTestStore opens a migrated store through initStore and seeds it with catalogProducts.
func newTestStore(t *testing.T) store.Store {
	t.Helper()
	testConfig(t)
	st, err := initStore(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck

	_, err = st.UpsertProducts(context.Background(), catalogProducts())
	require.NoError(t, err)
	return st
}

func catalogProducts() []model.ProductRecord {
	updated := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	vitC := func(id string, price float64) model.ProductRecord {
		return model.ProductRecord{
			ID:                   id,
			Name:                 "Vitamin C " + id,
			Price:                price,
			ServingsPerContainer: 60,
			ServingsPerDay:       1,
			Availability:         model.AvailabilityInStock,
			Ingredients: []model.IngredientAmount{
				{IngredientID: "ing-c", Name: "ビタミンC", AmountPerServing: 500, EvidenceLevel: model.RankA, SafetyLevel: model.RankS},
			},
			ReferenceCount: 6,
			UpdatedAt:      updated,
		}
	}
	return []model.ProductRecord{
		vitC("p1", 1200),
		vitC("p2", 2400),
		{
			ID: "p3", Name: "Zinc", Price: 800, ServingsPerContainer: 90, ServingsPerDay: 1,
			Availability: model.AvailabilityOutOfStock,
			Ingredients:  []model.IngredientAmount{{Name: "亜鉛", AmountPerServing: 15}},
			UpdatedAt:    updated,
		},
	}
}

func fullRatings(r model.Rank) model.TierRatings {
	return model.TierRatings{
		PriceRank:             r,
		CostEffectivenessRank: r,
		ContentRank:           r,
		EvidenceRank:          r,
		SafetyRank:            r,
		OverallRank:           r,
	}
}

func storeRatings(t *testing.T, st store.Store, id string, r model.TierRatings) {
	t.Helper()
	require.NoError(t, st.ReplaceRatings(context.Background(), model.RatingUpdate{
		ProductID:    id,
		TierRatings:  r,
		CalculatedAt: time.Now().UTC(),
	}))
}

func defaultTables() *tables.Tables {
	return tables.Default()
}
