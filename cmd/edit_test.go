package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tier-ranker/internal/history"
	"github.com/sells-group/tier-ranker/internal/integrity"
	"github.com/sells-group/tier-ranker/internal/model"
	"github.com/sells-group/tier-ranker/internal/ranker"
	"github.com/sells-group/tier-ranker/internal/store"
	"github.com/sells-group/tier-ranker/internal/tables"
)

func TestBuildEdit(t *testing.T) {
	tb := defaultTables()
	stored := fullRatings(model.RankB)
	product := func(r *model.TierRatings) *model.ProductRecord {
		p := catalogProducts()[0]
		p.TierRatings = r
		return &p
	}

	t.Run("derives overall from axes", func(t *testing.T) {
		after, scores, err := buildEdit(product(&stored), tb, map[model.RatingField]string{
			model.FieldPriceRank: "s",
		})
		require.NoError(t, err)
		assert.Equal(t, model.RankS, after.PriceRank)
		assert.Equal(t, model.RankB, after.SafetyRank)

		m, skipped := ranker.Extract(tb, product(nil))
		require.Nil(t, skipped)
		wantOverall, wantScore := ranker.OverallFromAxes(after, tb.WeightsFor(m.Category))
		assert.Equal(t, wantOverall, after.OverallRank)
		assert.InDelta(t, wantScore, scores.Overall, 0.0001)
	})

	t.Run("explicit overall wins", func(t *testing.T) {
		after, _, err := buildEdit(product(&stored), tb, map[model.RatingField]string{
			model.FieldOverallRank: "S+",
		})
		require.NoError(t, err)
		assert.Equal(t, model.RankSPlus, after.OverallRank)
	})

	t.Run("axis cannot be S+", func(t *testing.T) {
		_, _, err := buildEdit(product(&stored), tb, map[model.RatingField]string{
			model.FieldSafetyRank: "S+",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot be S+")
	})

	t.Run("invalid rank", func(t *testing.T) {
		_, _, err := buildEdit(product(&stored), tb, map[model.RatingField]string{
			model.FieldContentRank: "E",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid rank")
	})

	t.Run("unranked product needs every axis", func(t *testing.T) {
		_, _, err := buildEdit(product(nil), tb, map[model.RatingField]string{
			model.FieldPriceRank: "A",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "has no stored rank")

		edits := make(map[model.RatingField]string)
		for _, f := range model.AxisFields {
			edits[f] = "A"
		}
		after, _, err := buildEdit(product(nil), tb, edits)
		require.NoError(t, err)
		assert.True(t, after.OverallRank.Valid())
	})

	t.Run("unrankable product falls back to default weights", func(t *testing.T) {
		p := product(&stored)
		p.Price = 0
		after, _, err := buildEdit(p, tb, map[model.RatingField]string{model.FieldPriceRank: "A"})
		require.NoError(t, err)
		want, _ := ranker.OverallFromAxes(after, tb.WeightsFor(tables.DefaultCategory))
		assert.Equal(t, want, after.OverallRank)
	})
}

func TestBuildEdit_ScoresMatchFinalRanks(t *testing.T) {
	tb := defaultTables()
	checker := integrity.NewChecker(tb, integrity.Options{StaleAfter: 7 * 24 * time.Hour})

	tests := []struct {
		name   string
		stored model.TierRatings
		scores model.Scores
		edits  map[model.RatingField]string
		check  func(t *testing.T, scores model.Scores)
	}{
		{
			name:   "safety lowered on a clean record",
			stored: fullRatings(model.RankS),
			scores: model.Scores{Evidence: 95, Safety: 100, Overall: 100},
			edits:  map[model.RatingField]string{model.FieldSafetyRank: "C"},
			check: func(t *testing.T, scores model.Scores) {
				assert.Equal(t, 95.0, scores.Evidence)
				assert.Less(t, scores.Safety, 70.0)
				assert.GreaterOrEqual(t, scores.Safety, 60.0)
			},
		},
		{
			name:   "explicit overall",
			stored: fullRatings(model.RankB),
			scores: model.Scores{Evidence: 75, Safety: 74, Overall: 75},
			edits:  map[model.RatingField]string{model.FieldOverallRank: "A"},
			check: func(t *testing.T, scores model.Scores) {
				assert.Equal(t, 80.0, scores.Overall)
				assert.Equal(t, 75.0, scores.Evidence)
				assert.Equal(t, 74.0, scores.Safety)
			},
		},
		{
			name:   "evidence raised",
			stored: fullRatings(model.RankC),
			scores: model.Scores{Evidence: 62, Safety: 65, Overall: 64},
			edits:  map[model.RatingField]string{model.FieldEvidenceRank: "S"},
			check: func(t *testing.T, scores model.Scores) {
				assert.Equal(t, 90.0, scores.Evidence)
			},
		},
		{
			name:   "evidence forced to D",
			stored: fullRatings(model.RankA),
			scores: model.Scores{Evidence: 85, Safety: 88, Overall: 86},
			edits:  map[model.RatingField]string{model.FieldEvidenceRank: "D"},
			check: func(t *testing.T, scores model.Scores) {
				assert.Less(t, scores.Evidence, 60.0)
				assert.Less(t, scores.Overall, 60.0)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := catalogProducts()[0]
			stored, scores := tt.stored, tt.scores
			p.TierRatings, p.Scores = &stored, &scores

			after, got, err := buildEdit(&p, tb, tt.edits)
			require.NoError(t, err)
			tt.check(t, got)

			p.TierRatings, p.Scores = &after, &got
			p.LastCalculatedAt = &p.UpdatedAt
			res := checker.Check(&p)
			assert.Empty(t, res.Warnings)
			assert.Empty(t, res.Errors)
		})
	}
}

func TestRunEdit_PersistsRanksAndHistory(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	storeRatings(t, st, "p1", fullRatings(model.RankB))

	h, err := runEdit(ctx, st, defaultTables(), history.NewTracker(), "p1",
		map[model.RatingField]string{model.FieldPriceRank: "A"}, "alice", "supplier price drop")
	require.NoError(t, err)
	assert.Equal(t, model.SourceManual, h.Source)
	assert.Equal(t, "alice", h.UserID)
	assert.Equal(t, "supplier price drop", h.Reason)
	require.NotEmpty(t, h.Changes)
	assert.Equal(t, model.FieldPriceRank, h.Changes[0].Field)

	p, err := st.GetProduct(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, p.TierRatings)
	assert.Equal(t, model.RankA, p.TierRatings.PriceRank)
	assert.Equal(t, h.After, *p.TierRatings)

	entries, err := st.ListHistory(ctx, store.HistoryFilter{ProductID: "p1", Source: model.SourceManual})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, h.ID, entries[0].ID)
}

func TestRunEdit_Errors(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	storeRatings(t, st, "p1", fullRatings(model.RankB))
	tb := defaultTables()
	tracker := history.NewTracker()

	_, err := runEdit(ctx, st, tb, tracker, "p1", map[model.RatingField]string{model.FieldPriceRank: "A"}, "alice", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--reason is required")

	_, err = runEdit(ctx, st, tb, tracker, "missing", map[model.RatingField]string{model.FieldPriceRank: "A"}, "alice", "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrNotFound))

	// Same axis value and an overall that already matches the derived one.
	current, err := st.GetProduct(ctx, "p1")
	require.NoError(t, err)
	_, err = runEdit(ctx, st, tb, tracker, "p1", map[model.RatingField]string{
		model.FieldPriceRank:   "B",
		model.FieldOverallRank: string(current.TierRatings.OverallRank),
	}, "alice", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unchanged")

	entries, err := st.ListHistory(ctx, store.HistoryFilter{ProductID: "p1"})
	require.NoError(t, err)
	assert.Empty(t, entries)
}
