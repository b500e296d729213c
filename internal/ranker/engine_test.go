package ranker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/tier-ranker/internal/history"
	"github.com/sells-group/tier-ranker/internal/model"
	"github.com/sells-group/tier-ranker/internal/resilience"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func testium(id string, price float64) model.ProductRecord {
	return model.ProductRecord{
		ID:                   id,
		Name:                 "Testium " + id,
		Price:                price,
		ServingsPerContainer: 30,
		ServingsPerDay:       1,
		Availability:         model.AvailabilityInStock,
		Ingredients:          []model.IngredientAmount{ing("Testium", 1000, model.RankS, model.RankS)},
	}
}

func testEngine() *Engine {
	return NewEngine(testTables(), Options{Trim: DefaultTrim, Concurrency: 4})
}

func byID(run *RunResult) map[string]ProductResult {
	out := make(map[string]ProductResult, len(run.Products))
	for _, p := range run.Products {
		out[p.ProductID] = p
	}
	return out
}

func TestCompute_ScenarioTrimmedGroup(t *testing.T) {
	products := []model.ProductRecord{testium("cheap", 500), testium("luxury", 9000)}
	for i := range 10 {
		products = append(products, testium(fmt.Sprintf("mid-%02d", i), 1000+float64(i)*50))
	}

	run, err := testEngine().Compute(context.Background(), products)
	require.NoError(t, err)
	require.Len(t, run.Products, 12, "outliers are still ranked")
	assert.Empty(t, run.Skipped)
	assert.Equal(t, 1, run.GroupCount)

	res := byID(run)
	assert.Equal(t, model.RankS, res["cheap"].After.PriceRank)
	assert.Equal(t, model.RankD, res["luxury"].After.PriceRank)
	assert.Equal(t, model.RankS, res["mid-00"].After.PriceRank, "bottom of the trimmed reference set")
	assert.Equal(t, model.RankD, res["mid-09"].After.PriceRank, "top of the trimmed reference set")

	// All products carry the same amount, so everyone is the group maximum: B -> A.
	assert.Equal(t, model.RankA, res["mid-05"].After.ContentRank)
	assert.Equal(t, model.RankS, res["mid-05"].After.EvidenceRank)
	assert.Equal(t, model.RankS, res["mid-05"].After.SafetyRank)

	// Sorted by product ID.
	assert.Equal(t, "cheap", run.Products[0].ProductID)
	assert.Equal(t, "mid-00", run.Products[2].ProductID)
}

func TestCompute_SkipsAndGroups(t *testing.T) {
	zinc := model.ProductRecord{
		ID: "z1", Price: 800, ServingsPerContainer: 60, ServingsPerDay: 1,
		Ingredients: []model.IngredientAmount{ing("zn", 15, model.RankA, model.RankA)},
	}
	broken := testium("broken", 0)

	run, err := testEngine().Compute(context.Background(), []model.ProductRecord{testium("t1", 1200), zinc, broken})
	require.NoError(t, err)

	assert.Equal(t, 2, run.GroupCount)
	require.Len(t, run.Skipped, 1)
	assert.Equal(t, "broken", run.Skipped[0].ProductID)

	res := byID(run)
	z := res["z1"]
	assert.Equal(t, "zinc", z.Ingredient)
	assert.Equal(t, "ミネラル", z.Category)
	// Single-member group: percentile midpoint 50 -> D for price and cost.
	assert.Equal(t, model.RankD, z.After.PriceRank)
	assert.Equal(t, model.RankD, z.After.CostEffectivenessRank)
	// 15mg vs 10mg dose -> ratio 1.5 (B), sole member upgrade -> A.
	assert.Equal(t, model.RankA, z.After.ContentRank)
	assert.True(t, z.Changed)
	assert.Nil(t, z.Before)
}

func TestCompute_UnchangedProduct(t *testing.T) {
	eng := testEngine()
	p := testium("t1", 1200)

	first, err := eng.Compute(context.Background(), []model.ProductRecord{p})
	require.NoError(t, err)
	require.Len(t, first.UpdatesNeeded(), 1)

	after := first.Products[0].After
	scores := first.Products[0].Scores
	p.TierRatings = &after
	p.Scores = &scores

	second, err := eng.Compute(context.Background(), []model.ProductRecord{p})
	require.NoError(t, err)
	assert.Empty(t, second.UpdatesNeeded())
	assert.Equal(t, first.Products[0].After, second.Products[0].After, "deterministic")
}

func TestCompute_ScoreDriftIsAChange(t *testing.T) {
	eng := testEngine()
	p := testium("t1", 1200)

	first, err := eng.Compute(context.Background(), []model.ProductRecord{p})
	require.NoError(t, err)
	after := first.Products[0].After
	want := first.Products[0].Scores

	tests := []struct {
		name   string
		scores model.Scores
	}{
		{name: "evidence", scores: model.Scores{Evidence: want.Evidence + 1, Safety: want.Safety, Overall: want.Overall}},
		{name: "safety", scores: model.Scores{Evidence: want.Evidence, Safety: want.Safety - 0.5, Overall: want.Overall}},
		{name: "overall", scores: model.Scores{Evidence: want.Evidence, Safety: want.Safety, Overall: want.Overall + 0.1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stored, scores := after, tt.scores
			p.TierRatings, p.Scores = &stored, &scores

			res, err := eng.Compute(context.Background(), []model.ProductRecord{p})
			require.NoError(t, err)
			require.Len(t, res.Products, 1)
			assert.Equal(t, after, res.Products[0].After, "ranks unchanged")
			assert.True(t, res.Products[0].Changed)
			require.Len(t, res.UpdatesNeeded(), 1)
			assert.Equal(t, "t1", res.UpdatesNeeded()[0].ProductID)
			assert.Equal(t, want, res.UpdatesNeeded()[0].Scores)
		})
	}
}

func TestCompute_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testEngine().Compute(ctx, []model.ProductRecord{testium("t1", 1200)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ranker: compute")
}

type fakeWriter struct {
	mu       sync.Mutex
	fail     map[string]error
	calls    map[string]int
	updates  map[string]model.RatingUpdate
	history   []model.RankChangeHistory
	histFail  bool
	histFlaky int
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{
		fail:    map[string]error{},
		calls:   map[string]int{},
		updates: map[string]model.RatingUpdate{},
	}
}

func (f *fakeWriter) ReplaceRatings(_ context.Context, u model.RatingUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[u.ProductID]++
	if err, ok := f.fail[u.ProductID]; ok {
		if resilience.IsTransient(err) && f.calls[u.ProductID] > 1 {
			delete(f.fail, u.ProductID)
		} else {
			return err
		}
	}
	f.updates[u.ProductID] = u
	return nil
}

func (f *fakeWriter) AppendHistory(_ context.Context, h model.RankChangeHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.histFail {
		return errors.New("history table unavailable")
	}
	if f.histFlaky > 0 {
		f.histFlaky--
		return errors.New("database is locked")
	}
	f.history = append(f.history, h)
	return nil
}

func applyOpts() ApplyOptions {
	return ApplyOptions{
		Retry:       resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
		Concurrency: 2,
	}
}

func TestApply_PartialFailure(t *testing.T) {
	run, err := testEngine().Compute(context.Background(), []model.ProductRecord{
		testium("ok-1", 1000),
		testium("bad", 1100),
		testium("flaky", 1200),
		testium("ok-2", 1300),
	})
	require.NoError(t, err)

	w := newFakeWriter()
	w.fail["bad"] = errors.New("check constraint violated")
	w.fail["flaky"] = resilience.NewTransientError(errors.New("database is locked"))

	res := Apply(context.Background(), w, run, history.NewTracker(), applyOpts())

	assert.Equal(t, 3, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "bad", res.Failures[0].ProductID)
	assert.Contains(t, res.Failures[0].Error, "check constraint")

	assert.Equal(t, 1, w.calls["bad"], "permanent errors are not retried")
	assert.Equal(t, 2, w.calls["flaky"])
	assert.Len(t, w.updates, 3)

	require.Len(t, w.history, 3)
	assert.Equal(t, 3, res.History)
	for _, h := range w.history {
		assert.Equal(t, model.SourceAutoCalculation, h.Source)
		assert.NotEmpty(t, h.ID)
		assert.Len(t, h.Changes, 6, "first calculation sets every field")
		assert.Equal(t, w.updates[h.ProductID].TierRatings, h.After)
	}
}

func TestApply_HistoryAppendRetried(t *testing.T) {
	run, err := testEngine().Compute(context.Background(), []model.ProductRecord{testium("t1", 1000)})
	require.NoError(t, err)

	w := newFakeWriter()
	w.histFlaky = 1

	res := Apply(context.Background(), w, run, history.NewTracker(), applyOpts())
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, res.History)
	assert.Empty(t, res.HistoryFailures)
	require.Len(t, w.history, 1)
	assert.Equal(t, "t1", w.history[0].ProductID)
}

func TestApply_HistoryFailureDoesNotFailProduct(t *testing.T) {
	run, err := testEngine().Compute(context.Background(), []model.ProductRecord{testium("t1", 1000)})
	require.NoError(t, err)

	w := newFakeWriter()
	w.histFail = true

	res := Apply(context.Background(), w, run, history.NewTracker(), applyOpts())
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, 0, res.History)
	require.Len(t, res.HistoryFailures, 1)
	assert.Equal(t, "t1", res.HistoryFailures[0].ProductID)
	assert.Equal(t, "Testium t1", res.HistoryFailures[0].ProductName)
	assert.NotEmpty(t, res.HistoryFailures[0].Error)
}

func TestApply_NothingToDo(t *testing.T) {
	res := Apply(context.Background(), newFakeWriter(), &RunResult{}, history.NewTracker(), applyOpts())
	assert.Equal(t, ApplyResult{}, res)
}

func TestApply_RateLimited(t *testing.T) {
	var products []model.ProductRecord
	for i := range 3 {
		products = append(products, testium(fmt.Sprintf("p%d", i), 1000+float64(i)))
	}
	run, err := testEngine().Compute(context.Background(), products)
	require.NoError(t, err)

	opts := applyOpts()
	opts.RatePerSec = 1000
	res := Apply(context.Background(), newFakeWriter(), run, history.NewTracker(), opts)
	assert.Equal(t, 3, res.Succeeded)
}
