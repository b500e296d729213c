package ranker

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/tier-ranker/internal/model"
	"github.com/sells-group/tier-ranker/internal/tables"
)

// Options tunes an Engine.
type Options struct {
	Trim        Trim
	Concurrency int // parallel ingredient groups; <= 0 means 1
	Now         func() time.Time
}

// Engine computes tier ranks for a batch of products. It holds only immutable
// tables and options, so one Engine may serve concurrent runs.
type Engine struct {
	tables *tables.Tables
	opts   Options
}

// NewEngine creates an Engine over the given lookup tables.
func NewEngine(t *tables.Tables, opts Options) *Engine {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{tables: t, opts: opts}
}

// ProductResult is the computed outcome for one ranked product.
type ProductResult struct {
	ProductID   string             `json:"product_id"`
	ProductName string             `json:"product_name"`
	Ingredient  string             `json:"ingredient"`
	Category    string             `json:"category"`
	Metrics     ProductMetrics     `json:"-"`
	Before      *model.TierRatings `json:"before,omitempty"`
	After       model.TierRatings  `json:"after"`
	Scores      model.Scores       `json:"scores"`
	Changed     bool               `json:"changed"`
}

// Update returns the wholesale write for this result.
func (r ProductResult) Update(at time.Time) model.RatingUpdate {
	return model.RatingUpdate{
		ProductID:    r.ProductID,
		TierRatings:  r.After,
		Scores:       r.Scores,
		CalculatedAt: at,
	}
}

// RunResult is the outcome of one Compute call.
type RunResult struct {
	StartedAt  time.Time        `json:"started_at"`
	Products   []ProductResult  `json:"products"`
	Skipped    []SkippedProduct `json:"skipped"`
	GroupCount int              `json:"group_count"`
}

// UpdatesNeeded returns the results whose stored ratings differ from the computed ones.
func (r *RunResult) UpdatesNeeded() []ProductResult {
	var out []ProductResult
	for _, p := range r.Products {
		if p.Changed {
			out = append(out, p)
		}
	}
	return out
}

// Compute extracts metrics, groups products by primary ingredient and ranks
// every group in parallel. It never writes; the result is a pure function of
// products and the engine's tables.
func (e *Engine) Compute(ctx context.Context, products []model.ProductRecord) (*RunResult, error) {
	log := zap.L().With(zap.String("component", "ranker"))

	run := &RunResult{StartedAt: e.opts.Now()}
	records := make(map[string]*model.ProductRecord, len(products))

	metrics := make([]ProductMetrics, 0, len(products))
	for i := range products {
		p := &products[i]
		m, skip := Extract(e.tables, p)
		if skip != nil {
			log.Warn("skipping product", zap.String("product_id", skip.ProductID), zap.String("reason", skip.Reason))
			run.Skipped = append(run.Skipped, *skip)
			continue
		}
		records[p.ID] = p
		metrics = append(metrics, m)
	}

	groups := GroupByIngredient(metrics)
	run.GroupCount = len(groups)

	// One slot per group; goroutines never share a slot.
	slots := make([][]ProductResult, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)
	for i, grp := range groups {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			slots[i] = e.rankGroup(grp, records)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "ranker: compute")
	}

	for _, s := range slots {
		run.Products = append(run.Products, s...)
	}
	sort.SliceStable(run.Products, func(i, j int) bool {
		return run.Products[i].ProductID < run.Products[j].ProductID
	})

	log.Info("rank computation complete",
		zap.Int("products", len(products)),
		zap.Int("ranked", len(run.Products)),
		zap.Int("skipped", len(run.Skipped)),
		zap.Int("groups", run.GroupCount),
		zap.Int("updates_needed", len(run.UpdatesNeeded())),
	)
	return run, nil
}

// rankGroup ranks every member of one ingredient group against its peers.
func (e *Engine) rankGroup(g IngredientGroup, records map[string]*model.ProductRecord) []ProductResult {
	prices := NewDistribution(g.values(func(m ProductMetrics) float64 { return m.Price }), e.opts.Trim)
	costs := NewDistribution(g.values(func(m ProductMetrics) float64 { return m.CostPerUnit }), e.opts.Trim)
	content := newContentEvaluator(e.tables, g, e.opts.Trim)
	weights := e.tables.WeightsFor(g.Category)

	out := make([]ProductResult, 0, len(g.Members))
	for _, m := range g.Members {
		agg := Aggregate(AxisInput{
			Price:             model.RankFromScore(LowerIsBetter(prices.Percentile(m.Price))),
			CostEffectiveness: model.RankFromScore(LowerIsBetter(costs.Percentile(m.CostPerUnit))),
			Content:           content.Rank(m.DailyAmount),
			EvidenceScore:     m.EvidenceScore,
			SafetyScore:       m.SafetyScore,
			ReferenceCount:    m.ReferenceCount,
			WarningCount:      m.WarningCount,
		}, weights)

		res := ProductResult{
			ProductID:   m.ProductID,
			ProductName: m.ProductName,
			Ingredient:  g.Ingredient,
			Category:    g.Category,
			Metrics:     m,
			After:       agg.Ratings,
			Scores:      agg.Scores,
		}
		if rec, ok := records[m.ProductID]; ok && rec.TierRatings != nil {
			before := *rec.TierRatings
			res.Before = &before
			res.Changed = before != agg.Ratings || rec.Scores == nil || *rec.Scores != agg.Scores
		} else {
			res.Changed = true
		}
		out = append(out, res)
	}
	return out
}
