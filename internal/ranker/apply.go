package ranker

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/tier-ranker/internal/history"
	"github.com/sells-group/tier-ranker/internal/model"
	"github.com/sells-group/tier-ranker/internal/resilience"
)

// Writer is the persistence capability apply mode needs.
type Writer interface {
	ReplaceRatings(ctx context.Context, u model.RatingUpdate) error
	AppendHistory(ctx context.Context, h model.RankChangeHistory) error
}

// ApplyOptions tunes write-back.
type ApplyOptions struct {
	Retry       resilience.RetryConfig
	RatePerSec  float64 // 0 disables throttling
	Concurrency int
}

// WriteFailure is one product whose ratings could not be written.
type WriteFailure struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Error       string `json:"error"`
}

// ApplyResult tallies a write-back pass.
type ApplyResult struct {
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Failures  []WriteFailure `json:"failures,omitempty"`
	History   int            `json:"history_entries"`

	// HistoryFailures are products whose ranks were written but whose history entry was not.
	HistoryFailures []WriteFailure `json:"history_failures,omitempty"`
	Duration        time.Duration  `json:"duration"`
}

// Apply writes every changed product independently. A failed product is
// counted and logged and never stops the others. Each successful write
// appends an auto-calculation history entry.
func Apply(ctx context.Context, w Writer, run *RunResult, tracker *history.Tracker, opts ApplyOptions) ApplyResult {
	log := zap.L().With(zap.String("component", "ranker.apply"))
	start := time.Now()

	updates := run.UpdatesNeeded()
	if len(updates) == 0 {
		log.Info("no rank updates needed")
		return ApplyResult{}
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	var limiter *rate.Limiter
	if opts.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), 1)
	}

	var (
		succeeded, failed, written atomic.Int64
		mu                         sync.Mutex
		failures, histFailures     []WriteFailure
	)
	fail := func(p ProductResult, err error) {
		failed.Add(1)
		mu.Lock()
		failures = append(failures, WriteFailure{ProductID: p.ProductID, ProductName: p.ProductName, Error: err.Error()})
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, p := range updates {
		g.Go(func() error {
			plog := log.With(zap.String("product_id", p.ProductID))

			if limiter != nil {
				if err := limiter.Wait(gctx); err != nil {
					fail(p, err)
					return nil
				}
			}

			update := p.Update(time.Now().UTC())
			err := resilience.Do(gctx, opts.Retry.For("replace_ratings", p.ProductID), func(ctx context.Context) error {
				return w.ReplaceRatings(ctx, update)
			})
			if err != nil {
				fail(p, err)
				plog.Error("rank write failed", zap.Error(err))
				return nil // don't abort batch on individual failure
			}
			succeeded.Add(1)

			var before model.TierRatings
			if p.Before != nil {
				before = *p.Before
			}
			entry := tracker.RecordRankChange(before, p.After, model.SourceAutoCalculation, history.ChangeMeta{
				ProductID:   p.ProductID,
				ProductName: p.ProductName,
				Timestamp:   update.CalculatedAt,
			})
			if len(entry.Changes) == 0 {
				return nil
			}
			err = resilience.Do(gctx, opts.Retry.For("append_history", p.ProductID), func(ctx context.Context) error {
				return w.AppendHistory(ctx, entry)
			})
			if err != nil {
				plog.Error("history append failed after ranks were written", zap.Error(err))
				mu.Lock()
				histFailures = append(histFailures, WriteFailure{ProductID: p.ProductID, ProductName: p.ProductName, Error: err.Error()})
				mu.Unlock()
				return nil
			}
			written.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(failures, func(i, j int) bool { return failures[i].ProductID < failures[j].ProductID })
	sort.Slice(histFailures, func(i, j int) bool { return histFailures[i].ProductID < histFailures[j].ProductID })

	res := ApplyResult{
		Succeeded: int(succeeded.Load()),
		Failed:    int(failed.Load()),
		Failures:  failures,
		History:   int(written.Load()),

		HistoryFailures: histFailures,
		Duration:        time.Since(start),
	}
	log.Info("rank write-back complete",
		zap.Int("succeeded", res.Succeeded),
		zap.Int("failed", res.Failed),
		zap.Int("history_entries", res.History),
		zap.Int("history_failures", len(res.HistoryFailures)),
		zap.Duration("duration", res.Duration),
	)
	return res
}
