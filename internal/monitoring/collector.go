package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tier-ranker/internal/history"
	"github.com/sells-group/tier-ranker/internal/integrity"
	"github.com/sells-group/tier-ranker/internal/model"
	"github.com/sells-group/tier-ranker/internal/store"
)

// Source is the read-only slice of store.Store the collector needs.
type Source interface {
	ListProducts(ctx context.Context) ([]model.ProductRecord, error)
	ListHistory(ctx context.Context, filter store.HistoryFilter) ([]model.RankChangeHistory, error)
}

// Snapshot is a point-in-time view of stored rank health.
type Snapshot struct {
	Products     int                              `json:"products"`
	Invalid      int                              `json:"invalid"`
	Integrity    []integrity.IntegrityCheckResult `json:"integrity"`
	Anomalies    []history.AnomalyReport          `json:"anomalies"`
	LookbackDays int                              `json:"lookback_days"`
	CollectedAt  time.Time                        `json:"collected_at"`
}

// Collector runs the integrity checker and anomaly detector over stored data.
type Collector struct {
	src          Source
	checker      *integrity.Checker
	detector     *history.Detector
	lookbackDays int
	now          func() time.Time
}

// NewCollector creates a collector. lookbackDays <= 0 scans the full history.
func NewCollector(src Source, checker *integrity.Checker, detector *history.Detector, lookbackDays int) *Collector {
	return &Collector{
		src:          src,
		checker:      checker,
		detector:     detector,
		lookbackDays: lookbackDays,
		now:          time.Now,
	}
}

// Collect gathers a snapshot. It only reads.
func (c *Collector) Collect(ctx context.Context) (*Snapshot, error) {
	now := c.now().UTC()
	snap := &Snapshot{
		LookbackDays: c.lookbackDays,
		CollectedAt:  now,
	}

	products, err := c.src.ListProducts(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list products")
	}
	snap.Products = len(products)
	snap.Integrity = c.checker.CheckAll(products)
	for _, r := range snap.Integrity {
		if !r.IsValid {
			snap.Invalid++
		}
	}

	filter := store.HistoryFilter{}
	if c.lookbackDays > 0 {
		filter.Since = now.AddDate(0, 0, -c.lookbackDays)
	}
	entries, err := c.src.ListHistory(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list history")
	}
	snap.Anomalies = c.detector.DetectAll(entries)

	return snap, nil
}
