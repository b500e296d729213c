package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tier-ranker/internal/integrity"
	"github.com/sells-group/tier-ranker/internal/ranker"
	"github.com/sells-group/tier-ranker/internal/resilience"
	"github.com/sells-group/tier-ranker/internal/store"
	"github.com/sells-group/tier-ranker/internal/tables"
)

// initStore opens the configured store and applies pending migrations.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "tier.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.MaxConns)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// loadTables reads the configured lookup tables. Failures are fatal to the command.
func loadTables() (*tables.Tables, error) {
	t, err := tables.Load(tables.Paths{
		Weights:    cfg.Tables.WeightsPath,
		Categories: cfg.Tables.CategoriesPath,
		Doses:      cfg.Tables.DosesPath,
		Aliases:    cfg.Tables.AliasesPath,
	})
	if err != nil {
		return nil, eris.Wrap(err, "load tables")
	}
	return t, nil
}

func engineOptions() ranker.Options {
	return ranker.Options{
		Trim:        ranker.Trim{Fraction: cfg.Rank.TrimFraction, MinGroup: cfg.Rank.TrimMinGroup},
		Concurrency: cfg.Rank.Concurrency,
	}
}

func applyOptions() ranker.ApplyOptions {
	return ranker.ApplyOptions{
		Retry:       resilience.FromWriteConfig(cfg.Write),
		RatePerSec:  cfg.Write.RatePerSec,
		Concurrency: cfg.Rank.Concurrency,
	}
}

func integrityOptions() integrity.Options {
	return integrity.Options{StaleAfter: time.Duration(cfg.Rank.StaleAfterDays) * 24 * time.Hour}
}
