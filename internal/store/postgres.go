package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tier-ranker/internal/db"
	"github.com/sells-group/tier-ranker/internal/model"
)

// migrationLockID serializes concurrent Migrate calls across processes.
const migrationLockID = 7243001

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, maxConns int32) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	if maxConns > 0 {
		pgxCfg.MaxConns = maxConns
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. The caller owns its lifecycle.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Migrate applies every embedded Postgres migration not yet recorded, holding
// an advisory lock so overlapping deploys do not race.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	log := zap.L().With(zap.String("component", "store.migrate"))

	if _, err := s.pool.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return eris.Wrap(err, "postgres: acquire migration advisory lock")
	}
	defer func() {
		if _, err := s.pool.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID); err != nil {
			log.Warn("postgres: failed to release migration advisory lock", zap.Error(err))
		}
	}()

	if _, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
	filename   TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`); err != nil {
		return eris.Wrap(err, "postgres: ensure migration table")
	}

	rows, err := s.pool.Query(ctx, "SELECT filename FROM schema_migrations")
	if err != nil {
		return eris.Wrap(err, "postgres: query applied migrations")
	}
	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return eris.Wrap(err, "postgres: scan migration row")
		}
		applied[name] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return eris.Wrap(err, "postgres: iterate migrations")
	}

	files, err := migrations("postgres")
	if err != nil {
		return err
	}
	for _, m := range files {
		if applied[m.name] {
			continue
		}
		log.Info("applying migration", zap.String("file", m.name))

		if _, err := s.pool.Exec(ctx, m.sql); err != nil {
			return eris.Wrapf(err, "postgres: apply migration %s", m.name)
		}
		if _, err := s.pool.Exec(ctx,
			"INSERT INTO schema_migrations (filename, applied_at) VALUES ($1, now())", m.name,
		); err != nil {
			return eris.Wrapf(err, "postgres: record migration %s", m.name)
		}
	}
	return nil
}

func (s *PostgresStore) ListProducts(ctx context.Context) ([]model.ProductRecord, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+strings.Join(productColumns, ", ")+" FROM products WHERE availability = $1 ORDER BY id",
		model.AvailabilityInStock,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list products")
	}
	defer rows.Close()

	var out []model.ProductRecord
	for rows.Next() {
		p, err := scanPostgresProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate products")
}

func (s *PostgresStore) GetProduct(ctx context.Context, id string) (*model.ProductRecord, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+strings.Join(productColumns, ", ")+" FROM products WHERE id = $1", id)
	p, err := scanPostgresProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get product %s", id)
	}
	return p, err
}

func scanPostgresProduct(row scannable) (*model.ProductRecord, error) {
	var r productRow
	if err := row.Scan(
		&r.ID, &r.Name, &r.Price, &r.ServingsPerContainer, &r.ServingsPerDay, &r.Availability,
		&r.Ingredients, &r.ReferenceCount, &r.WarningCount, &r.EvidenceLevel,
		&r.TierRatings, &r.Scores, &r.LastCalculatedAt, &r.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan product")
	}
	return r.decode()
}

// UpsertProducts bulk-loads catalog rows. Rank columns are left untouched.
func (s *PostgresStore) UpsertProducts(ctx context.Context, products []model.ProductRecord) (int64, error) {
	rows := make([][]any, 0, len(products))
	for i := range products {
		r, err := encodeProduct(&products[i])
		if err != nil {
			return 0, err
		}
		rows = append(rows, []any{
			r.ID, r.Name, r.Price, r.ServingsPerContainer, r.ServingsPerDay, r.Availability,
			r.Ingredients, r.ReferenceCount, r.WarningCount, r.EvidenceLevel, r.UpdatedAt,
		})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertSpec{
		Table:   "products",
		Columns: importColumns,
		Key:     []string{"id"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert products")
	}
	return n, nil
}

// ReplaceRatings overwrites tier ratings, scores and the calculation time in one statement.
func (s *PostgresStore) ReplaceRatings(ctx context.Context, u model.RatingUpdate) error {
	ratings, scores, err := ratingsJSON(u)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		"UPDATE products SET tier_ratings = $1, scores = $2, last_calculated_at = $3 WHERE id = $4",
		ratings, scores, u.CalculatedAt.UTC(), u.ProductID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: replace ratings %s", u.ProductID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: replace ratings %s", u.ProductID)
	}
	return nil
}

func (s *PostgresStore) AppendHistory(ctx context.Context, h model.RankChangeHistory) error {
	r, err := encodeHistory(h)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		"INSERT INTO rank_history ("+strings.Join(historyColumns, ", ")+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)",
		r.ID, r.ProductID, r.ProductName, r.Timestamp, r.Source, r.Confidence,
		r.UserID, r.Reason, r.Changes, r.After,
	)
	return eris.Wrapf(err, "postgres: append history %s", h.ID)
}

func (s *PostgresStore) ListHistory(ctx context.Context, filter HistoryFilter) ([]model.RankChangeHistory, error) {
	q, args := historyQuery(filter,
		func(n int) string { return fmt.Sprintf("$%d", n) },
		func(t time.Time) any { return t.UTC() },
	)
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list history")
	}
	defer rows.Close()

	var out []model.RankChangeHistory
	for rows.Next() {
		var r historyRow
		if err := rows.Scan(&r.ID, &r.ProductID, &r.ProductName, &r.Timestamp, &r.Source, &r.Confidence,
			&r.UserID, &r.Reason, &r.Changes, &r.After); err != nil {
			return nil, eris.Wrap(err, "postgres: scan history")
		}
		h, err := r.decode()
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate history")
}
