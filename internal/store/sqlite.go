package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/tier-ranker/internal/model"
)

// Timestamps are stored as fixed-width UTC text so they sort lexically.
const sqliteTimeLayout = "2006-01-02 15:04:05.000000000"

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas are per connection; a single connection keeps them in force and serialises writers.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func sqliteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseSQLiteTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(sqliteTimeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "sqlite: parse time %q", s)
	}
	return t, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

// Migrate applies every embedded SQLite migration not yet recorded.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	log := zap.L().With(zap.String("component", "store.migrate"))

	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
	filename   TEXT PRIMARY KEY,
	applied_at TEXT NOT NULL
)`); err != nil {
		return eris.Wrap(err, "sqlite: ensure migration table")
	}

	applied := make(map[string]bool)
	rows, err := s.db.QueryContext(ctx, "SELECT filename FROM schema_migrations")
	if err != nil {
		return eris.Wrap(err, "sqlite: query applied migrations")
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close() //nolint:errcheck
			return eris.Wrap(err, "sqlite: scan migration row")
		}
		applied[name] = true
	}
	rows.Close() //nolint:errcheck

	files, err := migrations("sqlite")
	if err != nil {
		return err
	}
	for _, m := range files {
		if applied[m.name] {
			continue
		}
		log.Info("applying migration", zap.String("file", m.name))

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return eris.Wrap(err, "sqlite: begin migration tx")
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			tx.Rollback() //nolint:errcheck
			return eris.Wrapf(err, "sqlite: apply migration %s", m.name)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (filename, applied_at) VALUES (?, ?)",
			m.name, sqliteTime(time.Now()),
		); err != nil {
			tx.Rollback() //nolint:errcheck
			return eris.Wrapf(err, "sqlite: record migration %s", m.name)
		}
		if err := tx.Commit(); err != nil {
			return eris.Wrapf(err, "sqlite: commit migration %s", m.name)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ListProducts(ctx context.Context) ([]model.ProductRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+strings.Join(productColumns, ", ")+" FROM products WHERE availability = ? ORDER BY id",
		model.AvailabilityInStock,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list products")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ProductRecord
	for rows.Next() {
		p, err := scanSQLiteProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate products")
}

func (s *SQLiteStore) GetProduct(ctx context.Context, id string) (*model.ProductRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+strings.Join(productColumns, ", ")+" FROM products WHERE id = ?", id)
	p, err := scanSQLiteProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get product %s", id)
	}
	return p, err
}

func scanSQLiteProduct(row scannable) (*model.ProductRecord, error) {
	var (
		r          productRow
		ingredient string
		ratings    sql.NullString
		scores     sql.NullString
		calculated sql.NullString
		updated    string
	)
	if err := row.Scan(
		&r.ID, &r.Name, &r.Price, &r.ServingsPerContainer, &r.ServingsPerDay, &r.Availability,
		&ingredient, &r.ReferenceCount, &r.WarningCount, &r.EvidenceLevel,
		&ratings, &scores, &calculated, &updated,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan product")
	}

	r.Ingredients = []byte(ingredient)
	if ratings.Valid {
		r.TierRatings = []byte(ratings.String)
	}
	if scores.Valid {
		r.Scores = []byte(scores.String)
	}
	if calculated.Valid {
		t, err := parseSQLiteTime(calculated.String)
		if err != nil {
			return nil, err
		}
		r.LastCalculatedAt = &t
	}
	t, err := parseSQLiteTime(updated)
	if err != nil {
		return nil, err
	}
	r.UpdatedAt = t

	return r.decode()
}

func (s *SQLiteStore) UpsertProducts(ctx context.Context, products []model.ProductRecord) (int64, error) {
	if len(products) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(importColumns)), ", ")
	sets := make([]string, 0, len(importColumns)-1)
	for _, c := range importColumns[1:] {
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", c, c))
	}
	query := fmt.Sprintf("INSERT INTO products (%s) VALUES (%s) ON CONFLICT(id) DO UPDATE SET %s",
		strings.Join(importColumns, ", "), placeholders, strings.Join(sets, ", "))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert")
	}
	defer stmt.Close() //nolint:errcheck

	var n int64
	for i := range products {
		r, err := encodeProduct(&products[i])
		if err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.Name, r.Price, r.ServingsPerContainer, r.ServingsPerDay, r.Availability,
			string(r.Ingredients), r.ReferenceCount, r.WarningCount, r.EvidenceLevel, sqliteTime(r.UpdatedAt),
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert product %s", r.ID)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert")
	}
	return n, nil
}

// ReplaceRatings overwrites tier ratings, scores and the calculation time in one statement.
func (s *SQLiteStore) ReplaceRatings(ctx context.Context, u model.RatingUpdate) error {
	ratings, scores, err := ratingsJSON(u)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE products SET tier_ratings = ?, scores = ?, last_calculated_at = ? WHERE id = ?",
		string(ratings), string(scores), sqliteTime(u.CalculatedAt), u.ProductID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: replace ratings %s", u.ProductID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: replace ratings %s", u.ProductID)
	}
	return nil
}

func (s *SQLiteStore) AppendHistory(ctx context.Context, h model.RankChangeHistory) error {
	r, err := encodeHistory(h)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO rank_history ("+strings.Join(historyColumns, ", ")+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		r.ID, r.ProductID, r.ProductName, sqliteTime(r.Timestamp), r.Source, r.Confidence,
		r.UserID, r.Reason, string(r.Changes), string(r.After),
	)
	return eris.Wrapf(err, "sqlite: append history %s", h.ID)
}

func (s *SQLiteStore) ListHistory(ctx context.Context, filter HistoryFilter) ([]model.RankChangeHistory, error) {
	q, args := historyQuery(filter,
		func(int) string { return "?" },
		func(t time.Time) any { return sqliteTime(t) },
	)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list history")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.RankChangeHistory
	for rows.Next() {
		var (
			r                     historyRow
			ts, changes, afterRaw string
		)
		if err := rows.Scan(&r.ID, &r.ProductID, &r.ProductName, &ts, &r.Source, &r.Confidence,
			&r.UserID, &r.Reason, &changes, &afterRaw); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan history")
		}
		if r.Timestamp, err = parseSQLiteTime(ts); err != nil {
			return nil, err
		}
		r.Changes, r.After = []byte(changes), []byte(afterRaw)

		h, err := r.decode()
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate history")
}
