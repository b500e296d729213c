package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertSpec describes a bulk upsert into one table.
type UpsertSpec struct {
	Table      string   // optionally schema-qualified
	Columns    []string // columns supplied for every row
	Key        []string // unique constraint columns
	UpdateCols []string // updated on conflict; nil means every non-key column
}

func (s UpsertSpec) updateCols() []string {
	if s.UpdateCols != nil {
		return s.UpdateCols
	}
	key := make(map[string]bool, len(s.Key))
	for _, k := range s.Key {
		key[k] = true
	}
	var cols []string
	for _, c := range s.Columns {
		if !key[c] {
			cols = append(cols, c)
		}
	}
	return cols
}

// BulkUpsert COPYs rows into a transaction-scoped temp table and merges them
// into the target with INSERT ... ON CONFLICT DO UPDATE. Columns not listed
// in the UpsertSpec keep their stored values.
func BulkUpsert(ctx context.Context, pool Pool, spec UpsertSpec, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(spec.Columns) == 0 {
		return 0, eris.New("db: upsert: no columns specified")
	}
	if len(spec.Key) == 0 {
		return 0, eris.New("db: upsert: no conflict key specified")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: upsert: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	staging := "_staging_" + strings.ReplaceAll(spec.Table, ".", "_")
	stagingID := pgx.Identifier{staging}

	if _, err := tx.Exec(ctx, fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		stagingID.Sanitize(), QualifiedName(spec.Table),
	)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: create staging table for %s", spec.Table)
	}

	if _, err := tx.CopyFrom(ctx, stagingID, spec.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: copy into staging table for %s", spec.Table)
	}

	sets := make([]string, 0, len(spec.Columns))
	for _, c := range spec.updateCols() {
		id := pgx.Identifier{c}.Sanitize()
		sets = append(sets, id+" = EXCLUDED."+id)
	}
	action := "DO NOTHING"
	if len(sets) > 0 {
		action = "DO UPDATE SET " + strings.Join(sets, ", ")
	}

	cols := QuoteColumns(spec.Columns)
	tag, err := tx.Exec(ctx, fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) %s",
		QualifiedName(spec.Table), cols, cols, stagingID.Sanitize(), QuoteColumns(spec.Key), action,
	))
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert: merge into %s", spec.Table)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: upsert: commit tx")
	}
	return tag.RowsAffected(), nil
}

// QualifiedName quotes a table name that may carry a schema prefix.
func QualifiedName(table string) string {
	if schema, name, ok := strings.Cut(table, "."); ok {
		return pgx.Identifier{schema, name}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

// QuoteColumns quotes and comma-joins column names.
func QuoteColumns(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
