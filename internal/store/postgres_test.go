package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tier-ranker/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresWithPool(mock), mock
}

func productRows(calc *time.Time, ratings []byte) *pgxmock.Rows {
	return pgxmock.NewRows(productColumns).AddRow(
		"p1", "Vitamin C 1000", 1980.0, 60.0, 2.0, model.AvailabilityInStock,
		[]byte(`[{"ingredient_id":"ing-c","name":"ビタミンC","amount_per_serving":500,"evidence_level":"A"}]`),
		6, 0, "B",
		ratings, []byte(nil), calc, time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC),
	)
}

func TestPostgresStore_GetProduct(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	calc := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
	ratings := []byte(`{"price_rank":"A","cost_effectiveness_rank":"B","content_rank":"S","evidence_rank":"S","safety_rank":"S","overall_rank":"S"}`)

	mock.ExpectQuery(`SELECT id, name, price, .* FROM products WHERE id = \$1`).
		WithArgs("p1").
		WillReturnRows(productRows(&calc, ratings))

	p, err := s.GetProduct(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "Vitamin C 1000", p.Name)
	require.Len(t, p.Ingredients, 1)
	assert.InDelta(t, 500, p.Ingredients[0].AmountPerServing, 0.001)
	require.NotNil(t, p.TierRatings)
	assert.Equal(t, model.RankS, p.TierRatings.OverallRank)
	assert.Nil(t, p.Scores)
	assert.Equal(t, calc, *p.LastCalculatedAt)
	assert.Equal(t, model.RankB, p.LegacyEvidenceLevel)
	assert.Equal(t, model.RatingsVersionTiered, p.Version())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetProduct_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM products WHERE id = \$1`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetProduct(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListProducts(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM products WHERE availability = \$1 ORDER BY id`).
		WithArgs(model.AvailabilityInStock).
		WillReturnRows(productRows(nil, nil))

	products, err := s.ListProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Nil(t, products[0].TierRatings)
	assert.Nil(t, products[0].LastCalculatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReplaceRatings(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	u := model.RatingUpdate{ProductID: "p1", CalculatedAt: time.Now()}

	mock.ExpectExec(`UPDATE products SET tier_ratings = \$1, scores = \$2, last_calculated_at = \$3 WHERE id = \$4`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "p1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, s.ReplaceRatings(context.Background(), u))

	mock.ExpectExec(`UPDATE products SET tier_ratings`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "gone").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	u.ProductID = "gone"
	err := s.ReplaceRatings(context.Background(), u)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertProducts(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_staging_products"`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_staging_products"}, importColumns).
		WillReturnResult(3)
	mock.ExpectExec(`INSERT INTO "products" .* ON CONFLICT \("id"\) DO UPDATE SET`).
		WillReturnResult(pgxmock.NewResult("INSERT", 3))
	mock.ExpectCommit()

	n, err := s.UpsertProducts(context.Background(), fixtureProducts())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestPostgresStore_AppendHistory(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	h := historyEntry("h1", "p1", time.Now(), model.SourceManual)

	mock.ExpectExec(`INSERT INTO rank_history`).
		WithArgs("h1", "p1", "Product p1", pgxmock.AnyArg(), "manual", 0.95, "", "", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.AppendHistory(context.Background(), h))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListHistory(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ts := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM rank_history WHERE product_id = \$1 AND source = \$2 ORDER BY ts, id LIMIT \$3`).
		WithArgs("p1", "manual", 5).
		WillReturnRows(pgxmock.NewRows(historyColumns).AddRow(
			"h1", "p1", "Product p1", ts, "manual", 0.45, "editor-7", "override",
			[]byte(`[{"field":"overallRank","old_value":"B","new_value":"S","delta":2}]`),
			[]byte(`{"overall_rank":"S"}`),
		))

	out, err := s.ListHistory(context.Background(), HistoryFilter{ProductID: "p1", Source: model.SourceManual, Limit: 5})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, model.SourceManual, out[0].Source)
	assert.Equal(t, 2, out[0].Changes[0].Delta)
	assert.Equal(t, model.RankS, out[0].After.OverallRank)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`SELECT pg_advisory_lock\(\$1\)`).WithArgs(migrationLockID).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectQuery(`SELECT filename FROM schema_migrations`).
		WillReturnRows(pgxmock.NewRows([]string{"filename"}).AddRow("001_products.sql"))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS rank_history`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectExec(`INSERT INTO schema_migrations`).WithArgs("002_rank_history.sql").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`SELECT pg_advisory_unlock\(\$1\)`).WithArgs(migrationLockID).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
