package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/product-scorer/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetScore_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT product_id, overall_score, .* FROM scores WHERE product_id = \$1`).
		WithArgs("unknown").
		WillReturnError(pgx.ErrNoRows)

	rec, err := s.GetScore(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetScore_QueryError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM scores WHERE product_id = \$1`).
		WithArgs("p-1").
		WillReturnError(fmt.Errorf("connection reset"))

	rec, err := s.GetScore(context.Background(), "p-1")
	require.Error(t, err)
	assert.Nil(t, rec)
	assert.Contains(t, err.Error(), "get score p-1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetScore_Found(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows(scoreColumns).AddRow(
		"p-1", 81, 30, 25, 14, 12, "A",
		[]byte(`["Enroll the listing in Prime fulfillment"]`), []byte(`[]`), []byte(`["Strong proven demand"]`),
		0.9, baseTime, baseTime,
	)
	mock.ExpectQuery(`FROM scores WHERE product_id = \$1`).WithArgs("p-1").WillReturnRows(rows)

	rec, err := s.GetScore(context.Background(), "p-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 81, rec.OverallScore)
	assert.Equal(t, model.TierA, rec.Tier)
	assert.Equal(t, model.ScoreBreakdown{Demand: 30, Price: 25, Content: 14, Market: 12}, rec.Breakdown)
	assert.Equal(t, []string{"Enroll the listing in Prime fulfillment"}, rec.Recommendations)
	assert.Empty(t, rec.RiskFactors)
	assert.Equal(t, baseTime, rec.ScoredAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetFeatureVector_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM feature_vectors WHERE product_id = \$1`).
		WithArgs("unknown").
		WillReturnError(pgx.ErrNoRows)

	fv, err := s.GetFeatureVector(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Nil(t, fv)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetCatalogEntry_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT product, price, storefront FROM products WHERE id = \$1`).
		WithArgs("unknown").
		WillReturnError(pgx.ErrNoRows)

	e, err := s.GetCatalogEntry(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Nil(t, e)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertScore(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO scores .* ON CONFLICT \(product_id\) DO UPDATE SET overall_score = excluded.overall_score`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.UpsertScore(context.Background(), testScore("p-1", 70, model.TierB, baseTime))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertAnalysis_ScoreWriteFails(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO feature_vectors`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO scores`).
		WillReturnError(fmt.Errorf("deadlock detected"))

	err := UpsertAnalysis(context.Background(), s, testVector("p-1"), testScore("p-1", 70, model.TierB, baseTime))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert score p-1")
	// The vector write happened and was not rolled back.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendAnalysisLog(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO analysis_log \(id, product_id, previous_score`).
		WithArgs("log-1", "p-1", (*int)(nil), ptrInt(70), (*int)(nil), int64(15), "cli", (*string)(nil), baseTime).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.AppendAnalysisLog(context.Background(), model.AnalysisLogEntry{
		ID: "log-1", ProductID: "p-1", NewScore: ptrInt(70),
		ProcessingTimeMs: 15, TriggeredBy: "cli", CreatedAt: baseTime,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertProducts(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "staging_products"`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"staging_products"}, productColumns).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "products" .* ON CONFLICT \("id"\)`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := s.UpsertProducts(context.Background(), []model.CatalogEntry{testEntry("p-1"), testEntry("p-2")})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertProducts_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	n, err := s.UpsertProducts(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ScoreStats(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	last := baseTime.Add(time.Hour)
	mock.ExpectQuery(`SELECT COUNT\(\*\), COALESCE\(AVG\(overall_score\), 0\)::float8, MAX\(scored_at\) FROM scores`).
		WillReturnRows(pgxmock.NewRows([]string{"count", "avg", "max"}).AddRow(3, 74.5, &last))
	mock.ExpectQuery(`SELECT score_tier, COUNT\(\*\) FROM scores GROUP BY score_tier`).
		WillReturnRows(pgxmock.NewRows([]string{"score_tier", "count"}).
			AddRow("A", 1).
			AddRow("B", 2))

	stats, err := s.ScoreStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Count)
	assert.InDelta(t, 74.5, stats.AverageScore, 0.001)
	assert.Equal(t, 1, stats.TierCounts[model.TierA])
	assert.Equal(t, 2, stats.TierCounts[model.TierB])
	assert.Equal(t, 0, stats.TierCounts[model.TierD])
	require.NotNil(t, stats.LastScoredAt)
	assert.Equal(t, last, *stats.LastScoredAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRescoreCandidates_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM products p LEFT JOIN scores s`).
		WillReturnError(fmt.Errorf("relation \"products\" does not exist"))

	_, err := s.ListRescoreCandidates(context.Background(), baseTime, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list rescore candidates")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRescoreCandidates(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM products p LEFT JOIN scores s`).
		WithArgs(baseTime, 5).
		WillReturnRows(pgxmock.NewRows([]string{"product", "price", "storefront"}).
			AddRow([]byte(`{"id":"p-1","title":"One","source":"amazon"}`), []byte(`{"is_prime":true}`), []byte(nil)))

	got, err := s.ListRescoreCandidates(context.Background(), baseTime, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p-1", got[0].Product.ID)
	assert.Equal(t, model.SourceImport, got[0].Product.SourceKind())
	require.NotNil(t, got[0].Price)
	assert.True(t, got[0].Price.IsPrime)
	assert.Nil(t, got[0].Storefront)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS products`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
