package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/product-scorer/internal/db"
	"github.com/sells-group/product-scorer/internal/features"
	"github.com/sells-group/product-scorer/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var (
	pgUpsertVector = upsertQuery("feature_vectors", vectorColumns, "product_id", dollar)
	pgUpsertScore  = upsertQuery("scores", scoreColumns, "product_id", dollar)
	pgInsertLog    = insertQuery("analysis_log", logColumns, dollar)
	pgGetScore     = `SELECT ` + join(scoreColumns) + ` FROM scores WHERE product_id = $1`
	pgGetVector    = `SELECT ` + join(vectorColumns) + ` FROM feature_vectors WHERE product_id = $1`
)

// preparedStatements lists queries to prepare on each new connection. These
// are the per-product statements every analysis runs.
var preparedStatements = map[string]string{
	"upsert_feature_vector": pgUpsertVector,
	"upsert_score":          pgUpsertScore,
	"insert_analysis_log":   pgInsertLog,
	"get_score":             pgGetScore,
	"get_feature_vector":    pgGetVector,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				// Tables may not exist before the first migrate.
				zap.L().Debug("postgres: skip prepare", zap.String("statement", name), zap.Error(err))
			}
		}
		return nil
	}

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

const postgresMigration = `
CREATE TABLE IF NOT EXISTS products (
	id         TEXT PRIMARY KEY,
	source     TEXT NOT NULL DEFAULT 'unknown',
	product    JSONB NOT NULL,
	price      JSONB,
	storefront JSONB,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS feature_vectors (
	product_id                  TEXT PRIMARY KEY,
	source                      TEXT NOT NULL,
	rating_score                DOUBLE PRECISION NOT NULL,
	review_volume_score         DOUBLE PRECISION NOT NULL,
	demand_tier_score           DOUBLE PRECISION NOT NULL,
	price_competitiveness_score DOUBLE PRECISION NOT NULL,
	bsr_competitiveness_score   DOUBLE PRECISION NOT NULL,
	prime_eligibility_score     DOUBLE PRECISION NOT NULL,
	content_richness_score      DOUBLE PRECISION NOT NULL,
	category_specificity_score  DOUBLE PRECISION NOT NULL,
	brand_recognition_score     DOUBLE PRECISION NOT NULL,
	data_freshness_score        DOUBLE PRECISION NOT NULL,
	market_saturation_score     DOUBLE PRECISION NOT NULL,
	demand_strength             DOUBLE PRECISION NOT NULL,
	price_advantage             DOUBLE PRECISION NOT NULL,
	content_quality             DOUBLE PRECISION NOT NULL,
	market_opportunity          DOUBLE PRECISION NOT NULL,
	feature_confidence          DOUBLE PRECISION NOT NULL,
	extracted_at                TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS scores (
	product_id         TEXT PRIMARY KEY,
	overall_score      INTEGER NOT NULL CHECK (overall_score BETWEEN 0 AND 100),
	demand_score       INTEGER NOT NULL,
	price_score        INTEGER NOT NULL,
	content_score      INTEGER NOT NULL,
	market_score       INTEGER NOT NULL,
	score_tier         TEXT NOT NULL,
	recommendations    JSONB NOT NULL DEFAULT '[]',
	risk_factors       JSONB NOT NULL DEFAULT '[]',
	opportunities      JSONB NOT NULL DEFAULT '[]',
	feature_confidence DOUBLE PRECISION NOT NULL,
	scored_at          TIMESTAMPTZ NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scores_overall ON scores(overall_score DESC);
CREATE INDEX IF NOT EXISTS idx_scores_tier ON scores(score_tier);
CREATE INDEX IF NOT EXISTS idx_scores_scored_at ON scores(scored_at);

CREATE TABLE IF NOT EXISTS analysis_log (
	id                 TEXT PRIMARY KEY,
	product_id         TEXT NOT NULL,
	previous_score     INTEGER,
	new_score          INTEGER,
	score_change       INTEGER,
	processing_time_ms BIGINT NOT NULL DEFAULT 0,
	triggered_by       TEXT NOT NULL DEFAULT '',
	error_message      TEXT,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_analysis_log_product ON analysis_log(product_id, created_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) UpsertFeatureVector(ctx context.Context, fv features.FeatureVector) error {
	_, err := s.pool.Exec(ctx, pgUpsertVector, vectorArgs(fv)...)
	return eris.Wrapf(err, "postgres: upsert feature vector %s", fv.ProductID)
}

func (s *PostgresStore) GetFeatureVector(ctx context.Context, productID string) (*features.FeatureVector, error) {
	fv, err := scanFeatureVector(s.pool.QueryRow(ctx, pgGetVector, productID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get feature vector %s", productID)
	}
	return fv, nil
}

func (s *PostgresStore) UpsertScore(ctx context.Context, rec model.ScoreRecord) error {
	args, err := scoreArgs(rec)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, pgUpsertScore, args...)
	return eris.Wrapf(err, "postgres: upsert score %s", rec.ProductID)
}

func (s *PostgresStore) GetScore(ctx context.Context, productID string) (*model.ScoreRecord, error) {
	rec, err := scanScoreRecord(s.pool.QueryRow(ctx, pgGetScore, productID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get score %s", productID)
	}
	return rec, nil
}

func (s *PostgresStore) TopScores(ctx context.Context, limit int) ([]model.ScoreRecord, error) {
	return s.listScores(ctx, "top scores",
		`SELECT `+join(scoreColumns)+` FROM scores ORDER BY overall_score DESC, scored_at DESC LIMIT $1`,
		listLimit(limit))
}

func (s *PostgresStore) ScoresByTier(ctx context.Context, tier model.Tier, limit int) ([]model.ScoreRecord, error) {
	return s.listScores(ctx, "scores by tier",
		`SELECT `+join(scoreColumns)+` FROM scores WHERE score_tier = $1 ORDER BY overall_score DESC, scored_at DESC LIMIT $2`,
		string(tier), listLimit(limit))
}

func (s *PostgresStore) listScores(ctx context.Context, op, query string, args ...any) ([]model.ScoreRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: %s", op)
	}
	defer rows.Close()

	var out []model.ScoreRecord
	for rows.Next() {
		rec, err := scanScoreRecord(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: scan %s", op)
		}
		out = append(out, *rec)
	}
	return out, eris.Wrapf(rows.Err(), "postgres: %s iterate", op)
}

func (s *PostgresStore) ScoreStats(ctx context.Context) (*model.ScoreStats, error) {
	stats := newScoreStats()

	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(AVG(overall_score), 0)::float8, MAX(scored_at) FROM scores`,
	).Scan(&stats.Count, &stats.AverageScore, &stats.LastScoredAt)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: score stats")
	}

	rows, err := s.pool.Query(ctx, `SELECT score_tier, COUNT(*) FROM scores GROUP BY score_tier`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: tier counts")
	}
	defer rows.Close()
	for rows.Next() {
		var tier string
		var n int
		if err := rows.Scan(&tier, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan tier count")
		}
		stats.TierCounts[model.Tier(tier)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: tier counts iterate")
	}
	return stats, nil
}

func (s *PostgresStore) AppendAnalysisLog(ctx context.Context, entry model.AnalysisLogEntry) error {
	_, err := s.pool.Exec(ctx, pgInsertLog, logArgs(entry)...)
	return eris.Wrapf(err, "postgres: append analysis log %s", entry.ProductID)
}

func (s *PostgresStore) ListAnalysisLog(ctx context.Context, productID string, limit int) ([]model.AnalysisLogEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+join(logColumns)+` FROM analysis_log
		 WHERE ($1 = '' OR product_id = $1)
		 ORDER BY created_at DESC LIMIT $2`,
		productID, listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list analysis log")
	}
	defer rows.Close()

	var out []model.AnalysisLogEntry
	for rows.Next() {
		e, err := scanLogEntry(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan analysis log")
		}
		out = append(out, *e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list analysis log iterate")
}

// UpsertProducts loads catalog entries through a COPY-backed bulk upsert.
func (s *PostgresStore) UpsertProducts(ctx context.Context, entries []model.CatalogEntry) (int64, error) {
	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		row, err := productArgs(e)
		if err != nil {
			return 0, err
		}
		rows = append(rows, row)
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "products",
		Columns:      productColumns,
		ConflictKeys: []string{"id"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert products")
	}
	return n, nil
}

func (s *PostgresStore) GetCatalogEntry(ctx context.Context, productID string) (*model.CatalogEntry, error) {
	e, err := scanCatalogEntry(s.pool.QueryRow(ctx,
		`SELECT product, price, storefront FROM products WHERE id = $1`, productID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get catalog entry %s", productID)
	}
	return e, nil
}

func (s *PostgresStore) ListRescoreCandidates(ctx context.Context, cutoff time.Time, limit int) ([]model.CatalogEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT p.product, p.price, p.storefront
		 FROM products p LEFT JOIN scores s ON s.product_id = p.id
		 WHERE s.scored_at IS NULL OR s.scored_at < $1
		 ORDER BY s.scored_at ASC NULLS FIRST, p.id
		 LIMIT $2`,
		cutoff.UTC(), listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list rescore candidates")
	}
	defer rows.Close()

	var out []model.CatalogEntry
	for rows.Next() {
		e, err := scanCatalogEntry(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan rescore candidate")
		}
		out = append(out, *e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list rescore candidates iterate")
}
