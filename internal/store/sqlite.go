package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/product-scorer/internal/features"
	"github.com/sells-group/product-scorer/internal/model"
)

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
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

var (
	liteUpsertVector  = upsertQuery("feature_vectors", vectorColumns, "product_id", question)
	liteUpsertScore   = upsertQuery("scores", scoreColumns, "product_id", question)
	liteUpsertProduct = upsertQuery("products", productColumns, "id", question)
	liteInsertLog     = insertQuery("analysis_log", logColumns, question)
)

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS products (
	id         TEXT PRIMARY KEY,
	source     TEXT NOT NULL DEFAULT 'unknown',
	product    TEXT NOT NULL,
	price      TEXT,
	storefront TEXT,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS feature_vectors (
	product_id                  TEXT PRIMARY KEY,
	source                      TEXT NOT NULL,
	rating_score                REAL NOT NULL,
	review_volume_score         REAL NOT NULL,
	demand_tier_score           REAL NOT NULL,
	price_competitiveness_score REAL NOT NULL,
	bsr_competitiveness_score   REAL NOT NULL,
	prime_eligibility_score     REAL NOT NULL,
	content_richness_score      REAL NOT NULL,
	category_specificity_score  REAL NOT NULL,
	brand_recognition_score     REAL NOT NULL,
	data_freshness_score        REAL NOT NULL,
	market_saturation_score     REAL NOT NULL,
	demand_strength             REAL NOT NULL,
	price_advantage             REAL NOT NULL,
	content_quality             REAL NOT NULL,
	market_opportunity          REAL NOT NULL,
	feature_confidence          REAL NOT NULL,
	extracted_at                DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS scores (
	product_id         TEXT PRIMARY KEY,
	overall_score      INTEGER NOT NULL CHECK (overall_score BETWEEN 0 AND 100),
	demand_score       INTEGER NOT NULL,
	price_score        INTEGER NOT NULL,
	content_score      INTEGER NOT NULL,
	market_score       INTEGER NOT NULL,
	score_tier         TEXT NOT NULL,
	recommendations    TEXT NOT NULL DEFAULT '[]',
	risk_factors       TEXT NOT NULL DEFAULT '[]',
	opportunities      TEXT NOT NULL DEFAULT '[]',
	feature_confidence REAL NOT NULL,
	scored_at          DATETIME NOT NULL,
	updated_at         DATETIME NOT NULL
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
	processing_time_ms INTEGER NOT NULL DEFAULT 0,
	triggered_by       TEXT NOT NULL DEFAULT '',
	error_message      TEXT,
	created_at         DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analysis_log_product ON analysis_log(product_id, created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertFeatureVector(ctx context.Context, fv features.FeatureVector) error {
	_, err := s.db.ExecContext(ctx, liteUpsertVector, vectorArgs(fv)...)
	return eris.Wrapf(err, "sqlite: upsert feature vector %s", fv.ProductID)
}

func (s *SQLiteStore) GetFeatureVector(ctx context.Context, productID string) (*features.FeatureVector, error) {
	fv, err := scanFeatureVector(s.db.QueryRowContext(ctx,
		`SELECT `+join(vectorColumns)+` FROM feature_vectors WHERE product_id = ?`, productID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get feature vector %s", productID)
	}
	return fv, nil
}

func (s *SQLiteStore) UpsertScore(ctx context.Context, rec model.ScoreRecord) error {
	args, err := scoreArgs(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, liteUpsertScore, args...)
	return eris.Wrapf(err, "sqlite: upsert score %s", rec.ProductID)
}

func (s *SQLiteStore) GetScore(ctx context.Context, productID string) (*model.ScoreRecord, error) {
	rec, err := scanScoreRecord(s.db.QueryRowContext(ctx,
		`SELECT `+join(scoreColumns)+` FROM scores WHERE product_id = ?`, productID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get score %s", productID)
	}
	return rec, nil
}

func (s *SQLiteStore) TopScores(ctx context.Context, limit int) ([]model.ScoreRecord, error) {
	return s.listScores(ctx, "top scores",
		`SELECT `+join(scoreColumns)+` FROM scores ORDER BY overall_score DESC, scored_at DESC LIMIT ?`,
		listLimit(limit))
}

func (s *SQLiteStore) ScoresByTier(ctx context.Context, tier model.Tier, limit int) ([]model.ScoreRecord, error) {
	return s.listScores(ctx, "scores by tier",
		`SELECT `+join(scoreColumns)+` FROM scores WHERE score_tier = ? ORDER BY overall_score DESC, scored_at DESC LIMIT ?`,
		string(tier), listLimit(limit))
}

func (s *SQLiteStore) listScores(ctx context.Context, op, query string, args ...any) ([]model.ScoreRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: %s", op)
	}
	defer rows.Close()

	var out []model.ScoreRecord
	for rows.Next() {
		rec, err := scanScoreRecord(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan %s", op)
		}
		out = append(out, *rec)
	}
	return out, eris.Wrapf(rows.Err(), "sqlite: %s iterate", op)
}

func (s *SQLiteStore) ScoreStats(ctx context.Context) (*model.ScoreStats, error) {
	stats := newScoreStats()

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(AVG(overall_score), 0) FROM scores`,
	).Scan(&stats.Count, &stats.AverageScore)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: score stats")
	}

	// Aggregates lose the DATETIME column type, so read the newest row instead of MAX.
	var last time.Time
	err = s.db.QueryRowContext(ctx, `SELECT scored_at FROM scores ORDER BY scored_at DESC LIMIT 1`).Scan(&last)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, eris.Wrap(err, "sqlite: last scored")
	default:
		last = last.UTC()
		stats.LastScoredAt = &last
	}

	rows, err := s.db.QueryContext(ctx, `SELECT score_tier, COUNT(*) FROM scores GROUP BY score_tier`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: tier counts")
	}
	defer rows.Close()
	for rows.Next() {
		var tier string
		var n int
		if err := rows.Scan(&tier, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan tier count")
		}
		stats.TierCounts[model.Tier(tier)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: tier counts iterate")
	}
	return stats, nil
}

func (s *SQLiteStore) AppendAnalysisLog(ctx context.Context, entry model.AnalysisLogEntry) error {
	_, err := s.db.ExecContext(ctx, liteInsertLog, logArgs(entry)...)
	return eris.Wrapf(err, "sqlite: append analysis log %s", entry.ProductID)
}

func (s *SQLiteStore) ListAnalysisLog(ctx context.Context, productID string, limit int) ([]model.AnalysisLogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+join(logColumns)+` FROM analysis_log
		 WHERE (? = '' OR product_id = ?)
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		productID, productID, listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list analysis log")
	}
	defer rows.Close()

	var out []model.AnalysisLogEntry
	for rows.Next() {
		e, err := scanLogEntry(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan analysis log")
		}
		out = append(out, *e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list analysis log iterate")
}

// UpsertProducts writes catalog entries in one transaction.
func (s *SQLiteStore) UpsertProducts(ctx context.Context, entries []model.CatalogEntry) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert products: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, liteUpsertProduct)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert products: prepare")
	}
	defer stmt.Close() //nolint:errcheck

	var n int64
	for _, e := range entries {
		args, err := productArgs(e)
		if err != nil {
			return 0, err
		}
		res, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert product %s", e.Product.ID)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		n += affected
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert products: commit")
	}
	return n, nil
}

func (s *SQLiteStore) GetCatalogEntry(ctx context.Context, productID string) (*model.CatalogEntry, error) {
	e, err := scanCatalogEntry(s.db.QueryRowContext(ctx,
		`SELECT product, price, storefront FROM products WHERE id = ?`, productID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get catalog entry %s", productID)
	}
	return e, nil
}

func (s *SQLiteStore) ListRescoreCandidates(ctx context.Context, cutoff time.Time, limit int) ([]model.CatalogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.product, p.price, p.storefront
		 FROM products p LEFT JOIN scores s ON s.product_id = p.id
		 WHERE s.scored_at IS NULL OR s.scored_at < ?
		 ORDER BY s.scored_at IS NOT NULL, s.scored_at, p.id
		 LIMIT ?`,
		cutoff.UTC(), listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list rescore candidates")
	}
	defer rows.Close()

	var out []model.CatalogEntry
	for rows.Next() {
		e, err := scanCatalogEntry(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan rescore candidate")
		}
		out = append(out, *e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list rescore candidates iterate")
}
