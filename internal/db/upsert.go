package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertConfig describes a keyed merge of rows into Table.
type UpsertConfig struct {
	Table        string   // optionally schema-qualified, e.g. "public.products"
	Columns      []string // column order of every row
	ConflictKeys []string // unique key; each must appear in Columns
	UpdateCols   []string // nil means every non-key column
}

// mergePlan is the SQL for one BulkUpsert, derived from an UpsertConfig.
type mergePlan struct {
	staging   string
	createSQL string
	mergeSQL  string
	keyIdx    []int
}

func planUpsert(cfg UpsertConfig) (mergePlan, error) {
	if len(cfg.Columns) == 0 {
		return mergePlan{}, eris.New("db: upsert: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return mergePlan{}, eris.New("db: upsert: no conflict keys specified")
	}

	pos := make(map[string]int, len(cfg.Columns))
	for i, c := range cfg.Columns {
		pos[c] = i
	}
	keyIdx := make([]int, len(cfg.ConflictKeys))
	isKey := make(map[string]bool, len(cfg.ConflictKeys))
	for i, k := range cfg.ConflictKeys {
		at, ok := pos[k]
		if !ok {
			return mergePlan{}, eris.Errorf("db: upsert: conflict key %q not in columns", k)
		}
		keyIdx[i] = at
		isKey[k] = true
	}

	update := cfg.UpdateCols
	if update == nil {
		for _, c := range cfg.Columns {
			if !isKey[c] {
				update = append(update, c)
			}
		}
	}

	staging := stagingTableName(cfg.Table)
	target := sanitizeTable(cfg.Table)
	cols := quoteAndJoin(cfg.Columns)

	action := "DO NOTHING"
	if len(update) > 0 {
		set := make([]string, len(update))
		for i, c := range update {
			q := pgx.Identifier{c}.Sanitize()
			set[i] = q + " = EXCLUDED." + q
		}
		action = "DO UPDATE SET " + strings.Join(set, ", ")
	}

	return mergePlan{
		staging: staging,
		createSQL: fmt.Sprintf("CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
			pgx.Identifier{staging}.Sanitize(), target),
		mergeSQL: fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) %s",
			target, cols, cols, pgx.Identifier{staging}.Sanitize(), quoteAndJoin(cfg.ConflictKeys), action),
		keyIdx: keyIdx,
	}, nil
}

// BulkUpsert stages rows with COPY and merges them into the target table
// inside one transaction. Rows repeating a key keep only the last one, since
// a single INSERT ... ON CONFLICT cannot touch the same row twice. It returns
// the number of rows the merge affected.
func BulkUpsert(ctx context.Context, pool Pool, cfg UpsertConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	plan, err := planUpsert(cfg)
	if err != nil {
		return 0, err
	}
	rows = lastByKey(rows, plan.keyIdx)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: upsert: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, plan.createSQL); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: create staging table for %s", cfg.Table)
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{plan.staging}, cfg.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: copy into staging table for %s", cfg.Table)
	}
	tag, err := tx.Exec(ctx, plan.mergeSQL)
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert: merge into %s", cfg.Table)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: upsert: commit tx")
	}
	return tag.RowsAffected(), nil
}

// lastByKey drops earlier rows whose key columns repeat, keeping first-seen
// order of the surviving keys.
func lastByKey(rows [][]any, keyIdx []int) [][]any {
	slot := make(map[string]int, len(rows))
	out := make([][]any, 0, len(rows))
	for _, r := range rows {
		k := rowKey(r, keyIdx)
		if at, ok := slot[k]; ok {
			out[at] = r
			continue
		}
		slot[k] = len(out)
		out = append(out, r)
	}
	return out
}

func rowKey(row []any, keyIdx []int) string {
	parts := make([]string, len(keyIdx))
	for i, at := range keyIdx {
		if at < len(row) {
			parts[i] = fmt.Sprint(row[at])
		}
	}
	return strings.Join(parts, "\x00")
}

func stagingTableName(table string) string {
	return "staging_" + strings.ReplaceAll(table, ".", "_")
}

// sanitizeTable quotes a table name that may carry a schema prefix.
func sanitizeTable(table string) string {
	if schema, name, ok := strings.Cut(table, "."); ok {
		return pgx.Identifier{schema, name}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
