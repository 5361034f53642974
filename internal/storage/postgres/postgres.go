// Package postgres stores datasets and variants in PostgreSQL through a
// pgx connection pool. Dataset payloads are JSONB and timestamps TIMESTAMPTZ.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"adaptiveclean/internal/storage"
)

// Kind is the registry name of this backend.
const Kind = "postgres"

func init() {
	storage.Register(Kind, func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return Open(ctx, cfg.DSN)
	})
}

// Schema holds the idempotent DDL run by EnsureSchema.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS datasets (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	scope TEXT NOT NULL DEFAULT '',
	checksum TEXT NOT NULL DEFAULT '',
	schema_json JSONB NOT NULL,
	rows_json JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS cleaned_variants (
	id TEXT PRIMARY KEY,
	source_dataset_id TEXT NOT NULL,
	algorithm_name TEXT NOT NULL,
	group_key TEXT NOT NULL,
	schema_json JSONB NOT NULL,
	rows_json JSONB NOT NULL,
	row_count INTEGER NOT NULL,
	column_count INTEGER NOT NULL,
	quality_score DOUBLE PRECISION NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (source_dataset_id, algorithm_name)
)`,
	`CREATE TABLE IF NOT EXISTS quality_scores (
	id BIGSERIAL PRIMARY KEY,
	cleaned_variant_id TEXT NOT NULL REFERENCES cleaned_variants(id) ON DELETE CASCADE,
	algorithm_name TEXT NOT NULL,
	score DOUBLE PRECISION NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_quality_scores_created_at ON quality_scores (created_at)`,
}

// upsertVariantSQL keeps the existing id on conflict so score rows and
// external references stay valid.
const upsertVariantSQL = `INSERT INTO cleaned_variants
(id, source_dataset_id, algorithm_name, group_key, schema_json, rows_json, row_count, column_count, quality_score, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (source_dataset_id, algorithm_name) DO UPDATE SET
	group_key = EXCLUDED.group_key,
	schema_json = EXCLUDED.schema_json,
	rows_json = EXCLUDED.rows_json,
	row_count = EXCLUDED.row_count,
	column_count = EXCLUDED.column_count,
	quality_score = EXCLUDED.quality_score,
	created_at = EXCLUDED.created_at
RETURNING id`

// Repo implements storage.Repository for PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// Open connects to dsn and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*Repo, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	r := &Repo{pool: pool}
	if err := r.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

// Close closes the connection pool.
func (r *Repo) Close() error {
	r.pool.Close()
	return nil
}

// EnsureSchema creates missing tables.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	for _, stmt := range Schema {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: ensure schema: %w", err)
		}
	}
	return nil
}

// SaveDataset inserts rec, assigning an id when it has none.
func (r *Repo) SaveDataset(ctx context.Context, rec *storage.DatasetRecord) error {
	if rec.ID == "" {
		rec.ID = storage.NewID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	schemaJSON, rowsJSON, err := storage.EncodeDataset(rec.Data)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO datasets (id, name, scope, checksum, schema_json, rows_json, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.Name, rec.Scope, rec.Checksum, string(schemaJSON), string(rowsJSON), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert dataset: %w", err)
	}
	return nil
}

// GetDataset implements storage.DatasetProvider.
func (r *Repo) GetDataset(ctx context.Context, id string, scope storage.Scope) (*storage.DatasetRecord, error) {
	var (
		rec                  storage.DatasetRecord
		schemaJSON, rowsJSON string
	)
	err := r.pool.QueryRow(ctx, `SELECT id, name, scope, checksum, schema_json::text, rows_json::text, created_at
FROM datasets WHERE id = $1`, id).Scan(
		&rec.ID, &rec.Name, &rec.Scope, &rec.Checksum, &schemaJSON, &rowsJSON, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get dataset: %w", err)
	}
	if !scope.CanRead(rec.Scope) {
		return nil, storage.ErrAccessDenied
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	if rec.Data, err = storage.DecodeDataset([]byte(schemaJSON), []byte(rowsJSON)); err != nil {
		return nil, err
	}
	return &rec, nil
}

// RecentScores implements storage.HistoryReader.
func (r *Repo) RecentScores(ctx context.Context, n int) ([]storage.ScoreRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, cleaned_variant_id, algorithm_name, score, created_at
FROM quality_scores ORDER BY created_at DESC, id DESC LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("postgres: recent scores: %w", err)
	}
	return collectScores(rows)
}

func collectScores(rows pgx.Rows) ([]storage.ScoreRecord, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (storage.ScoreRecord, error) {
		var s storage.ScoreRecord
		err := row.Scan(&s.ID, &s.VariantID, &s.AlgorithmName, &s.Score, &s.Timestamp)
		s.Timestamp = s.Timestamp.UTC()
		return s, err
	})
}

// SaveVariants implements storage.VariantWriter in one transaction.
func (r *Repo) SaveVariants(ctx context.Context, sourceID string, variants []storage.Variant) ([]string, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ids := make([]string, len(variants))
	for i, v := range variants {
		id, err := upsertVariant(ctx, tx, sourceID, v)
		if err != nil {
			return nil, fmt.Errorf("postgres: save variant %s: %w", v.AlgorithmName, err)
		}
		ids[i] = id

		if _, err := tx.Exec(ctx, `DELETE FROM quality_scores WHERE cleaned_variant_id = $1`, id); err != nil {
			return nil, fmt.Errorf("postgres: clear scores: %w", err)
		}
		if len(v.Scores) == 0 {
			continue
		}
		batch := &pgx.Batch{}
		for _, s := range v.Scores {
			batch.Queue(`INSERT INTO quality_scores (cleaned_variant_id, algorithm_name, score, created_at)
VALUES ($1, $2, $3, $4)`, id, s.AlgorithmName, s.Score, s.Timestamp.UTC())
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return nil, fmt.Errorf("postgres: insert scores: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("postgres: commit: %w", err)
	}
	return ids, nil
}

func upsertVariant(ctx context.Context, tx pgx.Tx, sourceID string, v storage.Variant) (string, error) {
	schemaJSON, rowsJSON, err := storage.EncodeDataset(v.Data)
	if err != nil {
		return "", err
	}
	created := v.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	var id string
	err = tx.QueryRow(ctx, upsertVariantSQL,
		storage.NewID(), sourceID, v.AlgorithmName, v.GroupKey, string(schemaJSON), string(rowsJSON),
		v.RowCount, v.ColumnCount, v.QualityScore, created.UTC()).Scan(&id)
	return id, err
}

// ListVariants returns the variants of a source dataset ordered by
// algorithm name, each with its score records.
func (r *Repo) ListVariants(ctx context.Context, sourceID string) ([]storage.Variant, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, source_dataset_id, algorithm_name, group_key, schema_json::text, rows_json::text,
row_count, column_count, quality_score, created_at
FROM cleaned_variants WHERE source_dataset_id = $1 ORDER BY algorithm_name`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list variants: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (storage.Variant, error) {
		var (
			v                    storage.Variant
			schemaJSON, rowsJSON string
		)
		if err := row.Scan(&v.ID, &v.SourceDatasetID, &v.AlgorithmName, &v.GroupKey, &schemaJSON, &rowsJSON,
			&v.RowCount, &v.ColumnCount, &v.QualityScore, &v.CreatedAt); err != nil {
			return v, err
		}
		v.CreatedAt = v.CreatedAt.UTC()
		var err error
		v.Data, err = storage.DecodeDataset([]byte(schemaJSON), []byte(rowsJSON))
		return v, err
	})
	if err != nil {
		return nil, err
	}

	scoreRows, err := r.pool.Query(ctx, `SELECT s.id, s.cleaned_variant_id, s.algorithm_name, s.score, s.created_at
FROM quality_scores s JOIN cleaned_variants v ON v.id = s.cleaned_variant_id
WHERE v.source_dataset_id = $1 ORDER BY s.id`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list scores: %w", err)
	}
	scores, err := collectScores(scoreRows)
	if err != nil {
		return nil, err
	}
	index := make(map[string]int, len(out))
	for i, v := range out {
		index[v.ID] = i
	}
	for _, s := range scores {
		if i, ok := index[s.VariantID]; ok {
			out[i].Scores = append(out[i].Scores, s)
		}
	}
	return out, nil
}
