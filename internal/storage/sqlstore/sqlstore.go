// Package sqlstore implements storage.Repository on database/sql. The
// sqlite and mssql backends provide a Dialect and register a factory; the
// statements here are written with ? placeholders and rebound per dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"adaptiveclean/internal/storage"
)

// Dialect captures what differs between SQL engines.
type Dialect struct {
	// Name is used in error messages.
	Name string
	// Schema holds the idempotent DDL statements run by EnsureSchema.
	Schema []string
	// Numbered placeholders are written as Prefix followed by the 1-based
	// position (e.g. "@p" gives @p1, @p2). Empty means keep "?".
	Prefix string
	// RecentScores selects id, cleaned_variant_id, algorithm_name, score
	// and created_at newest first, limited by its single parameter.
	RecentScores string
	// LockVariant selects the id of a variant by source and algorithm and
	// locks the row for the rest of the transaction.
	LockVariant string
	// EncodeTime converts a timestamp to the stored form.
	EncodeTime func(time.Time) any
}

// Rebind rewrites ? placeholders for the dialect.
func (d Dialect) Rebind(q string) string {
	if d.Prefix == "" {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString(d.Prefix)
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// TextTime stores timestamps as fixed-width UTC text so that they sort.
func TextTime(t time.Time) any {
	return t.UTC().Format(textTimeLayout)
}

const textTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// NativeTime passes timestamps to the driver unchanged.
func NativeTime(t time.Time) any { return t.UTC() }

// scanTime accepts both text and native timestamp columns.
type scanTime struct{ t time.Time }

func (s *scanTime) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		s.t = v.UTC()
	case string:
		return s.parse(v)
	case []byte:
		return s.parse(string(v))
	case nil:
		s.t = time.Time{}
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
	return nil
}

func (s *scanTime) parse(v string) error {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return fmt.Errorf("parse timestamp %q: %w", v, err)
	}
	s.t = t.UTC()
	return nil
}

// Repo implements storage.Repository over a *sql.DB.
type Repo struct {
	db      *sql.DB
	dialect Dialect
}

// New wraps an open database.
func New(db *sql.DB, dialect Dialect) *Repo {
	return &Repo{db: db, dialect: dialect}
}

// DB exposes the handle for backend-specific tests.
func (r *Repo) DB() *sql.DB { return r.db }

// Close closes the database.
func (r *Repo) Close() error { return r.db.Close() }

// EnsureSchema runs the dialect DDL.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	for _, stmt := range r.dialect.Schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: ensure schema: %w", r.dialect.Name, err)
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

	q := r.dialect.Rebind(`INSERT INTO datasets (id, name, scope, checksum, schema_json, rows_json, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err = r.db.ExecContext(ctx, q,
		rec.ID, rec.Name, rec.Scope, rec.Checksum,
		string(schemaJSON), string(rowsJSON), r.dialect.EncodeTime(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("%s: insert dataset: %w", r.dialect.Name, err)
	}
	return nil
}

// GetDataset implements storage.DatasetProvider.
func (r *Repo) GetDataset(ctx context.Context, id string, scope storage.Scope) (*storage.DatasetRecord, error) {
	q := r.dialect.Rebind(`SELECT id, name, scope, checksum, schema_json, rows_json, created_at
FROM datasets WHERE id = ?`)

	var (
		rec                  storage.DatasetRecord
		schemaJSON, rowsJSON string
		created              scanTime
	)
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&rec.ID, &rec.Name, &rec.Scope, &rec.Checksum, &schemaJSON, &rowsJSON, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: get dataset: %w", r.dialect.Name, err)
	}
	if !scope.CanRead(rec.Scope) {
		return nil, storage.ErrAccessDenied
	}

	rec.CreatedAt = created.t
	rec.Data, err = storage.DecodeDataset([]byte(schemaJSON), []byte(rowsJSON))
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// RecentScores implements storage.HistoryReader.
func (r *Repo) RecentScores(ctx context.Context, n int) ([]storage.ScoreRecord, error) {
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(r.dialect.RecentScores), n)
	if err != nil {
		return nil, fmt.Errorf("%s: recent scores: %w", r.dialect.Name, err)
	}
	defer rows.Close()
	return scanScores(rows)
}

func scanScores(rows *sql.Rows) ([]storage.ScoreRecord, error) {
	var out []storage.ScoreRecord
	for rows.Next() {
		var (
			s  storage.ScoreRecord
			at scanTime
		)
		if err := rows.Scan(&s.ID, &s.VariantID, &s.AlgorithmName, &s.Score, &at); err != nil {
			return nil, err
		}
		s.Timestamp = at.t
		out = append(out, s)
	}
	return out, rows.Err()
}

// SaveVariants implements storage.VariantWriter in one transaction.
func (r *Repo) SaveVariants(ctx context.Context, sourceID string, variants []storage.Variant) ([]string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: begin: %w", r.dialect.Name, err)
	}
	defer func() { _ = tx.Rollback() }()

	ids := make([]string, len(variants))
	for i, v := range variants {
		id, err := r.upsertVariant(ctx, tx, sourceID, v)
		if err != nil {
			return nil, fmt.Errorf("%s: save variant %s: %w", r.dialect.Name, v.AlgorithmName, err)
		}
		ids[i] = id

		if _, err := tx.ExecContext(ctx, r.dialect.Rebind(`DELETE FROM quality_scores WHERE cleaned_variant_id = ?`), id); err != nil {
			return nil, fmt.Errorf("%s: clear scores: %w", r.dialect.Name, err)
		}
		insert := r.dialect.Rebind(`INSERT INTO quality_scores (cleaned_variant_id, algorithm_name, score, created_at)
VALUES (?, ?, ?, ?)`)
		for _, s := range v.Scores {
			if _, err := tx.ExecContext(ctx, insert, id, s.AlgorithmName, s.Score, r.dialect.EncodeTime(s.Timestamp)); err != nil {
				return nil, fmt.Errorf("%s: insert score: %w", r.dialect.Name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: commit: %w", r.dialect.Name, err)
	}
	return ids, nil
}

func (r *Repo) upsertVariant(ctx context.Context, tx *sql.Tx, sourceID string, v storage.Variant) (string, error) {
	schemaJSON, rowsJSON, err := storage.EncodeDataset(v.Data)
	if err != nil {
		return "", err
	}
	created := v.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	var id string
	err = tx.QueryRowContext(ctx, r.dialect.Rebind(r.dialect.LockVariant), sourceID, v.AlgorithmName).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		id = storage.NewID()
		_, err = tx.ExecContext(ctx, r.dialect.Rebind(`INSERT INTO cleaned_variants
(id, source_dataset_id, algorithm_name, group_key, schema_json, rows_json, row_count, column_count, quality_score, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			id, sourceID, v.AlgorithmName, v.GroupKey, string(schemaJSON), string(rowsJSON),
			v.RowCount, v.ColumnCount, v.QualityScore, r.dialect.EncodeTime(created))
		return id, err
	case err != nil:
		return "", err
	}

	_, err = tx.ExecContext(ctx, r.dialect.Rebind(`UPDATE cleaned_variants
SET group_key = ?, schema_json = ?, rows_json = ?, row_count = ?, column_count = ?, quality_score = ?, created_at = ?
WHERE id = ?`),
		v.GroupKey, string(schemaJSON), string(rowsJSON), v.RowCount, v.ColumnCount, v.QualityScore,
		r.dialect.EncodeTime(created), id)
	return id, err
}

// ListVariants returns the variants of a source dataset ordered by
// algorithm name, each with its score records.
func (r *Repo) ListVariants(ctx context.Context, sourceID string) ([]storage.Variant, error) {
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(`SELECT id, source_dataset_id, algorithm_name, group_key, schema_json, rows_json,
row_count, column_count, quality_score, created_at
FROM cleaned_variants WHERE source_dataset_id = ? ORDER BY algorithm_name`), sourceID)
	if err != nil {
		return nil, fmt.Errorf("%s: list variants: %w", r.dialect.Name, err)
	}
	defer rows.Close()

	var out []storage.Variant
	index := map[string]int{}
	for rows.Next() {
		var (
			v                    storage.Variant
			schemaJSON, rowsJSON string
			created              scanTime
		)
		if err := rows.Scan(&v.ID, &v.SourceDatasetID, &v.AlgorithmName, &v.GroupKey, &schemaJSON, &rowsJSON,
			&v.RowCount, &v.ColumnCount, &v.QualityScore, &created); err != nil {
			return nil, err
		}
		v.CreatedAt = created.t
		if v.Data, err = storage.DecodeDataset([]byte(schemaJSON), []byte(rowsJSON)); err != nil {
			return nil, err
		}
		index[v.ID] = len(out)
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	scoreRows, err := r.db.QueryContext(ctx, r.dialect.Rebind(`SELECT s.id, s.cleaned_variant_id, s.algorithm_name, s.score, s.created_at
FROM quality_scores s JOIN cleaned_variants v ON v.id = s.cleaned_variant_id
WHERE v.source_dataset_id = ? ORDER BY s.id`), sourceID)
	if err != nil {
		return nil, fmt.Errorf("%s: list scores: %w", r.dialect.Name, err)
	}
	defer scoreRows.Close()
	scores, err := scanScores(scoreRows)
	if err != nil {
		return nil, err
	}
	for _, s := range scores {
		if i, ok := index[s.VariantID]; ok {
			out[i].Scores = append(out[i].Scores, s)
		}
	}
	return out, nil
}
