// Package sqlite is the default storage backend, built on the pure-Go
// modernc.org/sqlite driver. Timestamps are stored as fixed-width UTC text.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"adaptiveclean/internal/storage"
	"adaptiveclean/internal/storage/sqlstore"
)

// Kind is the registry name of this backend.
const Kind = "sqlite"

func init() {
	storage.Register(Kind, func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return Open(ctx, cfg.DSN)
	})
}

// Dialect is the SQLite flavour of the shared SQL repository.
var Dialect = sqlstore.Dialect{
	Name: "sqlite",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS datasets (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	scope TEXT NOT NULL DEFAULT '',
	checksum TEXT NOT NULL DEFAULT '',
	schema_json TEXT NOT NULL,
	rows_json TEXT NOT NULL,
	created_at TEXT NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS cleaned_variants (
	id TEXT PRIMARY KEY,
	source_dataset_id TEXT NOT NULL,
	algorithm_name TEXT NOT NULL,
	group_key TEXT NOT NULL,
	schema_json TEXT NOT NULL,
	rows_json TEXT NOT NULL,
	row_count INTEGER NOT NULL,
	column_count INTEGER NOT NULL,
	quality_score REAL NOT NULL,
	created_at TEXT NOT NULL,
	UNIQUE (source_dataset_id, algorithm_name)
)`,
		`CREATE TABLE IF NOT EXISTS quality_scores (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	cleaned_variant_id TEXT NOT NULL REFERENCES cleaned_variants(id),
	algorithm_name TEXT NOT NULL,
	score REAL NOT NULL,
	created_at TEXT NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_quality_scores_created_at ON quality_scores (created_at)`,
	},
	RecentScores: `SELECT id, cleaned_variant_id, algorithm_name, score, created_at
FROM quality_scores ORDER BY created_at DESC, id DESC LIMIT ?`,
	// SQLite serializes writers, so the transaction already holds the lock.
	LockVariant: `SELECT id FROM cleaned_variants WHERE source_dataset_id = ? AND algorithm_name = ?`,
	EncodeTime:  sqlstore.TextTime,
}

// Open opens (creating if needed) the database at dsn and ensures the
// schema exists.
func Open(ctx context.Context, dsn string) (*sqlstore.Repo, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// one connection avoids SQLITE_BUSY between pooled writers
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	repo := sqlstore.New(db, Dialect)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}
