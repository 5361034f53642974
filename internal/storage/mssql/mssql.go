// Package mssql stores datasets and variants in SQL Server through
// go-mssqldb. Statements use @pN placeholders and timestamps DATETIME2.
package mssql

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/microsoft/go-mssqldb"

	"adaptiveclean/internal/storage"
	"adaptiveclean/internal/storage/sqlstore"
)

// Kind is the registry name of this backend.
const Kind = "mssql"

func init() {
	storage.Register(Kind, func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return Open(ctx, cfg.DSN)
	})
}

// Dialect is the SQL Server flavour of the shared SQL repository.
var Dialect = sqlstore.Dialect{
	Name:   "mssql",
	Prefix: "@p",
	Schema: []string{
		`IF OBJECT_ID(N'dbo.datasets', N'U') IS NULL
CREATE TABLE dbo.datasets (
	id NVARCHAR(64) NOT NULL PRIMARY KEY,
	name NVARCHAR(400) NOT NULL,
	scope NVARCHAR(200) NOT NULL DEFAULT '',
	checksum NVARCHAR(128) NOT NULL DEFAULT '',
	schema_json NVARCHAR(MAX) NOT NULL,
	rows_json NVARCHAR(MAX) NOT NULL,
	created_at DATETIME2 NOT NULL
)`,
		`IF OBJECT_ID(N'dbo.cleaned_variants', N'U') IS NULL
CREATE TABLE dbo.cleaned_variants (
	id NVARCHAR(64) NOT NULL PRIMARY KEY,
	source_dataset_id NVARCHAR(64) NOT NULL,
	algorithm_name NVARCHAR(200) NOT NULL,
	group_key NVARCHAR(200) NOT NULL,
	schema_json NVARCHAR(MAX) NOT NULL,
	rows_json NVARCHAR(MAX) NOT NULL,
	row_count INT NOT NULL,
	column_count INT NOT NULL,
	quality_score FLOAT NOT NULL,
	created_at DATETIME2 NOT NULL,
	CONSTRAINT uq_cleaned_variants_source_algorithm UNIQUE (source_dataset_id, algorithm_name)
)`,
		`IF OBJECT_ID(N'dbo.quality_scores', N'U') IS NULL
CREATE TABLE dbo.quality_scores (
	id BIGINT IDENTITY(1,1) NOT NULL PRIMARY KEY,
	cleaned_variant_id NVARCHAR(64) NOT NULL REFERENCES dbo.cleaned_variants(id),
	algorithm_name NVARCHAR(200) NOT NULL,
	score FLOAT NOT NULL,
	created_at DATETIME2 NOT NULL
)`,
		`IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = N'idx_quality_scores_created_at')
CREATE INDEX idx_quality_scores_created_at ON dbo.quality_scores (created_at)`,
	},
	RecentScores: `SELECT TOP (?) id, cleaned_variant_id, algorithm_name, score, created_at
FROM quality_scores ORDER BY created_at DESC, id DESC`,
	LockVariant: `SELECT id FROM cleaned_variants WITH (UPDLOCK, HOLDLOCK)
WHERE source_dataset_id = ? AND algorithm_name = ?`,
	EncodeTime: sqlstore.NativeTime,
}

// Open connects with a sqlserver:// DSN and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*sqlstore.Repo, error) {
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mssql: ping: %w", err)
	}
	repo := sqlstore.New(db, Dialect)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}
