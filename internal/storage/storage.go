// Package storage defines the persistence contracts of the cleaning service
// and a registry of backends.
//
// Backends live in subpackages (memory, sqlite, postgres, mssql) and register
// themselves from init(). Import storage/all to link every backend, or a
// single subpackage to keep the binary small, then call New with the
// configured kind.
package storage

import (
	"context"
	"errors"
	"time"

	"adaptiveclean/internal/dataset"
)

var (
	// ErrNotFound is returned when a dataset or variant does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAccessDenied is returned when the caller's scope may not read a dataset.
	ErrAccessDenied = errors.New("access denied")
)

// Scope identifies who is asking. An empty Owner with Admin unset can only
// read unscoped datasets.
type Scope struct {
	Owner string
	Admin bool
}

// CanRead reports whether the scope may read a dataset owned by owner.
// Datasets with no owner are readable by everyone.
func (s Scope) CanRead(owner string) bool {
	return owner == "" || s.Admin || s.Owner == owner
}

// DatasetRecord is an uploaded source dataset.
type DatasetRecord struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Scope     string           `json:"scope,omitempty"`
	Checksum  string           `json:"checksum"`
	Data      *dataset.Dataset `json:"-"`
	CreatedAt time.Time        `json:"created_at"`
}

// ScoreRecord is one append-only quality score.
type ScoreRecord struct {
	ID            int64     `json:"id,omitempty"`
	VariantID     string    `json:"cleaned_variant_id"`
	AlgorithmName string    `json:"algorithm_name"`
	Score         float64   `json:"score"`
	Timestamp     time.Time `json:"timestamp"`
}

// Variant is one cleaned derivative of a source dataset.
type Variant struct {
	ID              string           `json:"id"`
	SourceDatasetID string           `json:"source_dataset_id"`
	AlgorithmName   string           `json:"algorithm_name"`
	GroupKey        string           `json:"group_key"`
	Data            *dataset.Dataset `json:"-"`
	RowCount        int              `json:"row_count"`
	ColumnCount     int              `json:"column_count"`
	QualityScore    float64          `json:"quality_score"`
	CreatedAt       time.Time        `json:"created_at"`
	Scores          []ScoreRecord    `json:"scores"`
}

// DatasetProvider loads source datasets.
type DatasetProvider interface {
	// GetDataset returns ErrNotFound or ErrAccessDenied unchanged so callers
	// can match them with errors.Is.
	GetDataset(ctx context.Context, id string, scope Scope) (*DatasetRecord, error)
}

// HistoryReader reads the quality score history.
type HistoryReader interface {
	// RecentScores returns at most n records, newest first.
	RecentScores(ctx context.Context, n int) ([]ScoreRecord, error)
}

// VariantWriter persists run output.
type VariantWriter interface {
	// SaveVariants upserts each variant by (source dataset, algorithm name)
	// and replaces its score records. Either every variant is written or
	// none is. The returned ids follow the input order.
	SaveVariants(ctx context.Context, sourceID string, variants []Variant) ([]string, error)
}

// Repository is what a backend provides.
type Repository interface {
	DatasetProvider
	HistoryReader
	VariantWriter

	// EnsureSchema creates the tables when they are missing.
	EnsureSchema(ctx context.Context) error
	SaveDataset(ctx context.Context, rec *DatasetRecord) error
	ListVariants(ctx context.Context, sourceID string) ([]Variant, error)
	Close() error
}

// Chronological returns scores oldest first, which is the order the learner
// trains on.
func Chronological(newestFirst []ScoreRecord) []float64 {
	out := make([]float64, len(newestFirst))
	for i, r := range newestFirst {
		out[len(out)-1-i] = r.Score
	}
	return out
}
