package storage

import (
	"crypto/rand"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"adaptiveclean/internal/dataset"
)

// EncodeDataset splits a dataset into its schema and rows JSON documents,
// the form every SQL backend stores.
func EncodeDataset(d *dataset.Dataset) (schemaJSON, rowsJSON []byte, err error) {
	if d == nil {
		d = dataset.Empty()
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, nil, fmt.Errorf("encode dataset: %w", err)
	}
	var parts struct {
		Columns json.RawMessage `json:"columns"`
		Rows    json.RawMessage `json:"rows"`
	}
	if err := json.Unmarshal(b, &parts); err != nil {
		return nil, nil, fmt.Errorf("split dataset: %w", err)
	}
	return parts.Columns, parts.Rows, nil
}

// DecodeDataset reverses EncodeDataset.
func DecodeDataset(schemaJSON, rowsJSON []byte) (*dataset.Dataset, error) {
	if len(schemaJSON) == 0 {
		schemaJSON = []byte("[]")
	}
	if len(rowsJSON) == 0 {
		rowsJSON = []byte("[]")
	}
	b, err := json.Marshal(struct {
		Columns json.RawMessage `json:"columns"`
		Rows    json.RawMessage `json:"rows"`
	}{Columns: schemaJSON, Rows: rowsJSON})
	if err != nil {
		return nil, fmt.Errorf("join dataset: %w", err)
	}
	d := dataset.Empty()
	if err := json.Unmarshal(b, d); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	return d, nil
}

// NewID returns a random identifier for datasets and variants.
func NewID() string {
	id, err := uuid.NewRandomFromReader(rand.Reader)
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
