package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"adaptiveclean/internal/dataset"
)

// ParseJSON accepts an array of objects or the column/row document that
// datasets marshal to.
func ParseJSON(r io.Reader) (*dataset.Dataset, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, ErrEmptyInput
	}

	if raw[0] == '{' {
		d := dataset.Empty()
		if err := json.Unmarshal(raw, d); err != nil {
			return nil, fmt.Errorf("decode dataset document: %w", err)
		}
		return d, nil
	}

	var records []map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrEmptyInput
	}
	return dataset.FromRecords(records), nil
}
