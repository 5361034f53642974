package transform

import (
	"strconv"
	"strings"
	"time"

	"adaptiveclean/internal/dataset"
)

// timestampLayouts are tried in order when coercing text to timestamps.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"01/02/2006 15:04:05",
	"02 Jan 2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

// CoerceTypes converts each column to numeric when every non-null value
// parses as a number, otherwise to timestamp when every non-null value
// parses as one. Columns are converted all-or-nothing; bool, record and
// list columns and fully null columns are left alone.
func CoerceTypes(in *dataset.Dataset) (*dataset.Dataset, Details, error) {
	schema := in.Schema()
	replace := map[int][]dataset.Value{}
	converted := map[string]string{}

	for j, c := range schema {
		if c.Kind != dataset.KindText && c.Kind != dataset.KindMixed {
			continue
		}
		col := in.Column(j)
		if out, ok := coerceAll(col, parseNumber); ok {
			replace[j] = out
			converted[c.Name] = string(dataset.KindNumeric)
			continue
		}
		if out, ok := coerceAll(col, parseTimestamp); ok {
			replace[j] = out
			converted[c.Name] = string(dataset.KindTimestamp)
		}
	}

	return in.WithColumns(replace), Details{
		"columns_processed": len(schema),
		"converted":         converted,
	}, nil
}

func coerceAll(col []dataset.Value, parse func(dataset.Value) (dataset.Value, bool)) ([]dataset.Value, bool) {
	out := make([]dataset.Value, len(col))
	for i, v := range col {
		if v.IsNull() {
			continue
		}
		p, ok := parse(v)
		if !ok {
			return nil, false
		}
		out[i] = p
	}
	return out, true
}

func parseNumber(v dataset.Value) (dataset.Value, bool) {
	if _, ok := v.Float(); ok {
		return v, true
	}
	s, ok := v.Str()
	if !ok {
		return v, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return v, false
	}
	return dataset.Number(f), true
}

func parseTimestamp(v dataset.Value) (dataset.Value, bool) {
	if _, ok := v.Time(); ok {
		return v, true
	}
	s, ok := v.Str()
	if !ok {
		return v, false
	}
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return dataset.Timestamp(t), true
		}
	}
	return v, false
}
