package exporter

import (
	"strconv"
	"time"

	"adaptiveclean/internal/dataset"
)

// formatValue renders a cell for CSV output. Nulls are empty, numbers use
// the shortest exact form and timestamps RFC 3339.
func formatValue(v dataset.Value) string {
	switch v.Kind() {
	case dataset.ValueNull:
		return ""
	case dataset.ValueNumber:
		f, _ := v.Float()
		return strconv.FormatFloat(f, 'f', -1, 64)
	case dataset.ValueBool:
		b, _ := v.BoolVal()
		return strconv.FormatBool(b)
	case dataset.ValueTimestamp:
		t, _ := v.Time()
		return t.Format(time.RFC3339Nano)
	}
	return v.String()
}
