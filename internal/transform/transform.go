// Package transform implements the cleaning operations applied by pipeline
// steps. Every transform takes a dataset and returns a new one; the input is
// never modified. Built-in transforms are total: malformed values are handled
// by coercion or left untouched, and an error is returned only when a custom
// step hits an unrecoverable type problem.
package transform

import (
	"adaptiveclean/internal/dataset"
)

// Details is the structured record a transform reports for the run log.
type Details map[string]any

// Func is the transform contract used by step descriptors.
type Func func(in *dataset.Dataset) (*dataset.Dataset, Details, error)

// Imputation strategies.
const (
	ImputeMean   = "mean"
	ImputeMedian = "median"
	ImputeML     = "ml"
)

// Outlier detection methods.
const (
	OutlierIQR    = "iqr"
	OutlierZScore = "zscore"
)

// numericColumn splits a column into its float values and a presence mask.
func numericColumn(col []dataset.Value) ([]float64, []bool) {
	vals := make([]float64, len(col))
	ok := make([]bool, len(col))
	for i, v := range col {
		vals[i], ok[i] = v.Float()
	}
	return vals, ok
}

func present(vals []float64, ok []bool) []float64 {
	out := make([]float64, 0, len(vals))
	for i, v := range vals {
		if ok[i] {
			out = append(out, v)
		}
	}
	return out
}

func columnNames(ds *dataset.Dataset, idx []int) []string {
	schema := ds.Schema()
	out := make([]string, len(idx))
	for i, j := range idx {
		out[i] = schema[j].Name
	}
	return out
}
