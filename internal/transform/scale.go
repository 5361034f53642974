package transform

import (
	"adaptiveclean/internal/dataset"
	"adaptiveclean/internal/stats"
)

// Normalize min-max scales numeric columns to [0, 1]. A constant column
// becomes all zeros.
func Normalize(in *dataset.Dataset) (*dataset.Dataset, Details, error) {
	return scaleNumeric(in, "min_max", func(have []float64) func(float64) float64 {
		lo, hi := stats.MinMax(have)
		if hi == lo {
			return func(float64) float64 { return 0 }
		}
		return func(v float64) float64 { return (v - lo) / (hi - lo) }
	})
}

// Standardize z-score scales numeric columns using the population standard
// deviation. A constant column becomes all zeros.
func Standardize(in *dataset.Dataset) (*dataset.Dataset, Details, error) {
	return scaleNumeric(in, "z_score", func(have []float64) func(float64) float64 {
		lo, hi := stats.MinMax(have)
		mean, std := stats.Mean(have), stats.Std(have)
		if hi == lo || std == 0 {
			return func(float64) float64 { return 0 }
		}
		return func(v float64) float64 { return (v - mean) / std }
	})
}

func scaleNumeric(in *dataset.Dataset, method string, fit func([]float64) func(float64) float64) (*dataset.Dataset, Details, error) {
	numeric := in.NumericColumns()
	replace := map[int][]dataset.Value{}
	for _, j := range numeric {
		col := in.Column(j)
		vals, ok := numericColumn(col)
		have := present(vals, ok)
		if len(have) == 0 {
			continue
		}
		f := fit(have)
		for i := range col {
			if ok[i] {
				col[i] = dataset.Number(f(vals[i]))
			}
		}
		replace[j] = col
	}
	return in.WithColumns(replace), Details{
		"method":           method,
		"columns_affected": len(numeric),
	}, nil
}
