package transform

import (
	"adaptiveclean/internal/dataset"
)

// SmoothWindow is the centered moving-average window.
const SmoothWindow = 5

// Smooth replaces each numeric column with its centered moving average over
// SmoothWindow rows. Rows without a full window, and windows containing a
// null, become null. Row count never changes.
func Smooth(in *dataset.Dataset) (*dataset.Dataset, Details, error) {
	numeric := in.NumericColumns()
	half := SmoothWindow / 2
	n := in.Len()
	replace := map[int][]dataset.Value{}

	for _, j := range numeric {
		vals, ok := numericColumn(in.Column(j))
		out := make([]dataset.Value, n)
		for i := half; i < n-half; i++ {
			sum := 0.0
			full := true
			for k := i - half; k <= i+half; k++ {
				if !ok[k] {
					full = false
					break
				}
				sum += vals[k]
			}
			if full {
				out[i] = dataset.Number(sum / SmoothWindow)
			}
		}
		replace[j] = out
	}

	return in.WithColumns(replace), Details{
		"method":           "moving_average",
		"window":           SmoothWindow,
		"columns_affected": len(numeric),
	}, nil
}
