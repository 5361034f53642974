package transform

import (
	"math"

	"adaptiveclean/internal/dataset"
	"adaptiveclean/internal/stats"
)

// Winsorization bounds applied to every numeric column.
const (
	ClipLowerPercentile = 5
	ClipUpperPercentile = 95
)

// Outliers returns a transform that counts outliers with the given method
// (iqr or zscore) for the log, then clamps every numeric column to its
// [P5, P95] range whatever the method. Nulls are left as they are.
func Outliers(method string) Func {
	return func(in *dataset.Dataset) (*dataset.Dataset, Details, error) {
		numeric := in.NumericColumns()
		detected := map[string]int{}
		clipped := 0
		replace := map[int][]dataset.Value{}
		schema := in.Schema()

		for _, j := range numeric {
			col := in.Column(j)
			vals, ok := numericColumn(col)
			have := present(vals, ok)
			if len(have) == 0 {
				continue
			}
			detected[schema[j].Name] = countOutliers(have, method)

			bounds := stats.Percentiles(have, ClipLowerPercentile, ClipUpperPercentile)
			for i := range col {
				if !ok[i] {
					continue
				}
				c := stats.Clamp(vals[i], bounds[0], bounds[1])
				if c != vals[i] {
					clipped++
				}
				col[i] = dataset.Number(c)
			}
			replace[j] = col
		}

		return in.WithColumns(replace), Details{
			"method":             method,
			"columns_affected":   len(numeric),
			"outliers_detected":  detected,
			"values_winsorized":  clipped,
			"winsorize_bounds_p": []int{ClipLowerPercentile, ClipUpperPercentile},
		}, nil
	}
}

func countOutliers(vals []float64, method string) int {
	count := 0
	switch method {
	case OutlierZScore:
		mean, std := stats.Mean(vals), stats.Std(vals)
		if std == 0 {
			return 0
		}
		for _, v := range vals {
			if math.Abs((v-mean)/std) > 3 {
				count++
			}
		}
	default:
		q := stats.Percentiles(vals, 25, 75)
		iqr := q[1] - q[0]
		lo, hi := q[0]-1.5*iqr, q[1]+1.5*iqr
		for _, v := range vals {
			if v < lo || v > hi {
				count++
			}
		}
	}
	return count
}
