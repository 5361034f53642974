package transform

import (
	"math"
	"sort"

	"adaptiveclean/internal/dataset"
	"adaptiveclean/internal/stats"
)

// KNeighbors is the neighbour count used by the ml imputation strategy.
const KNeighbors = 5

// Impute returns a transform filling missing values. Numeric columns use the
// given strategy (mean, median or ml); unknown strategies fall back to mean.
// Categorical columns take their most frequent non-null value.
func Impute(strategy string) Func {
	return func(in *dataset.Dataset) (*dataset.Dataset, Details, error) {
		replace := map[int][]dataset.Value{}
		filled := 0

		numeric := in.NumericColumns()
		switch strategy {
		case ImputeML:
			for j, col := range knnImpute(in, numeric) {
				replace[j] = col
			}
		default:
			for _, j := range numeric {
				vals, ok := numericColumn(in.Column(j))
				have := present(vals, ok)
				if len(have) == 0 || len(have) == len(vals) {
					continue
				}
				fill := stats.Mean(have)
				if strategy == ImputeMedian {
					fill = stats.Median(have)
				}
				col := in.Column(j)
				for i := range col {
					if !ok[i] {
						col[i] = dataset.Number(fill)
					}
				}
				replace[j] = col
			}
		}

		schema := in.Schema()
		var categorical []int
		for j, c := range schema {
			if !c.Kind.IsCategorical() {
				continue
			}
			categorical = append(categorical, j)
			col := in.Column(j)
			fill, found := mode(col)
			if !found {
				continue
			}
			changed := false
			for i, v := range col {
				if v.IsNull() {
					col[i] = fill
					changed = true
				}
			}
			if changed {
				replace[j] = col
			}
		}

		for j, col := range replace {
			before := in.Column(j)
			for i := range col {
				if before[i].IsNull() && !col[i].IsNull() {
					filled++
				}
			}
		}

		return in.WithColumns(replace), Details{
			"strategy":         strategy,
			"columns_affected": len(numeric) + len(categorical),
			"values_filled":    filled,
		}, nil
	}
}

// mode returns the most frequent non-null value; ties go to the value seen first.
func mode(col []dataset.Value) (dataset.Value, bool) {
	type entry struct {
		v     dataset.Value
		count int
		first int
	}
	counts := map[string]*entry{}
	for i, v := range col {
		if v.IsNull() {
			continue
		}
		key := v.Kind().String() + ":" + v.String()
		if e, ok := counts[key]; ok {
			e.count++
			continue
		}
		counts[key] = &entry{v: v, count: 1, first: i}
	}
	var best *entry
	for _, e := range counts {
		if best == nil || e.count > best.count || (e.count == best.count && e.first < best.first) {
			best = e
		}
	}
	if best == nil {
		return dataset.Null(), false
	}
	return best.v, true
}

// knnImpute fills each missing numeric cell with the mean of that column over
// the KNeighbors nearest donor rows. Distances are nan-euclidean across the
// numeric columns using only coordinates present in both rows. A row that
// shares no coordinate with any donor stays null.
func knnImpute(in *dataset.Dataset, numeric []int) map[int][]dataset.Value {
	n := in.Len()
	m := len(numeric)
	vals := make([][]float64, m)
	ok := make([][]bool, m)
	for c, j := range numeric {
		vals[c], ok[c] = numericColumn(in.Column(j))
	}

	dist := func(a, b int) (float64, bool) {
		sum, shared := 0.0, 0
		for c := 0; c < m; c++ {
			if ok[c][a] && ok[c][b] {
				d := vals[c][a] - vals[c][b]
				sum += d * d
				shared++
			}
		}
		if shared == 0 {
			return 0, false
		}
		return math.Sqrt(float64(m) / float64(shared) * sum), true
	}

	type neighbour struct {
		row  int
		dist float64
	}

	out := map[int][]dataset.Value{}
	for c, j := range numeric {
		var missing []int
		for i := 0; i < n; i++ {
			if !ok[c][i] {
				missing = append(missing, i)
			}
		}
		if len(missing) == 0 || len(missing) == n {
			continue
		}
		col := in.Column(j)
		for _, i := range missing {
			var cand []neighbour
			for d := 0; d < n; d++ {
				if d == i || !ok[c][d] {
					continue
				}
				if dd, valid := dist(i, d); valid {
					cand = append(cand, neighbour{row: d, dist: dd})
				}
			}
			if len(cand) == 0 {
				continue
			}
			sort.SliceStable(cand, func(a, b int) bool { return cand[a].dist < cand[b].dist })
			if len(cand) > KNeighbors {
				cand = cand[:KNeighbors]
			}
			sum := 0.0
			for _, nb := range cand {
				sum += vals[c][nb.row]
			}
			col[i] = dataset.Number(sum / float64(len(cand)))
		}
		out[j] = col
	}
	return out
}
