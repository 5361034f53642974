package dataset

import (
	"context"
	"math"

	"golang.org/x/sync/errgroup"

	"adaptiveclean/internal/stats"
)

// ColumnProfile summarizes one column.
type ColumnProfile struct {
	Name     string   `json:"name"`
	Kind     Kind     `json:"kind"`
	Nulls    int      `json:"nulls"`
	Distinct int      `json:"distinct"`
	Mean     *float64 `json:"mean,omitempty"`
	Std      *float64 `json:"std,omitempty"`
	Min      *float64 `json:"min,omitempty"`
	Max      *float64 `json:"max,omitempty"`
	Skewness *float64 `json:"skewness,omitempty"`
	Kurtosis *float64 `json:"kurtosis,omitempty"`
}

// Characteristics are the dataset traits the feedback learner keys on.
type Characteristics struct {
	Rows         int     `json:"rows"`
	Columns      int     `json:"columns"`
	HasNumeric   bool    `json:"has_numeric"`
	HasText      bool    `json:"has_text"`
	Skewness     float64 `json:"skewness"`
	Distribution string  `json:"distribution"`
	Completeness float64 `json:"completeness"`
}

// Profile is the result of profiling a dataset.
type Profile struct {
	Columns         []ColumnProfile `json:"columns"`
	Characteristics Characteristics `json:"characteristics"`
}

// Distribution labels.
const (
	DistributionNormal  = "normal"
	DistributionSkewed  = "skewed"
	DistributionUnknown = "unknown"
)

// ProfileDataset profiles every column concurrently and derives the
// dataset characteristics.
func ProfileDataset(ctx context.Context, d *Dataset) (*Profile, error) {
	cols := make([]ColumnProfile, d.Width())
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for j := range d.schema {
		g.Go(func() error {
			cols[j] = profileColumn(d.schema[j], d.Column(j))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Profile{Columns: cols, Characteristics: characteristicsFrom(d, cols)}, nil
}

// Characterize computes dataset characteristics without the per-column detail.
func Characterize(d *Dataset) Characteristics {
	cols := make([]ColumnProfile, d.Width())
	for j := range d.schema {
		cols[j] = profileColumn(d.schema[j], d.Column(j))
	}
	return characteristicsFrom(d, cols)
}

// NumericValues returns the non-null numbers of a column.
func NumericValues(col []Value) []float64 {
	out := make([]float64, 0, len(col))
	for _, v := range col {
		if f, ok := v.Float(); ok {
			out = append(out, f)
		}
	}
	return out
}

// Completeness is the fraction of non-null cells averaged over columns.
// A dataset without rows or columns has completeness 0.
func Completeness(d *Dataset) float64 {
	if d.Width() == 0 || d.Len() == 0 {
		return 0
	}
	total := 0.0
	for j := range d.schema {
		present := 0
		for _, r := range d.rows {
			if !r[j].IsNull() {
				present++
			}
		}
		total += float64(present) / float64(d.Len())
	}
	return total / float64(d.Width())
}

func profileColumn(c Column, col []Value) ColumnProfile {
	p := ColumnProfile{Name: c.Name, Kind: c.Kind}
	distinct := map[string]struct{}{}
	for _, v := range col {
		if v.IsNull() {
			p.Nulls++
			continue
		}
		distinct[v.Kind().String()+":"+v.String()] = struct{}{}
	}
	p.Distinct = len(distinct)
	if c.Kind != KindNumeric {
		return p
	}
	nums := NumericValues(col)
	if len(nums) == 0 {
		return p
	}
	mean, std := stats.Mean(nums), stats.Std(nums)
	lo, hi := stats.MinMax(nums)
	skew, kurt := stats.Skewness(nums), stats.ExcessKurtosis(nums)
	p.Mean, p.Std, p.Min, p.Max = &mean, &std, &lo, &hi
	p.Skewness, p.Kurtosis = &skew, &kurt
	return p
}

func characteristicsFrom(d *Dataset, cols []ColumnProfile) Characteristics {
	ch := Characteristics{
		Rows:         d.Len(),
		Columns:      d.Width(),
		Distribution: DistributionUnknown,
		Completeness: Completeness(d),
	}
	var skews, kurts []float64
	for _, c := range cols {
		switch {
		case c.Kind == KindNumeric:
			ch.HasNumeric = true
			if c.Skewness != nil {
				skews = append(skews, *c.Skewness)
				kurts = append(kurts, *c.Kurtosis)
			}
		case c.Kind == KindText || c.Kind == KindMixed:
			ch.HasText = true
		}
	}
	if len(skews) > 0 {
		ch.Skewness = stats.Mean(skews)
		if math.Abs(ch.Skewness) < 0.5 && math.Abs(stats.Mean(kurts)) < 1 {
			ch.Distribution = DistributionNormal
		} else {
			ch.Distribution = DistributionSkewed
		}
	}
	return ch
}
