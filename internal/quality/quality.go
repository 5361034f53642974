// Package quality scores pipeline steps.
//
// The score is a completeness-delta heuristic: it compares the mean non-null
// fraction of the dataset after a step with the same measure before it. It
// says nothing about whether the values themselves are correct. A step that
// fills every null scores 1; a step that introduces nulls (smoothing edges,
// failed coercions) scores below 1 in proportion to what it lost.
package quality

import (
	"adaptiveclean/internal/dataset"
	"adaptiveclean/internal/stats"
)

// minBaseline keeps the ratio finite for datasets that start out empty.
const minBaseline = 0.01

// Score returns min(1, after/max(before, 0.01)) clamped to [0, 1], where
// before and after are dataset completeness values.
func Score(before, after *dataset.Dataset) float64 {
	return Ratio(dataset.Completeness(before), dataset.Completeness(after))
}

// Ratio scores two completeness values directly.
func Ratio(before, after float64) float64 {
	if before < minBaseline {
		before = minBaseline
	}
	return stats.Clamp(after/before, 0, 1)
}

// Mean returns the mean of step scores, or 0 when there are none.
func Mean(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	return stats.Clamp(stats.Mean(scores), 0, 1)
}
