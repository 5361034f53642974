package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedAlgorithm is returned for algorithm names outside the catalog.
var ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")

// Algorithm names a cleaning pipeline.
type Algorithm string

const (
	MissingValues Algorithm = "missing_values"
	Duplicates    Algorithm = "duplicates"
	Outliers      Algorithm = "outliers"
	DataTypes     Algorithm = "data_types"
	Normalization Algorithm = "normalization"
	TextCleaning  Algorithm = "text_cleaning"
	FullPipeline  Algorithm = "full_pipeline"
)

var algorithms = []Algorithm{
	MissingValues,
	Duplicates,
	Outliers,
	DataTypes,
	Normalization,
	TextCleaning,
	FullPipeline,
}

// Algorithms returns every supported algorithm in catalog order.
func Algorithms() []Algorithm {
	out := make([]Algorithm, len(algorithms))
	copy(out, algorithms)
	return out
}

// ParseAlgorithm validates an algorithm name. Surrounding whitespace is
// ignored; the match is case-sensitive.
func ParseAlgorithm(name string) (Algorithm, error) {
	a := Algorithm(strings.TrimSpace(name))
	for _, known := range algorithms {
		if a == known {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, name)
}

func (a Algorithm) String() string { return string(a) }
