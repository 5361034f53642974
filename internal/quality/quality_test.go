package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adaptiveclean/internal/dataset"
)

func TestRatio(t *testing.T) {
	tests := []struct {
		name          string
		before, after float64
		want          float64
	}{
		{"unchanged", 0.8, 0.8, 1},
		{"improved caps at one", 0.5, 1, 1},
		{"lost completeness", 1, 0.6, 0.6},
		{"empty before uses floor", 0, 0.005, 0.5},
		{"both empty", 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Ratio(tt.before, tt.after)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
		})
	}
}

func TestScoreOnDatasets(t *testing.T) {
	before, err := dataset.FromColumns([]string{"a", "b"}, [][]dataset.Value{
		{dataset.Number(1), dataset.Null()},
		{dataset.Number(2), dataset.Number(3)},
	})
	require.NoError(t, err)
	after, err := dataset.FromColumns([]string{"a", "b"}, [][]dataset.Value{
		{dataset.Null(), dataset.Null()},
		{dataset.Number(2), dataset.Number(3)},
	})
	require.NoError(t, err)

	assert.InDelta(t, 1.0, Score(before, before), 1e-9)
	assert.InDelta(t, 0.5/0.75, Score(before, after), 1e-9)
	assert.Equal(t, 0.0, Score(dataset.Empty(), dataset.Empty()))
}

func TestMean(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.InDelta(t, 0.75, Mean([]float64{1, 0.5}), 1e-9)
}
