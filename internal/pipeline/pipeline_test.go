package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adaptiveclean/internal/dataset"
	"adaptiveclean/internal/transform"
)

func sectorDataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	return dataset.FromRecords([]map[string]any{
		{"sector": "Tech", "revenue": 10.0, "name": "A Corp"},
		{"sector": "Tech", "revenue": nil, "name": "B Corp"},
		{"sector": "Retail", "revenue": 30.0, "name": "C Corp"},
		{"sector": "Retail", "revenue": 30.0, "name": "C Corp"},
		{"sector": "Retail", "revenue": 50.0, "name": "D Corp"},
	})
}

func stepIDs(run Run) []string {
	ids := make([]string, len(run.Steps))
	for i, s := range run.Steps {
		ids[i] = s.ID
	}
	return ids
}

func TestResolveSingleStepAlgorithms(t *testing.T) {
	c := DefaultCatalog()
	tests := []struct {
		name string
		want string
	}{
		{"missing_values", StepImpute},
		{"duplicates", StepDedup},
		{"outliers", StepOutliers},
		{"data_types", StepCoerce},
		{"normalization", StepNormalize},
		{"text_cleaning", StepCleanText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run, err := c.Resolve(tt.name, DefaultConfig())
			require.NoError(t, err)
			assert.Equal(t, []string{tt.want}, stepIDs(run))
		})
	}
}

func TestResolveFullPipelineHonoursFlags(t *testing.T) {
	c := DefaultCatalog()

	run, err := c.Resolve("full_pipeline", CleaningConfig{})
	require.NoError(t, err)
	assert.Equal(t, []string{StepDedup, StepImpute, StepOutliers, StepCoerce}, stepIDs(run))

	lo := 0.0
	cfg := CleaningConfig{
		ImputeStrategy: transform.ImputeML,
		OutlierMethod:  transform.OutlierZScore,
		Normalize:      true,
		Standardize:    true,
		ReduceNoise:    true,
		CleanText:      true,
		Rules:          map[string]transform.Rule{"x": {Type: transform.RuleRange, Min: &lo}},
		ReferenceData:  map[string][]any{"y": {"a"}},
	}
	run, err = c.Resolve("full_pipeline", cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{
		StepDedup, StepImpute, StepOutliers, StepCoerce,
		StepNormalize, StepStandardize, StepSmooth, StepCleanText,
		StepValidateRules, StepCrossReference,
	}, stepIDs(run))
	assert.Equal(t, StageML, run.Steps[1].Stage)
	assert.Equal(t, "zscore", run.Steps[2].Technique)
}

func TestResolveUnknownAlgorithm(t *testing.T) {
	_, err := DefaultCatalog().Resolve("magic", DefaultConfig())
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)
}

func TestCatalogList(t *testing.T) {
	list := DefaultCatalog().List()
	require.Len(t, list, len(Algorithms()))
	assert.Equal(t, MissingValues, list[0].Name)
	assert.Equal(t, FullPipeline, list[len(list)-1].Name)
}

func TestExecutorRunKeepsRowCountsAndScores(t *testing.T) {
	ds := sectorDataset(t)
	run, err := DefaultCatalog().Resolve("full_pipeline", DefaultConfig())
	require.NoError(t, err)

	result, err := NewExecutor(nil).Run(context.Background(), ds, run)
	require.NoError(t, err)

	require.Len(t, result.Steps, len(run.Steps))
	assert.Equal(t, 5, result.RowsIn)
	assert.Equal(t, 4, result.Steps[0].RowsAfter, "dedup drops the repeated row")
	for _, s := range result.Steps[1:] {
		assert.Equal(t, s.RowsBefore, s.RowsAfter, s.ID)
	}
	for _, s := range result.Scores {
		assert.GreaterOrEqual(t, s.Score, 0.0)
		assert.LessOrEqual(t, s.Score, 1.0)
	}
	assert.Len(t, result.Logs, len(run.Steps))
	assert.Equal(t, ds.Len(), 5, "input untouched")
	assert.InDelta(t, 1.0, result.ScoreMap()[StepImpute], 1e-9)
}

func TestExecutorStopsOnStepError(t *testing.T) {
	boom := errors.New("boom")
	run := Run{Algorithm: FullPipeline, Steps: []StepDescriptor{
		dedupStep(),
		{ID: "custom", Label: "Custom", Scored: true, Transform: func(*dataset.Dataset) (*dataset.Dataset, transform.Details, error) {
			return nil, nil, boom
		}},
		coerceStep(),
	}}
	_, err := NewExecutor(nil).Run(context.Background(), sectorDataset(t), run)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "custom", stepErr.StepID)
	assert.ErrorIs(t, err, ErrTransformFailure)
	assert.ErrorIs(t, err, boom)
}

func TestApplyStepRecoversPanics(t *testing.T) {
	step := StepDescriptor{ID: "bad", Label: "Bad", Transform: func(*dataset.Dataset) (*dataset.Dataset, transform.Details, error) {
		panic("oops")
	}}
	_, err := ApplyStep(step, sectorDataset(t))
	assert.ErrorIs(t, err, ErrTransformFailure)
}

func TestExecutorHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	run, err := DefaultCatalog().Resolve("duplicates", DefaultConfig())
	require.NoError(t, err)

	_, err = NewExecutor(nil).Run(ctx, sectorDataset(t), run)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuildVariantsSplitsBySector(t *testing.T) {
	run, err := DefaultCatalog().Resolve("duplicates", DefaultConfig())
	require.NoError(t, err)
	result, err := NewExecutor(nil).Run(context.Background(), sectorDataset(t), run)
	require.NoError(t, err)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	variants, details, err := BuildVariants("src-1", result, now)
	require.NoError(t, err)
	require.Len(t, variants, 3)

	assert.Equal(t, []string{"all", "tech", "retail"}, details["groups"])
	assert.Equal(t, "duplicates", variants[0].AlgorithmName)
	assert.Equal(t, "duplicates__tech", variants[1].AlgorithmName)
	assert.Equal(t, "duplicates__retail", variants[2].AlgorithmName)

	assert.Equal(t, 4, variants[0].RowCount)
	assert.Equal(t, 2, variants[1].RowCount)
	assert.Equal(t, 2, variants[2].RowCount)
	for _, v := range variants {
		assert.Equal(t, "src-1", v.SourceDatasetID)
		assert.Equal(t, v.Data.Width(), v.ColumnCount)
		assert.Equal(t, result.QualityScore(), v.QualityScore)
	}

	require.Len(t, variants[0].Scores, 1)
	assert.Equal(t, StepDedup, variants[0].Scores[0].AlgorithmName)
	assert.Equal(t, now, variants[0].Scores[0].Timestamp)
	assert.Empty(t, variants[1].Scores)
	assert.Empty(t, variants[2].Scores)
}

func TestVariantName(t *testing.T) {
	assert.Equal(t, "outliers", VariantName(Outliers, "all"))
	assert.Equal(t, "outliers", VariantName(Outliers, ""))
	assert.Equal(t, "outliers__energy", VariantName(Outliers, "energy"))
}
