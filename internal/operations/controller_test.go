package operations

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adaptiveclean/internal/dataset"
	"adaptiveclean/internal/feedback"
	"adaptiveclean/internal/pipeline"
	"adaptiveclean/internal/storage"
	"adaptiveclean/internal/storage/memory"
	"adaptiveclean/internal/transform"
)

// recorder collects events and can react to them.
type recorder struct {
	mu     sync.Mutex
	events []Event
	hook   func(ev Event) error
}

func (r *recorder) Emit(_ context.Context, ev Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	hook := r.hook
	r.mu.Unlock()
	if hook != nil {
		return hook(ev)
	}
	return nil
}

func (r *recorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func numericDataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	return dataset.FromRecords([]map[string]any{
		{"a": 1.0, "b": 10.0},
		{"a": 2.0, "b": 12.0},
		{"a": 2.0, "b": 12.0},
		{"a": nil, "b": 11.0},
		{"a": 3.0, "b": 13.0},
		{"a": 4.0, "b": 900.0},
		{"a": 5.0, "b": 14.0},
	})
}

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

type fixture struct {
	repo      *memory.Repo
	datasetID string
	deps      Dependencies
}

func newFixture(t *testing.T, d *dataset.Dataset) *fixture {
	t.Helper()
	repo := memory.New()
	rec := &storage.DatasetRecord{Name: "input.csv", Data: d}
	require.NoError(t, repo.SaveDataset(context.Background(), rec))
	return &fixture{
		repo:      repo,
		datasetID: rec.ID,
		deps: Dependencies{
			Datasets: repo,
			History:  repo,
			Variants: repo,
			Learner:  feedback.NewLearner(),
		},
	}
}

func defaultConfig() *pipeline.CleaningConfig {
	cfg := pipeline.DefaultConfig()
	return &cfg
}

func (f *fixture) listVariants(t *testing.T) []storage.Variant {
	t.Helper()
	vs, err := f.repo.ListVariants(context.Background(), f.datasetID)
	require.NoError(t, err)
	return vs
}

func TestStreamSuccessfulRun(t *testing.T) {
	f := newFixture(t, numericDataset(t))
	c := NewController(f.deps)
	rec := &recorder{}

	out, err := c.Stream(context.Background(), Request{
		RunID: "run-1", DatasetID: f.datasetID, Algorithm: "full_pipeline", Config: defaultConfig(),
	}, rec)
	require.NoError(t, err)

	// start, two events per step, complete
	types := rec.types()
	require.Len(t, types, 1+2*5+1)
	assert.Equal(t, EventStart, types[0])
	assert.Equal(t, EventComplete, types[len(types)-1])
	for i, ev := range rec.events {
		assert.Equal(t, int64(i+1), ev.Seq)
		assert.Equal(t, "run-1", ev.RunID)
	}

	start := rec.events[0].Data.(StartData)
	assert.Equal(t, []string{
		pipeline.StepDedup, pipeline.StepImpute, pipeline.StepOutliers, pipeline.StepCoerce, pipeline.StepNormalize,
	}, start.Steps)
	assert.Equal(t, 5, start.TotalSteps)

	for i := 0; i < 5; i++ {
		running := rec.events[1+2*i].Data.(StepData)
		completed := rec.events[2+2*i].Data.(StepData)
		assert.Equal(t, StepStatusRunning, running.Status)
		assert.Nil(t, running.RowCount)
		assert.Equal(t, StepStatusCompleted, completed.Status)
		assert.Equal(t, i+1, completed.StepNumber)
		require.NotNil(t, completed.RowCount)
		require.NotNil(t, completed.Score)
	}

	complete := rec.events[len(rec.events)-1].Data.(CompleteData)
	assert.Equal(t, out.VariantIDs(), complete.VariantIDs)
	assert.Equal(t, 6, complete.Rows, "one duplicate removed")
	assert.Equal(t, 2, complete.Columns)
	assert.Len(t, complete.Scores, 5)

	stored := f.listVariants(t)
	require.Len(t, stored, 1)
	assert.Equal(t, complete.VariantIDs[0], stored[0].ID)
	assert.Equal(t, "full_pipeline", stored[0].AlgorithmName)
	assert.Len(t, stored[0].Scores, 5)
}

func TestStreamSplitsGroupsIntoVariants(t *testing.T) {
	f := newFixture(t, sectorDataset(t))
	c := NewController(f.deps)

	out, err := c.Stream(context.Background(), Request{
		DatasetID: f.datasetID, Algorithm: "duplicates", Config: defaultConfig(),
	}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, out.RunID)
	assert.Equal(t, []string{"all", "tech", "retail"}, out.Groups)
	require.Len(t, out.Variants, 3)

	stored := f.listVariants(t)
	require.Len(t, stored, 3)
	names := []string{stored[0].AlgorithmName, stored[1].AlgorithmName, stored[2].AlgorithmName}
	assert.ElementsMatch(t, []string{"duplicates", "duplicates__tech", "duplicates__retail"}, names)
}

// salesOpsDataset has 10 rows whose sector cycles Sales, Sales, Ops.
func salesOpsDataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	sectors := []string{"Sales", "Sales", "Ops"}
	records := make([]map[string]any, 10)
	for i := range records {
		records[i] = map[string]any{
			"sector":    sectors[i%3],
			"revenue":   float64(100 + 10*i),
			"employees": float64(5 + i),
		}
	}
	records[4]["revenue"] = nil
	return dataset.FromRecords(records)
}

func TestStreamFullPipelineSectorScenario(t *testing.T) {
	f := newFixture(t, salesOpsDataset(t))
	c := NewController(f.deps)

	out, err := c.Stream(context.Background(), Request{
		DatasetID: f.datasetID, Algorithm: "full_pipeline", Config: defaultConfig(),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"all", "sales", "ops"}, out.Groups)
	assert.Equal(t, 10, out.Rows)

	stored := f.listVariants(t)
	require.Len(t, stored, 3)
	assert.Equal(t, "full_pipeline", stored[0].AlgorithmName)
	assert.Equal(t, "full_pipeline__ops", stored[1].AlgorithmName)
	assert.Equal(t, "full_pipeline__sales", stored[2].AlgorithmName)
	assert.Equal(t, 10, stored[0].RowCount)
	assert.Equal(t, 3, stored[1].RowCount)
	assert.Equal(t, 7, stored[2].RowCount)
	for _, v := range stored {
		assert.Equal(t, out.Result.QualityScore(), v.QualityScore)
		assert.GreaterOrEqual(t, v.QualityScore, 0.0)
		assert.LessOrEqual(t, v.QualityScore, 1.0)
	}
	assert.Len(t, stored[0].Scores, len(out.Result.Scores))
	assert.Empty(t, stored[1].Scores)
	assert.Empty(t, stored[2].Scores)
}

func TestStreamHistoryGrowsOncePerRun(t *testing.T) {
	f := newFixture(t, salesOpsDataset(t))
	c := NewController(f.deps)
	ctx := context.Background()

	ids := []string{f.datasetID}
	for i := 0; i < 2; i++ {
		rec := &storage.DatasetRecord{Name: "input.csv", Data: salesOpsDataset(t)}
		require.NoError(t, f.repo.SaveDataset(ctx, rec))
		ids = append(ids, rec.ID)
	}

	steps := 0
	for i, id := range ids {
		out, err := c.Stream(ctx, Request{DatasetID: id, Algorithm: "full_pipeline", Config: defaultConfig()}, nil)
		require.NoError(t, err)
		require.Len(t, out.Variants, 3)
		steps = len(out.Result.Scores)

		history, err := f.repo.RecentScores(ctx, -1)
		require.NoError(t, err)
		assert.Len(t, history, (i+1)*steps, "after run %d", i+1)
	}
	assert.Equal(t, 5, steps)
}

func TestStreamCancelledMidRunPersistsNothing(t *testing.T) {
	tests := []struct {
		name string
		hook func(cancel context.CancelFunc) func(ev Event) error
	}{
		{
			name: "context cancelled",
			hook: func(cancel context.CancelFunc) func(ev Event) error {
				return func(ev Event) error {
					if d, ok := ev.Data.(StepData); ok && d.StepNumber == 2 && d.Status == StepStatusCompleted {
						cancel()
					}
					return nil
				}
			},
		},
		{
			name: "client gone",
			hook: func(context.CancelFunc) func(ev Event) error {
				return func(ev Event) error {
					if d, ok := ev.Data.(StepData); ok && d.StepNumber == 2 && d.Status == StepStatusCompleted {
						return ErrSinkClosed
					}
					return nil
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, numericDataset(t))
			c := NewController(f.deps)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			rec := &recorder{hook: tt.hook(cancel)}

			out, err := c.Stream(ctx, Request{
				DatasetID: f.datasetID, Algorithm: "full_pipeline", Config: defaultConfig(),
			}, rec)
			require.Error(t, err)
			assert.Nil(t, out)
			assert.ErrorIs(t, err, ErrCancelled)
			assert.Equal(t, ErrorTypeCancellation, GetErrorType(err))

			assert.NotContains(t, rec.types(), EventComplete)
			assert.NotContains(t, rec.types(), EventError)
			assert.Empty(t, f.listVariants(t))

			scores, err := f.repo.RecentScores(context.Background(), 10)
			require.NoError(t, err)
			assert.Empty(t, scores)
		})
	}
}

func TestStreamRejectsUnknownAlgorithmBeforeAnyEvent(t *testing.T) {
	f := newFixture(t, numericDataset(t))
	c := NewController(f.deps)
	rec := &recorder{}

	_, err := c.Stream(context.Background(), Request{DatasetID: f.datasetID, Algorithm: "magic"}, rec)
	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrUnsupportedAlgorithm)
	assert.Equal(t, ErrorTypeValidation, GetErrorType(err))
	assert.Empty(t, rec.types())
	assert.Empty(t, f.listVariants(t))
}

func TestStreamPassesDatasetErrorsThrough(t *testing.T) {
	f := newFixture(t, numericDataset(t))
	c := NewController(f.deps)

	_, err := c.Stream(context.Background(), Request{DatasetID: "missing", Algorithm: "duplicates"}, nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	owned := &storage.DatasetRecord{Name: "private", Scope: "alice", Data: numericDataset(t)}
	require.NoError(t, f.repo.SaveDataset(context.Background(), owned))
	_, err = c.Stream(context.Background(), Request{
		DatasetID: owned.ID, Scope: storage.Scope{Owner: "bob"}, Algorithm: "duplicates",
	}, nil)
	assert.ErrorIs(t, err, storage.ErrAccessDenied)
}

func TestStreamStepFailureEmitsOneErrorEvent(t *testing.T) {
	f := newFixture(t, numericDataset(t))
	c := NewController(f.deps)
	rec := &recorder{}

	_, err := c.Stream(context.Background(), Request{
		DatasetID: f.datasetID,
		Algorithm: "full_pipeline",
		Config:    defaultConfig(),
		Rules:     map[string]transform.Rule{"a": {Type: transform.RuleRegex, Pattern: "["}},
	}, rec)
	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrTransformFailure)
	assert.Equal(t, ErrorTypeExecution, GetErrorType(err))

	types := rec.types()
	errorEvents := 0
	for _, typ := range types {
		if typ == EventError {
			errorEvents++
		}
	}
	assert.Equal(t, 1, errorEvents)
	assert.Equal(t, EventError, types[len(types)-1])
	assert.Equal(t, pipeline.StepValidateRules, rec.events[len(rec.events)-1].Data.(ErrorData).Step)
	assert.Empty(t, f.listVariants(t))
}

type failingWriter struct{ err error }

func (w failingWriter) SaveVariants(context.Context, string, []storage.Variant) ([]string, error) {
	return nil, w.err
}

func TestStreamPersistenceFailure(t *testing.T) {
	f := newFixture(t, numericDataset(t))
	f.deps.Variants = failingWriter{err: errors.New("disk full")}
	c := NewController(f.deps)
	rec := &recorder{}

	_, err := c.Stream(context.Background(), Request{
		DatasetID: f.datasetID, Algorithm: "duplicates", Config: defaultConfig(),
	}, rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	last := rec.events[len(rec.events)-1]
	assert.Equal(t, EventError, last.Type)
	assert.Equal(t, CheckpointPersisting, last.Data.(ErrorData).Step)
}

func TestStreamCompleteEventLossKeepsOutcome(t *testing.T) {
	f := newFixture(t, numericDataset(t))
	c := NewController(f.deps)
	rec := &recorder{hook: func(ev Event) error {
		if ev.Type == EventComplete {
			return ErrSinkClosed
		}
		return nil
	}}

	out, err := c.Stream(context.Background(), Request{
		DatasetID: f.datasetID, Algorithm: "duplicates", Config: defaultConfig(),
	}, rec)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Len(t, f.listVariants(t), 1)
}

type brokenHistory struct{}

func (brokenHistory) RecentScores(context.Context, int) ([]storage.ScoreRecord, error) {
	return nil, errors.New("history offline")
}

func TestStreamResolvesConfigWithLearner(t *testing.T) {
	f := newFixture(t, numericDataset(t))
	f.deps.History = brokenHistory{}
	c := NewController(f.deps)
	rec := &recorder{}

	out, err := c.Stream(context.Background(), Request{DatasetID: f.datasetID, Algorithm: "full_pipeline"}, rec)
	require.NoError(t, err)
	require.NotNil(t, out.Resolution)
	assert.Equal(t, out.Resolution.Config.ImputeStrategy, out.Config.ImputeStrategy)
	assert.Equal(t, 0, out.History.Records)

	start := rec.events[0].Data.(StartData)
	require.NotNil(t, start.Training)
	assert.False(t, start.Training.Trained)
}

func TestStreamFeedsBackHistory(t *testing.T) {
	f := newFixture(t, numericDataset(t))
	c := NewController(f.deps)

	_, err := c.Stream(context.Background(), Request{
		DatasetID: f.datasetID, Algorithm: "full_pipeline", Config: defaultConfig(),
	}, nil)
	require.NoError(t, err)

	out, err := c.Stream(context.Background(), Request{DatasetID: f.datasetID, Algorithm: "duplicates"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, out.History.Records)
}

func TestManagerTracksAndCancelsRuns(t *testing.T) {
	f := newFixture(t, numericDataset(t))
	mgr := NewManager(nil)
	f.deps.Manager = mgr
	c := NewController(f.deps)

	var seen RunStatus
	rec := &recorder{hook: func(ev Event) error {
		d, ok := ev.Data.(StepData)
		if ok && d.StepNumber == 1 && d.Status == StepStatusRunning {
			list := mgr.List()
			require.Len(t, list, 1)
			seen = list[0]
			require.NoError(t, mgr.Cancel("run-x"))
		}
		return nil
	}}

	_, err := c.Stream(context.Background(), Request{
		RunID: "run-x", DatasetID: f.datasetID, Algorithm: "full_pipeline", Config: defaultConfig(),
	}, rec)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, "run-x", seen.ID)
	assert.Equal(t, StateRunning, seen.State)
	assert.Equal(t, pipeline.StepDedup, seen.CurrentStep)
	assert.Equal(t, 5, seen.TotalSteps)

	assert.Equal(t, 0, mgr.Active())
	_, ok := mgr.Get("run-x")
	assert.False(t, ok)
	assert.ErrorIs(t, mgr.Cancel("run-x"), ErrRunNotFound)
	assert.Empty(t, f.listVariants(t))
}

func TestPrepareThenExecute(t *testing.T) {
	f := newFixture(t, numericDataset(t))
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	f.deps.Now = func() time.Time { return now }
	c := NewController(f.deps)

	plan, err := c.Prepare(context.Background(), Request{
		DatasetID: f.datasetID, Algorithm: "outliers", Config: defaultConfig(),
	})
	require.NoError(t, err)
	require.Len(t, plan.Run.Steps, 1)
	assert.Empty(t, f.listVariants(t), "prepare has no side effects")

	out, err := c.Execute(context.Background(), "", plan, nil)
	require.NoError(t, err)
	require.Len(t, out.Variants, 1)
	assert.Equal(t, now, out.Variants[0].CreatedAt)
	assert.Equal(t, time.Duration(0), out.Duration)
}
