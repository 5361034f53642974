package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"adaptiveclean/internal/dataset"
	"adaptiveclean/internal/feedback"
	"adaptiveclean/internal/operations"
	"adaptiveclean/internal/pipeline"
	"adaptiveclean/internal/storage"
	"adaptiveclean/internal/storage/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func numericDataset() *dataset.Dataset {
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

func saveDataset(t *testing.T, repo *memory.Repo, owner string, d *dataset.Dataset) string {
	t.Helper()
	rec := &storage.DatasetRecord{Name: "input.csv", Scope: owner, Data: d}
	require.NoError(t, repo.SaveDataset(context.Background(), rec))
	return rec.ID
}

func defaultConfig() *pipeline.CleaningConfig {
	cfg := pipeline.DefaultConfig()
	return &cfg
}

type harness struct {
	repo       *memory.Repo
	controller *operations.Controller
	manager    *operations.Manager
	learner    *feedback.Learner
	cleaning   *CleaningService
}

func newHarness(t *testing.T, observers ...operations.EventSink) *harness {
	t.Helper()
	repo := memory.New()
	manager := operations.NewManager(testLogger())
	learner := feedback.NewLearner(feedback.WithLogger(testLogger()))
	controller := operations.NewController(operations.Dependencies{
		Datasets: repo,
		History:  repo,
		Variants: repo,
		Learner:  learner,
		Manager:  manager,
		Logger:   testLogger(),
	})
	return &harness{
		repo:       repo,
		controller: controller,
		manager:    manager,
		learner:    learner,
		cleaning: NewCleaningService(CleaningDeps{
			Controller:    controller,
			Manager:       manager,
			Datasets:      repo,
			Variants:      repo,
			Observers:     observers,
			MaxConcurrent: 2,
			Logger:        testLogger(),
		}),
	}
}

// fakeSheets serves fixed values or an error.
type fakeSheets struct {
	values [][]any
	err    error
}

func (f fakeSheets) ReadRange(context.Context, string, string) ([][]any, error) {
	return f.values, f.err
}

// failingHistory fails every read.
type failingHistory struct{}

func (failingHistory) RecentScores(context.Context, int) ([]storage.ScoreRecord, error) {
	return nil, errors.New("connection refused")
}
