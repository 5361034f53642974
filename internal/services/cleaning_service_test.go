package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adaptiveclean/internal/exporter"
	"adaptiveclean/internal/operations"
	"adaptiveclean/internal/pipeline"
	"adaptiveclean/internal/storage"
)

type eventLog struct {
	mu     sync.Mutex
	events []operations.Event
}

func (l *eventLog) Emit(_ context.Context, ev operations.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

func (l *eventLog) types() []operations.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]operations.EventType, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Type
	}
	return out
}

func TestCleaningServiceRunNotifiesObservers(t *testing.T) {
	observed := &eventLog{}
	broken := operations.SinkFunc(func(context.Context, operations.Event) error {
		return errors.New("redis down")
	})
	h := newHarness(t, broken, observed)
	id := saveDataset(t, h.repo, "", numericDataset())

	out, err := h.cleaning.Run(context.Background(), operations.Request{
		DatasetID: id, Algorithm: "duplicates", Config: defaultConfig(),
	})
	require.NoError(t, err)
	assert.Equal(t, 6, out.Rows)

	types := observed.types()
	require.NotEmpty(t, types)
	assert.Equal(t, operations.EventStart, types[0])
	assert.Equal(t, operations.EventComplete, types[len(types)-1])
}

func TestCleaningServiceStreamPrimaryFailureStopsRun(t *testing.T) {
	h := newHarness(t, &eventLog{})
	id := saveDataset(t, h.repo, "", numericDataset())

	primary := operations.SinkFunc(func(_ context.Context, ev operations.Event) error {
		if ev.Type == operations.EventStep {
			return operations.ErrSinkClosed
		}
		return nil
	})
	_, err := h.cleaning.Stream(context.Background(), operations.Request{
		DatasetID: id, Algorithm: "full_pipeline", Config: defaultConfig(),
	}, primary)
	assert.ErrorIs(t, err, operations.ErrCancelled)

	variants, err := h.cleaning.Variants(context.Background(), storage.Scope{}, id)
	require.NoError(t, err)
	assert.Empty(t, variants)
}

func TestCleaningServicePrepareThenExecute(t *testing.T) {
	h := newHarness(t)
	id := saveDataset(t, h.repo, "", numericDataset())

	_, err := h.cleaning.Prepare(context.Background(), operations.Request{DatasetID: id, Algorithm: "magic"})
	assert.ErrorIs(t, err, pipeline.ErrUnsupportedAlgorithm)

	plan, err := h.cleaning.Prepare(context.Background(), operations.Request{DatasetID: id, Algorithm: "outliers"})
	require.NoError(t, err)
	log := &eventLog{}
	out, err := h.cleaning.Execute(context.Background(), "run-7", plan, log)
	require.NoError(t, err)
	assert.Equal(t, "run-7", out.RunID)
	assert.Equal(t, operations.EventComplete, log.types()[len(log.types())-1])
}

func TestCleaningServiceRunMany(t *testing.T) {
	h := newHarness(t)
	id := saveDataset(t, h.repo, "", numericDataset())

	results, err := h.cleaning.RunMany(context.Background(),
		operations.Request{DatasetID: id, Config: defaultConfig()},
		[]string{"duplicates", "missing_values", "normalization"})
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, name := range []string{"duplicates", "missing_values", "normalization"} {
		assert.Equal(t, name, results[i].Algorithm)
		assert.Empty(t, results[i].Error)
		require.NotNil(t, results[i].Outcome)
		assert.Equal(t, name, results[i].Outcome.Algorithm)
	}

	variants, err := h.cleaning.Variants(context.Background(), storage.Scope{}, id)
	require.NoError(t, err)
	assert.Len(t, variants, 3)
}

func TestCleaningServiceRunManyRejects(t *testing.T) {
	tests := []struct {
		name       string
		algorithms []string
		wantErr    error
	}{
		{"empty", nil, ErrNoAlgorithms},
		{"unknown", []string{"duplicates", "magic"}, pipeline.ErrUnsupportedAlgorithm},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.cleaning.RunMany(context.Background(), operations.Request{DatasetID: "x"}, tt.algorithms)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, operations.ErrorTypeValidation, operations.GetErrorType(err))
		})
	}
}

func TestCleaningServiceRunManyCancelled(t *testing.T) {
	h := newHarness(t)
	id := saveDataset(t, h.repo, "", numericDataset())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := h.cleaning.RunMany(ctx, operations.Request{DatasetID: id, Config: defaultConfig()}, []string{"duplicates"})
	assert.ErrorIs(t, err, operations.ErrCancelled)
	require.Len(t, results, 1)
	assert.NotEmpty(t, results[0].Error)
}

func TestCleaningServiceRunManyReportsFailures(t *testing.T) {
	h := newHarness(t)
	results, err := h.cleaning.RunMany(context.Background(),
		operations.Request{DatasetID: "missing", Config: defaultConfig()}, []string{"duplicates", "outliers"})
	require.NoError(t, err)
	for _, r := range results {
		assert.Nil(t, r.Outcome)
		assert.Contains(t, r.Error, storage.ErrNotFound.Error())
	}
}

func TestCleaningServiceVariantsRespectScope(t *testing.T) {
	h := newHarness(t)
	id := saveDataset(t, h.repo, "alice", numericDataset())

	_, err := h.cleaning.Run(context.Background(), operations.Request{
		DatasetID: id, Scope: storage.Scope{Owner: "alice"}, Algorithm: "duplicates", Config: defaultConfig(),
	})
	require.NoError(t, err)

	_, err = h.cleaning.Variants(context.Background(), storage.Scope{Owner: "bob"}, id)
	assert.ErrorIs(t, err, storage.ErrAccessDenied)

	var buf bytes.Buffer
	err = h.cleaning.ExportVariant(context.Background(), storage.Scope{Owner: "bob"}, id, "duplicates", &buf, exporter.WriteOptions{})
	assert.ErrorIs(t, err, storage.ErrAccessDenied)
	assert.Zero(t, buf.Len())
}

func TestCleaningServiceExportVariant(t *testing.T) {
	h := newHarness(t)
	id := saveDataset(t, h.repo, "", numericDataset())
	_, err := h.cleaning.Run(context.Background(), operations.Request{
		DatasetID: id, Algorithm: "duplicates", Config: defaultConfig(),
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, h.cleaning.ExportVariant(context.Background(), storage.Scope{}, id, "duplicates", &buf, exporter.WriteOptions{}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, "a,b", lines[0])
	assert.Len(t, lines, 1+6)

	err = h.cleaning.ExportVariant(context.Background(), storage.Scope{}, id, "outliers", &buf, exporter.WriteOptions{})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCleaningServiceCancelAndAlgorithms(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.cleaning.Cancel("nope"), operations.ErrRunNotFound)
	assert.Empty(t, h.cleaning.Runs())
	_, ok := h.cleaning.RunStatus("nope")
	assert.False(t, ok)

	algs := h.cleaning.Algorithms()
	assert.Len(t, algs, len(pipeline.Algorithms()))
}

func TestCleaningServiceStaticConfig(t *testing.T) {
	h := newHarness(t)
	id := saveDataset(t, h.repo, "", numericDataset())

	adaptive, err := h.cleaning.Run(context.Background(), operations.Request{DatasetID: id, Algorithm: "outliers"})
	require.NoError(t, err)
	assert.NotNil(t, adaptive.Resolution)

	static := NewCleaningService(CleaningDeps{
		Controller:   h.controller,
		Manager:      h.manager,
		Datasets:     h.repo,
		Variants:     h.repo,
		StaticConfig: true,
		Logger:       testLogger(),
	})
	out, err := static.Run(context.Background(), operations.Request{DatasetID: id, Algorithm: "outliers"})
	require.NoError(t, err)
	assert.Nil(t, out.Resolution)
	assert.Equal(t, pipeline.DefaultConfig().OutlierMethod, out.Config.OutlierMethod)
}
