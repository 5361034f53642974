package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"adaptiveclean/internal/exporter"
	"adaptiveclean/internal/infrastructure"
	"adaptiveclean/internal/operations"
	"adaptiveclean/internal/pipeline"
	"adaptiveclean/internal/storage"
)

// defaultBatchConcurrency bounds RunMany when no limit is configured.
const defaultBatchConcurrency = 4

// VariantLister lists the stored variants of a dataset.
type VariantLister interface {
	ListVariants(ctx context.Context, sourceID string) ([]storage.Variant, error)
}

// CleaningDeps are the collaborators of a CleaningService.
type CleaningDeps struct {
	Controller *operations.Controller
	Manager    *operations.Manager
	Datasets   storage.DatasetProvider
	Variants   VariantLister
	Catalog    *pipeline.Catalog

	// Observers receive every run event. Their errors are logged and never
	// stop a run.
	Observers []operations.EventSink

	// StaticConfig runs requests that carry no config on
	// pipeline.DefaultConfig instead of the learner's resolution.
	StaticConfig bool

	MaxConcurrent int
	Logger        *slog.Logger
}

// CleaningService runs cleaning algorithms and exposes their output.
type CleaningService struct {
	controller    *operations.Controller
	manager       *operations.Manager
	datasets      storage.DatasetProvider
	variants      VariantLister
	catalog       *pipeline.Catalog
	observers     []operations.EventSink
	staticConfig  bool
	maxConcurrent int
	logger        *slog.Logger
}

// NewCleaningService creates the service.
func NewCleaningService(deps CleaningDeps) *CleaningService {
	logger := deps.Logger
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	catalog := deps.Catalog
	if catalog == nil {
		catalog = pipeline.DefaultCatalog()
	}
	limit := deps.MaxConcurrent
	if limit <= 0 {
		limit = defaultBatchConcurrency
	}
	return &CleaningService{
		controller:    deps.Controller,
		manager:       deps.Manager,
		datasets:      deps.Datasets,
		variants:      deps.Variants,
		catalog:       catalog,
		observers:     deps.Observers,
		staticConfig:  deps.StaticConfig,
		maxConcurrent: limit,
		logger:        infrastructure.WithComponent(logger, "cleaning_service"),
	}
}

// sink puts the caller's sink first so that its failure stops the run, and
// the observers after it.
func (s *CleaningService) sink(primary operations.EventSink) operations.EventSink {
	if len(s.observers) == 0 && primary != nil {
		return primary
	}
	m := operations.MultiSink{
		Secondary: s.observers,
		OnError: func(ev operations.Event, err error) {
			s.logger.Warn("observer_emit_failed",
				slog.String("run_id", ev.RunID),
				slog.String("event", string(ev.Type)),
				slog.String("error", err.Error()))
		},
	}
	if primary != nil {
		m.Primary = []operations.EventSink{primary}
	}
	return m
}

func (s *CleaningService) withDefaults(ctx context.Context, req operations.Request) operations.Request {
	infrastructure.SetSpanAttributes(ctx, map[string]interface{}{
		"dataset.id":       req.DatasetID,
		"clean.algorithm":  req.Algorithm,
		"clean.config_set": req.Config != nil,
	})
	if s.staticConfig && req.Config == nil {
		cfg := pipeline.DefaultConfig()
		req.Config = &cfg
	}
	return req
}

// Run executes one algorithm and waits for its outcome.
func (s *CleaningService) Run(ctx context.Context, req operations.Request) (*operations.Outcome, error) {
	return s.controller.Stream(ctx, s.withDefaults(ctx, req), s.sink(nil))
}

// Stream executes one algorithm and emits its events to sink.
func (s *CleaningService) Stream(ctx context.Context, req operations.Request, sink operations.EventSink) (*operations.Outcome, error) {
	return s.controller.Stream(ctx, s.withDefaults(ctx, req), s.sink(sink))
}

// Prepare resolves a run without starting it, so that request errors can be
// reported before a stream is opened.
func (s *CleaningService) Prepare(ctx context.Context, req operations.Request) (*operations.Plan, error) {
	return s.controller.Prepare(ctx, s.withDefaults(ctx, req))
}

// Execute runs a prepared plan and emits its events to sink.
func (s *CleaningService) Execute(ctx context.Context, runID string, plan *operations.Plan, sink operations.EventSink) (*operations.Outcome, error) {
	return s.controller.Execute(ctx, runID, plan, s.sink(sink))
}

// BatchResult is the outcome of one algorithm of a batch.
type BatchResult struct {
	Algorithm string              `json:"algorithm"`
	Outcome   *operations.Outcome `json:"outcome,omitempty"`
	Error     string              `json:"error,omitempty"`
}

// RunMany runs several algorithms on the same dataset concurrently. Every
// algorithm is validated before any run starts. A failing algorithm is
// reported in its result and does not stop the others; only cancellation of
// ctx fails the batch.
func (s *CleaningService) RunMany(ctx context.Context, req operations.Request, algorithms []string) ([]BatchResult, error) {
	if len(algorithms) == 0 {
		return nil, operations.NewValidationError("algorithm rejected", ErrNoAlgorithms)
	}
	for _, name := range algorithms {
		if _, err := pipeline.ParseAlgorithm(name); err != nil {
			return nil, operations.NewValidationError("algorithm rejected", err)
		}
	}

	results := make([]BatchResult, len(algorithms))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrent)
	for i, name := range algorithms {
		g.Go(func() error {
			r := req
			r.RunID = ""
			r.Algorithm = name
			out, err := s.Run(gctx, r)
			results[i] = BatchResult{Algorithm: name, Outcome: out}
			if err != nil {
				results[i].Error = err.Error()
				s.logger.WarnContext(gctx, "batch_run_failed",
					slog.String("algorithm", name),
					slog.String("dataset_id", req.DatasetID),
					slog.String("error", err.Error()))
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return results, operations.NewCancellationError(operations.CheckpointStart, err)
	}
	s.logger.InfoContext(ctx, "batch_completed",
		slog.String("dataset_id", req.DatasetID),
		slog.Int("algorithms", len(algorithms)))
	return results, nil
}

// Variants lists the stored variants of a dataset the caller may read.
func (s *CleaningService) Variants(ctx context.Context, scope storage.Scope, datasetID string) ([]storage.Variant, error) {
	if _, err := s.datasets.GetDataset(ctx, datasetID, scope); err != nil {
		return nil, err
	}
	return s.variants.ListVariants(ctx, datasetID)
}

// ExportVariant writes the named variant of a dataset as CSV.
func (s *CleaningService) ExportVariant(ctx context.Context, scope storage.Scope, datasetID, name string, out io.Writer, opts exporter.WriteOptions) error {
	variants, err := s.Variants(ctx, scope, datasetID)
	if err != nil {
		return err
	}
	for _, v := range variants {
		if v.AlgorithmName != name {
			continue
		}
		if v.Data == nil {
			return fmt.Errorf("variant %s has no data: %w", name, storage.ErrNotFound)
		}
		return exporter.Write(out, v.Data, opts)
	}
	return fmt.Errorf("variant %s: %w", name, storage.ErrNotFound)
}

// Cancel stops an in-flight run.
func (s *CleaningService) Cancel(runID string) error {
	return s.manager.Cancel(runID)
}

// Runs lists the in-flight runs.
func (s *CleaningService) Runs() []operations.RunStatus {
	return s.manager.List()
}

// RunStatus reports one run.
func (s *CleaningService) RunStatus(runID string) (operations.RunStatus, bool) {
	return s.manager.Get(runID)
}

// Algorithms lists the catalog.
func (s *CleaningService) Algorithms() []pipeline.AlgorithmInfo {
	return s.catalog.List()
}
