package operations

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"adaptiveclean/internal/dataset"
	"adaptiveclean/internal/feedback"
	"adaptiveclean/internal/infrastructure"
	"adaptiveclean/internal/pipeline"
	"adaptiveclean/internal/storage"
	"adaptiveclean/internal/transform"
)

// Checkpoint names used in errors and events outside the catalog steps.
const (
	CheckpointStart       = "start"
	CheckpointStructuring = "structuring"
	CheckpointPersisting  = "persisting"
)

// DefaultHistoryLimit is how many recent scores feed config resolution.
const DefaultHistoryLimit = feedback.MaxTrainingRecords

// Dependencies are the collaborators of a Controller. Datasets, History and
// Variants are required; the rest have defaults.
type Dependencies struct {
	Catalog      *pipeline.Catalog
	Datasets     storage.DatasetProvider
	History      storage.HistoryReader
	Variants     storage.VariantWriter
	Learner      *feedback.Learner
	Manager      *Manager
	Metrics      *infrastructure.BusinessMetrics
	Logger       *slog.Logger
	HistoryLimit int
	Now          func() time.Time
}

// Controller executes runs and streams their events.
type Controller struct {
	catalog      *pipeline.Catalog
	datasets     storage.DatasetProvider
	history      storage.HistoryReader
	variants     storage.VariantWriter
	learner      *feedback.Learner
	manager      *Manager
	metrics      *infrastructure.BusinessMetrics
	logger       *slog.Logger
	tracer       trace.Tracer
	historyLimit int
	now          func() time.Time
}

// NewController creates a controller from deps.
func NewController(deps Dependencies) *Controller {
	c := &Controller{
		catalog:      deps.Catalog,
		datasets:     deps.Datasets,
		history:      deps.History,
		variants:     deps.Variants,
		learner:      deps.Learner,
		manager:      deps.Manager,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
		historyLimit: deps.HistoryLimit,
		now:          deps.Now,
		tracer:       otel.Tracer("adaptiveclean/operations"),
	}
	if c.catalog == nil {
		c.catalog = pipeline.DefaultCatalog()
	}
	if c.logger == nil {
		c.logger = infrastructure.GetLogger()
	}
	c.logger = infrastructure.WithComponent(c.logger, "run_controller")
	if c.historyLimit <= 0 {
		c.historyLimit = DefaultHistoryLimit
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Request selects what to run.
type Request struct {
	RunID     string
	DatasetID string
	Scope     storage.Scope
	Algorithm string

	// Config skips the learner when set.
	Config *pipeline.CleaningConfig

	// Rules and ReferenceData enable the validation steps of the full
	// pipeline on top of the resolved config.
	Rules         map[string]transform.Rule
	ReferenceData map[string][]any
}

// Outcome describes a completed run.
type Outcome struct {
	RunID      string                   `json:"run_id"`
	DatasetID  string                   `json:"dataset_id"`
	Algorithm  string                   `json:"algorithm"`
	Config     pipeline.CleaningConfig  `json:"config"`
	Resolution *feedback.Resolution     `json:"resolution,omitempty"`
	History    feedback.HistorySnapshot `json:"history"`
	Result     pipeline.RunResult       `json:"result"`
	Rows       int                      `json:"rows"`
	Columns    int                      `json:"columns"`
	Variants   []storage.Variant        `json:"variants"`
	Groups     []string                 `json:"groups"`
	Duration   time.Duration            `json:"duration"`
}

// VariantIDs returns the persisted variant ids in group order.
func (o *Outcome) VariantIDs() []string {
	ids := make([]string, len(o.Variants))
	for i, v := range o.Variants {
		ids[i] = v.ID
	}
	return ids
}

// Plan is a resolved run that has not started yet.
type Plan struct {
	Run        pipeline.Run
	Source     *storage.DatasetRecord
	Resolution *feedback.Resolution
	History    feedback.HistorySnapshot
}

// Prepare validates the algorithm, loads the dataset and resolves the
// config. It has no side effects besides training the learner.
func (c *Controller) Prepare(ctx context.Context, req Request) (*Plan, error) {
	alg, err := pipeline.ParseAlgorithm(req.Algorithm)
	if err != nil {
		return nil, NewValidationError("algorithm rejected", err)
	}

	rec, err := c.datasets.GetDataset(ctx, req.DatasetID, req.Scope)
	if err != nil {
		return nil, err
	}

	scores := c.readHistory(ctx)
	plan := &Plan{Source: rec, History: feedback.Snapshot(scores)}

	var cfg pipeline.CleaningConfig
	switch {
	case req.Config != nil:
		cfg = *req.Config
	case c.learner != nil:
		res := c.learner.ResolveConfig(ctx, dataset.Characterize(rec.Data), scores)
		plan.Resolution = &res
		cfg = res.Config
	default:
		cfg = pipeline.DefaultConfig()
	}
	if len(req.Rules) > 0 {
		cfg.Rules = req.Rules
	}
	if len(req.ReferenceData) > 0 {
		cfg.ReferenceData = req.ReferenceData
	}

	plan.Run, err = c.catalog.Resolve(alg.String(), cfg)
	if err != nil {
		return nil, NewValidationError("algorithm rejected", err)
	}
	return plan, nil
}

// readHistory returns the chronological score history. A failed read only
// costs the learner its history.
func (c *Controller) readHistory(ctx context.Context) []float64 {
	if c.history == nil {
		return nil
	}
	recs, err := c.history.RecentScores(ctx, c.historyLimit)
	if err != nil {
		c.logger.WarnContext(ctx, "history_unavailable", slog.String("error", err.Error()))
		return nil
	}
	return storage.Chronological(recs)
}

// Stream executes a run and emits its events to sink. Errors before the
// start event (unsupported algorithm, dataset lookup) are returned without
// any event. A cancelled run returns an error matching ErrCancelled and has
// persisted nothing.
func (c *Controller) Stream(ctx context.Context, req Request, sink EventSink) (*Outcome, error) {
	plan, err := c.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	return c.Execute(ctx, req.RunID, plan, sink)
}

// Execute runs a prepared plan. An empty runID gets a generated one.
func (c *Controller) Execute(ctx context.Context, runID string, plan *Plan, sink EventSink) (*Outcome, error) {
	if runID == "" {
		runID = uuid.NewString()
	}
	if sink == nil {
		sink = DiscardSink
	}
	alg := plan.Run.Algorithm.String()

	ctx, span := c.tracer.Start(ctx, "operations.run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("run.algorithm", alg),
			attribute.String("dataset.id", plan.Source.ID),
			attribute.Int("run.total_steps", len(plan.Run.Steps)),
		))
	defer span.End()

	var state *runState
	if c.manager != nil {
		var release func()
		var err error
		ctx, state, release, err = c.manager.begin(ctx, runID, plan.Source.ID, alg)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		defer release()
	} else {
		state = newRunState(runID, plan.Source.ID, alg, c.now())
	}

	infrastructure.RecordActiveRunChange(ctx, c.metrics, 1, alg)
	defer infrastructure.RecordActiveRunChange(ctx, c.metrics, -1, alg)

	r := &execution{
		Controller: c,
		plan:       plan,
		state:      state,
		sink:       sink,
		runID:      runID,
		span:       span,
		logger:     c.logger.With(slog.String("run_id", runID), slog.String("algorithm", alg)),
		started:    c.now(),
	}
	return r.run(ctx)
}

// execution is the state of one Execute call.
type execution struct {
	*Controller
	plan    *Plan
	state   *runState
	sink    EventSink
	runID   string
	seq     int64
	span    trace.Span
	logger  *slog.Logger
	started time.Time
}

func (r *execution) emit(ctx context.Context, typ EventType, data any) error {
	r.seq++
	return r.sink.Emit(ctx, Event{
		Seq:       r.seq,
		Type:      typ,
		RunID:     r.runID,
		Timestamp: r.now().UTC(),
		Data:      data,
	})
}

// checkpoint reports a cancellation observed before checkpoint.
func (r *execution) checkpoint(ctx context.Context, checkpoint string) error {
	if err := ctx.Err(); err != nil {
		return r.cancelled(ctx, checkpoint, err)
	}
	return nil
}

func (r *execution) cancelled(ctx context.Context, checkpoint string, cause error) error {
	r.state.Fail(StateCancelled, nil, r.now())
	reason := "client_disconnected"
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		reason = "context_done"
	}
	r.logger.WarnContext(ctx, "run_cancelled",
		slog.String("checkpoint", checkpoint),
		slog.String("reason", reason),
		slog.String("cause", cause.Error()))
	// the run context may already be done, so metrics use a detached one
	mctx := context.WithoutCancel(ctx)
	infrastructure.RecordRunCancellation(mctx, r.metrics, r.plan.Run.Algorithm.String(), reason)
	infrastructure.RecordRunMetrics(mctx, r.metrics, r.plan.Run.Algorithm.String(), r.plan.Source.Data.Len(),
		r.now().Sub(r.started), "cancelled", nil)
	r.span.SetStatus(codes.Error, "cancelled")
	return NewCancellationError(checkpoint, cause)
}

func (r *execution) failed(ctx context.Context, step string, err error) error {
	r.state.Fail(StateError, err, r.now())
	r.logger.ErrorContext(ctx, "run_failed",
		slog.String("step", step),
		slog.String("error", err.Error()))
	r.span.RecordError(err)
	r.span.SetStatus(codes.Error, err.Error())
	infrastructure.RecordRunMetrics(ctx, r.metrics, r.plan.Run.Algorithm.String(), r.plan.Source.Data.Len(),
		r.now().Sub(r.started), "failed", err)

	if emitErr := r.emit(ctx, EventError, ErrorData{Message: err.Error(), Step: step}); emitErr != nil {
		r.logger.WarnContext(ctx, "error_event_undelivered", slog.String("error", emitErr.Error()))
	}
	return NewExecutionError(step, err)
}

func (r *execution) run(ctx context.Context) (*Outcome, error) {
	run := r.plan.Run
	total := len(run.Steps)

	if err := r.checkpoint(ctx, CheckpointStart); err != nil {
		return nil, err
	}

	start := StartData{
		Algorithm:  run.Algorithm.String(),
		DatasetID:  r.plan.Source.ID,
		TotalSteps: total,
		Steps:      make([]string, total),
		Config:     run.Config.Summary(),
		History:    r.plan.History,
	}
	for i, s := range run.Steps {
		start.Steps[i] = s.ID
	}
	if res := r.plan.Resolution; res != nil {
		start.Model = res.Recommendation.Model
		training := res.Training
		start.Training = &training
		start.Overrides = res.Overrides
	}
	r.logger.InfoContext(ctx, "run_start",
		slog.String("dataset_id", r.plan.Source.ID),
		slog.Int("total_steps", total),
		slog.Int("rows", r.plan.Source.Data.Len()))
	if err := r.emit(ctx, EventStart, start); err != nil {
		return nil, r.cancelled(ctx, CheckpointStart, err)
	}

	result := pipeline.NewRunResult(run, r.plan.Source.Data)
	for i, step := range run.Steps {
		if err := r.checkpoint(ctx, step.ID); err != nil {
			return nil, err
		}
		r.state.StepStarted(step.ID, i+1, total)

		running := StepData{Step: step.ID, Label: step.Label, StepNumber: i + 1, TotalSteps: total, Status: StepStatusRunning}
		if err := r.emit(ctx, EventStep, running); err != nil {
			return nil, r.cancelled(ctx, step.ID, err)
		}

		o, err := pipeline.ApplyStep(step, result.Dataset)
		infrastructure.RecordStepMetrics(ctx, r.metrics, run.Algorithm.String(), step.ID, string(step.Stage), o.Duration, err == nil)
		if err != nil {
			return nil, r.failed(ctx, step.ID, err)
		}
		result.Record(o, r.now())
		r.span.AddEvent("step.completed", trace.WithAttributes(
			attribute.String("step.id", step.ID),
			attribute.Int("step.row_count", o.RowsAfter),
		))
		r.logger.InfoContext(ctx, "step_completed",
			slog.String("step", step.ID),
			slog.Int("step_number", i+1),
			slog.Int("row_count", o.RowsAfter),
			slog.Float64("score", o.Score),
			slog.Duration("duration", o.Duration))

		completed := running
		completed.Status = StepStatusCompleted
		rows := o.RowsAfter
		completed.RowCount = &rows
		if o.Scored {
			score := o.Score
			completed.Score = &score
		}
		if err := r.emit(ctx, EventStep, completed); err != nil {
			return nil, r.cancelled(ctx, step.ID, err)
		}
	}

	if err := r.checkpoint(ctx, CheckpointStructuring); err != nil {
		return nil, err
	}
	r.state.Transition(StateStructuring, r.now())
	variants, details, err := pipeline.BuildVariants(r.plan.Source.ID, result, r.now().UTC())
	if err != nil {
		return nil, r.failed(ctx, CheckpointStructuring, err)
	}
	groups, _ := details["groups"].([]string)

	if err := r.checkpoint(ctx, CheckpointPersisting); err != nil {
		return nil, err
	}
	r.state.Transition(StatePersisting, r.now())
	ids, err := r.variants.SaveVariants(ctx, r.plan.Source.ID, variants)
	if err != nil {
		if ctx.Err() != nil {
			return nil, r.cancelled(ctx, CheckpointPersisting, ctx.Err())
		}
		return nil, r.failed(ctx, CheckpointPersisting, err)
	}
	for i := range variants {
		variants[i].ID = ids[i]
		for j := range variants[i].Scores {
			variants[i].Scores[j].VariantID = ids[i]
		}
	}

	final := variants[0].Data
	out := &Outcome{
		RunID:      r.runID,
		DatasetID:  r.plan.Source.ID,
		Algorithm:  run.Algorithm.String(),
		Config:     run.Config,
		Resolution: r.plan.Resolution,
		History:    r.plan.History,
		Result:     result,
		Rows:       final.Len(),
		Columns:    final.Width(),
		Variants:   variants,
		Groups:     groups,
	}

	r.state.Transition(StateComplete, r.now())
	out.Duration = r.now().Sub(r.started)
	infrastructure.RecordRunMetrics(ctx, r.metrics, out.Algorithm, r.plan.Source.Data.Len(), out.Duration, "completed", nil)
	infrastructure.RecordRunQuality(ctx, r.metrics, out.Algorithm, result.QualityScore(), len(variants))
	r.logger.InfoContext(ctx, "run_completed",
		slog.Int("rows", out.Rows),
		slog.Int("columns", out.Columns),
		slog.Int("variants", len(variants)),
		slog.Float64("quality_score", result.QualityScore()),
		slog.Duration("duration", out.Duration))

	complete := CompleteData{
		Rows:         out.Rows,
		Columns:      out.Columns,
		Scores:       result.Scores,
		QualityScore: result.QualityScore(),
		Logs:         result.Logs,
		VariantIDs:   ids,
		Groups:       groups,
	}
	if err := r.emit(ctx, EventComplete, complete); err != nil {
		// the variants are committed; only the notification is lost
		r.logger.WarnContext(ctx, "complete_event_undelivered", slog.String("error", err.Error()))
	}
	return out, nil
}
