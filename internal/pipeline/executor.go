package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"adaptiveclean/internal/dataset"
	"adaptiveclean/internal/quality"
	"adaptiveclean/internal/transform"
)

// ErrTransformFailure matches every StepError with errors.Is.
var ErrTransformFailure = errors.New("transform failure")

// StepError reports a step whose transform failed.
type StepError struct {
	StepID string
	Label  string
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s (%s) failed: %v", e.StepID, e.Label, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrTransformFailure) match.
func (e *StepError) Is(target error) bool { return target == ErrTransformFailure }

// StepScore is the quality score of one step.
type StepScore struct {
	StepID string  `json:"step_id"`
	Score  float64 `json:"score"`
}

// LogEntry is one line of the run log.
type LogEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	Action    string            `json:"action"`
	Details   transform.Details `json:"details"`
}

// StepOutcome is what applying one step produced.
type StepOutcome struct {
	ID         string            `json:"id"`
	Label      string            `json:"label"`
	Stage      Stage             `json:"stage"`
	Technique  string            `json:"technique"`
	RowsBefore int               `json:"rows_before"`
	RowsAfter  int               `json:"row_count"`
	Score      float64           `json:"score"`
	Scored     bool              `json:"scored"`
	Duration   time.Duration     `json:"duration"`
	Details    transform.Details `json:"details"`
	Dataset    *dataset.Dataset  `json:"-"`
}

// RunResult is the value returned by a completed run.
type RunResult struct {
	Algorithm Algorithm        `json:"algorithm"`
	Config    CleaningConfig   `json:"config"`
	Dataset   *dataset.Dataset `json:"-"`
	Scores    []StepScore      `json:"scores"`
	Logs      []LogEntry       `json:"logs"`
	Steps     []StepOutcome    `json:"steps"`
	RowsIn    int              `json:"rows_in"`
}

// NewRunResult starts a result for run over ds.
func NewRunResult(run Run, ds *dataset.Dataset) RunResult {
	return RunResult{
		Algorithm: run.Algorithm,
		Config:    run.Config,
		Dataset:   ds,
		RowsIn:    ds.Len(),
	}
}

// Record appends a step outcome and makes its dataset current.
func (r *RunResult) Record(o StepOutcome, at time.Time) {
	r.Dataset = o.Dataset
	r.Steps = append(r.Steps, o)
	if o.Scored {
		r.Scores = append(r.Scores, StepScore{StepID: o.ID, Score: o.Score})
	}
	details := transform.Details{
		"step":        o.ID,
		"technique":   o.Technique,
		"rows_before": o.RowsBefore,
		"rows_after":  o.RowsAfter,
	}
	for k, v := range o.Details {
		details[k] = v
	}
	r.Logs = append(r.Logs, LogEntry{Timestamp: at, Action: o.Label, Details: details})
}

// ScoreValues returns the step scores in run order.
func (r RunResult) ScoreValues() []float64 {
	out := make([]float64, len(r.Scores))
	for i, s := range r.Scores {
		out[i] = s.Score
	}
	return out
}

// ScoreMap returns the scores keyed by step id.
func (r RunResult) ScoreMap() map[string]float64 {
	out := make(map[string]float64, len(r.Scores))
	for _, s := range r.Scores {
		out[s.StepID] = s.Score
	}
	return out
}

// QualityScore is the mean step score.
func (r RunResult) QualityScore() float64 {
	return quality.Mean(r.ScoreValues())
}

// ApplyStep runs one step. A panicking or failing transform becomes a
// *StepError.
func ApplyStep(step StepDescriptor, in *dataset.Dataset) (out StepOutcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &StepError{StepID: step.ID, Label: step.Label, Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	start := time.Now()
	next, details, terr := step.Transform(in)
	if terr != nil {
		return StepOutcome{}, &StepError{StepID: step.ID, Label: step.Label, Err: terr}
	}
	if next == nil {
		return StepOutcome{}, &StepError{StepID: step.ID, Label: step.Label, Err: errors.New("transform returned no dataset")}
	}

	out = StepOutcome{
		ID:         step.ID,
		Label:      step.Label,
		Stage:      step.Stage,
		Technique:  step.Technique,
		RowsBefore: in.Len(),
		RowsAfter:  next.Len(),
		Scored:     step.Scored,
		Duration:   time.Since(start),
		Details:    details,
		Dataset:    next,
	}
	if step.Scored {
		out.Score = quality.Score(in, next)
	}
	return out, nil
}

// Executor runs resolved pipelines.
type Executor struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewExecutor returns an executor that logs through logger, or slog.Default
// when logger is nil.
func NewExecutor(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{logger: logger.With(slog.String("component", "pipeline_executor")), now: time.Now}
}

// Run applies the steps of run to ds in order. Cancellation is checked before
// each step; the first failing step aborts the run.
func (e *Executor) Run(ctx context.Context, ds *dataset.Dataset, run Run) (RunResult, error) {
	result := NewRunResult(run, ds)
	e.logger.InfoContext(ctx, "run_start",
		slog.String("algorithm", run.Algorithm.String()),
		slog.Int("total_steps", len(run.Steps)),
		slog.Int("rows", ds.Len()))

	for i, step := range run.Steps {
		select {
		case <-ctx.Done():
			e.logger.WarnContext(ctx, "run_cancelled",
				slog.String("algorithm", run.Algorithm.String()),
				slog.String("step", step.ID))
			return RunResult{}, fmt.Errorf("run cancelled before step %s: %w", step.ID, ctx.Err())
		default:
		}

		o, err := ApplyStep(step, result.Dataset)
		if err != nil {
			e.logger.ErrorContext(ctx, "step_failed",
				slog.String("algorithm", run.Algorithm.String()),
				slog.String("step", step.ID),
				slog.Int("step_number", i+1),
				slog.String("error", err.Error()))
			return RunResult{}, err
		}
		result.Record(o, e.now())
		e.logger.InfoContext(ctx, "step_completed",
			slog.String("algorithm", run.Algorithm.String()),
			slog.String("step", step.ID),
			slog.Int("step_number", i+1),
			slog.Int("row_count", o.RowsAfter),
			slog.Float64("score", o.Score),
			slog.Duration("duration", o.Duration))
	}

	e.logger.InfoContext(ctx, "run_completed",
		slog.String("algorithm", run.Algorithm.String()),
		slog.Int("rows", result.Dataset.Len()),
		slog.Float64("quality_score", result.QualityScore()))
	return result, nil
}
