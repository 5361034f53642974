package operations

import (
	"context"
	"errors"
	"time"

	"adaptiveclean/internal/feedback"
	"adaptiveclean/internal/pipeline"
)

// EventType names a run event.
type EventType string

const (
	EventStart    EventType = "start"
	EventStep     EventType = "step"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Step statuses carried by step events.
const (
	StepStatusRunning   = "running"
	StepStatusCompleted = "completed"
)

// Event is one run transition. Seq starts at 1 and increases by one per
// event of a run.
type Event struct {
	Seq       int64     `json:"seq"`
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// StartData is the payload of a start event.
type StartData struct {
	Algorithm  string                   `json:"algorithm"`
	DatasetID  string                   `json:"dataset_id"`
	TotalSteps int                      `json:"total_steps"`
	Steps      []string                 `json:"steps"`
	Config     map[string]any           `json:"config"`
	History    feedback.HistorySnapshot `json:"history"`
	Model      string                   `json:"model,omitempty"`
	Training   *feedback.TrainingResult `json:"training,omitempty"`
	Overrides  []string                 `json:"overrides,omitempty"`
}

// StepData is the payload of a step event. RowCount and Score are set once
// the step has completed.
type StepData struct {
	Step       string   `json:"step"`
	Label      string   `json:"label"`
	StepNumber int      `json:"step_number"`
	TotalSteps int      `json:"total_steps"`
	Status     string   `json:"status"`
	RowCount   *int     `json:"row_count,omitempty"`
	Score      *float64 `json:"score,omitempty"`
}

// CompleteData is the payload of a complete event.
type CompleteData struct {
	Rows         int                  `json:"rows"`
	Columns      int                  `json:"columns"`
	Scores       []pipeline.StepScore `json:"scores"`
	QualityScore float64              `json:"quality_score"`
	Logs         []pipeline.LogEntry  `json:"logs"`
	VariantIDs   []string             `json:"variant_ids"`
	Groups       []string             `json:"groups"`
}

// ErrorData is the payload of an error event.
type ErrorData struct {
	Message string `json:"message"`
	Step    string `json:"step,omitempty"`
}

// EventSink receives the events of a run in order. An error means the
// receiver is gone and stops the run.
type EventSink interface {
	Emit(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(ctx context.Context, ev Event) error

// Emit calls f.
func (f SinkFunc) Emit(ctx context.Context, ev Event) error { return f(ctx, ev) }

// DiscardSink drops every event. Batch runs use it.
var DiscardSink EventSink = SinkFunc(func(context.Context, Event) error { return nil })

// ErrSinkClosed is returned by a ChannelSink after Close.
var ErrSinkClosed = errors.New("event sink closed")

// ChannelSink delivers events on a channel. Emit blocks until the event is
// received or ctx is done.
type ChannelSink struct {
	ch     chan Event
	closed chan struct{}
}

// NewChannelSink returns a sink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{ch: make(chan Event, buffer), closed: make(chan struct{})}
}

// Events is the receiving side.
func (s *ChannelSink) Events() <-chan Event { return s.ch }

// Emit implements EventSink.
func (s *ChannelSink) Emit(ctx context.Context, ev Event) error {
	select {
	case <-s.closed:
		return ErrSinkClosed
	default:
	}
	select {
	case s.ch <- ev:
		return nil
	case <-s.closed:
		return ErrSinkClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close marks the receiver as gone. Later Emits fail with ErrSinkClosed.
func (s *ChannelSink) Close() {
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
}

// MultiSink fans events out. Primary sinks are the client; their failure
// stops the run. Secondary sinks are observers whose errors are reported to
// OnError and otherwise ignored.
type MultiSink struct {
	Primary   []EventSink
	Secondary []EventSink
	OnError   func(ev Event, err error)
}

// Emit implements EventSink.
func (m MultiSink) Emit(ctx context.Context, ev Event) error {
	for _, s := range m.Primary {
		if err := s.Emit(ctx, ev); err != nil {
			return err
		}
	}
	for _, s := range m.Secondary {
		if err := s.Emit(ctx, ev); err != nil && m.OnError != nil {
			m.OnError(ev, err)
		}
	}
	return nil
}
