package operations

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelSink(t *testing.T) {
	s := NewChannelSink(1)
	require.NoError(t, s.Emit(context.Background(), Event{Seq: 1}))
	ev := <-s.Events()
	assert.Equal(t, int64(1), ev.Seq)

	// buffer full and nobody reading: the context decides
	require.NoError(t, s.Emit(context.Background(), Event{Seq: 2}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Emit(ctx, Event{Seq: 3}), context.Canceled)

	s.Close()
	s.Close()
	assert.ErrorIs(t, s.Emit(context.Background(), Event{Seq: 4}), ErrSinkClosed)
}

func TestMultiSink(t *testing.T) {
	boom := errors.New("observer down")
	var primary, secondary []int64
	var reported []error

	m := MultiSink{
		Primary: []EventSink{SinkFunc(func(_ context.Context, ev Event) error {
			primary = append(primary, ev.Seq)
			return nil
		})},
		Secondary: []EventSink{SinkFunc(func(_ context.Context, ev Event) error {
			secondary = append(secondary, ev.Seq)
			return boom
		})},
		OnError: func(_ Event, err error) { reported = append(reported, err) },
	}
	require.NoError(t, m.Emit(context.Background(), Event{Seq: 1}))
	assert.Equal(t, []int64{1}, primary)
	assert.Equal(t, []int64{1}, secondary)
	assert.Equal(t, []error{boom}, reported)

	m.Primary = append(m.Primary, SinkFunc(func(context.Context, Event) error { return ErrSinkClosed }))
	assert.ErrorIs(t, m.Emit(context.Background(), Event{Seq: 2}), ErrSinkClosed)
	assert.Equal(t, []int64{1}, secondary, "secondary sinks are skipped once the client is gone")
}

type fakeHub struct {
	calls [][3]string
}

func (h *fakeHub) BroadcastUpdate(eventType, step, status string, _ interface{}) {
	h.calls = append(h.calls, [3]string{eventType, step, status})
}

func TestHubSink(t *testing.T) {
	hub := &fakeHub{}
	s := HubSink{Hub: hub}
	ctx := context.Background()

	require.NoError(t, s.Emit(ctx, Event{Type: EventStart, Data: StartData{}}))
	require.NoError(t, s.Emit(ctx, Event{Type: EventStep, Data: StepData{Step: "duplicate_removal", Status: StepStatusRunning}}))
	require.NoError(t, s.Emit(ctx, Event{Type: EventError, Data: ErrorData{Step: "normalization", Message: "x"}}))

	assert.Equal(t, [][3]string{
		{"run:start", "", "start"},
		{"run:step", "duplicate_removal", "running"},
		{"run:error", "normalization", "error"},
	}, hub.calls)

	assert.NoError(t, HubSink{}.Emit(ctx, Event{Type: EventStart}))
}

func TestOperationErrorMatching(t *testing.T) {
	cause := context.Canceled
	err := NewCancellationError("normalization", cause)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "[cancellation] normalization: run was cancelled: context canceled", err.Error())

	exec := NewExecutionError("normalization", errors.New("bad"))
	assert.NotErrorIs(t, exec, ErrCancelled)
	assert.Equal(t, ErrorTypeExecution, GetErrorType(exec))
	assert.Equal(t, ErrorTypeExecution, GetErrorType(errors.New("plain")))
	assert.Equal(t, ErrorType(""), GetErrorType(nil))

	wrapped := WrapError(NewValidationError("bad input", nil), "start", "ignored")
	assert.Equal(t, "start", wrapped.Step)
	assert.Equal(t, ErrorTypeValidation, wrapped.Type)
	assert.Nil(t, WrapError(nil, "x", "y"))
}
