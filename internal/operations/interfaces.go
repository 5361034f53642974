package operations

import (
	"context"
	"fmt"
)

// WebSocketHub interface for sending WebSocket messages
type WebSocketHub interface {
	BroadcastUpdate(eventType, step, status string, metadata interface{})
}

// HubSink forwards run events to a websocket hub. Broadcasting never fails,
// so a hub is always a secondary sink.
type HubSink struct {
	Hub WebSocketHub
}

// Emit implements EventSink.
func (h HubSink) Emit(_ context.Context, ev Event) error {
	if h.Hub == nil {
		return nil
	}
	step, status := "", string(ev.Type)
	switch d := ev.Data.(type) {
	case StepData:
		step, status = d.Step, d.Status
	case ErrorData:
		step = d.Step
	}
	h.Hub.BroadcastUpdate(fmt.Sprintf("run:%s", ev.Type), step, status, ev)
	return nil
}
