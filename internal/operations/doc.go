// Package operations runs cleaning pipelines as tracked, streamable runs.
//
// Core Components:
//
// Controller: executes one run for a dataset and algorithm. It resolves the
// cleaning configuration from the feedback learner, applies the catalog steps
// in order, structures and splits the result and persists the variants. Every
// transition is emitted to an EventSink in order.
//
// Manager: tracks active runs so they can be listed and cancelled.
//
// EventSink: receives run events. ChannelSink, MultiSink and HubSink are
// provided here; the HTTP layer adds an SSE writer and the eventbus package a
// Redis publisher.
//
// Cancellation is cooperative. The controller checks its context before each
// step, before structuring and before persisting. A sink that fails to
// deliver an event is treated as a disconnected client. Once either is
// observed the run returns ErrCancelled, emits nothing more and writes
// nothing.
//
// Example usage:
//
//	ctrl := operations.NewController(operations.Dependencies{
//	    Datasets: repo,
//	    History:  repo,
//	    Variants: repo,
//	    Learner:  feedback.NewLearner(),
//	})
//	out, err := ctrl.Stream(ctx, operations.Request{
//	    DatasetID: id,
//	    Algorithm: "full_pipeline",
//	}, sink)
package operations
