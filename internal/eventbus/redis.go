// Package eventbus fans run events out across service instances through
// Redis pub/sub. Each instance publishes the events of its own runs and
// relays the events of other instances to its local websocket hub.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"adaptiveclean/internal/operations"
)

// Envelope is the published message.
type Envelope struct {
	NodeID string           `json:"node_id"`
	Event  operations.Event `json:"event"`
}

// publisher is the part of a redis client the sink uses.
type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisSink publishes run events. It implements operations.EventSink and is
// meant to be a secondary sink: a Redis outage must not stop a run.
type RedisSink struct {
	client  publisher
	channel string
	nodeID  string
}

// NewRedisSink creates a sink publishing on channel. An empty nodeID gets a
// generated one.
func NewRedisSink(client publisher, channel, nodeID string) *RedisSink {
	if nodeID == "" {
		nodeID = uuid.NewString()
	}
	return &RedisSink{client: client, channel: channel, nodeID: nodeID}
}

// NodeID identifies this instance in published envelopes.
func (s *RedisSink) NodeID() string { return s.nodeID }

// Emit implements operations.EventSink.
func (s *RedisSink) Emit(ctx context.Context, ev operations.Event) error {
	data, err := json.Marshal(Envelope{NodeID: s.nodeID, Event: ev})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return s.client.Publish(ctx, s.channel, data).Err()
}

// Relay forwards events published by other instances to a local hub.
type Relay struct {
	client  *redis.Client
	channel string
	nodeID  string
	hub     operations.WebSocketHub
	logger  *slog.Logger
}

// NewRelay creates a relay that ignores envelopes from nodeID.
func NewRelay(client *redis.Client, channel, nodeID string, hub operations.WebSocketHub, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{client: client, channel: channel, nodeID: nodeID, hub: hub, logger: logger}
}

// Run subscribes and relays until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.logger.InfoContext(ctx, "event_relay_started", slog.String("channel", r.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(ctx, msg.Payload)
		}
	}
}

func (r *Relay) handle(ctx context.Context, payload string) {
	var env struct {
		NodeID string          `json:"node_id"`
		Event  json.RawMessage `json:"event"`
	}
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		r.logger.WarnContext(ctx, "event_relay_decode_failed", slog.String("error", err.Error()))
		return
	}
	if env.NodeID == r.nodeID {
		return
	}
	var head struct {
		Type  operations.EventType `json:"type"`
		RunID string               `json:"run_id"`
	}
	_ = json.Unmarshal(env.Event, &head)
	r.hub.BroadcastUpdate(fmt.Sprintf("run:%s", head.Type), head.RunID, "relayed", env.Event)
}
