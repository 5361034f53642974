package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"adaptiveclean/internal/infrastructure"
)

// Message types sent by the hub itself. Run events use "run:<event>".
const (
	TypeConnection = "connection"
)

// broadcastBuffer is how many messages may wait for the hub loop.
const broadcastBuffer = 256

// Hub maintains the set of active clients and broadcasts messages to them.
// Broadcasting never blocks the caller: when the queue is full or the hub is
// stopped the message is dropped and counted.
type Hub struct {
	clients map[*Client]struct{}

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.RWMutex
	running bool
	count   int
	quit    chan struct{}
	done    chan struct{}

	logger *slog.Logger

	totalConnections atomic.Int64
	messagesSent     atomic.Int64
	messagesDropped  atomic.Int64
}

// NewHub creates a new Hub instance with dependency injection
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		logger:     logger.With(slog.String("component", "websocket_hub")),
	}
}

// Start runs the hub loop in a goroutine. It is a no-op when running.
func (h *Hub) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	go h.Run()
}

// Run is the hub loop. It owns the client set and every client's send
// channel.
func (h *Hub) Run() {
	defer close(h.done)
	for {
		select {
		case <-h.quit:
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.logger.Info("hub_stopped")
			return

		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.totalConnections.Add(1)
			h.setCount()

			ctx := infrastructure.WithTraceID(context.Background(), client.traceID)
			h.logger.InfoContext(ctx, "client_registered",
				slog.String("client_id", client.id),
				slog.String("remote_addr", client.remoteAddr),
				slog.Int("total_clients", len(h.clients)))

			if msg, err := encode(TypeConnection, "", "connected", map[string]string{"client_id": client.id}); err == nil {
				select {
				case client.send <- msg:
				default:
				}
			}

		case client := <-h.unregister:
			if _, ok := h.clients[client]; !ok {
				continue
			}
			delete(h.clients, client)
			close(client.send)
			h.setCount()

			h.logger.Info("client_unregistered",
				slog.String("client_id", client.id),
				slog.Duration("connection_duration", time.Since(client.connectedAt)),
				slog.Int("total_clients", len(h.clients)))

		case payload := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- payload:
					h.messagesSent.Add(1)
				default:
					close(client.send)
					delete(h.clients, client)
					h.setCount()
					h.logger.Warn("client_send_buffer_full",
						slog.String("client_id", client.id))
				}
			}
		}
	}
}

// setCount mirrors len(h.clients) for readers outside the loop.
func (h *Hub) setCount() {
	h.mu.Lock()
	h.count = len(h.clients)
	h.mu.Unlock()
}

// Stop stops the hub loop and closes every client. It is safe to call
// more than once.
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	close(h.quit)
	<-h.done
}

// Register adds a client. It returns false when the hub is stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.quit:
		return false
	}
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

// BroadcastUpdate sends a typed update to every client. It satisfies the
// run controller's hub interface.
func (h *Hub) BroadcastUpdate(eventType, step, status string, data interface{}) {
	msg, err := encode(eventType, step, status, data)
	if err != nil {
		h.logger.Error("broadcast_encode_failed",
			slog.String("type", eventType),
			slog.String("error", err.Error()))
		return
	}
	h.Broadcast(msg)
}

// Broadcast queues a pre-encoded message.
func (h *Hub) Broadcast(payload []byte) {
	select {
	case <-h.quit:
		h.messagesDropped.Add(1)
		return
	default:
	}
	select {
	case h.broadcast <- payload:
	default:
		h.messagesDropped.Add(1)
		h.logger.Warn("broadcast_queue_full", slog.Int("queue", len(h.broadcast)))
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Stats reports connection and message counters.
func (h *Hub) Stats() map[string]int64 {
	return map[string]int64{
		"active_clients":    int64(h.ClientCount()),
		"total_connections": h.totalConnections.Load(),
		"messages_sent":     h.messagesSent.Load(),
		"messages_dropped":  h.messagesDropped.Load(),
		"broadcast_queue":   int64(len(h.broadcast)),
	}
}

// message is the wire format of every hub message.
type message struct {
	Type      string      `json:"type"`
	Step      string      `json:"step,omitempty"`
	Status    string      `json:"status,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func encode(eventType, step, status string, data interface{}) ([]byte, error) {
	return json.Marshal(message{
		Type:      eventType,
		Step:      step,
		Status:    status,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}
