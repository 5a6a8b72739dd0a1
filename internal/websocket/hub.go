package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"straitpulse/internal/infrastructure"
	"straitpulse/pkg/contracts/events"
)

// ErrHubStopped is returned when publishing to a hub that is not running
var ErrHubStopped = errors.New("websocket hub is not running")

const (
	broadcastBuffer = 256
	clientBuffer    = 64
)

// HubStats is a point-in-time view of hub activity
type HubStats struct {
	ActiveClients    int   `json:"active_clients"`
	TotalConnections int64 `json:"total_connections"`
	MessagesSent     int64 `json:"messages_sent"`
	Dropped          int64 `json:"dropped_clients"`
}

// Hub maintains the set of active clients and fans messages out to them.
// All client bookkeeping happens on the run goroutine.
type Hub struct {
	clients map[*Client]struct{}

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.RWMutex
	running bool
	quit    chan struct{}
	done    chan struct{}

	logger  *slog.Logger
	metrics *infrastructure.DashboardMetrics
	now     func() time.Time

	pingPeriod time.Duration
	pongWait   time.Duration

	totalConnections atomic.Int64
	messagesSent     atomic.Int64
	dropped          atomic.Int64
}

// HubOption configures a Hub
type HubOption func(*Hub)

// WithMetrics records connected clients and dropped consumers
func WithMetrics(m *infrastructure.DashboardMetrics) HubOption {
	return func(h *Hub) { h.metrics = m }
}

// WithKeepalive sets the ping period and pong deadline of every client
func WithKeepalive(pingPeriod, pongWait time.Duration) HubOption {
	return func(h *Hub) {
		if pingPeriod > 0 && pongWait > pingPeriod {
			h.pingPeriod = pingPeriod
			h.pongWait = pongWait
		}
	}
}

// WithHubClock overrides the clock used for message timestamps
func WithHubClock(now func() time.Time) HubOption {
	return func(h *Hub) { h.now = now }
}

// NewHub creates a new Hub. Call Start before use.
func NewHub(logger *slog.Logger, opts ...HubOption) *Hub {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}

	h := &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger.With(slog.String("component", "websocket.hub")),
		now:        time.Now,
		pingPeriod: defaultPingPeriod,
		pongWait:   defaultPongWait,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Start launches the run loop. Starting a running hub is a no-op.
func (h *Hub) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return
	}
	h.running = true
	h.quit = make(chan struct{})
	h.done = make(chan struct{})
	go h.run(h.quit, h.done)
}

// Stop ends the run loop and disconnects every client. It returns once the
// loop has exited.
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	quit, done := h.quit, h.done
	h.mu.Unlock()

	close(quit)
	<-done
}

func (h *Hub) channels() (chan struct{}, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.quit, h.running
}

func (h *Hub) run(quit, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-quit:
			h.mu.Lock()
			remaining := len(h.clients)
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			if h.metrics != nil && remaining > 0 {
				h.metrics.WebSocketClients.Add(context.Background(), -int64(remaining))
			}
			h.logger.Info("Hub shutting down", slog.Int("disconnected", remaining))
			return

		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client, "closed")

		case message := <-h.broadcast:
			h.fanOut(message)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	h.totalConnections.Add(1)

	ctx := client.context()
	if h.metrics != nil {
		h.metrics.WebSocketClients.Add(ctx, 1)
	}
	h.logger.InfoContext(ctx, "Client registered",
		slog.Int("total_clients", count),
		slog.String("client_id", client.id),
		slog.String("remote_addr", client.remoteAddr))

	hello, err := h.encode(ctx, events.MessageTypeConnect, events.ConnectionInfo{
		Status:   "connected",
		ClientID: client.id,
		Protocol: events.ProtocolName,
		Version:  events.ProtocolVersion,
	})
	if err != nil {
		return
	}
	select {
	case client.send <- hello:
	default:
		h.logger.WarnContext(ctx, "Client buffer full before connect message",
			slog.String("client_id", client.id))
	}
}

func (h *Hub) removeClient(client *Client, reason string) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	close(client.send)
	count := len(h.clients)
	h.mu.Unlock()

	ctx := client.context()
	if h.metrics != nil {
		h.metrics.WebSocketClients.Add(ctx, -1)
	}
	h.logger.InfoContext(ctx, "Client unregistered",
		slog.Int("total_clients", count),
		slog.String("client_id", client.id),
		slog.String("reason", reason),
		slog.Duration("connection_duration", h.now().Sub(client.connectedAt)))
}

func (h *Hub) fanOut(message []byte) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		select {
		case client.send <- message:
			h.messagesSent.Add(1)
		default:
			// slow consumer; it reconnects and resyncs from GET /selection
			h.dropped.Add(1)
			infrastructure.RecordSystemError(client.context(), h.metrics, "slow_consumer", "websocket")
			h.removeClient(client, "send buffer full")
		}
	}

	h.logger.Debug("Broadcast delivered",
		slog.Int("client_count", len(clients)),
		slog.Int("message_size", len(message)))
}

func (h *Hub) encode(ctx context.Context, msgType events.MessageType, data interface{}) ([]byte, error) {
	msg := events.NewMessage(msgType, data, infrastructure.GetTraceID(ctx), h.now())
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.ErrorContext(ctx, "Error marshaling message",
			slog.String("error", err.Error()),
			slog.String("message_type", string(msgType)))
		return nil, err
	}
	return payload, nil
}

// Publish queues a message for every connected client. It blocks only while
// the broadcast queue is full, and gives up when ctx ends or the hub stops.
func (h *Hub) Publish(ctx context.Context, msgType events.MessageType, data interface{}) error {
	quit, running := h.channels()
	if !running {
		return ErrHubStopped
	}

	payload, err := h.encode(ctx, msgType, data)
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- payload:
		return nil
	case <-quit:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) error {
	quit, running := h.channels()
	if !running {
		return ErrHubStopped
	}
	select {
	case h.register <- client:
		return nil
	case <-quit:
		return ErrHubStopped
	}
}

// Unregister removes a client. It is safe to call after Stop.
func (h *Hub) Unregister(client *Client) {
	quit, running := h.channels()
	if !running {
		return
	}
	select {
	case h.unregister <- client:
	case <-quit:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats returns current hub counters
func (h *Hub) Stats() HubStats {
	return HubStats{
		ActiveClients:    h.ClientCount(),
		TotalConnections: h.totalConnections.Load(),
		MessagesSent:     h.messagesSent.Load(),
		Dropped:          h.dropped.Load(),
	}
}

// Running reports whether the run loop is active
func (h *Hub) Running() bool {
	_, running := h.channels()
	return running
}
