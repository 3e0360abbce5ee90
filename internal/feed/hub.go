// Package feed pushes runner events to websocket subscribers.
package feed

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/dgnsrekt/funpay-runner/internal/runner"
)

// Hub manages subscriber connections and their event kind subscriptions.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan *kindMessage
	// done is closed when Run returns.
	done       chan struct{}
	mu         sync.RWMutex
	logger     *zap.Logger
}

type kindMessage struct {
	kind    string
	payload []byte
}

// NewHub creates a new Hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *kindMessage, 256),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run processes hub events. Call this in a goroutine.
// Returns when context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("feed hub shutting down")
			h.shutdown()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("feed client registered", zap.String("connID", client.connID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.closeSend()
			}
			h.mu.Unlock()
			h.logger.Debug("feed client unregistered", zap.String("connID", client.connID))

		case msg := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				if !client.subscribed(msg.kind) {
					continue
				}
				if !client.trySend(msg.payload) {
					// Buffer full, schedule disconnect
					go h.leave(client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// shutdown closes all client connections.
func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		client.closeSend()
		delete(h.clients, client)
	}
}

// join hands client to Run. It reports false once the hub has stopped.
func (h *Hub) join(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// leave hands client to Run for removal, or gives up once the hub has
// stopped and already closed every client.
func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish queues ev for every subscriber of its kind. It never blocks; when
// the queue is full the event is dropped for the feed.
func (h *Hub) Publish(_ context.Context, ev runner.Event) error {
	payload, err := Encode(ev)
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- &kindMessage{kind: ev.Kind().String(), payload: payload}:
	default:
		h.logger.Warn("feed queue full, dropping event",
			zap.String("eventID", ev.ID()),
			zap.String("kind", ev.Kind().String()),
		)
	}
	return nil
}
