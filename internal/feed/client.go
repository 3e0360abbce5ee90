package feed

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dgnsrekt/funpay-runner/internal/runner"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4 * 1024

	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

var allKinds = []string{
	runner.KindNewMessage.String(),
	runner.KindNewOrder.String(),
	runner.KindOrderStatusChanged.String(),
}

// Client is one websocket subscriber.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	connID string
	logger *zap.Logger

	mu    sync.RWMutex
	kinds map[string]bool

	// sendMu orders sends against the close of send.
	sendMu sync.Mutex
	closed bool
}

// controlMessage is what subscribers may send upstream.
type controlMessage struct {
	Type string `json:"type"` // "subscribe", "unsubscribe" or "ping"
	Kind string `json:"kind,omitempty"`
}

type connectedMessage struct {
	Type   string   `json:"type"`
	ConnID string   `json:"conn_id"`
	Kinds  []string `json:"kinds"`
}

// HandleWS upgrades the request and subscribes the connection to the kinds
// listed in the "kinds" query parameter, or to every kind.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	kinds, ok := parseKinds(r.URL.Query().Get("kinds"))
	if !ok {
		http.Error(w, "unknown event kind", http.StatusBadRequest)
		return
	}

	select {
	case <-h.done:
		http.Error(w, "feed is shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		connID: uuid.New().String(),
		logger: h.logger,
		kinds:  kinds,
	}

	if !h.join(client) {
		conn.Close()
		return
	}

	hello, _ := json.Marshal(connectedMessage{Type: "connected", ConnID: client.connID, Kinds: client.kindList()})
	client.trySend(hello)

	go client.writePump()
	go client.readPump()
}

func parseKinds(raw string) (map[string]bool, bool) {
	kinds := make(map[string]bool)
	if strings.TrimSpace(raw) == "" {
		for _, k := range allKinds {
			kinds[k] = true
		}
		return kinds, true
	}
	for _, k := range strings.Split(raw, ",") {
		k = strings.TrimSpace(k)
		if !isKnownKind(k) {
			return nil, false
		}
		kinds[k] = true
	}
	return kinds, true
}

func isKnownKind(kind string) bool {
	for _, k := range allKinds {
		if k == kind {
			return true
		}
	}
	return false
}

func (c *Client) subscribed(kind string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.kinds[kind]
}

func (c *Client) kindList() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []string
	for _, k := range allKinds {
		if c.kinds[k] {
			out = append(out, k)
		}
	}
	return out
}

// readPump reads control messages from the connection.
func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug("websocket read error",
					zap.String("connID", c.connID),
					zap.Error(err),
				)
			}
			break
		}
		c.handleMessage(message)
	}
}

// writePump writes queued messages and keepalive pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("websocket write error",
					zap.String("connID", c.connID),
					zap.Error(err),
				)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(data []byte) {
	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Debug("failed to parse control message",
			zap.String("connID", c.connID),
			zap.Error(err),
		)
		return
	}

	switch msg.Type {
	case "subscribe", "unsubscribe":
		if !isKnownKind(msg.Kind) {
			c.logger.Debug("unknown event kind", zap.String("connID", c.connID), zap.String("kind", msg.Kind))
			return
		}
		c.mu.Lock()
		if msg.Type == "subscribe" {
			c.kinds[msg.Kind] = true
		} else {
			delete(c.kinds, msg.Kind)
		}
		c.mu.Unlock()

	case "ping":
		c.trySend([]byte(`{"type":"pong"}`))
	}
}

// trySend queues payload without blocking. It reports false when the
// buffer is full or the client was already closed.
func (c *Client) trySend(payload []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// closeSend closes send once; writePump then says goodbye to the peer.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
