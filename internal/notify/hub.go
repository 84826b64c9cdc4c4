package notify

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// hubClient pairs a connection with its write lock. gorilla/websocket allows
// at most one concurrent writer per connection, so every write goes through
// the client's mutex.
type hubClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *hubClient) write(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(ev)
}

// Hub fans UI events out to websocket clients. A client that fails a write
// is dropped.
type Hub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]*hubClient
}

// NewHub creates an empty hub. checkOrigin decides which browser origins may
// connect; nil allows all.
func NewHub(logger *zap.Logger, checkOrigin func(*http.Request) bool) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		clients: make(map[*websocket.Conn]*hubClient),
	}
}

// ServeHTTP upgrades the request and holds the connection open until the
// client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	h.clients[conn] = &hubClient{conn: conn}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", zap.Int("clients", n))

	// Drain reads so close frames and pings are processed; the first read
	// error means the client is gone.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(conn)
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	_ = conn.Close()
}

// Broadcast sends the event to every connected client. Safe for concurrent
// callers: the connection map is snapshotted under the hub lock and each
// write is serialized by the client's own lock.
func (h *Hub) Broadcast(ev Event) {
	h.mu.Lock()
	clients := make([]*hubClient, 0, len(h.clients))
	for _, cl := range h.clients {
		clients = append(clients, cl)
	}
	h.mu.Unlock()

	for _, cl := range clients {
		if err := cl.write(ev); err != nil {
			h.logger.Debug("dropping websocket client", zap.Error(err))
			h.remove(cl.conn)
		}
	}
}

// Close disconnects all clients.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.clients = make(map[*websocket.Conn]*hubClient)
	h.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}
