package realtime

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 16
)

// HubConfig configures the websocket hub.
type HubConfig struct {
	Debounce       time.Duration
	AllowedOrigins []string
	// OnClientCount observes the number of connected clients after each change.
	OnClientCount func(int)
	Logger        *zap.Logger
}

// Hub tracks websocket clients and broadcasts coalesced sync frames.
type Hub struct {
	upgrader websocket.Upgrader
	debounce time.Duration
	onCount  func(int)
	logger   *zap.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	pending map[string]struct{}
	timer   *time.Timer
	closed  bool
}

type client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte
	once   sync.Once
}

// NewHub builds a hub. Debounce defaults to 1.5s.
func NewHub(cfg HubConfig) *Hub {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 1500 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.OnClientCount == nil {
		cfg.OnClientCount = func(int) {}
	}
	h := &Hub{
		debounce: cfg.Debounce,
		onCount:  cfg.OnClientCount,
		logger:   cfg.Logger,
		clients:  make(map[*client]struct{}),
		pending:  make(map[string]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return h
}

// Serve upgrades the request and registers the connection for userID.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &client{hub: h, conn: conn, userID: userID, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	h.onCount(count)
	h.logger.Debug("realtime client connected", zap.String("user_id", userID), zap.Int("clients", count))

	go c.writePump()
	go c.readPump()
	return nil
}

// Notify queues the event's table and restarts the debounce window.
// A frame goes out once no event has arrived for the debounce interval.
func (h *Hub) Notify(event ChangeEvent) {
	if event.Table == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.pending[event.Table] = struct{}{}
	if h.timer != nil {
		h.timer.Reset(h.debounce)
		return
	}
	h.timer = time.AfterFunc(h.debounce, h.flush)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and stops pending flushes.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	for c := range h.clients {
		c.close()
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()
	h.onCount(0)
}

func (h *Hub) flush() {
	h.mu.Lock()
	defer h.mu.Unlock()
	tables := make([]string, 0, len(h.pending))
	for t := range h.pending {
		tables = append(tables, t)
	}
	h.pending = make(map[string]struct{})
	h.timer = nil
	if len(tables) == 0 || h.closed {
		return
	}
	sort.Strings(tables)
	payload, err := json.Marshal(Frame{Type: "sync", Tables: tables, At: time.Now().UTC()})
	if err != nil {
		h.logger.Warn("encode sync frame", zap.Error(err))
		return
	}
	dropped := false
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			h.logger.Warn("realtime client too slow, dropping", zap.String("user_id", c.userID))
			delete(h.clients, c)
			c.close()
			dropped = true
		}
	}
	if dropped {
		go h.onCount(len(h.clients))
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	count := len(h.clients)
	c.close()
	h.mu.Unlock()
	if ok {
		h.onCount(count)
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

// readPump discards inbound messages and detects disconnects.
func (c *client) readPump() {
	defer c.hub.remove(c)
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimRight(origin, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.TrimRight(origin, "/")]
		return ok
	}
}
