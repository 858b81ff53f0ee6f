package notify

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/raaihank/pii-shield/internal/actions"
	"github.com/raaihank/pii-shield/internal/logger"
	"go.uber.org/zap"
)

// Hub pushes page events to the browser tabs of the session they belong to
type Hub struct {
	// Clients grouped by session
	sessions map[string]map[*Client]struct{}

	broadcast  chan Event
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	config   Config
	upgrader websocket.Upgrader
	logger   *logger.Logger

	mu    sync.RWMutex
	stats Stats
}

// NewHub creates a new WebSocket hub
func NewHub(config Config, log *logger.Logger) *Hub {
	if config.PingInterval <= 0 {
		config.PingInterval = 54 * time.Second
	}
	if config.PongTimeout <= config.PingInterval {
		config.PongTimeout = config.PingInterval * 10 / 9
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 10 * time.Second
	}
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = 512
	}

	h := &Hub{
		sessions:   make(map[string]map[*Client]struct{}),
		broadcast:  make(chan Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		config:     config,
		logger:     log,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Run handles client registration and event delivery until ctx is done
func (h *Hub) Run(ctx context.Context) error {
	h.logger.Info("Starting WebSocket hub")

	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			return nil

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case event := <-h.broadcast:
			h.deliver(event)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.sessions[client.Session]
	if !ok {
		clients = make(map[*Client]struct{})
		h.sessions[client.Session] = clients
	}
	clients[client] = struct{}{}
	h.stats.TotalConnections++
	h.stats.ActiveConnections++

	h.logger.Debug("Client connected",
		zap.String("client_id", client.ID),
		zap.String("session", logger.ShortID(client.Session)),
		zap.Int64("active_connections", h.stats.ActiveConnections),
	)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client)
}

func (h *Hub) removeLocked(client *Client) {
	clients, ok := h.sessions[client.Session]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.sessions, client.Session)
	}
	close(client.Send)
	h.stats.ActiveConnections--

	h.logger.Debug("Client disconnected",
		zap.String("client_id", client.ID),
		zap.Int64("active_connections", h.stats.ActiveConnections),
	)
}

// deliver sends an event to every client of its session
func (h *Hub) deliver(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.sessions[event.session] {
		select {
		case client.Send <- event:
			h.stats.TotalMessages++
		default:
			h.logger.Warn("Client send channel full, closing connection",
				zap.String("client_id", client.ID),
			)
			h.removeLocked(client)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.sessions {
		for client := range clients {
			h.removeLocked(client)
		}
	}
}

// reply sends an event to one client only, skipping clients that have
// already been removed
func (h *Hub) reply(client *Client, eventType EventType, data interface{}) {
	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
		session:   client.Session,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.sessions[client.Session][client]; !ok {
		return
	}
	select {
	case client.Send <- event:
		h.stats.TotalMessages++
	default:
		h.stats.DroppedEvents++
	}
}

// Publish queues an event for a session; events are dropped when the queue is full
func (h *Hub) Publish(sessionID string, eventType EventType, data interface{}) {
	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
		session:   sessionID,
	}

	select {
	case h.broadcast <- event:
	default:
		h.mu.Lock()
		h.stats.DroppedEvents++
		h.mu.Unlock()
		h.logger.Warn("Broadcast channel full, dropping event", zap.String("event_type", string(eventType)))
	}
}

// Notify implements page.Listener
func (h *Hub) Notify(sessionID string, n actions.Notification) {
	h.Publish(sessionID, EventTypeToast, n)
}

// StatusChanged implements page.Listener
func (h *Hub) StatusChanged(sessionID string, action actions.Name, status actions.Status) {
	h.Publish(sessionID, EventTypeLifecycle, LifecycleEvent{Action: action, Status: status})
}

// Stats returns current hub statistics
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stats
}

// Serve upgrades the request and attaches the connection to sessionID
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}
	h.Attach(conn, sessionID, r.RemoteAddr)
}

// Attach starts serving an established connection
func (h *Hub) Attach(conn Conn, sessionID, ip string) *Client {
	client := &Client{
		ID:          uuid.NewString(),
		Session:     sessionID,
		Conn:        conn,
		Send:        make(chan Event, 32),
		ConnectedAt: time.Now(),
		IP:          ip,
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return client
	}

	go h.writePump(client)
	go h.readPump(client)
	return client
}

func (h *Hub) writePump(client *Client) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case event, ok := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if !ok {
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Conn.WriteJSON(event); err != nil {
				h.logger.Debug("Failed to write WebSocket message",
					zap.String("client_id", client.ID),
					zap.Error(err),
				)
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(client *Client) {
	defer func() {
		select {
		case h.unregister <- client:
		case <-h.done:
		}
		client.Conn.Close()
	}()

	client.Conn.SetReadLimit(h.config.MaxMessageSize)
	client.Conn.SetReadDeadline(time.Now().Add(h.config.PongTimeout))
	client.Conn.SetPongHandler(func(string) error {
		return client.Conn.SetReadDeadline(time.Now().Add(h.config.PongTimeout))
	})

	for {
		var msg ClientMessage
		if err := client.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("WebSocket closed unexpectedly",
					zap.String("client_id", client.ID),
					zap.Error(err),
				)
			}
			return
		}

		if msg.Type == "ping" {
			h.reply(client, EventTypePong, map[string]string{"message": "pong"})
		}
	}
}

// checkOrigin allows same-host requests and any origin on the allow-list
func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.config.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}
