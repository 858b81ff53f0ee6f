package notify

import (
	"time"

	"github.com/raaihank/pii-shield/internal/actions"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeLifecycle reports an action status change
	EventTypeLifecycle EventType = "lifecycle"
	// EventTypeToast carries a user-facing notification
	EventTypeToast EventType = "toast"
	// EventTypePong answers a client ping
	EventTypePong EventType = "pong"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`

	session string
}

// LifecycleEvent reports that an action changed state
type LifecycleEvent struct {
	Action actions.Name   `json:"action"`
	Status actions.Status `json:"status"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type string `json:"type"`
}

// Client represents a WebSocket client connection bound to one session
type Client struct {
	ID          string
	Session     string
	Conn        Conn
	Send        chan Event
	ConnectedAt time.Time
	IP          string
}

// Conn is the part of *websocket.Conn the hub uses
type Conn interface {
	ReadJSON(v interface{}) error
	WriteJSON(v interface{}) error
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Config contains hub configuration
type Config struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int64
	AllowedOrigins []string
}

// Stats tracks WebSocket hub statistics
type Stats struct {
	TotalConnections  int64 `json:"total_connections"`
	ActiveConnections int64 `json:"active_connections"`
	TotalMessages     int64 `json:"total_messages"`
	DroppedEvents     int64 `json:"dropped_events"`
}
