// Package session maps browser sessions to their page controllers.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raaihank/pii-shield/internal/logger"
	"github.com/raaihank/pii-shield/internal/page"
	"go.uber.org/zap"
)

// Factory builds the controller for a new session
type Factory func(sessionID string) *page.Controller

// Config contains session manager configuration
type Config struct {
	// TTL is how long an idle session is kept; <= 0 keeps sessions forever
	TTL time.Duration
	// SweepInterval is how often Run looks for expired sessions
	SweepInterval time.Duration
}

// Stats tracks session manager statistics
type Stats struct {
	Active  int   `json:"active"`
	Created int64 `json:"created"`
	Expired int64 `json:"expired"`
}

type entry struct {
	page     *page.Controller
	lastSeen time.Time
}

// Manager owns one page controller per session
type Manager struct {
	config  Config
	newPage Factory
	logger  *logger.Logger
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*entry
	stats    Stats
}

// NewManager creates a session manager
func NewManager(config Config, newPage Factory, log *logger.Logger) *Manager {
	if config.SweepInterval <= 0 {
		config.SweepInterval = time.Minute
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Manager{
		config:   config,
		newPage:  newPage,
		logger:   log.WithComponent("session"),
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
}

// Get returns the page of an existing session and renews it, along with
// the page's masked image
func (m *Manager) Get(id string) (*page.Controller, bool) {
	m.mu.Lock()
	e, ok := m.sessions[id]
	if ok {
		e.lastSeen = m.now()
	}
	m.mu.Unlock()

	if !ok {
		return nil, false
	}
	e.page.Touch()
	return e.page, true
}

// Acquire returns the page for id, starting a new session when id is
// unknown or malformed. The returned ID is the one the client must keep.
func (m *Manager) Acquire(id string) (*page.Controller, string, bool) {
	if p, ok := m.Get(id); ok {
		return p, id, false
	}

	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}

	m.mu.Lock()
	// Double-check after acquiring write lock
	if e, ok := m.sessions[id]; ok {
		e.lastSeen = m.now()
		m.mu.Unlock()
		e.page.Touch()
		return e.page, id, false
	}

	e := &entry{page: m.newPage(id), lastSeen: m.now()}
	m.sessions[id] = e
	m.stats.Created++
	m.mu.Unlock()

	m.logger.Debug("Session started", zap.String("session", logger.ShortID(id)))
	return e.page, id, true
}

// Sweep closes sessions that have been idle longer than the TTL. Sessions
// with a pending action are kept until it settles.
func (m *Manager) Sweep() int {
	if m.config.TTL <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.config.TTL)

	var expired []*page.Controller
	m.mu.Lock()
	for id, e := range m.sessions {
		last := e.lastSeen
		if active := e.page.LastActive(); active.After(last) {
			last = active
		}
		if last.After(cutoff) || e.page.Busy() {
			continue
		}
		delete(m.sessions, id)
		expired = append(expired, e.page)
	}
	m.stats.Expired += int64(len(expired))
	m.mu.Unlock()

	// Closing waits for running requests, so it happens outside the lock
	for _, p := range expired {
		p.Close()
	}
	if len(expired) > 0 {
		m.logger.Info("Expired idle sessions", zap.Int("count", len(expired)))
	}
	return len(expired)
}

// Run sweeps expired sessions until ctx is done, then closes every session
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.CloseAll()
			return nil
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// CloseAll ends every session
func (m *Manager) CloseAll() {
	m.mu.Lock()
	pages := make([]*page.Controller, 0, len(m.sessions))
	for id, e := range m.sessions {
		pages = append(pages, e.page)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, p := range pages {
		p.Close()
	}
}

// Stats returns current session statistics
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := m.stats
	stats.Active = len(m.sessions)
	return stats
}
