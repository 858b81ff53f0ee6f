package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/raaihank/pii-shield/internal/blob"
	"github.com/raaihank/pii-shield/internal/config"
	"github.com/raaihank/pii-shield/internal/logger"
	"github.com/raaihank/pii-shield/internal/notify"
	"github.com/raaihank/pii-shield/internal/session"
	"github.com/raaihank/pii-shield/internal/view"
	"go.uber.org/zap"
)

// Backend is the part of the PII client the server checks for health
type Backend interface {
	Health(ctx context.Context) error
	BaseURL() string
}

// Deps are the collaborators a Server is wired with
type Deps struct {
	Sessions *session.Manager
	Blobs    blob.Store
	Backend  Backend
	// Hub is optional; without it live updates are off
	Hub     *notify.Hub
	Version string
}

// Server serves the PII Shield page
type Server struct {
	config   *config.Config
	logger   *logger.Logger
	deps     Deps
	renderer *view.Renderer
	limiter  *RateLimiter
	router   *mux.Router
	server   *http.Server
}

// New creates a new server instance
func New(cfg *config.Config, deps Deps, log *logger.Logger) (*Server, error) {
	if deps.Sessions == nil || deps.Blobs == nil || deps.Backend == nil {
		return nil, fmt.Errorf("server requires sessions, blobs and backend")
	}

	renderer, err := view.New()
	if err != nil {
		return nil, err
	}

	server := &Server{
		config:   cfg,
		logger:   log.WithComponent("server"),
		deps:     deps,
		renderer: renderer,
		limiter:  NewRateLimiter(cfg.RateLimit),
		router:   mux.NewRouter(),
	}

	server.setupRoutes()

	server.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return server, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Operational endpoints
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)

	s.router.PathPrefix("/static/").Handler(http.StripPrefix("/static/", view.Static())).Methods(http.MethodGet)

	// Page endpoints, one controller per browser session
	pages := s.router.NewRoute().Subrouter()
	pages.Use(s.loggingMiddleware)
	pages.Use(s.rateLimitMiddleware)
	pages.Use(s.sessionMiddleware)

	pages.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	pages.HandleFunc("/file", s.handleUpload).Methods(http.MethodPost)
	pages.HandleFunc("/file/clear", s.handleClear).Methods(http.MethodPost)
	pages.HandleFunc("/analyze", s.handleAnalyze).Methods(http.MethodPost)
	pages.HandleFunc("/mask", s.handleMask).Methods(http.MethodPost)
	pages.HandleFunc("/blobs/{id}", s.handleBlob).Methods(http.MethodGet)
	pages.HandleFunc("/blobs/{id}/download", s.handleDownload).Methods(http.MethodGet)

	if s.liveUpdates() {
		pages.HandleFunc(s.config.WebSocket.Path, s.handleWebSocket).Methods(http.MethodGet)
	}
}

func (s *Server) liveUpdates() bool {
	return s.deps.Hub != nil && s.config.WebSocket.Enabled && s.config.WebSocket.Path != ""
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting PII Shield server",
		zap.Int("port", s.config.Server.Port),
		zap.String("backend", s.deps.Backend.BaseURL()),
		zap.Bool("live_updates", s.liveUpdates()),
	)

	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping PII Shield server")
	return s.server.Shutdown(ctx)
}

// RateLimiter returns the limiter so configuration reloads can adjust it
func (s *Server) RateLimiter() *RateLimiter {
	return s.limiter
}
