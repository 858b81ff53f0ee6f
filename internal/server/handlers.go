package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/raaihank/pii-shield/internal/blob"
	"github.com/raaihank/pii-shield/internal/intake"
	"github.com/raaihank/pii-shield/internal/page"
	"github.com/raaihank/pii-shield/internal/view"
	"go.uber.org/zap"
)

// handleIndex renders the page for the current session
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	p := pageFrom(r.Context())

	toasts := p.TakeToasts()
	data := view.PageData{Snapshot: p.Snapshot()}
	data.Toasts = toasts
	if s.liveUpdates() {
		data.WebSocketPath = s.config.WebSocket.Path
	}

	view.NoCache(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.renderer.Page(w, data); err != nil {
		s.requestLogger(r).Error("Failed to render page", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// handleUpload offers the uploaded files to the intake control. Files the
// control rejects are dropped silently; the page simply keeps its state.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	log := s.requestLogger(r)
	maxBytes := s.config.Server.MaxUploadBytes

	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || r.ContentLength > maxBytes {
			log.Warn("Upload too large", zap.Int64("content_length", r.ContentLength))
			http.Error(w, "Upload too large", http.StatusRequestEntityTooLarge)
			return
		}
		log.Debug("Malformed upload", zap.Error(err))
		http.Error(w, "Malformed upload", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	files, err := readFiles(r.MultipartForm.File["file"])
	if err != nil {
		log.Warn("Failed to read upload", zap.Error(err))
		http.Error(w, "Failed to read upload", http.StatusBadRequest)
		return
	}

	source := intake.ParseSource(r.FormValue("source"))
	if pageFrom(r.Context()).Offer(files, source) {
		log.Debug("Upload accepted", zap.Int("files", len(files)), zap.String("source", string(source)))
	}

	redirectHome(w, r)
}

func readFiles(headers []*multipart.FileHeader) ([]*intake.File, error) {
	files := make([]*intake.File, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", fh.Filename, err)
		}
		files = append(files, &intake.File{
			Name:        fh.Filename,
			ContentType: intake.ResolveContentType(fh.Header.Get("Content-Type"), data),
			Data:        data,
		})
	}
	return files, nil
}

// handleClear drops the selected file
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	pageFrom(r.Context()).Clear()
	redirectHome(w, r)
}

// handleAnalyze starts the analyze action
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	s.trigger(w, r, "analyze", pageFrom(r.Context()).Analyze)
}

// handleMask starts the mask action
func (s *Server) handleMask(w http.ResponseWriter, r *http.Request) {
	s.trigger(w, r, "mask", pageFrom(r.Context()).Mask)
}

// trigger starts an action; a refused trigger is a no-op for the user
func (s *Server) trigger(w http.ResponseWriter, r *http.Request, action string, start func() error) {
	if err := start(); err != nil {
		level := s.requestLogger(r).Debug
		if !errors.Is(err, page.ErrNoFile) && !errors.Is(err, page.ErrBusy) {
			level = s.requestLogger(r).Warn
		}
		level("Action not started", zap.String("action", action), zap.Error(err))
	}
	redirectHome(w, r)
}

// handleBlob serves the masked image inline
func (s *Server) handleBlob(w http.ResponseWriter, r *http.Request) {
	s.serveBlob(w, r, false)
}

// handleDownload serves the masked image as an attachment
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	s.serveBlob(w, r, true)
}

func (s *Server) serveBlob(w http.ResponseWriter, r *http.Request, attachment bool) {
	id := mux.Vars(r)["id"]

	// A session only sees its own current image
	if !pageFrom(r.Context()).OwnsBlob(id) {
		http.NotFound(w, r)
		return
	}

	b, err := s.deps.Blobs.Get(r.Context(), id)
	if err != nil {
		if !errors.Is(err, blob.ErrNotFound) {
			s.requestLogger(r).Error("Failed to load masked image", zap.String("blob_id", id), zap.Error(err))
		}
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", b.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(b.Data)))
	w.Header().Set("Cache-Control", "private, no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if attachment {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", page.DownloadName))
	}
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		w.Write(b.Data)
	}
}

// handleWebSocket subscribes the browser to its session's events
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.deps.Hub.Serve(w, r, pageFrom(r.Context()).ID())
}

// handleHealth reports whether the server and its backend are reachable
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	body := map[string]interface{}{
		"status":    "healthy",
		"backend":   "reachable",
		"timestamp": time.Now().Format(time.RFC3339),
	}
	if err := s.deps.Backend.Health(ctx); err != nil {
		s.logger.Warn("Backend health check failed", zap.Error(err))
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
		body["backend"] = "unreachable"
	}
	s.writeJSON(w, status, body)
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":             "pii-shield",
		"version":          s.deps.Version,
		"backend_url":      s.deps.Backend.BaseURL(),
		"blob_backend":     s.config.Blob.Backend,
		"live_updates":     s.liveUpdates(),
		"rate_limit":       s.config.RateLimit.Enabled,
		"sessions":         s.deps.Sessions.Stats(),
		"max_upload_bytes": s.config.Server.MaxUploadBytes,
	}
	if s.deps.Hub != nil {
		info["websocket"] = s.deps.Hub.Stats()
	}
	switch store := s.deps.Blobs.(type) {
	case *blob.MemoryStore:
		info["blobs"] = store.Stats()
	case *blob.RedisStore:
		if stats, err := store.Stats(r.Context()); err == nil {
			info["blobs"] = stats
		}
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("Failed to write JSON response", zap.Error(err))
	}
}

// redirectHome answers form posts with the page itself
func redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
