package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tabstash-sync/internal/adapter"
	"github.com/tabstash-sync/internal/events"
	"github.com/tabstash-sync/internal/settings"
	"github.com/tabstash-sync/internal/syncconfig"
	"github.com/tabstash-sync/internal/tags"
)

// SyncTrigger starts sync runs
type SyncTrigger interface {
	SyncStart(ctx context.Context, key string, syncType syncconfig.SyncType)
	SyncAll(ctx context.Context, syncType syncconfig.SyncType) <-chan struct{}
}

// Dependencies are the services exposed over HTTP
type Dependencies struct {
	Configs  *syncconfig.Store
	Settings settings.Store
	Tags     tags.Store
	Sync     SyncTrigger
	Bus      *events.Bus
}

// Options tune the HTTP server
type Options struct {
	Port      int
	RateLimit float64
	Burst     int
}

// Server provides the control API, health endpoints and the event websocket
type Server struct {
	server   *http.Server
	deps     Dependencies
	hub      *events.Hub
	limiter  *ipLimiter
	dispatch func(func())
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// Version is reported by the health endpoints
const Version = "1.0.0"

// NewServer creates a new server
func NewServer(opts Options, deps Dependencies) *Server {
	mux := http.NewServeMux()

	s := &Server{
		deps:     deps,
		limiter:  newIPLimiter(opts.RateLimit, opts.Burst),
		dispatch: func(fn func()) { go fn() },
	}
	s.hub = events.NewHub(deps.Bus, s.handleFrame)
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           s.limiter.middleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /ready", s.readyHandler)

	mux.HandleFunc("GET /api/configs", s.listConfigs)
	mux.HandleFunc("POST /api/configs", s.createConfig)
	mux.HandleFunc("GET /api/configs/{key}", s.getConfig)
	mux.HandleFunc("PUT /api/configs/{key}", s.updateConfig)
	mux.HandleFunc("DELETE /api/configs/{key}", s.deleteConfig)
	mux.HandleFunc("DELETE /api/configs/{key}/results", s.clearResults)

	mux.HandleFunc("POST /api/messages", s.postMessage)
	mux.Handle("GET /ws", s.hub)

	mux.HandleFunc("GET /api/settings", s.getSettings)
	mux.HandleFunc("PUT /api/settings", s.putSettings)
	mux.HandleFunc("GET /api/tags", s.getTags)

	return s
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Hub returns the websocket hub
func (s *Server) Hub() *events.Hub {
	return s.hub
}

// Start starts the server
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Warnf("Failed to encode response: %v", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// writeStoreError maps store errors onto status codes
func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, syncconfig.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	logrus.Errorf("Request failed: %v", err)
	writeError(w, http.StatusInternalServerError, err)
}

// healthHandler handles health check requests
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   Version,
	})
}

// readyHandler reports ready once the configuration store can be read
func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := s.deps.Configs.Config(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ready",
		Timestamp: time.Now(),
		Version:   Version,
	})
}

// redact hides stored credentials
func redact(item syncconfig.Item) syncconfig.Item {
	if item.Password != "" {
		item.Password = "********"
	}
	return item
}

func (s *Server) listConfigs(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.deps.Configs.Config(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	for i := range cfg.ConfigList {
		cfg.ConfigList[i] = redact(cfg.ConfigList[i])
	}
	writeJSON(w, http.StatusOK, cfg)
}

func validKind(kind string) bool {
	switch kind {
	case "", adapter.KindWebDAV, adapter.KindGist, adapter.KindS3, adapter.KindFolder:
		return true
	}
	return false
}

func (s *Server) createConfig(w http.ResponseWriter, r *http.Request) {
	var item syncconfig.Item
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid configuration: %w", err))
		return
	}
	if !validKind(item.Kind) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unsupported backend kind: %s", item.Kind))
		return
	}

	created, err := s.deps.Configs.AddItem(r.Context(), item)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, redact(created))
}

func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	item, err := s.deps.Configs.Item(r.Context(), r.PathValue("key"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, redact(*item))
}

func (s *Server) updateConfig(w http.ResponseWriter, r *http.Request) {
	var edit syncconfig.Edit
	if err := json.NewDecoder(r.Body).Decode(&edit); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid edit: %w", err))
		return
	}

	key := r.PathValue("key")
	if err := s.deps.Configs.UpdateItem(r.Context(), key, edit); err != nil {
		writeStoreError(w, err)
		return
	}
	item, err := s.deps.Configs.Item(r.Context(), key)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, redact(*item))
}

func (s *Server) deleteConfig(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Configs.RemoveItem(r.Context(), r.PathValue("key")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) clearResults(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Configs.ClearResults(r.Context(), r.PathValue("key")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.deps.Settings.Get(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// putSettings overlays the posted fields on the current settings
func (s *Server) putSettings(w http.ResponseWriter, r *http.Request) {
	var patch settings.Snapshot
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil || patch == nil {
		writeError(w, http.StatusBadRequest, errors.New("settings must be a JSON object"))
		return
	}

	current, err := s.deps.Settings.Get(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	updated := current.Clone()
	for k, v := range patch {
		updated[k] = v
	}
	if err := s.deps.Settings.Set(r.Context(), updated); err != nil {
		writeStoreError(w, err)
		return
	}

	if lang := patch.String(settings.KeyLanguage); lang != "" && lang != current.String(settings.KeyLanguage) {
		s.deps.Bus.Publish(events.Event{Type: events.LocaleChanged, Language: lang})
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) getTags(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Tags.Export(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
