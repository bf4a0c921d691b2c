package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/audio-fetch-cache/internal/domain"
	"github.com/vertextoedge/audio-fetch-cache/internal/metrics"
	"github.com/vertextoedge/audio-fetch-cache/internal/service/cacher"
	"github.com/vertextoedge/audio-fetch-cache/internal/service/metastore"
)

// Cache is the cache facade as seen by the HTTP API
type Cache interface {
	GetOrFetch(ctx context.Context, rawURL string, highPriority, forceRefresh bool) (*cacher.Result, error)
	Prefetch(rawURL string, importance domain.Importance) *cacher.ProgressStream
	Cancel(rawURL string) bool
	Delete(rawURL string) error
	EvictAll(preserveHighPriority bool) cacher.EvictionReport
	EvictToLowWater() cacher.EvictionReport
	SweepExpired() cacher.EvictionReport
	Reconcile() (metastore.ReconcileReport, error)
	RecordFeedback(ctx context.Context, rawURL string, liked bool, importance *domain.Importance) error
	SubscribeProgress() *cacher.ProgressStream
	Stats() domain.CacheStats
	QueuedURLs() []string
	Entries() []*domain.CacheEntry
}

// Pinger reports whether the metadata database is reachable
type Pinger interface {
	Ping() error
}

// Config contains HTTP server configuration
type Config struct {
	BindAddr      string
	AdminUsername string
	AdminPassword string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		BindAddr:     "127.0.0.1:8080",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Server represents the HTTP API server
type Server struct {
	config       *Config
	cache        Cache
	db           Pinger
	logger       *zap.Logger
	server       *http.Server
	audioHandler *AudioHandler
	adminHandler *AdminHandler
	debugHandler *DebugHandler
}

// New creates a new HTTP server. db and m may be nil.
func New(cfg *Config, cache Cache, db Pinger, m *metrics.Metrics, logger *zap.Logger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	s := &Server{
		config: cfg,
		cache:  cache,
		db:     db,
		logger: logger,
	}

	s.audioHandler = NewAudioHandler(cache, logger)
	s.adminHandler = NewAdminHandler(cache, logger)
	s.debugHandler = NewDebugHandler(cache, logger)

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	// Audio endpoints
	mux.HandleFunc("/audio", s.audioHandler.HandleAudio)
	mux.HandleFunc("/fetch", s.audioHandler.HandleFetch)
	mux.HandleFunc("/prefetch", s.audioHandler.HandlePrefetch)
	mux.HandleFunc("/cancel", s.audioHandler.HandleCancel)
	mux.HandleFunc("/feedback", s.audioHandler.HandleFeedback)
	mux.HandleFunc("/entries", s.audioHandler.HandleEntries)

	// Administrative endpoints, protected when credentials are configured
	admin := func(h http.HandlerFunc) http.HandlerFunc { return h }
	if cfg.AdminUsername != "" {
		admin = BasicAuthMiddleware(cfg.AdminUsername, cfg.AdminPassword, logger)
	}
	mux.HandleFunc("/admin/evict", admin(s.adminHandler.HandleEvict))
	mux.HandleFunc("/admin/sweep", admin(s.adminHandler.HandleSweep))
	mux.HandleFunc("/admin/reconcile", admin(s.adminHandler.HandleReconcile))

	// Debug endpoints
	mux.HandleFunc("/stats", s.debugHandler.HandleStats)
	mux.HandleFunc("/queue", s.debugHandler.HandleQueue)
	mux.HandleFunc("/progress", s.debugHandler.HandleProgress)

	if m != nil {
		mux.Handle("/metrics", m.Handler())
	}

	var handler http.Handler = mux
	if m != nil {
		handler = MetricsMiddleware(m, mux)(handler)
	}
	handler = LoggingMiddleware(logger)(handler)

	s.server = &http.Server{
		Addr:         cfg.BindAddr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Handler returns the root handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.db != nil {
		if err := s.db.Ping(); err != nil {
			s.logger.Error("health check failed", zap.Error(err))
			http.Error(w, "Database connection failed", http.StatusServiceUnavailable)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"healthy","time":"` + time.Now().Format(time.RFC3339) + `"}`))
}

// writeJSON encodes v with the given status
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// writeError maps cache errors to HTTP status codes
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind, ok := domain.KindOf(err)
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotCached):
		status = http.StatusNotFound
	case ok && kind == domain.KindInvalidContent:
		status = http.StatusUnprocessableEntity
	case ok && (kind == domain.KindDeferred || kind == domain.KindQueueFull):
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", "30")
	case ok && kind == domain.KindCancelled:
		status = http.StatusConflict
	case ok && kind == domain.KindTimeout:
		status = http.StatusGatewayTimeout
	case ok && (kind == domain.KindNetwork || kind == domain.KindPermission):
		status = http.StatusBadGateway
	case errors.Is(err, domain.ErrQueueClosed):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: string(kind)})
}

// requireURL reads the url query parameter
func requireURL(w http.ResponseWriter, r *http.Request) (string, bool) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		http.Error(w, "url parameter required", http.StatusBadRequest)
		return "", false
	}
	return rawURL, true
}

// boolParam parses an optional boolean query parameter
func boolParam(r *http.Request, name string) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}

// importanceParam parses an optional importance query parameter
func importanceParam(r *http.Request) (*domain.Importance, error) {
	v := r.URL.Query().Get("importance")
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, err
	}
	imp := domain.Importance(n).Clamp()
	return &imp, nil
}
