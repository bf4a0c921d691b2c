package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/audio-fetch-cache/internal/domain"
)

// DebugHandler handles statistics and progress requests
type DebugHandler struct {
	cache  Cache
	logger *zap.Logger
}

// NewDebugHandler creates a new DebugHandler
func NewDebugHandler(cache Cache, logger *zap.Logger) *DebugHandler {
	return &DebugHandler{
		cache:  cache,
		logger: logger,
	}
}

// HandleStats handles cache statistics requests
func (h *DebugHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.cache.Stats())
}

// HandleQueue lists queued URLs in start order
func (h *DebugHandler) HandleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"queued": h.cache.QueuedURLs(),
		"stats":  h.cache.Stats().Queue,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// HandleProgress streams progress events as newline-delimited JSON until the
// client disconnects. ?url= limits the stream to one transfer.
func (h *DebugHandler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var only domain.CacheKey
	if rawURL := r.URL.Query().Get("url"); rawURL != "" {
		only = domain.KeyFor(strings.TrimSpace(rawURL))
	}

	stream := h.cache.SubscribeProgress()
	defer stream.Close()

	rc := http.NewResponseController(w)
	// The stream outlives the server write timeout
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("write deadline not adjustable", zap.Error(err))
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	rc.Flush()

	enc := json.NewEncoder(w)
	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-stream.Events():
			if !ok {
				return
			}
			if only != "" && ev.Key != only {
				continue
			}
			if err := enc.Encode(ev); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
