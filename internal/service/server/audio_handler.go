package server

import (
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/vertextoedge/audio-fetch-cache/internal/domain"
	"github.com/vertextoedge/audio-fetch-cache/internal/service/cacher"
)

// AudioHandler handles playback, fetch and feedback requests
type AudioHandler struct {
	cache  Cache
	logger *zap.Logger
}

// NewAudioHandler creates a new AudioHandler
func NewAudioHandler(cache Cache, logger *zap.Logger) *AudioHandler {
	return &AudioHandler{
		cache:  cache,
		logger: logger,
	}
}

type fetchResponse struct {
	*cacher.Result
	Location string `json:"location"`
	Reason   string `json:"reason,omitempty"`
}

func newFetchResponse(res *cacher.Result) fetchResponse {
	out := fetchResponse{Result: res, Location: res.Location()}
	if res.Reason != nil {
		out.Reason = res.Reason.Error()
	}
	return out
}

// HandleAudio serves the cached file for ?url=, fetching it first if needed.
// A degraded result redirects the player to the source URL.
func (h *AudioHandler) HandleAudio(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rawURL, ok := requireURL(w, r)
	if !ok {
		return
	}
	high, err := boolParam(r, "high")
	if err != nil {
		http.Error(w, "invalid high parameter", http.StatusBadRequest)
		return
	}

	res, err := h.cache.GetOrFetch(r.Context(), rawURL, high, false)
	if err != nil {
		writeError(w, err)
		return
	}

	if res.Degraded {
		h.logger.Debug("redirecting to source", zap.String("url", res.URL), zap.Error(res.Reason))
		w.Header().Set("X-Cache", "DEGRADED")
		http.Redirect(w, r, res.URL, http.StatusTemporaryRedirect)
		return
	}

	f, err := os.Open(res.Path)
	if err != nil {
		// Evicted between lookup and open
		h.logger.Warn("failed to open cached file", zap.String("path", res.Path), zap.Error(err))
		w.Header().Set("X-Cache", "DEGRADED")
		http.Redirect(w, r, res.URL, http.StatusTemporaryRedirect)
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		h.logger.Error("failed to stat cached file", zap.String("path", res.Path), zap.Error(err))
		http.Error(w, "File not available", http.StatusServiceUnavailable)
		return
	}

	if res.FromCache {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	w.Header().Set("X-Cache-Key", res.Key.String())

	// ServeContent sniffs the type and handles range requests for seeking
	http.ServeContent(w, r, "", stat.ModTime(), f)
}

// HandleFetch downloads ?url= into the cache and reports where to play it from
func (h *AudioHandler) HandleFetch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rawURL, ok := requireURL(w, r)
	if !ok {
		return
	}
	high, err := boolParam(r, "high")
	if err != nil {
		http.Error(w, "invalid high parameter", http.StatusBadRequest)
		return
	}
	force, err := boolParam(r, "force")
	if err != nil {
		http.Error(w, "invalid force parameter", http.StatusBadRequest)
		return
	}

	res, err := h.cache.GetOrFetch(r.Context(), rawURL, high, force)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newFetchResponse(res))
}

// HandlePrefetch queues a best-effort download of ?url=
func (h *AudioHandler) HandlePrefetch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rawURL, ok := requireURL(w, r)
	if !ok {
		return
	}
	importance, err := importanceParam(r)
	if err != nil {
		http.Error(w, "invalid importance parameter", http.StatusBadRequest)
		return
	}
	imp := domain.DefaultImportance
	if importance != nil {
		imp = *importance
	}

	stream := h.cache.Prefetch(rawURL, imp)
	if stream == nil {
		writeJSON(w, http.StatusOK, map[string]bool{"queued": false})
		return
	}
	// The transfer does not depend on anyone reading its stream
	stream.Close()
	writeJSON(w, http.StatusAccepted, map[string]bool{"queued": true})
}

// HandleCancel aborts the pending request for ?url=
func (h *AudioHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rawURL, ok := requireURL(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": h.cache.Cancel(rawURL)})
}

// HandleFeedback records a like or importance signal for ?url=
func (h *AudioHandler) HandleFeedback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rawURL, ok := requireURL(w, r)
	if !ok {
		return
	}
	liked, err := boolParam(r, "liked")
	if err != nil {
		http.Error(w, "invalid liked parameter", http.StatusBadRequest)
		return
	}
	importance, err := importanceParam(r)
	if err != nil {
		http.Error(w, "invalid importance parameter", http.StatusBadRequest)
		return
	}

	if err := h.cache.RecordFeedback(r.Context(), rawURL, liked, importance); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleEntries lists cached entries (GET) or deletes the entry for ?url= (DELETE)
func (h *AudioHandler) HandleEntries(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.cache.Entries())
	case http.MethodDelete:
		rawURL, ok := requireURL(w, r)
		if !ok {
			return
		}
		if err := h.cache.Delete(rawURL); err != nil {
			writeError(w, err)
			return
		}
		h.logger.Info("cache entry deleted", zap.String("url", rawURL))
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
