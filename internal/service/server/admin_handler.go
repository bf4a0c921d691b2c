package server

import (
	"net/http"

	"go.uber.org/zap"
)

// AdminHandler handles maintenance requests
type AdminHandler struct {
	cache  Cache
	logger *zap.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(cache Cache, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		cache:  cache,
		logger: logger,
	}
}

// HandleEvict clears the cache.
// ?target=low drains to the low-water mark instead of removing everything;
// ?preserve_high=true keeps high-importance entries.
func (h *AdminHandler) HandleEvict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if target := r.URL.Query().Get("target"); target != "" {
		if target != "low" {
			http.Error(w, "target must be low", http.StatusBadRequest)
			return
		}
		report := h.cache.EvictToLowWater()
		h.logger.Info("evicted to low-water mark",
			zap.Int("evicted", report.Evicted),
			zap.Int64("freed_bytes", report.FreedBytes))
		writeJSON(w, http.StatusOK, report)
		return
	}

	preserveHigh, err := boolParam(r, "preserve_high")
	if err != nil {
		http.Error(w, "invalid preserve_high parameter", http.StatusBadRequest)
		return
	}

	report := h.cache.EvictAll(preserveHigh)
	h.logger.Info("evicted all entries",
		zap.Bool("preserve_high", preserveHigh),
		zap.Int("evicted", report.Evicted),
		zap.Int("skipped", report.Skipped),
		zap.Int64("freed_bytes", report.FreedBytes))
	writeJSON(w, http.StatusOK, report)
}

// HandleSweep removes entries past their maximum age
func (h *AdminHandler) HandleSweep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.cache.SweepExpired())
}

type reconcileResponse struct {
	Removed []string `json:"removed"`
	Adopted int      `json:"adopted"`
	Resized int      `json:"resized"`
}

// HandleReconcile aligns metadata with the cache directory
func (h *AdminHandler) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	report, err := h.cache.Reconcile()
	if err != nil {
		h.logger.Error("failed to reconcile cache", zap.Error(err))
		http.Error(w, "Failed to reconcile cache", http.StatusInternalServerError)
		return
	}

	resp := reconcileResponse{
		Removed: make([]string, 0, len(report.Removed)),
		Adopted: report.Adopted,
		Resized: report.Resized,
	}
	for _, e := range report.Removed {
		resp.Removed = append(resp.Removed, e.URL)
	}
	writeJSON(w, http.StatusOK, resp)
}
