package handlers

import (
	"net/http"

	"github.com/CrowderSoup/tasklist/store"
)

// metricsSource is satisfied by the transactional store. The file
// backend has no counters, so the health payload degrades gracefully.
type metricsSource interface {
	Metrics() store.MetricsSnapshot
}

// HealthHandler reports liveness plus the store's metrics snapshot
// when the active backend exposes one.
type HealthHandler struct {
	store store.Store
}

func NewHealthHandler(st store.Store) *HealthHandler {
	return &HealthHandler{store: st}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{"status": "ok"}
	if src, ok := h.store.(metricsSource); ok {
		payload["metrics"] = src.Metrics()
	}
	writeJSON(w, http.StatusOK, payload)
}
