package api

import (
	"net/http"
	"time"

	"github.com/sesly/sesly-engine/internal/ipc"
)

// HealthHandler reports liveness plus a small worker snapshot for probes.
type HealthHandler struct {
	store     *ipc.Store
	version   string
	startTime time.Time
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws := h.store.WorkerStatus()
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        h.version,
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
		"worker": map[string]any{
			"running":   ws.Running,
			"recording": ws.Recording,
		},
	})
}
