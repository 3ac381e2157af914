package rest

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/italolelis/asset_harvester/internal/logctx"
	"github.com/italolelis/asset_harvester/internal/run"
	"github.com/italolelis/asset_harvester/internal/telemetry"
)

// StatusHandler exposes the progress of the running job.
type StatusHandler struct {
	status    *run.Status
	telemetry *telemetry.Telemetry
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(status *run.Status, t *telemetry.Telemetry) *StatusHandler {
	return &StatusHandler{
		status:    status,
		telemetry: t,
	}
}

func (h *StatusHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(telemetry.RequestID, telemetry.HTTPLogging, h.telemetry.Middleware)

	r.Get("/healthz", h.HandleHealth)
	r.Get("/status", h.HandleStatus)
	r.Get("/report", h.HandleReport)
	r.Method(http.MethodGet, "/metrics", h.telemetry.Handler())

	return r
}

// HandleHealth answers liveness probes.
func (h *StatusHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleStatus returns the current phase and progress counters.
func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	snap := h.status.Snapshot()
	snap.LastReport = nil

	writeJSON(w, r, http.StatusOK, snap)
}

// HandleReport returns the report of the last finished language.
func (h *StatusHandler) HandleReport(w http.ResponseWriter, r *http.Request) {
	snap := h.status.Snapshot()
	if snap.LastReport == nil {
		http.Error(w, "no report yet", http.StatusNotFound)

		return
	}

	writeJSON(w, r, http.StatusOK, snap.LastReport)
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logctx.LoggerFromContext(r.Context()).Error("failed to encode response", "err", err)
	}
}
