package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/qb411/cloud-health-map/internal/models"
)

// Dashboard is the orchestrator surface the API exposes.
type Dashboard interface {
	Snapshot() models.Snapshot
	TriggerRefresh()
	Simulate(regionCode string, severity models.Severity) error
	ClearSimulation(regionCode string) bool
	ClearAllSimulations()
}

type Handlers struct {
	dashboard Dashboard
	logger    *zap.Logger
}

func NewHandlers(dashboard Dashboard, logger *zap.Logger) *Handlers {
	return &Handlers{dashboard: dashboard, logger: logger}
}

// NewRouter mounts the presentation-layer API plus the metrics endpoint.
func NewRouter(h *Handlers, metricsHandler http.Handler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/status", h.handleStatus)
	mux.HandleFunc("/api/v1/refresh", h.handleRefresh)
	mux.HandleFunc("/api/v1/simulate", h.handleSimulate)
	mux.HandleFunc("/api/v1/simulate/", h.handleSimulateRegion)
	mux.HandleFunc("/api/v1/events/export", h.handleExport)
	mux.HandleFunc("/healthz", h.handleHealthz)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	return mux
}

func (h *Handlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, h.dashboard.Snapshot())
}

func (h *Handlers) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	h.dashboard.TriggerRefresh()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh scheduled"})
}

type simulateRequest struct {
	RegionCode string `json:"region_code"`
	Severity   string `json:"severity"`
}

func (h *Handlers) handleSimulate(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req simulateRequest
		if err := readBodyJSON(r, 1<<16, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		severity, err := models.ParseSeverity(req.Severity)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := h.dashboard.Simulate(req.RegionCode, severity); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status": fmt.Sprintf("simulated %s for %s", req.Severity, req.RegionCode),
		})
	case http.MethodDelete:
		h.dashboard.ClearAllSimulations()
		writeJSON(w, http.StatusOK, map[string]string{"status": "all simulations cleared"})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handlers) handleSimulateRegion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	code := strings.TrimPrefix(r.URL.Path, "/api/v1/simulate/")
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing region code")
		return
	}
	if !h.dashboard.ClearSimulation(code) {
		writeError(w, http.StatusNotFound, "no active simulation for region")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "simulation cleared"})
}

func (h *Handlers) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	snap := h.dashboard.Snapshot()
	data, err := GenerateEventLogExport(snap.RecentEvents)
	if err != nil {
		h.logger.Error("Failed to generate event export", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	filename := fmt.Sprintf("health-events-%s.xlsx", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handlers) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
