package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dcm2610/StellarStack-sub002/internal/api/middleware"
	"github.com/dcm2610/StellarStack-sub002/internal/liveness"
	"github.com/dcm2610/StellarStack-sub002/internal/models"
	"github.com/dcm2610/StellarStack-sub002/internal/provision"
	"github.com/dcm2610/StellarStack-sub002/internal/store"
)

// RemoteHandler serves the daemon-facing surface. The node auth
// middleware has already resolved the caller and refreshed its
// heartbeat by the time these handlers run.
type RemoteHandler struct {
	store       store.Store
	coordinator *provision.Coordinator
	tracker     *liveness.Tracker
	logger      *slog.Logger
}

// NewRemoteHandler creates a new daemon-surface handler.
func NewRemoteHandler(st store.Store, coordinator *provision.Coordinator, tracker *liveness.Tracker, logger *slog.Logger) *RemoteHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RemoteHandler{
		store:       st,
		coordinator: coordinator,
		tracker:     tracker,
		logger:      logger,
	}
}

// HeartbeatRequest is the request body for POST /api/remote/heartbeat.
type HeartbeatRequest struct {
	LatencyMS *int64 `json:"latency_ms,omitempty"`
}

// HeartbeatResponse tells the daemon the cadence the panel expects.
type HeartbeatResponse struct {
	Status          string `json:"status"`
	IntervalSeconds int    `json:"interval_seconds"`
}

// Heartbeat handles POST /api/remote/heartbeat. The middleware already
// refreshed the clock; this only re-records when the daemon measured a
// round-trip latency.
func (h *RemoteHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	nodeID := middleware.GetNodeID(r.Context())
	if nodeID == "" {
		WriteUnauthorized(w, r, "Missing node identity")
		return
	}

	var req HeartbeatRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteBadRequest(w, r, "Invalid request body")
			return
		}
	}
	if req.LatencyMS != nil {
		if *req.LatencyMS < 0 {
			WriteDomainError(w, r, &models.ValidationError{Field: "latency_ms", Message: "latency_ms cannot be negative"})
			return
		}
		if err := h.tracker.RecordHeartbeat(r.Context(), nodeID, req.LatencyMS); err != nil {
			WriteDomainError(w, r, err)
			return
		}
	}

	WriteJSON(w, http.StatusOK, &HeartbeatResponse{
		Status:          "ok",
		IntervalSeconds: int(liveness.HeartbeatInterval.Seconds()),
	})
}

// StatusReportRequest is the request body for
// POST /api/remote/servers/{remoteID}/status.
type StatusReportRequest struct {
	Status string `json:"status"`
}

// StatusReport handles POST /api/remote/servers/{remoteID}/status.
// Unknown states and reports against suspended servers are dropped
// without error so daemons never retry them.
func (h *RemoteHandler) StatusReport(w http.ResponseWriter, r *http.Request) {
	nodeID := middleware.GetNodeID(r.Context())
	if nodeID == "" {
		WriteUnauthorized(w, r, "Missing node identity")
		return
	}

	var req StatusReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, r, "Invalid request body")
		return
	}
	if req.Status == "" {
		WriteDomainError(w, r, &models.ValidationError{Field: "status", Message: "status is required"})
		return
	}

	remoteID := chi.URLParam(r, "remoteID")
	if err := h.coordinator.ApplyStatusReport(r.Context(), nodeID, remoteID, req.Status); err != nil {
		WriteDomainError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
