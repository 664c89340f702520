package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dcm2610/StellarStack-sub002/internal/models"
	"github.com/dcm2610/StellarStack-sub002/internal/store"
	"github.com/dcm2610/StellarStack-sub002/internal/validation"
)

// AllocationHandler handles the (ip, port) ledger. Admin gated by the
// router.
type AllocationHandler struct {
	store  store.Store
	logger *slog.Logger
}

// NewAllocationHandler creates a new allocation handler.
func NewAllocationHandler(st store.Store, logger *slog.Logger) *AllocationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AllocationHandler{
		store:  st,
		logger: logger,
	}
}

// CreateAllocationsRequest is the request body for
// POST /api/nodes/{nodeID}/allocations. A single port is expressed as
// start_port == end_port.
type CreateAllocationsRequest struct {
	IP        string `json:"ip"`
	StartPort int    `json:"start_port"`
	EndPort   int    `json:"end_port"`
}

// Validate validates the allocation range request.
func (r *CreateAllocationsRequest) Validate() error {
	if err := validation.ValidateIP(r.IP); err != nil {
		return err
	}
	return validation.ValidatePortRange(r.StartPort, r.EndPort)
}

// CreateAllocationsResponse reports how many ports were newly added.
// Ports the node already had are skipped, not errors.
type CreateAllocationsResponse struct {
	Created int `json:"created"`
}

// ListByNode handles GET /api/nodes/{nodeID}/allocations.
func (h *AllocationHandler) ListByNode(w http.ResponseWriter, r *http.Request) {
	nodeID := chi.URLParam(r, "nodeID")

	// A missing node is a 404, not an empty list.
	if _, err := h.store.Nodes().Get(r.Context(), nodeID); err != nil {
		WriteDomainError(w, r, err)
		return
	}

	allocations, err := h.store.Allocations().ListByNode(r.Context(), nodeID)
	if err != nil {
		h.logger.Error("listing allocations", "error", err, "node_id", nodeID)
		WriteInternalError(w, r, "Failed to list allocations")
		return
	}
	if allocations == nil {
		allocations = []*models.Allocation{}
	}

	WriteJSON(w, http.StatusOK, allocations)
}

// Create handles POST /api/nodes/{nodeID}/allocations.
func (h *AllocationHandler) Create(w http.ResponseWriter, r *http.Request) {
	nodeID := chi.URLParam(r, "nodeID")

	var req CreateAllocationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, r, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		WriteDomainError(w, r, err)
		return
	}

	if _, err := h.store.Nodes().Get(r.Context(), nodeID); err != nil {
		WriteDomainError(w, r, err)
		return
	}

	created, err := h.store.Allocations().CreateRange(r.Context(), nodeID, req.IP, req.StartPort, req.EndPort)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}

	actorID := authenticatedUserID(r)
	recordActivity(r.Context(), h.store, h.logger, &models.ActivityEvent{
		ActorID:    &actorID,
		Action:     models.ActivityAllocationCreate,
		TargetType: "node",
		TargetID:   nodeID,
		Metadata: map[string]string{
			"ip":    req.IP,
			"range": portRangeLabel(req.StartPort, req.EndPort),
		},
	})

	WriteJSON(w, http.StatusCreated, &CreateAllocationsResponse{Created: created})
}

// Delete handles DELETE /api/allocations/{allocationID}. Assigned
// allocations cannot be deleted; release them by deleting the server.
func (h *AllocationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	allocationID := chi.URLParam(r, "allocationID")
	if err := h.store.Allocations().Delete(r.Context(), allocationID); err != nil {
		WriteDomainError(w, r, err)
		return
	}

	actorID := authenticatedUserID(r)
	recordActivity(r.Context(), h.store, h.logger, &models.ActivityEvent{
		ActorID:    &actorID,
		Action:     models.ActivityAllocationDelete,
		TargetType: "allocation",
		TargetID:   allocationID,
	})

	WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
