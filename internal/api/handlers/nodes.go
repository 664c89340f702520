package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dcm2610/StellarStack-sub002/internal/auth"
	"github.com/dcm2610/StellarStack-sub002/internal/liveness"
	"github.com/dcm2610/StellarStack-sub002/internal/models"
	"github.com/dcm2610/StellarStack-sub002/internal/secrets"
	"github.com/dcm2610/StellarStack-sub002/internal/store"
	"github.com/dcm2610/StellarStack-sub002/internal/validation"
)

// NodeHandler handles node management requests. All routes are admin
// gated by the router.
type NodeHandler struct {
	store   store.Store
	box     *secrets.Box
	tracker *liveness.Tracker
	logger  *slog.Logger
}

// NewNodeHandler creates a new node handler.
func NewNodeHandler(st store.Store, box *secrets.Box, tracker *liveness.Tracker, logger *slog.Logger) *NodeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &NodeHandler{
		store:   st,
		box:     box,
		tracker: tracker,
		logger:  logger,
	}
}

// CreateNodeRequest is the request body for POST /api/nodes.
type CreateNodeRequest struct {
	Name               string `json:"name"`
	FQDN               string `json:"fqdn"`
	Scheme             string `json:"scheme"`
	DaemonPort         int    `json:"daemon_port"`
	MemoryMB           int64  `json:"memory_mb"`
	DiskMB             int64  `json:"disk_mb"`
	MemoryOverallocate int64  `json:"memory_overallocate"`
	DiskOverallocate   int64  `json:"disk_overallocate"`
}

// Validate validates the node creation request.
func (r *CreateNodeRequest) Validate() error {
	if err := validation.ValidateNodeName(r.Name); err != nil {
		return err
	}
	if err := validation.ValidateFQDN(r.FQDN); err != nil {
		return err
	}
	if err := validation.ValidateScheme(r.Scheme); err != nil {
		return err
	}
	if r.DaemonPort < 1 || r.DaemonPort > 65535 {
		return &models.ValidationError{Field: "daemon_port", Message: "daemon_port must be between 1 and 65535"}
	}
	if r.MemoryMB <= 0 {
		return &models.ValidationError{Field: "memory_mb", Message: "memory_mb must be positive"}
	}
	if r.DiskMB <= 0 {
		return &models.ValidationError{Field: "disk_mb", Message: "disk_mb must be positive"}
	}
	if r.MemoryOverallocate < 0 {
		return &models.ValidationError{Field: "memory_overallocate", Message: "memory_overallocate cannot be negative"}
	}
	if r.DiskOverallocate < 0 {
		return &models.ValidationError{Field: "disk_overallocate", Message: "disk_overallocate cannot be negative"}
	}
	return nil
}

// NodeCreatedResponse carries the one-time daemon credential alongside
// the stored node. The raw credential is never retrievable again.
type NodeCreatedResponse struct {
	Node       *models.Node `json:"node"`
	Credential string       `json:"credential"`
}

// List handles GET /api/nodes.
func (h *NodeHandler) List(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.store.Nodes().List(r.Context())
	if err != nil {
		h.logger.Error("listing nodes", "error", err)
		WriteInternalError(w, r, "Failed to list nodes")
		return
	}
	if nodes == nil {
		nodes = []*models.Node{}
	}

	WriteJSON(w, http.StatusOK, h.tracker.DecorateAll(nodes))
}

// Create handles POST /api/nodes.
func (h *NodeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, r, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		WriteDomainError(w, r, err)
		return
	}

	credential, err := auth.GenerateNodeCredential()
	if err != nil {
		h.logger.Error("generating node credential", "error", err)
		WriteInternalError(w, r, "Failed to generate credential")
		return
	}
	sealed, err := h.box.Seal(credential)
	if err != nil {
		h.logger.Error("sealing node credential", "error", err)
		WriteInternalError(w, r, "Failed to seal credential")
		return
	}

	node := &models.Node{
		ID:                 uuid.New().String(),
		Name:               req.Name,
		FQDN:               req.FQDN,
		Scheme:             req.Scheme,
		DaemonPort:         req.DaemonPort,
		MemoryMB:           req.MemoryMB,
		DiskMB:             req.DiskMB,
		MemoryOverallocate: req.MemoryOverallocate,
		DiskOverallocate:   req.DiskOverallocate,
	}

	if err := h.store.Nodes().Create(r.Context(), node, sealed); err != nil {
		WriteDomainError(w, r, err)
		return
	}

	actorID := authenticatedUserID(r)
	recordActivity(r.Context(), h.store, h.logger, &models.ActivityEvent{
		ActorID:    &actorID,
		Action:     models.ActivityNodeCreate,
		TargetType: "node",
		TargetID:   node.ID,
		Metadata:   map[string]string{"name": node.Name},
	})

	WriteJSON(w, http.StatusCreated, &NodeCreatedResponse{
		Node:       h.tracker.Decorate(node),
		Credential: credential,
	})
}

// Get handles GET /api/nodes/{nodeID}.
func (h *NodeHandler) Get(w http.ResponseWriter, r *http.Request) {
	node, err := h.store.Nodes().Get(r.Context(), chi.URLParam(r, "nodeID"))
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, h.tracker.Decorate(node))
}

// UpdateNodeRequest is the request body for PATCH /api/nodes/{nodeID}.
// Pointer fields distinguish "leave unchanged" from explicit zeroes.
type UpdateNodeRequest struct {
	Name               *string `json:"name,omitempty"`
	FQDN               *string `json:"fqdn,omitempty"`
	Scheme             *string `json:"scheme,omitempty"`
	DaemonPort         *int    `json:"daemon_port,omitempty"`
	MemoryMB           *int64  `json:"memory_mb,omitempty"`
	DiskMB             *int64  `json:"disk_mb,omitempty"`
	MemoryOverallocate *int64  `json:"memory_overallocate,omitempty"`
	DiskOverallocate   *int64  `json:"disk_overallocate,omitempty"`
}

// Apply overlays the request onto the node and validates the result.
func (r *UpdateNodeRequest) Apply(node *models.Node) error {
	if r.Name != nil {
		node.Name = *r.Name
	}
	if r.FQDN != nil {
		node.FQDN = *r.FQDN
	}
	if r.Scheme != nil {
		node.Scheme = *r.Scheme
	}
	if r.DaemonPort != nil {
		node.DaemonPort = *r.DaemonPort
	}
	if r.MemoryMB != nil {
		node.MemoryMB = *r.MemoryMB
	}
	if r.DiskMB != nil {
		node.DiskMB = *r.DiskMB
	}
	if r.MemoryOverallocate != nil {
		node.MemoryOverallocate = *r.MemoryOverallocate
	}
	if r.DiskOverallocate != nil {
		node.DiskOverallocate = *r.DiskOverallocate
	}

	full := CreateNodeRequest{
		Name:               node.Name,
		FQDN:               node.FQDN,
		Scheme:             node.Scheme,
		DaemonPort:         node.DaemonPort,
		MemoryMB:           node.MemoryMB,
		DiskMB:             node.DiskMB,
		MemoryOverallocate: node.MemoryOverallocate,
		DiskOverallocate:   node.DiskOverallocate,
	}
	return full.Validate()
}

// Update handles PATCH /api/nodes/{nodeID}.
func (h *NodeHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, r, "Invalid request body")
		return
	}

	node, err := h.store.Nodes().Get(r.Context(), chi.URLParam(r, "nodeID"))
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	if err := req.Apply(node); err != nil {
		WriteDomainError(w, r, err)
		return
	}

	if err := h.store.Nodes().Update(r.Context(), node); err != nil {
		WriteDomainError(w, r, err)
		return
	}

	actorID := authenticatedUserID(r)
	recordActivity(r.Context(), h.store, h.logger, &models.ActivityEvent{
		ActorID:    &actorID,
		Action:     models.ActivityNodeUpdate,
		TargetType: "node",
		TargetID:   node.ID,
	})

	WriteJSON(w, http.StatusOK, h.tracker.Decorate(node))
}

// Delete handles DELETE /api/nodes/{nodeID}. Nodes still hosting
// servers cannot be deleted.
func (h *NodeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	nodeID := chi.URLParam(r, "nodeID")
	if err := h.store.Nodes().Delete(r.Context(), nodeID); err != nil {
		WriteDomainError(w, r, err)
		return
	}

	actorID := authenticatedUserID(r)
	recordActivity(r.Context(), h.store, h.logger, &models.ActivityEvent{
		ActorID:    &actorID,
		Action:     models.ActivityNodeDelete,
		TargetType: "node",
		TargetID:   nodeID,
	})

	WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// RotateCredentialResponse carries a freshly rotated daemon credential.
type RotateCredentialResponse struct {
	Credential string `json:"credential"`
}

// RotateCredential handles POST /api/nodes/{nodeID}/rotate-credential.
// The old credential stops working immediately; the daemon must be
// reconfigured with the new value.
func (h *NodeHandler) RotateCredential(w http.ResponseWriter, r *http.Request) {
	nodeID := chi.URLParam(r, "nodeID")

	// Confirm the node exists before minting anything.
	if _, err := h.store.Nodes().Get(r.Context(), nodeID); err != nil {
		WriteDomainError(w, r, err)
		return
	}

	credential, err := auth.GenerateNodeCredential()
	if err != nil {
		h.logger.Error("generating node credential", "error", err, "node_id", nodeID)
		WriteInternalError(w, r, "Failed to generate credential")
		return
	}
	sealed, err := h.box.Seal(credential)
	if err != nil {
		h.logger.Error("sealing node credential", "error", err, "node_id", nodeID)
		WriteInternalError(w, r, "Failed to seal credential")
		return
	}

	if err := h.store.Nodes().ReplaceCredential(r.Context(), nodeID, sealed); err != nil {
		WriteDomainError(w, r, err)
		return
	}

	actorID := authenticatedUserID(r)
	recordActivity(r.Context(), h.store, h.logger, &models.ActivityEvent{
		ActorID:    &actorID,
		Action:     models.ActivityNodeRotate,
		TargetType: "node",
		TargetID:   nodeID,
	})

	WriteJSON(w, http.StatusOK, &RotateCredentialResponse{Credential: credential})
}
