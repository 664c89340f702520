package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dcm2610/StellarStack-sub002/internal/auth"
	"github.com/dcm2610/StellarStack-sub002/internal/liveness"
	"github.com/dcm2610/StellarStack-sub002/internal/models"
	"github.com/dcm2610/StellarStack-sub002/internal/provision"
	"github.com/dcm2610/StellarStack-sub002/internal/relay"
	"github.com/dcm2610/StellarStack-sub002/internal/store"
	"github.com/dcm2610/StellarStack-sub002/internal/validation"
)

// ServerHandler handles game server requests. Ownership is enforced
// per handler; admin-only routes are additionally gated by the router.
type ServerHandler struct {
	store       store.Store
	coordinator *provision.Coordinator
	relay       *relay.Client
	authService *auth.Service
	tracker     *liveness.Tracker
	logger      *slog.Logger
}

// NewServerHandler creates a new server handler.
func NewServerHandler(st store.Store, coordinator *provision.Coordinator, rl *relay.Client, authService *auth.Service, tracker *liveness.Tracker, logger *slog.Logger) *ServerHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ServerHandler{
		store:       st,
		coordinator: coordinator,
		relay:       rl,
		authService: authService,
		tracker:     tracker,
		logger:      logger,
	}
}

// CreateServerRequest is the request body for POST /api/servers.
type CreateServerRequest struct {
	Name          string            `json:"name"`
	OwnerID       string            `json:"owner_id"`
	NodeID        string            `json:"node_id"`
	BlueprintID   string            `json:"blueprint_id"`
	Image         string            `json:"image"`
	Limits        models.Limits     `json:"limits"`
	Environment   map[string]string `json:"environment"`
	AllocationIDs []string          `json:"allocation_ids"`
}

// Validate validates the fields the coordinator does not own: name,
// limits and referential ids being present. Capacity, image and
// allocation eligibility are the coordinator's business.
func (r *CreateServerRequest) Validate() error {
	if err := validation.ValidateServerName(r.Name); err != nil {
		return err
	}
	if err := validation.ValidateLimits(r.Limits); err != nil {
		return err
	}
	if r.OwnerID == "" {
		return &models.ValidationError{Field: "owner_id", Message: "owner_id is required"}
	}
	if r.NodeID == "" {
		return &models.ValidationError{Field: "node_id", Message: "node_id is required"}
	}
	if r.BlueprintID == "" {
		return &models.ValidationError{Field: "blueprint_id", Message: "blueprint_id is required"}
	}
	if r.Image == "" {
		return &models.ValidationError{Field: "image", Message: "image is required"}
	}
	return nil
}

// ServerDetailResponse is a server with its node's derived liveness and
// its reserved ports.
type ServerDetailResponse struct {
	Server      *models.Server       `json:"server"`
	Node        *models.Node         `json:"node"`
	Allocations []*models.Allocation `json:"allocations"`
}

// List handles GET /api/servers. Admins see every server, owners only
// their own.
func (h *ServerHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := authenticatedClaims(r)
	if claims == nil {
		WriteUnauthorized(w, r, "Authentication required")
		return
	}

	var (
		servers []*models.Server
		err     error
	)
	if claims.Admin {
		servers, err = h.store.Servers().List(r.Context())
	} else {
		servers, err = h.store.Servers().ListByOwner(r.Context(), claims.UserID)
	}
	if err != nil {
		h.logger.Error("listing servers", "error", err, "user_id", claims.UserID)
		WriteInternalError(w, r, "Failed to list servers")
		return
	}
	if servers == nil {
		servers = []*models.Server{}
	}

	WriteJSON(w, http.StatusOK, servers)
}

// Create handles POST /api/servers.
func (h *ServerHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateServerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, r, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		WriteDomainError(w, r, err)
		return
	}

	if _, err := h.store.Users().Get(r.Context(), req.OwnerID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			WriteBadRequest(w, r, "Owner does not exist")
			return
		}
		WriteDomainError(w, r, err)
		return
	}

	// Per-server variable values are checked against the blueprint's
	// rules at the edge; the coordinator only overlays defaults.
	blueprint, err := h.store.Blueprints().Get(r.Context(), req.BlueprintID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			WriteBadRequest(w, r, "Blueprint does not exist")
			return
		}
		WriteDomainError(w, r, err)
		return
	}
	if err := validation.ValidateEnvironment(blueprint, req.Environment); err != nil {
		WriteDomainError(w, r, err)
		return
	}

	server, err := h.coordinator.CreateServer(r.Context(), &provision.CreateRequest{
		Name:          req.Name,
		OwnerID:       req.OwnerID,
		NodeID:        req.NodeID,
		BlueprintID:   req.BlueprintID,
		Image:         req.Image,
		Limits:        req.Limits,
		Environment:   req.Environment,
		AllocationIDs: req.AllocationIDs,
	})
	if err != nil {
		// The row may exist in the error status when the daemon failed
		// after persistence. The operator sees the failure either way.
		WriteDomainError(w, r, err)
		return
	}

	actorID := authenticatedUserID(r)
	recordActivity(r.Context(), h.store, h.logger, &models.ActivityEvent{
		ActorID:    &actorID,
		Action:     models.ActivityServerCreate,
		TargetType: "server",
		TargetID:   server.ID,
		Metadata:   map[string]string{"name": server.Name, "node_id": server.NodeID},
	})

	WriteJSON(w, http.StatusCreated, server)
}

// Get handles GET /api/servers/{serverID}.
func (h *ServerHandler) Get(w http.ResponseWriter, r *http.Request) {
	server, ok := h.loadAuthorized(w, r)
	if !ok {
		return
	}

	node, err := h.store.Nodes().Get(r.Context(), server.NodeID)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	allocations, err := h.store.Allocations().ListByServer(r.Context(), server.ID)
	if err != nil {
		h.logger.Error("listing server allocations", "error", err, "server_id", server.ID)
		WriteInternalError(w, r, "Failed to load server")
		return
	}
	if allocations == nil {
		allocations = []*models.Allocation{}
	}

	WriteJSON(w, http.StatusOK, &ServerDetailResponse{
		Server:      server,
		Node:        h.tracker.Decorate(node),
		Allocations: allocations,
	})
}

// Delete handles DELETE /api/servers/{serverID}. With ?force=true the
// row is removed even when the daemon cannot be reached.
func (h *ServerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	serverID := chi.URLParam(r, "serverID")
	force := r.URL.Query().Get("force") == "true"

	if err := h.coordinator.DeleteServer(r.Context(), serverID, force); err != nil {
		WriteDomainError(w, r, err)
		return
	}

	actorID := authenticatedUserID(r)
	recordActivity(r.Context(), h.store, h.logger, &models.ActivityEvent{
		ActorID:    &actorID,
		Action:     models.ActivityServerDelete,
		TargetType: "server",
		TargetID:   serverID,
		Metadata:   map[string]string{"force": fmt.Sprintf("%t", force)},
	})

	WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// PowerRequest is the request body for POST /api/servers/{serverID}/power.
type PowerRequest struct {
	Action string `json:"action"`
}

// Power handles POST /api/servers/{serverID}/power.
func (h *ServerHandler) Power(w http.ResponseWriter, r *http.Request) {
	server, ok := h.loadAuthorized(w, r)
	if !ok {
		return
	}

	var req PowerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, r, "Invalid request body")
		return
	}

	action := models.PowerAction(req.Action)
	if err := h.coordinator.PowerAction(r.Context(), server.ID, action); err != nil {
		WriteDomainError(w, r, err)
		return
	}

	actorID := authenticatedUserID(r)
	recordActivity(r.Context(), h.store, h.logger, &models.ActivityEvent{
		ActorID:    &actorID,
		Action:     models.ActivityServerPower,
		TargetType: "server",
		TargetID:   server.ID,
		Metadata:   map[string]string{"action": string(action)},
	})

	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Suspend handles POST /api/servers/{serverID}/suspend.
func (h *ServerHandler) Suspend(w http.ResponseWriter, r *http.Request) {
	h.suspension(w, r, true)
}

// Unsuspend handles POST /api/servers/{serverID}/unsuspend.
func (h *ServerHandler) Unsuspend(w http.ResponseWriter, r *http.Request) {
	h.suspension(w, r, false)
}

func (h *ServerHandler) suspension(w http.ResponseWriter, r *http.Request, suspend bool) {
	serverID := chi.URLParam(r, "serverID")

	var err error
	action := models.ActivityServerSuspend
	if suspend {
		err = h.coordinator.Suspend(r.Context(), serverID)
	} else {
		err = h.coordinator.Unsuspend(r.Context(), serverID)
		action = models.ActivityServerUnsuspend
	}
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}

	actorID := authenticatedUserID(r)
	recordActivity(r.Context(), h.store, h.logger, &models.ActivityEvent{
		ActorID:    &actorID,
		Action:     action,
		TargetType: "server",
		TargetID:   serverID,
	})

	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ConsoleResponse carries what a client needs to open a console
// session: the daemon's websocket endpoint and a short-lived token the
// daemon can verify on its own.
type ConsoleResponse struct {
	Socket string `json:"socket"`
	Token  string `json:"token"`
}

// Console handles GET /api/servers/{serverID}/console.
func (h *ServerHandler) Console(w http.ResponseWriter, r *http.Request) {
	server, ok := h.loadAuthorized(w, r)
	if !ok {
		return
	}
	if !server.Provisioned() {
		WriteDomainError(w, r, provision.ErrNotProvisioned)
		return
	}

	node, err := h.store.Nodes().Get(r.Context(), server.NodeID)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	sealed, err := h.store.Nodes().SealedCredential(r.Context(), server.NodeID)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}

	token, err := h.authService.IssueConsoleToken(server, sealed, authenticatedUserID(r))
	if err != nil {
		h.logger.Error("issuing console token", "error", err, "server_id", server.ID)
		WriteInternalError(w, r, "Failed to issue console token")
		return
	}

	socketScheme := "ws"
	if node.Scheme == "https" {
		socketScheme = "wss"
	}
	socket := fmt.Sprintf("%s://%s:%d/containers/%s/console",
		socketScheme, node.FQDN, node.DaemonPort, *server.RemoteID)

	WriteJSON(w, http.StatusOK, &ConsoleResponse{Socket: socket, Token: token})
}

// Stats handles GET /api/servers/{serverID}/stats. The daemon's stats
// document passes through untouched.
func (h *ServerHandler) Stats(w http.ResponseWriter, r *http.Request) {
	server, ok := h.loadAuthorized(w, r)
	if !ok {
		return
	}
	if !server.Provisioned() {
		WriteDomainError(w, r, provision.ErrNotProvisioned)
		return
	}

	node, err := h.store.Nodes().Get(r.Context(), server.NodeID)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}

	stats, err := h.relay.Stats(r.Context(), node, *server.RemoteID)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, stats)
}

// loadAuthorized loads the routed server and enforces ownership. On
// failure the response is already written.
func (h *ServerHandler) loadAuthorized(w http.ResponseWriter, r *http.Request) (*models.Server, bool) {
	server, err := h.store.Servers().Get(r.Context(), chi.URLParam(r, "serverID"))
	if err != nil {
		WriteDomainError(w, r, err)
		return nil, false
	}
	if err := auth.RequireServerAccess(authenticatedClaims(r), server); err != nil {
		WriteDomainError(w, r, err)
		return nil, false
	}
	return server, true
}
