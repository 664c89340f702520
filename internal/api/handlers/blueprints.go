package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dcm2610/StellarStack-sub002/internal/models"
	"github.com/dcm2610/StellarStack-sub002/internal/store"
	"github.com/dcm2610/StellarStack-sub002/internal/validation"
)

// BlueprintHandler handles server template requests. Reads are open to
// any operator; writes are admin gated by the router.
type BlueprintHandler struct {
	store  store.Store
	logger *slog.Logger
}

// NewBlueprintHandler creates a new blueprint handler.
func NewBlueprintHandler(st store.Store, logger *slog.Logger) *BlueprintHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BlueprintHandler{
		store:  st,
		logger: logger,
	}
}

// CreateBlueprintRequest is the request body for POST /api/blueprints.
type CreateBlueprintRequest struct {
	Name           string                     `json:"name"`
	Description    string                     `json:"description"`
	DockerImages   []string                   `json:"docker_images"`
	StartupCommand string                     `json:"startup_command"`
	Variables      []models.BlueprintVariable `json:"variables"`
}

// Validate validates the blueprint creation request.
func (r *CreateBlueprintRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return &models.ValidationError{Field: "name", Message: "blueprint name is required"}
	}
	if len(r.Name) > validation.MaxServerNameLength {
		return &models.ValidationError{Field: "name", Message: "blueprint name is too long"}
	}
	if len(r.DockerImages) == 0 {
		return &models.ValidationError{Field: "docker_images", Message: "at least one docker image is required"}
	}
	for _, image := range r.DockerImages {
		if strings.TrimSpace(image) == "" {
			return &models.ValidationError{Field: "docker_images", Message: "docker images cannot be blank"}
		}
	}
	return validation.ValidateBlueprintVariables(r.Variables)
}

// List handles GET /api/blueprints.
func (h *BlueprintHandler) List(w http.ResponseWriter, r *http.Request) {
	blueprints, err := h.store.Blueprints().List(r.Context())
	if err != nil {
		h.logger.Error("listing blueprints", "error", err)
		WriteInternalError(w, r, "Failed to list blueprints")
		return
	}
	if blueprints == nil {
		blueprints = []*models.Blueprint{}
	}

	WriteJSON(w, http.StatusOK, blueprints)
}

// Get handles GET /api/blueprints/{blueprintID}.
func (h *BlueprintHandler) Get(w http.ResponseWriter, r *http.Request) {
	blueprint, err := h.store.Blueprints().Get(r.Context(), chi.URLParam(r, "blueprintID"))
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, blueprint)
}

// Create handles POST /api/blueprints.
func (h *BlueprintHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateBlueprintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, r, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		WriteDomainError(w, r, err)
		return
	}

	blueprint := &models.Blueprint{
		ID:             uuid.New().String(),
		Name:           req.Name,
		Description:    req.Description,
		DockerImages:   req.DockerImages,
		StartupCommand: req.StartupCommand,
		Variables:      req.Variables,
	}
	if err := h.store.Blueprints().Create(r.Context(), blueprint); err != nil {
		WriteDomainError(w, r, err)
		return
	}

	actorID := authenticatedUserID(r)
	recordActivity(r.Context(), h.store, h.logger, &models.ActivityEvent{
		ActorID:    &actorID,
		Action:     models.ActivityBlueprintCreate,
		TargetType: "blueprint",
		TargetID:   blueprint.ID,
		Metadata:   map[string]string{"name": blueprint.Name},
	})

	WriteJSON(w, http.StatusCreated, blueprint)
}

// UpdateBlueprintRequest is the request body for
// PATCH /api/blueprints/{blueprintID}.
type UpdateBlueprintRequest struct {
	Name           *string                     `json:"name,omitempty"`
	Description    *string                     `json:"description,omitempty"`
	DockerImages   *[]string                   `json:"docker_images,omitempty"`
	StartupCommand *string                     `json:"startup_command,omitempty"`
	Variables      *[]models.BlueprintVariable `json:"variables,omitempty"`
}

// Apply overlays the request onto the blueprint and validates the
// result.
func (r *UpdateBlueprintRequest) Apply(bp *models.Blueprint) error {
	if r.Name != nil {
		bp.Name = *r.Name
	}
	if r.Description != nil {
		bp.Description = *r.Description
	}
	if r.DockerImages != nil {
		bp.DockerImages = *r.DockerImages
	}
	if r.StartupCommand != nil {
		bp.StartupCommand = *r.StartupCommand
	}
	if r.Variables != nil {
		bp.Variables = *r.Variables
	}

	full := CreateBlueprintRequest{
		Name:           bp.Name,
		Description:    bp.Description,
		DockerImages:   bp.DockerImages,
		StartupCommand: bp.StartupCommand,
		Variables:      bp.Variables,
	}
	return full.Validate()
}

// Update handles PATCH /api/blueprints/{blueprintID}. Servers already
// built from the blueprint keep their materialized environment; edits
// only affect future creates.
func (h *BlueprintHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateBlueprintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, r, "Invalid request body")
		return
	}

	blueprint, err := h.store.Blueprints().Get(r.Context(), chi.URLParam(r, "blueprintID"))
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	if err := req.Apply(blueprint); err != nil {
		WriteDomainError(w, r, err)
		return
	}

	if err := h.store.Blueprints().Update(r.Context(), blueprint); err != nil {
		WriteDomainError(w, r, err)
		return
	}

	actorID := authenticatedUserID(r)
	recordActivity(r.Context(), h.store, h.logger, &models.ActivityEvent{
		ActorID:    &actorID,
		Action:     models.ActivityBlueprintUpdate,
		TargetType: "blueprint",
		TargetID:   blueprint.ID,
	})

	WriteJSON(w, http.StatusOK, blueprint)
}

// Delete handles DELETE /api/blueprints/{blueprintID}. Blueprints with
// servers built from them cannot be deleted.
func (h *BlueprintHandler) Delete(w http.ResponseWriter, r *http.Request) {
	blueprintID := chi.URLParam(r, "blueprintID")
	if err := h.store.Blueprints().Delete(r.Context(), blueprintID); err != nil {
		WriteDomainError(w, r, err)
		return
	}

	actorID := authenticatedUserID(r)
	recordActivity(r.Context(), h.store, h.logger, &models.ActivityEvent{
		ActorID:    &actorID,
		Action:     models.ActivityBlueprintDelete,
		TargetType: "blueprint",
		TargetID:   blueprintID,
	})

	WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
