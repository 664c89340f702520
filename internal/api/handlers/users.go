package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dcm2610/StellarStack-sub002/internal/models"
	"github.com/dcm2610/StellarStack-sub002/internal/store"
)

// MinPasswordLength is the shortest accepted account password.
const MinPasswordLength = 8

// UserHandler handles panel account management. Admin gated by the
// router.
type UserHandler struct {
	store  store.Store
	logger *slog.Logger
}

// NewUserHandler creates a new user handler.
func NewUserHandler(st store.Store, logger *slog.Logger) *UserHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserHandler{
		store:  st,
		logger: logger,
	}
}

// CreateUserRequest is the request body for POST /api/users.
type CreateUserRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	IsAdmin  bool   `json:"is_admin"`
}

// Validate validates the user creation request.
func (r *CreateUserRequest) Validate() error {
	if err := validateEmail(r.Email); err != nil {
		return err
	}
	if strings.TrimSpace(r.Username) == "" {
		return &models.ValidationError{Field: "username", Message: "username is required"}
	}
	if len(r.Password) < MinPasswordLength {
		return &models.ValidationError{Field: "password", Message: "password must be at least 8 characters"}
	}
	return nil
}

func validateEmail(email string) error {
	at := strings.Index(email, "@")
	if at < 1 || at == len(email)-1 || strings.ContainsAny(email, " \t") {
		return &models.ValidationError{Field: "email", Message: "a valid email address is required"}
	}
	return nil
}

// List handles GET /api/users.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.Users().List(r.Context())
	if err != nil {
		h.logger.Error("listing users", "error", err)
		WriteInternalError(w, r, "Failed to list users")
		return
	}
	if users == nil {
		users = []*models.User{}
	}

	WriteJSON(w, http.StatusOK, users)
}

// Create handles POST /api/users.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, r, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		WriteDomainError(w, r, err)
		return
	}

	user, err := h.store.Users().Create(r.Context(), req.Email, req.Username, req.Password, req.IsAdmin)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}

	actorID := authenticatedUserID(r)
	recordActivity(r.Context(), h.store, h.logger, &models.ActivityEvent{
		ActorID:    &actorID,
		Action:     models.ActivityUserCreate,
		TargetType: "user",
		TargetID:   user.ID,
		Metadata:   map[string]string{"email": user.Email},
	})

	WriteJSON(w, http.StatusCreated, user)
}

// Get handles GET /api/users/{userID}.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.store.Users().Get(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, user)
}

// UpdateUserRequest is the request body for PATCH /api/users/{userID}.
type UpdateUserRequest struct {
	Email    *string `json:"email,omitempty"`
	Username *string `json:"username,omitempty"`
	IsAdmin  *bool   `json:"is_admin,omitempty"`
	Password *string `json:"password,omitempty"`
}

// Update handles PATCH /api/users/{userID}.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, r, "Invalid request body")
		return
	}
	if req.Password != nil && len(*req.Password) < MinPasswordLength {
		WriteDomainError(w, r, &models.ValidationError{Field: "password", Message: "password must be at least 8 characters"})
		return
	}

	user, err := h.store.Users().Get(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}

	if req.Email != nil {
		if err := validateEmail(*req.Email); err != nil {
			WriteDomainError(w, r, err)
			return
		}
		user.Email = *req.Email
	}
	if req.Username != nil {
		if strings.TrimSpace(*req.Username) == "" {
			WriteDomainError(w, r, &models.ValidationError{Field: "username", Message: "username cannot be blank"})
			return
		}
		user.Username = *req.Username
	}
	if req.IsAdmin != nil {
		user.IsAdmin = *req.IsAdmin
	}

	if err := h.store.Users().Update(r.Context(), user); err != nil {
		WriteDomainError(w, r, err)
		return
	}

	if req.Password != nil {
		if err := h.store.Users().UpdatePassword(r.Context(), user.ID, *req.Password); err != nil {
			WriteDomainError(w, r, err)
			return
		}
	}

	actorID := authenticatedUserID(r)
	recordActivity(r.Context(), h.store, h.logger, &models.ActivityEvent{
		ActorID:    &actorID,
		Action:     models.ActivityUserUpdate,
		TargetType: "user",
		TargetID:   user.ID,
	})

	WriteJSON(w, http.StatusOK, user)
}

// Delete handles DELETE /api/users/{userID}. Accounts that still own
// servers cannot be deleted, and admins cannot delete themselves.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == authenticatedUserID(r) {
		WriteConflict(w, r, "You cannot delete your own account")
		return
	}

	if err := h.store.Users().Delete(r.Context(), userID); err != nil {
		WriteDomainError(w, r, err)
		return
	}

	actorID := authenticatedUserID(r)
	recordActivity(r.Context(), h.store, h.logger, &models.ActivityEvent{
		ActorID:    &actorID,
		Action:     models.ActivityUserDelete,
		TargetType: "user",
		TargetID:   userID,
	})

	WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
