package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dcm2610/StellarStack-sub002/internal/auth"
	"github.com/dcm2610/StellarStack-sub002/internal/models"
	"github.com/dcm2610/StellarStack-sub002/internal/store"
)

// AuthHandler handles login and the self endpoint.
type AuthHandler struct {
	store       store.Store
	authService *auth.Service
	logger      *slog.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(st store.Store, authService *auth.Service, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{
		store:       st,
		authService: authService,
		logger:      logger,
	}
}

// LoginRequest is the request body for POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate validates the login request.
func (r *LoginRequest) Validate() error {
	if r.Email == "" {
		return &models.ValidationError{Field: "email", Message: "email is required"}
	}
	if r.Password == "" {
		return &models.ValidationError{Field: "password", Message: "password is required"}
	}
	return nil
}

// LoginResponse is the response body for a successful login.
type LoginResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, r, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		WriteDomainError(w, r, err)
		return
	}

	user, err := h.store.Users().VerifyPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.Error("verifying login credentials", "error", err)
		WriteInternalError(w, r, "Failed to verify credentials")
		return
	}
	if user == nil {
		WriteUnauthorized(w, r, "Invalid email or password")
		return
	}

	token, err := h.authService.GenerateToken(user)
	if err != nil {
		h.logger.Error("generating operator token", "error", err, "user_id", user.ID)
		WriteInternalError(w, r, "Failed to generate token")
		return
	}

	recordActivity(r.Context(), h.store, h.logger, &models.ActivityEvent{
		ActorID:    &user.ID,
		Action:     models.ActivityLogin,
		TargetType: "user",
		TargetID:   user.ID,
	})

	WriteJSON(w, http.StatusOK, &LoginResponse{Token: token, User: user})
}

// Me handles GET /api/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := authenticatedUserID(r)
	if userID == "" {
		WriteUnauthorized(w, r, "Authentication required")
		return
	}

	user, err := h.store.Users().Get(r.Context(), userID)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, user)
}
