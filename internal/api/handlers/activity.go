package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dcm2610/StellarStack-sub002/internal/models"
	"github.com/dcm2610/StellarStack-sub002/internal/store"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 200
)

// ActivityHandler serves the audit trail. Admin gated by the router.
type ActivityHandler struct {
	store  store.Store
	logger *slog.Logger
}

// NewActivityHandler creates a new activity handler.
func NewActivityHandler(st store.Store, logger *slog.Logger) *ActivityHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ActivityHandler{
		store:  st,
		logger: logger,
	}
}

// ActivityPage is one page of audit events, newest first.
type ActivityPage struct {
	Events []*models.ActivityEvent `json:"events"`
	Limit  int                     `json:"limit"`
	Offset int                     `json:"offset"`
}

// List handles GET /api/activity with limit and offset query params.
func (h *ActivityHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultActivityLimit)
	if err != nil {
		WriteBadRequest(w, r, "limit must be a non-negative integer")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		WriteBadRequest(w, r, "offset must be a non-negative integer")
		return
	}
	if limit <= 0 || limit > maxActivityLimit {
		limit = defaultActivityLimit
	}

	events, err := h.store.Activity().List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("listing activity", "error", err)
		WriteInternalError(w, r, "Failed to list activity")
		return
	}
	if events == nil {
		events = []*models.ActivityEvent{}
	}

	WriteJSON(w, http.StatusOK, &ActivityPage{
		Events: events,
		Limit:  limit,
		Offset: offset,
	})
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, strconv.ErrSyntax
	}
	return value, nil
}
