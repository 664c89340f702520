package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dcm2610/StellarStack-sub002/internal/api/middleware"
	"github.com/dcm2610/StellarStack-sub002/internal/auth"
	"github.com/dcm2610/StellarStack-sub002/internal/models"
	"github.com/dcm2610/StellarStack-sub002/internal/store"
)

// authenticatedClaims returns the operator claims the auth middleware
// placed in the request context, or nil on the unauthenticated surface.
func authenticatedClaims(r *http.Request) *auth.Claims {
	return middleware.GetClaims(r.Context())
}

// authenticatedUserID returns the operator user id from the request
// context, or the empty string.
func authenticatedUserID(r *http.Request) string {
	return middleware.GetUserID(r.Context())
}

// recordActivity appends an audit event. Failures are logged, never
// surfaced; an audit miss must not fail the operation it records.
func recordActivity(ctx context.Context, st store.Store, logger *slog.Logger, event *models.ActivityEvent) {
	if err := st.Activity().Record(ctx, event); err != nil {
		logger.Error("recording activity", "error", err, "action", event.Action)
	}
}

// portRangeLabel formats a port range for audit metadata.
func portRangeLabel(start, end int) string {
	if start == end {
		return strconv.Itoa(start)
	}
	return fmt.Sprintf("%d-%d", start, end)
}
