package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	apierrors "github.com/dcm2610/StellarStack-sub002/internal/api/errors"
	"github.com/dcm2610/StellarStack-sub002/internal/auth"
	"github.com/dcm2610/StellarStack-sub002/internal/liveness"
	"github.com/dcm2610/StellarStack-sub002/internal/store"
)

// Context keys for authenticated principals.
type contextKey string

const (
	// ClaimsKey is the context key for the authenticated operator claims.
	ClaimsKey contextKey = "auth_claims"
	// NodeIDKey is the context key for the authenticated daemon's node ID.
	NodeIDKey contextKey = "node_id"
)

// GetClaims extracts the operator claims from the request context. Nil
// when the request did not pass operator authentication.
func GetClaims(ctx context.Context) *auth.Claims {
	if v := ctx.Value(ClaimsKey); v != nil {
		return v.(*auth.Claims)
	}
	return nil
}

// GetUserID extracts the authenticated user ID from the request context.
func GetUserID(ctx context.Context) string {
	if claims := GetClaims(ctx); claims != nil {
		return claims.UserID
	}
	return ""
}

// GetNodeID extracts the authenticated node ID from the request context.
// Empty when the request did not pass daemon authentication.
func GetNodeID(ctx context.Context) string {
	if v := ctx.Value(NodeIDKey); v != nil {
		return v.(string)
	}
	return ""
}

// AuthMiddleware validates operator JWTs on the panel API surface.
type AuthMiddleware struct {
	authService *auth.Service
	logger      *slog.Logger
}

// NewAuthMiddleware creates a new operator authentication middleware.
func NewAuthMiddleware(authService *auth.Service, logger *slog.Logger) *AuthMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthMiddleware{
		authService: authService,
		logger:      logger,
	}
}

// Authenticate validates the bearer JWT and stores the operator claims
// in the request context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.ExtractBearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeUnauthorized(w, r, "Missing authentication")
			return
		}

		claims, err := m.authService.ValidateToken(token)
		if err != nil {
			m.logger.Debug("token validation failed", "error", err)
			if errors.Is(err, auth.ErrExpiredToken) {
				writeUnauthorized(w, r, "Token has expired")
				return
			}
			writeUnauthorized(w, r, "Invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin rejects requests whose operator claims lack the admin
// flag. It must run after Authenticate.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := GetClaims(r.Context())
		if claims == nil {
			writeUnauthorized(w, r, "Authentication required")
			return
		}
		if !claims.Admin {
			writeForbidden(w, r, "Administrator access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// NodeAuthMiddleware authenticates daemon requests by their node
// credential.
type NodeAuthMiddleware struct {
	st          store.Store
	authService *auth.Service
	tracker     *liveness.Tracker
	logger      *slog.Logger
}

// NewNodeAuthMiddleware creates a new daemon authentication middleware.
func NewNodeAuthMiddleware(st store.Store, authService *auth.Service, tracker *liveness.Tracker, logger *slog.Logger) *NodeAuthMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &NodeAuthMiddleware{
		st:          st,
		authService: authService,
		tracker:     tracker,
		logger:      logger,
	}
}

// Authenticate resolves the calling daemon by constant-time comparison
// of the presented bearer credential against every node's unsealed
// credential, stores the node ID in the request context, and refreshes
// the node's heartbeat. Any authenticated daemon contact counts as
// liveness, not just the heartbeat endpoint.
func (m *NodeAuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented := auth.ExtractBearerToken(r.Header.Get("Authorization"))
		if presented == "" || !strings.HasPrefix(presented, auth.NodeCredentialPrefix) {
			writeUnauthorized(w, r, "Missing node credential")
			return
		}

		nodeID, ok := m.resolveNode(r.Context(), presented)
		if !ok {
			writeUnauthorized(w, r, "Invalid node credential")
			return
		}

		if err := m.tracker.RecordHeartbeat(r.Context(), nodeID, nil); err != nil {
			m.logger.Warn("refreshing heartbeat on daemon request", "error", err, "node_id", nodeID)
		}

		ctx := context.WithValue(r.Context(), NodeIDKey, nodeID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// resolveNode scans all nodes for one whose credential matches. The
// bearer value carries no node identifier, so every sealed credential
// is opened and compared in constant time.
func (m *NodeAuthMiddleware) resolveNode(ctx context.Context, presented string) (string, bool) {
	nodes, err := m.st.Nodes().List(ctx)
	if err != nil {
		m.logger.Error("listing nodes for daemon auth", "error", err)
		return "", false
	}

	for _, node := range nodes {
		sealed, err := m.st.Nodes().SealedCredential(ctx, node.ID)
		if err != nil {
			m.logger.Debug("loading sealed credential", "error", err, "node_id", node.ID)
			continue
		}
		match, err := m.authService.VerifyNodeCredential(presented, sealed)
		if err != nil {
			m.logger.Debug("opening sealed credential", "error", err, "node_id", node.ID)
			continue
		}
		if match {
			return node.ID, true
		}
	}
	return "", false
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	requestID := chimiddleware.GetReqID(r.Context())
	apierrors.WriteError(w, apierrors.NewUnauthorized(message).WithRequestID(requestID))
}

func writeForbidden(w http.ResponseWriter, r *http.Request, message string) {
	requestID := chimiddleware.GetReqID(r.Context())
	apierrors.WriteError(w, apierrors.NewForbidden(message).WithRequestID(requestID))
}
