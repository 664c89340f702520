package auth

import (
	"errors"

	"github.com/dcm2610/StellarStack-sub002/internal/models"
)

// ErrPermissionDenied is returned when a user lacks access to a
// resource.
var ErrPermissionDenied = errors.New("permission denied")

// CanAccessServer reports whether the authenticated user may operate on
// the server. Admins pass everywhere; everyone else only on servers
// they own.
func CanAccessServer(claims *Claims, server *models.Server) bool {
	if claims == nil || server == nil {
		return false
	}
	if claims.Admin {
		return true
	}
	return claims.UserID == server.OwnerID
}

// RequireServerAccess is CanAccessServer as an error check, for
// handlers that want a single guard line.
func RequireServerAccess(claims *Claims, server *models.Server) error {
	if !CanAccessServer(claims, server) {
		return ErrPermissionDenied
	}
	return nil
}

// RequireAdmin rejects non-admin users. Node, allocation, blueprint and
// user management are admin-only surfaces.
func RequireAdmin(claims *Claims) error {
	if claims == nil || !claims.Admin {
		return ErrPermissionDenied
	}
	return nil
}
