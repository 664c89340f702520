package postgres

import (
	"strings"

	"github.com/dcm2610/StellarStack-sub002/internal/store"
)

// The store package owns the sentinel errors so callers do not have to
// import a concrete implementation to match them. Local names keep the
// query files terse.
var (
	ErrNotFound           = store.ErrNotFound
	ErrDuplicate          = store.ErrDuplicate
	ErrInUse              = store.ErrInUse
	ErrAllocationConflict = store.ErrAllocationConflict
)

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	// PostgreSQL error code 23505 is unique_violation
	return strings.Contains(err.Error(), "23505") ||
		strings.Contains(err.Error(), "unique constraint") ||
		strings.Contains(err.Error(), "duplicate key")
}

// isForeignKeyViolation checks if the error is a PostgreSQL foreign key violation.
func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	// PostgreSQL error code 23503 is foreign_key_violation
	return strings.Contains(err.Error(), "23503") ||
		strings.Contains(err.Error(), "foreign key constraint")
}
