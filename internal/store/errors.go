package store

import "errors"

// Sentinel errors shared by every Store implementation. Callers match
// them with errors.Is regardless of the backing database.
var (
	// ErrNotFound is returned when a requested resource does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("duplicate resource")

	// ErrInUse is returned when deleting a resource other rows still
	// reference, such as a node with servers.
	ErrInUse = errors.New("resource is in use")

	// ErrAllocationConflict is returned when a reserve batch includes an
	// allocation that is missing, foreign to the node, or already held.
	ErrAllocationConflict = errors.New("allocation unavailable")
)
