// Package provision coordinates the server lifecycle: placement,
// creation, power signals, suspension and teardown.
package provision

import "errors"

// Errors returned by the coordinator.
var (
	// ErrCapacityExceeded is returned when a node cannot fit the
	// requested memory or disk on top of its existing servers.
	ErrCapacityExceeded = errors.New("node capacity exceeded")

	// ErrNotProvisioned is returned for power actions against a server
	// whose container the daemon never acknowledged.
	ErrNotProvisioned = errors.New("server has no provisioned container")

	// ErrSuspended is returned for power actions against a suspended
	// server. Only an operator unsuspend lifts it.
	ErrSuspended = errors.New("server is suspended")

	// ErrNotSuspended is returned when unsuspending a server that is not
	// suspended.
	ErrNotSuspended = errors.New("server is not suspended")

	// ErrInvalidAction is returned for an unknown power action.
	ErrInvalidAction = errors.New("invalid power action")

	// ErrImageNotAllowed is returned when a server requests an image its
	// blueprint does not list.
	ErrImageNotAllowed = errors.New("image not allowed by blueprint")
)
