package models

import "time"

// Activity actions recorded in the audit trail.
const (
	ActivityLogin            = "auth.login"
	ActivityNodeCreate       = "node.create"
	ActivityNodeUpdate       = "node.update"
	ActivityNodeDelete       = "node.delete"
	ActivityNodeRotate       = "node.rotate-credential"
	ActivityAllocationCreate = "allocation.create-range"
	ActivityAllocationDelete = "allocation.delete"
	ActivityServerCreate     = "server.create"
	ActivityServerDelete     = "server.delete"
	ActivityServerPower      = "server.power"
	ActivityServerSuspend    = "server.suspend"
	ActivityServerUnsuspend  = "server.unsuspend"
	ActivityBlueprintCreate  = "blueprint.create"
	ActivityBlueprintUpdate  = "blueprint.update"
	ActivityBlueprintDelete  = "blueprint.delete"
	ActivityUserCreate       = "user.create"
	ActivityUserUpdate       = "user.update"
	ActivityUserDelete       = "user.delete"
)

// ActivityEvent is one append-only audit record. ActorID is nil for
// events the system generates on its own.
type ActivityEvent struct {
	ID         string            `json:"id"`
	ActorID    *string           `json:"actor_id,omitempty"`
	Action     string            `json:"action"`
	TargetType string            `json:"target_type"`
	TargetID   string            `json:"target_id"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}
