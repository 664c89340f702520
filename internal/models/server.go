package models

import "time"

// Limits holds the resource ceilings applied to a server's container.
// Memory and disk are megabytes; CPU is a percentage where 100 equals
// one full core and 0 means unlimited.
type Limits struct {
	MemoryMB   int64 `json:"memory_mb"`
	DiskMB     int64 `json:"disk_mb"`
	CPUPercent int64 `json:"cpu_percent"`
}

// Server represents a game server instance owned by a user and placed on
// a node. RemoteID is the daemon-side container id; it stays nil until
// the daemon acknowledges creation, and power actions require it.
type Server struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	OwnerID      string            `json:"owner_id"`
	NodeID       string            `json:"node_id"`
	BlueprintID  string            `json:"blueprint_id"`
	Status       ServerStatus      `json:"status"`
	RemoteID     *string           `json:"remote_id,omitempty"`
	Limits       Limits            `json:"limits"`
	Image        string            `json:"image"`
	Environment  map[string]string `json:"environment"`
	AllocationID string            `json:"allocation_id"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Provisioned reports whether the daemon has acknowledged container
// creation for this server.
func (s *Server) Provisioned() bool {
	return s.RemoteID != nil && *s.RemoteID != ""
}
