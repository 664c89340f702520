// Package models provides data models for the StellarStack platform.
package models

import (
	"fmt"
	"time"
)

// Node represents a machine running the StellarStack daemon.
//
// Online is never persisted. It is derived from CandidateOnline and
// LastHeartbeat recency at every read boundary, so a stale row can
// never report a node as reachable.
type Node struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	FQDN               string     `json:"fqdn"`
	Scheme             string     `json:"scheme"`
	DaemonPort         int        `json:"daemon_port"`
	MemoryMB           int64      `json:"memory_mb"`
	DiskMB             int64      `json:"disk_mb"`
	MemoryOverallocate int64      `json:"memory_overallocate"`
	DiskOverallocate   int64      `json:"disk_overallocate"`
	CandidateOnline    bool       `json:"-"`
	LastHeartbeat      *time.Time `json:"last_heartbeat,omitempty"`
	LatencyMS          *int64     `json:"latency_ms,omitempty"`
	Online             bool       `json:"online"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// BaseURL returns the daemon's HTTP base URL for this node.
func (n *Node) BaseURL() string {
	scheme := n.Scheme
	if scheme == "" {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, n.FQDN, n.DaemonPort)
}

// UsableMemoryMB returns the memory capacity including overallocation headroom.
func (n *Node) UsableMemoryMB() int64 {
	return n.MemoryMB + n.MemoryMB*n.MemoryOverallocate/100
}

// UsableDiskMB returns the disk capacity including overallocation headroom.
func (n *Node) UsableDiskMB() int64 {
	return n.DiskMB + n.DiskMB*n.DiskOverallocate/100
}
