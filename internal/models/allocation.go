package models

// Allocation represents an (ip, port) pair owned by a node. At most one
// server holds an allocation at a time; ServerID is nil while unassigned.
type Allocation struct {
	ID       string  `json:"id"`
	NodeID   string  `json:"node_id"`
	IP       string  `json:"ip"`
	Port     int     `json:"port"`
	Alias    string  `json:"alias,omitempty"`
	ServerID *string `json:"server_id,omitempty"`
}

// Assigned reports whether the allocation is held by a server.
func (a *Allocation) Assigned() bool {
	return a.ServerID != nil
}
