// Package store provides database access interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/dcm2610/StellarStack-sub002/internal/models"
)

// UserStore defines operations for panel accounts.
type UserStore interface {
	// Create creates a new user with a bcrypt-hashed password.
	Create(ctx context.Context, email, username, password string, isAdmin bool) (*models.User, error)
	// Get retrieves a user by ID.
	Get(ctx context.Context, id string) (*models.User, error)
	// GetByEmail retrieves a user by email, or nil when absent.
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// List retrieves all users.
	List(ctx context.Context) ([]*models.User, error)
	// Update updates a user's email, username and admin flag.
	Update(ctx context.Context, user *models.User) error
	// UpdatePassword replaces a user's password hash.
	UpdatePassword(ctx context.Context, id, password string) error
	// VerifyPassword checks a password against the stored hash and
	// returns the user on success, or nil when the pair does not match.
	VerifyPassword(ctx context.Context, email, password string) (*models.User, error)
	// Delete deletes a user.
	Delete(ctx context.Context, id string) error
	// Count returns the total number of users.
	Count(ctx context.Context) (int, error)
}

// NodeStore defines operations for daemon nodes.
type NodeStore interface {
	// Create creates a new node with its sealed daemon credential.
	Create(ctx context.Context, node *models.Node, sealedCredential string) error
	// Get retrieves a node by ID.
	Get(ctx context.Context, id string) (*models.Node, error)
	// List retrieves all nodes.
	List(ctx context.Context) ([]*models.Node, error)
	// Update updates a node's mutable fields.
	Update(ctx context.Context, node *models.Node) error
	// Delete deletes a node. Nodes with servers cannot be deleted.
	Delete(ctx context.Context, id string) error
	// SealedCredential returns the node's encrypted daemon credential.
	SealedCredential(ctx context.Context, id string) (string, error)
	// ReplaceCredential swaps in a freshly sealed daemon credential.
	ReplaceCredential(ctx context.Context, id, sealedCredential string) error
	// RecordHeartbeat stores a heartbeat observation and marks the node
	// a liveness candidate.
	RecordHeartbeat(ctx context.Context, id string, at time.Time, latencyMS *int64) error
}

// AllocationStore defines operations for the (ip, port) ledger.
type AllocationStore interface {
	// CreateRange creates one allocation per port in [startPort, endPort],
	// skipping (ip, port) pairs the node already has. Returns the number
	// created.
	CreateRange(ctx context.Context, nodeID, ip string, startPort, endPort int) (int, error)
	// Get retrieves an allocation by ID.
	Get(ctx context.Context, id string) (*models.Allocation, error)
	// ListByNode retrieves all allocations owned by a node.
	ListByNode(ctx context.Context, nodeID string) ([]*models.Allocation, error)
	// ListByServer retrieves the allocations held by a server.
	ListByServer(ctx context.Context, serverID string) ([]*models.Allocation, error)
	// Reserve assigns the given allocations to a server. All ids must
	// exist, belong to the node, and be unassigned, or nothing changes.
	Reserve(ctx context.Context, nodeID string, allocationIDs []string, serverID string) error
	// Release unassigns every allocation held by the server. Idempotent.
	Release(ctx context.Context, serverID string) error
	// Delete deletes an unassigned allocation.
	Delete(ctx context.Context, id string) error
}

// ServerStore defines operations for game servers.
type ServerStore interface {
	// Create persists a new server row.
	Create(ctx context.Context, server *models.Server) error
	// Get retrieves a server by ID.
	Get(ctx context.Context, id string) (*models.Server, error)
	// GetByRemoteID retrieves a server by its daemon-side container id.
	GetByRemoteID(ctx context.Context, nodeID, remoteID string) (*models.Server, error)
	// List retrieves all servers.
	List(ctx context.Context) ([]*models.Server, error)
	// ListByOwner retrieves the servers owned by a user.
	ListByOwner(ctx context.Context, ownerID string) ([]*models.Server, error)
	// ListByNode retrieves the servers placed on a node.
	ListByNode(ctx context.Context, nodeID string) ([]*models.Server, error)
	// UpdateStatus sets the server's lifecycle status.
	UpdateStatus(ctx context.Context, id string, status models.ServerStatus) error
	// SetRemoteID stores the daemon-side container id.
	SetRemoteID(ctx context.Context, id, remoteID string) error
	// Delete deletes a server row.
	Delete(ctx context.Context, id string) error
}

// BlueprintStore defines operations for server templates.
type BlueprintStore interface {
	// Create persists a new blueprint.
	Create(ctx context.Context, bp *models.Blueprint) error
	// Get retrieves a blueprint by ID.
	Get(ctx context.Context, id string) (*models.Blueprint, error)
	// List retrieves all blueprints.
	List(ctx context.Context) ([]*models.Blueprint, error)
	// Update updates a blueprint.
	Update(ctx context.Context, bp *models.Blueprint) error
	// Delete deletes a blueprint. Blueprints in use cannot be deleted.
	Delete(ctx context.Context, id string) error
}

// ActivityStore defines operations for the audit trail.
type ActivityStore interface {
	// Record appends an activity event.
	Record(ctx context.Context, event *models.ActivityEvent) error
	// List retrieves recent events, newest first.
	List(ctx context.Context, limit, offset int) ([]*models.ActivityEvent, error)
}

// Store is the main interface for database operations.
type Store interface {
	// Users returns the UserStore for account operations.
	Users() UserStore
	// Nodes returns the NodeStore for node operations.
	Nodes() NodeStore
	// Allocations returns the AllocationStore for port ledger operations.
	Allocations() AllocationStore
	// Servers returns the ServerStore for server operations.
	Servers() ServerStore
	// Blueprints returns the BlueprintStore for template operations.
	Blueprints() BlueprintStore
	// Activity returns the ActivityStore for the audit trail.
	Activity() ActivityStore

	// WithTx executes the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// Otherwise, the transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error

	// Ping verifies the database connection.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
