package provision

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dcm2610/StellarStack-sub002/internal/models"
	"github.com/dcm2610/StellarStack-sub002/internal/relay"
	"github.com/dcm2610/StellarStack-sub002/internal/store"
)

// Relay is the daemon command surface the coordinator depends on.
// *relay.Client satisfies it.
type Relay interface {
	CreateContainer(ctx context.Context, node *models.Node, req *relay.CreateContainerRequest) (string, error)
	PowerAction(ctx context.Context, node *models.Node, remoteID string, action models.PowerAction) error
	DeleteContainer(ctx context.Context, node *models.Node, remoteID string, force bool) error
}

// Coordinator drives the server lifecycle against the store and the
// daemon relay.
type Coordinator struct {
	store  store.Store
	relay  Relay
	locks  *nodeLocks
	logger *slog.Logger
}

// NewCoordinator creates a provisioning coordinator.
func NewCoordinator(st store.Store, rl Relay, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:  st,
		relay:  rl,
		locks:  newNodeLocks(),
		logger: logger,
	}
}

// CreateRequest describes a server to provision.
type CreateRequest struct {
	Name          string
	OwnerID       string
	NodeID        string
	BlueprintID   string
	Image         string
	Limits        models.Limits
	Environment   map[string]string
	AllocationIDs []string
}

// CreateServer provisions a new server: capacity check, persist as
// installing, reserve allocations, then relay container create + start.
//
// The capacity check, the reservation and the insert run under the
// node's lock so concurrent creates cannot both fit through the same
// gap. Daemon failure after the row exists leaves the server in the
// error status with its reservation intact; nothing is rolled back.
func (c *Coordinator) CreateServer(ctx context.Context, req *CreateRequest) (*models.Server, error) {
	if len(req.AllocationIDs) == 0 {
		return nil, &models.ValidationError{Field: "allocation_ids", Message: "at least one allocation is required"}
	}

	node, err := c.store.Nodes().Get(ctx, req.NodeID)
	if err != nil {
		return nil, fmt.Errorf("loading node: %w", err)
	}
	blueprint, err := c.store.Blueprints().Get(ctx, req.BlueprintID)
	if err != nil {
		return nil, fmt.Errorf("loading blueprint: %w", err)
	}
	if !blueprint.SupportsImage(req.Image) {
		return nil, fmt.Errorf("%w: %s", ErrImageNotAllowed, req.Image)
	}

	server := &models.Server{
		ID:           uuid.New().String(),
		Name:         req.Name,
		OwnerID:      req.OwnerID,
		NodeID:       req.NodeID,
		BlueprintID:  req.BlueprintID,
		Status:       models.StatusInstalling,
		Limits:       req.Limits,
		Image:        req.Image,
		Environment:  blueprint.BuildEnvironment(req.Environment),
		AllocationID: req.AllocationIDs[0],
	}

	release := c.locks.Acquire(req.NodeID)
	existing, err := c.store.Servers().ListByNode(ctx, req.NodeID)
	if err != nil {
		release()
		return nil, fmt.Errorf("listing node servers: %w", err)
	}
	if err := CheckCapacity(node, existing, req.Limits); err != nil {
		release()
		return nil, err
	}

	err = c.store.WithTx(ctx, func(tx store.Store) error {
		if err := tx.Servers().Create(ctx, server); err != nil {
			return fmt.Errorf("persisting server: %w", err)
		}
		if err := tx.Allocations().Reserve(ctx, req.NodeID, req.AllocationIDs, server.ID); err != nil {
			return fmt.Errorf("reserving allocations: %w", err)
		}
		return nil
	})
	release()
	if err != nil {
		return nil, err
	}

	allocations, err := c.store.Allocations().ListByServer(ctx, server.ID)
	if err != nil {
		return nil, fmt.Errorf("listing reserved allocations: %w", err)
	}
	ports := make([]relay.PortBinding, 0, len(allocations))
	for _, alloc := range allocations {
		ports = append(ports, relay.PortBinding{IP: alloc.IP, Port: alloc.Port})
	}

	remoteID, err := c.relay.CreateContainer(ctx, node, &relay.CreateContainerRequest{
		Name:    server.Name,
		Image:   server.Image,
		Startup: blueprint.StartupCommand,
		Resources: relay.ContainerLimits{
			MemoryMB:   server.Limits.MemoryMB,
			DiskMB:     server.Limits.DiskMB,
			CPUPercent: server.Limits.CPUPercent,
		},
		Ports:       ports,
		Environment: server.Environment,
	})
	if err != nil {
		c.failProvisioning(ctx, server, "container create failed", err)
		return server, err
	}

	if err := c.store.Servers().SetRemoteID(ctx, server.ID, remoteID); err != nil {
		return server, fmt.Errorf("storing remote id: %w", err)
	}
	server.RemoteID = &remoteID

	if err := c.relay.PowerAction(ctx, node, remoteID, models.PowerStart); err != nil {
		c.failProvisioning(ctx, server, "initial start failed", err)
		return server, err
	}

	if err := c.store.Servers().UpdateStatus(ctx, server.ID, models.StatusRunning); err != nil {
		return server, fmt.Errorf("updating status: %w", err)
	}
	server.Status = models.StatusRunning

	c.logger.Info("server provisioned",
		"server_id", server.ID, "node_id", node.ID, "remote_id", remoteID)
	return server, nil
}

// failProvisioning parks the server in the error status. The allocation
// reservation is deliberately kept so a retry or delete accounts for the
// same ports the daemon may already hold.
func (c *Coordinator) failProvisioning(ctx context.Context, server *models.Server, reason string, cause error) {
	c.logger.Error("provisioning failed",
		"server_id", server.ID, "reason", reason, "error", cause)
	if err := c.store.Servers().UpdateStatus(ctx, server.ID, models.StatusError); err != nil {
		c.logger.Error("failed to mark server errored", "server_id", server.ID, "error", err)
		return
	}
	server.Status = models.StatusError
}

// PowerAction relays a power signal and settles the panel status
// deterministically on success. The daemon is never contacted for
// suspended or unprovisioned servers, and the liveness pre-check inside
// the relay keeps offline nodes from being dialed at all. On failure the
// status is left untouched.
func (c *Coordinator) PowerAction(ctx context.Context, serverID string, action models.PowerAction) error {
	if !action.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}

	server, err := c.store.Servers().Get(ctx, serverID)
	if err != nil {
		return fmt.Errorf("loading server: %w", err)
	}
	if server.Status == models.StatusSuspended {
		return ErrSuspended
	}
	if !server.Provisioned() {
		return ErrNotProvisioned
	}

	node, err := c.store.Nodes().Get(ctx, server.NodeID)
	if err != nil {
		return fmt.Errorf("loading node: %w", err)
	}

	if err := c.relay.PowerAction(ctx, node, *server.RemoteID, action); err != nil {
		return err
	}

	status := action.ResultingStatus()
	if err := c.store.Servers().UpdateStatus(ctx, serverID, status); err != nil {
		return fmt.Errorf("updating status: %w", err)
	}

	c.logger.Info("power action applied",
		"server_id", serverID, "action", action, "status", status)
	return nil
}

// ApplyStatusReport maps a daemon-reported container state onto the
// server. Reports are always accepted except while the server is
// suspended; unknown states are dropped.
func (c *Coordinator) ApplyStatusReport(ctx context.Context, nodeID, remoteID, daemonState string) error {
	server, err := c.store.Servers().GetByRemoteID(ctx, nodeID, remoteID)
	if err != nil {
		return fmt.Errorf("loading server for report: %w", err)
	}

	if !server.Status.AcceptsDaemonReports() {
		c.logger.Debug("dropping daemon report for suspended server",
			"server_id", server.ID, "state", daemonState)
		return nil
	}

	status, ok := models.StatusFromDaemonState(daemonState)
	if !ok {
		c.logger.Warn("dropping unknown daemon state",
			"server_id", server.ID, "state", daemonState)
		return nil
	}
	if status == server.Status {
		return nil
	}

	if err := c.store.Servers().UpdateStatus(ctx, server.ID, status); err != nil {
		return fmt.Errorf("applying status report: %w", err)
	}
	return nil
}

// Suspend parks the server in the suspended status and sends a
// best-effort stop. The stop failing does not fail the suspension; the
// absorbing status already keeps the owner from acting.
func (c *Coordinator) Suspend(ctx context.Context, serverID string) error {
	server, err := c.store.Servers().Get(ctx, serverID)
	if err != nil {
		return fmt.Errorf("loading server: %w", err)
	}
	if server.Status == models.StatusSuspended {
		return nil
	}

	if err := c.store.Servers().UpdateStatus(ctx, serverID, models.StatusSuspended); err != nil {
		return fmt.Errorf("suspending server: %w", err)
	}

	if server.Provisioned() {
		node, err := c.store.Nodes().Get(ctx, server.NodeID)
		if err == nil {
			if err := c.relay.PowerAction(ctx, node, *server.RemoteID, models.PowerStop); err != nil {
				c.logger.Warn("best-effort stop on suspend failed",
					"server_id", serverID, "error", err)
			}
		}
	}
	return nil
}

// Unsuspend lifts a suspension, restoring the stopped status.
func (c *Coordinator) Unsuspend(ctx context.Context, serverID string) error {
	server, err := c.store.Servers().Get(ctx, serverID)
	if err != nil {
		return fmt.Errorf("loading server: %w", err)
	}
	if server.Status != models.StatusSuspended {
		return ErrNotSuspended
	}
	if err := c.store.Servers().UpdateStatus(ctx, serverID, models.StatusStopped); err != nil {
		return fmt.Errorf("unsuspending server: %w", err)
	}
	return nil
}

// DeleteServer releases the server's allocations and removes its row,
// then asks the daemon to tear the container down. Teardown is best
// effort: an unreachable node or a daemon refusal is logged and the
// delete still stands, leaving an orphaned container for daemon-side
// cleanup.
func (c *Coordinator) DeleteServer(ctx context.Context, serverID string, force bool) error {
	server, err := c.store.Servers().Get(ctx, serverID)
	if err != nil {
		return fmt.Errorf("loading server: %w", err)
	}

	// The node row is fetched up front; after the transaction the server
	// row is gone and only teardown remains.
	node, nodeErr := c.store.Nodes().Get(ctx, server.NodeID)

	err = c.store.WithTx(ctx, func(tx store.Store) error {
		if err := tx.Allocations().Release(ctx, serverID); err != nil {
			return err
		}
		return tx.Servers().Delete(ctx, serverID)
	})
	if err != nil {
		return fmt.Errorf("deleting server: %w", err)
	}

	if server.Provisioned() {
		if nodeErr != nil {
			c.logger.Warn("skipping container teardown, node unavailable",
				"server_id", serverID, "node_id", server.NodeID, "error", nodeErr)
		} else if err := c.relay.DeleteContainer(ctx, node, *server.RemoteID, force); err != nil {
			c.logger.Warn("container teardown failed, container orphaned",
				"server_id", serverID, "remote_id", *server.RemoteID, "error", err)
		}
	}

	c.logger.Info("server deleted", "server_id", serverID)
	return nil
}
