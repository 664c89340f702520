package provision

import (
	"fmt"

	"github.com/dcm2610/StellarStack-sub002/internal/models"
)

// Usage is the sum of resource limits committed on a node. Suspended and
// errored servers still count; their reservations are only returned on
// delete.
type Usage struct {
	MemoryMB int64
	DiskMB   int64
}

// ComputeUsage sums the limits of the given servers.
func ComputeUsage(servers []*models.Server) Usage {
	var u Usage
	for _, s := range servers {
		u.MemoryMB += s.Limits.MemoryMB
		u.DiskMB += s.Limits.DiskMB
	}
	return u
}

// CheckCapacity verifies that a node can fit the requested limits on top
// of its existing servers, honoring the node's overallocation headroom.
func CheckCapacity(node *models.Node, existing []*models.Server, req models.Limits) error {
	usage := ComputeUsage(existing)

	if wanted := usage.MemoryMB + req.MemoryMB; wanted > node.UsableMemoryMB() {
		return fmt.Errorf("%w: memory %dMB wanted, %dMB usable",
			ErrCapacityExceeded, wanted, node.UsableMemoryMB())
	}
	if wanted := usage.DiskMB + req.DiskMB; wanted > node.UsableDiskMB() {
		return fmt.Errorf("%w: disk %dMB wanted, %dMB usable",
			ErrCapacityExceeded, wanted, node.UsableDiskMB())
	}
	return nil
}
