package provision

import "sync"

// nodeLocks serializes provisioning per node so the capacity check, the
// allocation reservation and the server insert act as one unit. Without
// it, two concurrent creates could both pass the capacity check and
// oversubscribe the node.
type nodeLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newNodeLocks() *nodeLocks {
	return &nodeLocks{locks: make(map[string]*sync.Mutex)}
}

// Acquire locks the node's mutex and returns the release function.
// Lock entries are kept for the life of the process; the node count is
// small and bounded.
func (n *nodeLocks) Acquire(nodeID string) func() {
	n.mu.Lock()
	lock, ok := n.locks[nodeID]
	if !ok {
		lock = &sync.Mutex{}
		n.locks[nodeID] = lock
	}
	n.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
