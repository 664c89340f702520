package provision

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dcm2610/StellarStack-sub002/internal/models"
	"github.com/dcm2610/StellarStack-sub002/internal/store"
)

// memStore is a goroutine-safe in-memory store.Store for coordinator
// tests. Sub-stores it never needs embed their interface and panic if
// touched.
type memStore struct {
	mu          sync.Mutex
	nodes       map[string]*models.Node
	servers     map[string]*models.Server
	allocations map[string]*models.Allocation
	blueprints  map[string]*models.Blueprint
	events      []string
}

func newMemStore() *memStore {
	return &memStore{
		nodes:       make(map[string]*models.Node),
		servers:     make(map[string]*models.Server),
		allocations: make(map[string]*models.Allocation),
		blueprints:  make(map[string]*models.Blueprint),
	}
}

func (m *memStore) record(event string) {
	m.events = append(m.events, event)
}

// Events returns the mutation order observed so far.
func (m *memStore) Events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events...)
}

// log appends to the event journal from outside the store's own
// methods, so relay fakes can interleave their calls into the same
// timeline.
func (m *memStore) log(event string) {
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
}

func (m *memStore) Users() store.UserStore           { return nil }
func (m *memStore) Activity() store.ActivityStore    { return nil }
func (m *memStore) Nodes() store.NodeStore           { return &memNodes{s: m} }
func (m *memStore) Allocations() store.AllocationStore { return &memAllocations{s: m} }
func (m *memStore) Servers() store.ServerStore       { return &memServers{s: m} }
func (m *memStore) Blueprints() store.BlueprintStore { return &memBlueprints{s: m} }
func (m *memStore) Ping(context.Context) error       { return nil }
func (m *memStore) Close() error                     { return nil }

// WithTx snapshots server and allocation state and restores it when fn
// fails, mirroring the rollback the SQL store gets for free.
func (m *memStore) WithTx(ctx context.Context, fn func(store.Store) error) error {
	m.mu.Lock()
	servers := make(map[string]*models.Server, len(m.servers))
	for id, s := range m.servers {
		clone := *s
		servers[id] = &clone
	}
	allocations := make(map[string]*models.Allocation, len(m.allocations))
	for id, a := range m.allocations {
		clone := *a
		allocations[id] = &clone
	}
	events := len(m.events)
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.servers = servers
		m.allocations = allocations
		m.events = m.events[:events]
		m.mu.Unlock()
		return err
	}
	return nil
}

type memNodes struct {
	store.NodeStore
	s *memStore
}

func (n *memNodes) Get(_ context.Context, id string) (*models.Node, error) {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()
	node, ok := n.s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node %s: %w", id, store.ErrNotFound)
	}
	clone := *node
	return &clone, nil
}

type memBlueprints struct {
	store.BlueprintStore
	s *memStore
}

func (b *memBlueprints) Get(_ context.Context, id string) (*models.Blueprint, error) {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	bp, ok := b.s.blueprints[id]
	if !ok {
		return nil, fmt.Errorf("blueprint %s: %w", id, store.ErrNotFound)
	}
	clone := *bp
	return &clone, nil
}

type memServers struct {
	store.ServerStore
	s *memStore
}

func (s *memServers) Create(_ context.Context, server *models.Server) error {
	s.s.mu.Lock()
	defer s.s.mu.Unlock()
	if _, exists := s.s.servers[server.ID]; exists {
		return fmt.Errorf("server %s already exists", server.ID)
	}
	server.CreatedAt = time.Now()
	server.UpdatedAt = server.CreatedAt
	clone := *server
	s.s.servers[server.ID] = &clone
	s.s.record("server.create " + server.ID)
	return nil
}

func (s *memServers) Get(_ context.Context, id string) (*models.Server, error) {
	s.s.mu.Lock()
	defer s.s.mu.Unlock()
	server, ok := s.s.servers[id]
	if !ok {
		return nil, fmt.Errorf("server %s: %w", id, store.ErrNotFound)
	}
	clone := *server
	return &clone, nil
}

func (s *memServers) GetByRemoteID(_ context.Context, nodeID, remoteID string) (*models.Server, error) {
	s.s.mu.Lock()
	defer s.s.mu.Unlock()
	for _, server := range s.s.servers {
		if server.NodeID == nodeID && server.RemoteID != nil && *server.RemoteID == remoteID {
			clone := *server
			return &clone, nil
		}
	}
	return nil, fmt.Errorf("server %s: %w", remoteID, store.ErrNotFound)
}

func (s *memServers) ListByNode(_ context.Context, nodeID string) ([]*models.Server, error) {
	s.s.mu.Lock()
	defer s.s.mu.Unlock()
	var out []*models.Server
	for _, server := range s.s.servers {
		if server.NodeID == nodeID {
			clone := *server
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (s *memServers) UpdateStatus(_ context.Context, id string, status models.ServerStatus) error {
	s.s.mu.Lock()
	defer s.s.mu.Unlock()
	server, ok := s.s.servers[id]
	if !ok {
		return fmt.Errorf("server %s: %w", id, store.ErrNotFound)
	}
	server.Status = status
	s.s.record(fmt.Sprintf("server.status %s %s", id, status))
	return nil
}

func (s *memServers) SetRemoteID(_ context.Context, id, remoteID string) error {
	s.s.mu.Lock()
	defer s.s.mu.Unlock()
	server, ok := s.s.servers[id]
	if !ok {
		return fmt.Errorf("server %s: %w", id, store.ErrNotFound)
	}
	server.RemoteID = &remoteID
	return nil
}

func (s *memServers) Delete(_ context.Context, id string) error {
	s.s.mu.Lock()
	defer s.s.mu.Unlock()
	if _, ok := s.s.servers[id]; !ok {
		return fmt.Errorf("server %s: %w", id, store.ErrNotFound)
	}
	delete(s.s.servers, id)
	s.s.record("server.delete " + id)
	return nil
}

type memAllocations struct {
	store.AllocationStore
	s *memStore
}

func (a *memAllocations) Reserve(_ context.Context, nodeID string, allocationIDs []string, serverID string) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	var found []*models.Allocation
	for _, id := range allocationIDs {
		if alloc, ok := a.s.allocations[id]; ok {
			found = append(found, alloc)
		}
	}
	byID := make(map[string]*models.Allocation, len(found))
	for _, alloc := range found {
		byID[alloc.ID] = alloc
	}
	for _, id := range allocationIDs {
		alloc, ok := byID[id]
		if !ok {
			return fmt.Errorf("%w: %s does not exist", store.ErrAllocationConflict, id)
		}
		if alloc.NodeID != nodeID {
			return fmt.Errorf("%w: %s belongs to another node", store.ErrAllocationConflict, id)
		}
		if alloc.ServerID != nil {
			return fmt.Errorf("%w: %s already assigned", store.ErrAllocationConflict, id)
		}
	}
	for _, id := range allocationIDs {
		sid := serverID
		byID[id].ServerID = &sid
	}
	a.s.record("allocations.reserve " + serverID)
	return nil
}

func (a *memAllocations) Release(_ context.Context, serverID string) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	for _, alloc := range a.s.allocations {
		if alloc.ServerID != nil && *alloc.ServerID == serverID {
			alloc.ServerID = nil
		}
	}
	a.s.record("allocations.release " + serverID)
	return nil
}

func (a *memAllocations) ListByServer(_ context.Context, serverID string) ([]*models.Allocation, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	var out []*models.Allocation
	for _, alloc := range a.s.allocations {
		if alloc.ServerID != nil && *alloc.ServerID == serverID {
			clone := *alloc
			out = append(out, &clone)
		}
	}
	return out, nil
}
