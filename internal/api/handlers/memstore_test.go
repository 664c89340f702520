package handlers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dcm2610/StellarStack-sub002/internal/api/middleware"
	"github.com/dcm2610/StellarStack-sub002/internal/auth"
	"github.com/dcm2610/StellarStack-sub002/internal/models"
	"github.com/dcm2610/StellarStack-sub002/internal/provision"
	"github.com/dcm2610/StellarStack-sub002/internal/relay"
	"github.com/dcm2610/StellarStack-sub002/internal/secrets"
	"github.com/dcm2610/StellarStack-sub002/internal/store"
)

// memStore is a goroutine-safe in-memory store.Store backing handler
// tests. It mirrors the SQL store's sentinel errors so the domain
// error mapping can be asserted end to end.
type memStore struct {
	mu          sync.Mutex
	users       map[string]*models.User
	passwords   map[string]string
	nodes       map[string]*models.Node
	credentials map[string]string
	servers     map[string]*models.Server
	allocations map[string]*models.Allocation
	blueprints  map[string]*models.Blueprint
	activity    []*models.ActivityEvent
}

var _ store.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		users:       make(map[string]*models.User),
		passwords:   make(map[string]string),
		nodes:       make(map[string]*models.Node),
		credentials: make(map[string]string),
		servers:     make(map[string]*models.Server),
		allocations: make(map[string]*models.Allocation),
		blueprints:  make(map[string]*models.Blueprint),
	}
}

func (m *memStore) Users() store.UserStore             { return &memUsers{s: m} }
func (m *memStore) Nodes() store.NodeStore             { return &memNodes{s: m} }
func (m *memStore) Allocations() store.AllocationStore { return &memAllocations{s: m} }
func (m *memStore) Servers() store.ServerStore         { return &memServers{s: m} }
func (m *memStore) Blueprints() store.BlueprintStore   { return &memBlueprints{s: m} }
func (m *memStore) Activity() store.ActivityStore      { return &memActivity{s: m} }
func (m *memStore) Ping(context.Context) error         { return nil }
func (m *memStore) Close() error                       { return nil }

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
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.servers = servers
		m.allocations = allocations
		m.mu.Unlock()
		return err
	}
	return nil
}

type memUsers struct {
	s *memStore
}

func (u *memUsers) Create(_ context.Context, email, username, password string, isAdmin bool) (*models.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	for _, existing := range u.s.users {
		if existing.Email == email {
			return nil, fmt.Errorf("user %s: %w", email, store.ErrDuplicate)
		}
	}
	user := &models.User{
		ID:        uuid.New().String(),
		Email:     email,
		Username:  username,
		IsAdmin:   isAdmin,
		CreatedAt: time.Now(),
	}
	u.s.users[user.ID] = user
	u.s.passwords[user.ID] = password
	clone := *user
	return &clone, nil
}

func (u *memUsers) Get(_ context.Context, id string) (*models.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	user, ok := u.s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, store.ErrNotFound)
	}
	clone := *user
	return &clone, nil
}

func (u *memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	for _, user := range u.s.users {
		if user.Email == email {
			clone := *user
			return &clone, nil
		}
	}
	return nil, nil
}

func (u *memUsers) List(_ context.Context) ([]*models.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	out := make([]*models.User, 0, len(u.s.users))
	for _, user := range u.s.users {
		clone := *user
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (u *memUsers) Update(_ context.Context, user *models.User) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	existing, ok := u.s.users[user.ID]
	if !ok {
		return fmt.Errorf("user %s: %w", user.ID, store.ErrNotFound)
	}
	for _, other := range u.s.users {
		if other.ID != user.ID && other.Email == user.Email {
			return fmt.Errorf("user %s: %w", user.Email, store.ErrDuplicate)
		}
	}
	existing.Email = user.Email
	existing.Username = user.Username
	existing.IsAdmin = user.IsAdmin
	return nil
}

func (u *memUsers) UpdatePassword(_ context.Context, id, password string) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if _, ok := u.s.users[id]; !ok {
		return fmt.Errorf("user %s: %w", id, store.ErrNotFound)
	}
	u.s.passwords[id] = password
	return nil
}

func (u *memUsers) VerifyPassword(_ context.Context, email, password string) (*models.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	for id, user := range u.s.users {
		if user.Email == email && u.s.passwords[id] == password {
			clone := *user
			return &clone, nil
		}
	}
	return nil, nil
}

func (u *memUsers) Delete(_ context.Context, id string) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if _, ok := u.s.users[id]; !ok {
		return fmt.Errorf("user %s: %w", id, store.ErrNotFound)
	}
	for _, server := range u.s.servers {
		if server.OwnerID == id {
			return fmt.Errorf("user %s owns servers: %w", id, store.ErrInUse)
		}
	}
	delete(u.s.users, id)
	delete(u.s.passwords, id)
	return nil
}

func (u *memUsers) Count(_ context.Context) (int, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	return len(u.s.users), nil
}

type memNodes struct {
	s *memStore
}

func (n *memNodes) Create(_ context.Context, node *models.Node, sealedCredential string) error {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()
	if _, exists := n.s.nodes[node.ID]; exists {
		return fmt.Errorf("node %s: %w", node.ID, store.ErrDuplicate)
	}
	node.CreatedAt = time.Now()
	node.UpdatedAt = node.CreatedAt
	clone := *node
	n.s.nodes[node.ID] = &clone
	n.s.credentials[node.ID] = sealedCredential
	return nil
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

func (n *memNodes) List(_ context.Context) ([]*models.Node, error) {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()
	out := make([]*models.Node, 0, len(n.s.nodes))
	for _, node := range n.s.nodes {
		clone := *node
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (n *memNodes) Update(_ context.Context, node *models.Node) error {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()
	existing, ok := n.s.nodes[node.ID]
	if !ok {
		return fmt.Errorf("node %s: %w", node.ID, store.ErrNotFound)
	}
	existing.Name = node.Name
	existing.FQDN = node.FQDN
	existing.Scheme = node.Scheme
	existing.DaemonPort = node.DaemonPort
	existing.MemoryMB = node.MemoryMB
	existing.DiskMB = node.DiskMB
	existing.MemoryOverallocate = node.MemoryOverallocate
	existing.DiskOverallocate = node.DiskOverallocate
	existing.UpdatedAt = time.Now()
	return nil
}

func (n *memNodes) Delete(_ context.Context, id string) error {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()
	if _, ok := n.s.nodes[id]; !ok {
		return fmt.Errorf("node %s: %w", id, store.ErrNotFound)
	}
	for _, server := range n.s.servers {
		if server.NodeID == id {
			return fmt.Errorf("node %s hosts servers: %w", id, store.ErrInUse)
		}
	}
	delete(n.s.nodes, id)
	delete(n.s.credentials, id)
	return nil
}

func (n *memNodes) SealedCredential(_ context.Context, id string) (string, error) {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()
	sealed, ok := n.s.credentials[id]
	if !ok {
		return "", fmt.Errorf("node %s: %w", id, store.ErrNotFound)
	}
	return sealed, nil
}

func (n *memNodes) ReplaceCredential(_ context.Context, id, sealedCredential string) error {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()
	if _, ok := n.s.nodes[id]; !ok {
		return fmt.Errorf("node %s: %w", id, store.ErrNotFound)
	}
	n.s.credentials[id] = sealedCredential
	return nil
}

func (n *memNodes) RecordHeartbeat(_ context.Context, id string, at time.Time, latencyMS *int64) error {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()
	node, ok := n.s.nodes[id]
	if !ok {
		return fmt.Errorf("node %s: %w", id, store.ErrNotFound)
	}
	node.CandidateOnline = true
	node.LastHeartbeat = &at
	if latencyMS != nil {
		node.LatencyMS = latencyMS
	}
	return nil
}

type memAllocations struct {
	s *memStore
}

func (a *memAllocations) CreateRange(_ context.Context, nodeID, ip string, startPort, endPort int) (int, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	taken := make(map[int]bool)
	for _, alloc := range a.s.allocations {
		if alloc.NodeID == nodeID && alloc.IP == ip {
			taken[alloc.Port] = true
		}
	}
	created := 0
	for port := startPort; port <= endPort; port++ {
		if taken[port] {
			continue
		}
		alloc := &models.Allocation{
			ID:     uuid.New().String(),
			NodeID: nodeID,
			IP:     ip,
			Port:   port,
		}
		a.s.allocations[alloc.ID] = alloc
		created++
	}
	return created, nil
}

func (a *memAllocations) Get(_ context.Context, id string) (*models.Allocation, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	alloc, ok := a.s.allocations[id]
	if !ok {
		return nil, fmt.Errorf("allocation %s: %w", id, store.ErrNotFound)
	}
	clone := *alloc
	return &clone, nil
}

func (a *memAllocations) ListByNode(_ context.Context, nodeID string) ([]*models.Allocation, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	var out []*models.Allocation
	for _, alloc := range a.s.allocations {
		if alloc.NodeID == nodeID {
			clone := *alloc
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Port < out[j].Port })
	return out, nil
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
	sort.Slice(out, func(i, j int) bool { return out[i].Port < out[j].Port })
	return out, nil
}

func (a *memAllocations) Reserve(_ context.Context, nodeID string, allocationIDs []string, serverID string) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	for _, id := range allocationIDs {
		alloc, ok := a.s.allocations[id]
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
		a.s.allocations[id].ServerID = &sid
	}
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
	return nil
}

func (a *memAllocations) Delete(_ context.Context, id string) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	alloc, ok := a.s.allocations[id]
	if !ok {
		return fmt.Errorf("allocation %s: %w", id, store.ErrNotFound)
	}
	if alloc.ServerID != nil {
		return fmt.Errorf("allocation %s is assigned: %w", id, store.ErrInUse)
	}
	delete(a.s.allocations, id)
	return nil
}

type memServers struct {
	s *memStore
}

func (s *memServers) Create(_ context.Context, server *models.Server) error {
	s.s.mu.Lock()
	defer s.s.mu.Unlock()
	if _, exists := s.s.servers[server.ID]; exists {
		return fmt.Errorf("server %s: %w", server.ID, store.ErrDuplicate)
	}
	server.CreatedAt = time.Now()
	server.UpdatedAt = server.CreatedAt
	clone := *server
	s.s.servers[server.ID] = &clone
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

func (s *memServers) List(_ context.Context) ([]*models.Server, error) {
	s.s.mu.Lock()
	defer s.s.mu.Unlock()
	out := make([]*models.Server, 0, len(s.s.servers))
	for _, server := range s.s.servers {
		clone := *server
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memServers) ListByOwner(_ context.Context, ownerID string) ([]*models.Server, error) {
	s.s.mu.Lock()
	defer s.s.mu.Unlock()
	var out []*models.Server
	for _, server := range s.s.servers {
		if server.OwnerID == ownerID {
			clone := *server
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
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
	return nil
}

type memBlueprints struct {
	s *memStore
}

func (b *memBlueprints) Create(_ context.Context, bp *models.Blueprint) error {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	if _, exists := b.s.blueprints[bp.ID]; exists {
		return fmt.Errorf("blueprint %s: %w", bp.ID, store.ErrDuplicate)
	}
	bp.CreatedAt = time.Now()
	bp.UpdatedAt = bp.CreatedAt
	clone := *bp
	b.s.blueprints[bp.ID] = &clone
	return nil
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

func (b *memBlueprints) List(_ context.Context) ([]*models.Blueprint, error) {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	out := make([]*models.Blueprint, 0, len(b.s.blueprints))
	for _, bp := range b.s.blueprints {
		clone := *bp
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (b *memBlueprints) Update(_ context.Context, bp *models.Blueprint) error {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	existing, ok := b.s.blueprints[bp.ID]
	if !ok {
		return fmt.Errorf("blueprint %s: %w", bp.ID, store.ErrNotFound)
	}
	existing.Name = bp.Name
	existing.Description = bp.Description
	existing.DockerImages = append([]string(nil), bp.DockerImages...)
	existing.StartupCommand = bp.StartupCommand
	existing.Variables = append([]models.BlueprintVariable(nil), bp.Variables...)
	existing.UpdatedAt = time.Now()
	return nil
}

func (b *memBlueprints) Delete(_ context.Context, id string) error {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	if _, ok := b.s.blueprints[id]; !ok {
		return fmt.Errorf("blueprint %s: %w", id, store.ErrNotFound)
	}
	for _, server := range b.s.servers {
		if server.BlueprintID == id {
			return fmt.Errorf("blueprint %s has servers: %w", id, store.ErrInUse)
		}
	}
	delete(b.s.blueprints, id)
	return nil
}

type memActivity struct {
	s *memStore
}

func (a *memActivity) Record(_ context.Context, event *models.ActivityEvent) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	clone := *event
	clone.ID = uuid.New().String()
	clone.CreatedAt = time.Now()
	a.s.activity = append(a.s.activity, &clone)
	return nil
}

func (a *memActivity) List(_ context.Context, limit, offset int) ([]*models.ActivityEvent, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	var out []*models.ActivityEvent
	for i := len(a.s.activity) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		clone := *a.s.activity[i]
		out = append(out, &clone)
	}
	return out, nil
}

// lastActivity returns the most recent audit action, or "".
func (m *memStore) lastActivity() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.activity) == 0 {
		return ""
	}
	return m.activity[len(m.activity)-1].Action
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestBox(t *testing.T) *secrets.Box {
	t.Helper()
	pub, priv, err := secrets.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generating key pair: %v", err)
	}
	box, err := secrets.NewBox(&secrets.Config{AgePublicKey: pub, AgePrivateKey: priv}, nil)
	if err != nil {
		t.Fatalf("creating box: %v", err)
	}
	return box
}

func newTestAuthService(box *secrets.Box) *auth.Service {
	return auth.NewService(&auth.Config{
		JWTSecret:   []byte("handler-test-secret-0123456789abcdef"),
		TokenExpiry: time.Hour,
	}, box, testLogger())
}

// asOperator stamps operator claims onto the request the way the auth
// middleware would.
func asOperator(r *http.Request, userID string, admin bool) *http.Request {
	claims := &auth.Claims{UserID: userID, Admin: admin, Exp: time.Now().Add(time.Hour)}
	return r.WithContext(context.WithValue(r.Context(), middleware.ClaimsKey, claims))
}

// asNode stamps a resolved node identity onto the request the way the
// node auth middleware would.
func asNode(r *http.Request, nodeID string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), middleware.NodeIDKey, nodeID))
}

func seedUser(t *testing.T, st *memStore, email, password string, admin bool) *models.User {
	t.Helper()
	user, err := st.Users().Create(context.Background(), email, "operator", password, admin)
	if err != nil {
		t.Fatalf("seeding user %s: %v", email, err)
	}
	return user
}

func seedNode(st *memStore, id string, online bool) *models.Node {
	node := &models.Node{
		ID:         id,
		Name:       id,
		FQDN:       id + ".nodes.test",
		Scheme:     "http",
		DaemonPort: 8443,
		MemoryMB:   16384,
		DiskMB:     65536,
	}
	if online {
		now := time.Now()
		node.CandidateOnline = true
		node.LastHeartbeat = &now
	}
	st.mu.Lock()
	st.nodes[id] = node
	st.mu.Unlock()
	return node
}

func sealCredential(t *testing.T, st *memStore, box *secrets.Box, nodeID, credential string) {
	t.Helper()
	sealed, err := box.Seal(credential)
	if err != nil {
		t.Fatalf("sealing credential: %v", err)
	}
	st.mu.Lock()
	st.credentials[nodeID] = sealed
	st.mu.Unlock()
}

func seedBlueprint(st *memStore, id string) *models.Blueprint {
	bp := &models.Blueprint{
		ID:             id,
		Name:           "Minecraft Java",
		DockerImages:   []string{"ghcr.io/stellarstack/java:21"},
		StartupCommand: "java -Xms128M -jar server.jar",
		Variables: []models.BlueprintVariable{
			{Name: "Server Jar", EnvKey: "SERVER_JARFILE", DefaultValue: "server.jar"},
		},
	}
	st.mu.Lock()
	st.blueprints[id] = bp
	st.mu.Unlock()
	return bp
}

func seedAllocation(st *memStore, id, nodeID string, port int) *models.Allocation {
	alloc := &models.Allocation{
		ID:     id,
		NodeID: nodeID,
		IP:     "10.0.0.4",
		Port:   port,
	}
	st.mu.Lock()
	st.allocations[id] = alloc
	st.mu.Unlock()
	return alloc
}

func seedServer(st *memStore, id, ownerID, nodeID string, status models.ServerStatus, remoteID string) *models.Server {
	server := &models.Server{
		ID:          id,
		Name:        id,
		OwnerID:     ownerID,
		NodeID:      nodeID,
		BlueprintID: "bp-1",
		Status:      status,
		Limits:      models.Limits{MemoryMB: 1024, DiskMB: 2048},
		Image:       "ghcr.io/stellarstack/java:21",
	}
	if remoteID != "" {
		server.RemoteID = &remoteID
	}
	st.mu.Lock()
	st.servers[id] = server
	st.mu.Unlock()
	return server
}

// fakeRelay satisfies the coordinator's relay seam without any network.
type fakeRelay struct {
	mu        sync.Mutex
	calls     []string
	createErr error
	powerErr  error
}

func (f *fakeRelay) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeRelay) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRelay) CreateContainer(_ context.Context, _ *models.Node, req *relay.CreateContainerRequest) (string, error) {
	f.record("create " + req.Name)
	if f.createErr != nil {
		return "", f.createErr
	}
	return "remote-" + req.Name, nil
}

func (f *fakeRelay) PowerAction(_ context.Context, _ *models.Node, remoteID string, action models.PowerAction) error {
	f.record(fmt.Sprintf("power %s %s", remoteID, action))
	return f.powerErr
}

func (f *fakeRelay) DeleteContainer(_ context.Context, _ *models.Node, remoteID string, force bool) error {
	f.record(fmt.Sprintf("delete %s force=%t", remoteID, force))
	return nil
}

func newTestCoordinator(st *memStore, rl provision.Relay) *provision.Coordinator {
	return provision.NewCoordinator(st, rl, testLogger())
}
