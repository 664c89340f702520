package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/dcm2610/StellarStack-sub002/internal/models"
)

// AllocationStore implements store.AllocationStore using PostgreSQL.
type AllocationStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

// conn returns the queryable connection (transaction or database).
func (s *AllocationStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// CreateRange creates one allocation per port in [startPort, endPort],
// skipping (ip, port) pairs the node already has. Returns the number of
// rows actually created; re-running the same range creates zero.
func (s *AllocationStore) CreateRange(ctx context.Context, nodeID, ip string, startPort, endPort int) (int, error) {
	if startPort > endPort {
		return 0, fmt.Errorf("invalid port range %d-%d", startPort, endPort)
	}

	ids := make([]string, 0, endPort-startPort+1)
	ports := make([]int64, 0, endPort-startPort+1)
	for port := startPort; port <= endPort; port++ {
		ids = append(ids, uuid.New().String())
		ports = append(ports, int64(port))
	}

	query := `
		INSERT INTO allocations (id, node_id, ip, port)
		SELECT unnest($1::text[]), $2, $3, unnest($4::bigint[])
		ON CONFLICT (node_id, ip, port) DO NOTHING`

	result, err := s.conn().ExecContext(ctx, query, pq.Array(ids), nodeID, ip, pq.Array(ports))
	if err != nil {
		if isForeignKeyViolation(err) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("creating allocation range: %w", err)
	}

	created, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting created allocations: %w", err)
	}
	return int(created), nil
}

// Get retrieves an allocation by ID.
func (s *AllocationStore) Get(ctx context.Context, id string) (*models.Allocation, error) {
	query := `SELECT id, node_id, ip, port, alias, server_id FROM allocations WHERE id = $1`

	alloc, err := scanAllocation(s.conn().QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying allocation: %w", err)
	}
	return alloc, nil
}

// ListByNode retrieves all allocations owned by a node.
func (s *AllocationStore) ListByNode(ctx context.Context, nodeID string) ([]*models.Allocation, error) {
	query := `
		SELECT id, node_id, ip, port, alias, server_id
		FROM allocations
		WHERE node_id = $1
		ORDER BY ip, port`

	return s.queryAllocations(ctx, query, nodeID)
}

// ListByServer retrieves the allocations held by a server.
func (s *AllocationStore) ListByServer(ctx context.Context, serverID string) ([]*models.Allocation, error) {
	query := `
		SELECT id, node_id, ip, port, alias, server_id
		FROM allocations
		WHERE server_id = $1
		ORDER BY ip, port`

	return s.queryAllocations(ctx, query, serverID)
}

// Reserve assigns the given allocations to a server. The batch is
// all-or-nothing: every id must exist, belong to the node, and be
// unassigned, or the whole reservation fails with ErrAllocationConflict
// and nothing changes.
func (s *AllocationStore) Reserve(ctx context.Context, nodeID string, allocationIDs []string, serverID string) error {
	if len(allocationIDs) == 0 {
		return fmt.Errorf("%w: empty reservation", ErrAllocationConflict)
	}

	if s.tx != nil {
		return s.reserveIn(ctx, s.tx, nodeID, allocationIDs, serverID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning reservation: %w", err)
	}
	if err := s.reserveIn(ctx, tx, nodeID, allocationIDs, serverID); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("failed to rollback reservation", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing reservation: %w", err)
	}
	return nil
}

func (s *AllocationStore) reserveIn(ctx context.Context, tx *sql.Tx, nodeID string, allocationIDs []string, serverID string) error {
	// Row locks hold off concurrent reservations of the same ids until
	// this batch settles.
	rows, err := tx.QueryContext(ctx,
		`SELECT id, node_id, ip, port, alias, server_id
		 FROM allocations WHERE id = ANY($1) FOR UPDATE`,
		pq.Array(allocationIDs))
	if err != nil {
		return fmt.Errorf("locking allocations: %w", err)
	}

	var found []*models.Allocation
	for rows.Next() {
		alloc, err := scanAllocation(rows)
		if err != nil {
			rows.Close()
			return fmt.Errorf("scanning allocation: %w", err)
		}
		found = append(found, alloc)
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("reading allocations: %w", err)
	}

	if err := checkReservable(found, allocationIDs, nodeID); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE allocations SET server_id = $1 WHERE id = ANY($2)`,
		serverID, pq.Array(allocationIDs))
	if err != nil {
		return fmt.Errorf("reserving allocations: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking reservation: %w", err)
	}
	if int(affected) != len(allocationIDs) {
		return fmt.Errorf("%w: expected %d rows, updated %d", ErrAllocationConflict, len(allocationIDs), affected)
	}
	return nil
}

// Release unassigns every allocation held by the server. Releasing a
// server that holds nothing is a no-op, so the call is idempotent.
func (s *AllocationStore) Release(ctx context.Context, serverID string) error {
	_, err := s.conn().ExecContext(ctx,
		`UPDATE allocations SET server_id = NULL WHERE server_id = $1`, serverID)
	if err != nil {
		return fmt.Errorf("releasing allocations: %w", err)
	}
	return nil
}

// Delete deletes an unassigned allocation.
func (s *AllocationStore) Delete(ctx context.Context, id string) error {
	result, err := s.conn().ExecContext(ctx,
		`DELETE FROM allocations WHERE id = $1 AND server_id IS NULL`, id)
	if err != nil {
		return fmt.Errorf("deleting allocation: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if affected == 0 {
		// Distinguish a held allocation from a missing one.
		if _, getErr := s.Get(ctx, id); getErr == nil {
			return ErrInUse
		}
		return ErrNotFound
	}
	return nil
}

// checkReservable verifies that a locked result set covers every
// requested id and that each row belongs to the node and is unassigned.
func checkReservable(found []*models.Allocation, requested []string, nodeID string) error {
	byID := make(map[string]*models.Allocation, len(found))
	for _, alloc := range found {
		byID[alloc.ID] = alloc
	}

	seen := make(map[string]bool, len(requested))
	for _, id := range requested {
		if seen[id] {
			return fmt.Errorf("%w: %s requested twice", ErrAllocationConflict, id)
		}
		seen[id] = true

		alloc, ok := byID[id]
		if !ok {
			return fmt.Errorf("%w: %s does not exist", ErrAllocationConflict, id)
		}
		if alloc.NodeID != nodeID {
			return fmt.Errorf("%w: %s belongs to another node", ErrAllocationConflict, id)
		}
		if alloc.ServerID != nil {
			return fmt.Errorf("%w: %s already assigned", ErrAllocationConflict, id)
		}
	}
	return nil
}

func (s *AllocationStore) queryAllocations(ctx context.Context, query string, args ...any) ([]*models.Allocation, error) {
	rows, err := s.conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying allocations: %w", err)
	}
	defer rows.Close()

	var allocs []*models.Allocation
	for rows.Next() {
		alloc, err := scanAllocation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning allocation: %w", err)
		}
		allocs = append(allocs, alloc)
	}
	return allocs, rows.Err()
}

func scanAllocation(row rowScanner) (*models.Allocation, error) {
	var alloc models.Allocation
	var alias sql.NullString
	var serverID sql.NullString

	err := row.Scan(&alloc.ID, &alloc.NodeID, &alloc.IP, &alloc.Port, &alias, &serverID)
	if err != nil {
		return nil, err
	}

	alloc.Alias = alias.String
	if serverID.Valid {
		sid := serverID.String
		alloc.ServerID = &sid
	}
	return &alloc, nil
}
