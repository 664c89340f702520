package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dcm2610/StellarStack-sub002/internal/models"
)

// NodeStore implements store.NodeStore using PostgreSQL.
type NodeStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

// conn returns the queryable connection (transaction or database).
func (s *NodeStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

const nodeColumns = `id, name, fqdn, scheme, daemon_port, memory_mb, disk_mb,
	memory_overallocate, disk_overallocate, candidate_online, last_heartbeat,
	latency_ms, created_at, updated_at`

// Create creates a new node with its sealed daemon credential.
func (s *NodeStore) Create(ctx context.Context, node *models.Node, sealedCredential string) error {
	query := `
		INSERT INTO nodes (id, name, fqdn, scheme, daemon_port, memory_mb, disk_mb,
			memory_overallocate, disk_overallocate, credential_enc,
			candidate_online, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, false, $11, $11)`

	now := time.Now().UTC()
	node.CreatedAt = now
	node.UpdatedAt = now

	_, err := s.conn().ExecContext(ctx, query,
		node.ID,
		node.Name,
		node.FQDN,
		node.Scheme,
		node.DaemonPort,
		node.MemoryMB,
		node.DiskMB,
		node.MemoryOverallocate,
		node.DiskOverallocate,
		sealedCredential,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("creating node: %w", err)
	}

	return nil
}

// Get retrieves a node by ID.
func (s *NodeStore) Get(ctx context.Context, id string) (*models.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE id = $1`

	node, err := scanNode(s.conn().QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying node: %w", err)
	}
	return node, nil
}

// List retrieves all nodes ordered by name.
func (s *NodeStore) List(ctx context.Context) ([]*models.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes ORDER BY name`

	rows, err := s.conn().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying nodes: %w", err)
	}
	defer rows.Close()

	var nodes []*models.Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning node: %w", err)
		}
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}

// Update updates a node's mutable fields.
func (s *NodeStore) Update(ctx context.Context, node *models.Node) error {
	query := `
		UPDATE nodes SET
			name = $2,
			fqdn = $3,
			scheme = $4,
			daemon_port = $5,
			memory_mb = $6,
			disk_mb = $7,
			memory_overallocate = $8,
			disk_overallocate = $9,
			updated_at = $10
		WHERE id = $1`

	node.UpdatedAt = time.Now().UTC()
	result, err := s.conn().ExecContext(ctx, query,
		node.ID,
		node.Name,
		node.FQDN,
		node.Scheme,
		node.DaemonPort,
		node.MemoryMB,
		node.DiskMB,
		node.MemoryOverallocate,
		node.DiskOverallocate,
		node.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("updating node: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete deletes a node. Nodes that still own servers cannot be deleted.
func (s *NodeStore) Delete(ctx context.Context, id string) error {
	result, err := s.conn().ExecContext(ctx, `DELETE FROM nodes WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrInUse
		}
		return fmt.Errorf("deleting node: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SealedCredential returns the node's encrypted daemon credential.
func (s *NodeStore) SealedCredential(ctx context.Context, id string) (string, error) {
	var sealed string
	err := s.conn().QueryRowContext(ctx,
		`SELECT credential_enc FROM nodes WHERE id = $1`, id).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying node credential: %w", err)
	}
	return sealed, nil
}

// ReplaceCredential swaps in a freshly sealed daemon credential.
func (s *NodeStore) ReplaceCredential(ctx context.Context, id, sealedCredential string) error {
	result, err := s.conn().ExecContext(ctx,
		`UPDATE nodes SET credential_enc = $2, updated_at = $3 WHERE id = $1`,
		id, sealedCredential, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("replacing node credential: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking credential update: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordHeartbeat stores a heartbeat observation and marks the node a
// liveness candidate. Latency is kept from the previous observation when
// the daemon did not report one.
func (s *NodeStore) RecordHeartbeat(ctx context.Context, id string, at time.Time, latencyMS *int64) error {
	query := `
		UPDATE nodes SET
			candidate_online = true,
			last_heartbeat = $2,
			latency_ms = COALESCE($3, latency_ms)
		WHERE id = $1`

	result, err := s.conn().ExecContext(ctx, query, id, at.UTC(), latencyMS)
	if err != nil {
		return fmt.Errorf("recording heartbeat: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking heartbeat update: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan helpers.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*models.Node, error) {
	var node models.Node
	var lastHeartbeat sql.NullTime
	var latencyMS sql.NullInt64

	err := row.Scan(
		&node.ID,
		&node.Name,
		&node.FQDN,
		&node.Scheme,
		&node.DaemonPort,
		&node.MemoryMB,
		&node.DiskMB,
		&node.MemoryOverallocate,
		&node.DiskOverallocate,
		&node.CandidateOnline,
		&lastHeartbeat,
		&latencyMS,
		&node.CreatedAt,
		&node.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastHeartbeat.Valid {
		hb := lastHeartbeat.Time
		node.LastHeartbeat = &hb
	}
	if latencyMS.Valid {
		lat := latencyMS.Int64
		node.LatencyMS = &lat
	}
	return &node, nil
}
