package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dcm2610/StellarStack-sub002/internal/models"
)

// ServerStore implements store.ServerStore using PostgreSQL.
type ServerStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

// conn returns the queryable connection (transaction or database).
func (s *ServerStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

const serverColumns = `id, name, owner_id, node_id, blueprint_id, status, remote_id,
	memory_mb, disk_mb, cpu_percent, image, environment, allocation_id,
	created_at, updated_at`

// Create persists a new server row.
func (s *ServerStore) Create(ctx context.Context, server *models.Server) error {
	env, err := json.Marshal(server.Environment)
	if err != nil {
		return fmt.Errorf("encoding environment: %w", err)
	}

	query := `
		INSERT INTO servers (id, name, owner_id, node_id, blueprint_id, status,
			memory_mb, disk_mb, cpu_percent, image, environment, allocation_id,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)`

	now := time.Now().UTC()
	server.CreatedAt = now
	server.UpdatedAt = now

	_, err = s.conn().ExecContext(ctx, query,
		server.ID,
		server.Name,
		server.OwnerID,
		server.NodeID,
		server.BlueprintID,
		server.Status,
		server.Limits.MemoryMB,
		server.Limits.DiskMB,
		server.Limits.CPUPercent,
		server.Image,
		env,
		server.AllocationID,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("creating server: %w", err)
	}
	return nil
}

// Get retrieves a server by ID.
func (s *ServerStore) Get(ctx context.Context, id string) (*models.Server, error) {
	query := `SELECT ` + serverColumns + ` FROM servers WHERE id = $1`

	server, err := scanServer(s.conn().QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying server: %w", err)
	}
	return server, nil
}

// GetByRemoteID retrieves a server by its daemon-side container id.
func (s *ServerStore) GetByRemoteID(ctx context.Context, nodeID, remoteID string) (*models.Server, error) {
	query := `SELECT ` + serverColumns + ` FROM servers WHERE node_id = $1 AND remote_id = $2`

	server, err := scanServer(s.conn().QueryRowContext(ctx, query, nodeID, remoteID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying server by remote id: %w", err)
	}
	return server, nil
}

// List retrieves all servers, newest first.
func (s *ServerStore) List(ctx context.Context) ([]*models.Server, error) {
	query := `SELECT ` + serverColumns + ` FROM servers ORDER BY created_at DESC`
	return s.queryServers(ctx, query)
}

// ListByOwner retrieves the servers owned by a user, newest first.
func (s *ServerStore) ListByOwner(ctx context.Context, ownerID string) ([]*models.Server, error) {
	query := `SELECT ` + serverColumns + ` FROM servers WHERE owner_id = $1 ORDER BY created_at DESC`
	return s.queryServers(ctx, query, ownerID)
}

// ListByNode retrieves the servers placed on a node.
func (s *ServerStore) ListByNode(ctx context.Context, nodeID string) ([]*models.Server, error) {
	query := `SELECT ` + serverColumns + ` FROM servers WHERE node_id = $1 ORDER BY created_at`
	return s.queryServers(ctx, query, nodeID)
}

// UpdateStatus sets the server's lifecycle status.
func (s *ServerStore) UpdateStatus(ctx context.Context, id string, status models.ServerStatus) error {
	result, err := s.conn().ExecContext(ctx,
		`UPDATE servers SET status = $2, updated_at = $3 WHERE id = $1`,
		id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("updating server status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking status update: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetRemoteID stores the daemon-side container id.
func (s *ServerStore) SetRemoteID(ctx context.Context, id, remoteID string) error {
	result, err := s.conn().ExecContext(ctx,
		`UPDATE servers SET remote_id = $2, updated_at = $3 WHERE id = $1`,
		id, remoteID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("setting remote id: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking remote id update: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete deletes a server row.
func (s *ServerStore) Delete(ctx context.Context, id string) error {
	result, err := s.conn().ExecContext(ctx, `DELETE FROM servers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting server: %w", err)
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

func (s *ServerStore) queryServers(ctx context.Context, query string, args ...any) ([]*models.Server, error) {
	rows, err := s.conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying servers: %w", err)
	}
	defer rows.Close()

	var servers []*models.Server
	for rows.Next() {
		server, err := scanServer(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning server: %w", err)
		}
		servers = append(servers, server)
	}
	return servers, rows.Err()
}

func scanServer(row rowScanner) (*models.Server, error) {
	var server models.Server
	var remoteID sql.NullString
	var env []byte

	err := row.Scan(
		&server.ID,
		&server.Name,
		&server.OwnerID,
		&server.NodeID,
		&server.BlueprintID,
		&server.Status,
		&remoteID,
		&server.Limits.MemoryMB,
		&server.Limits.DiskMB,
		&server.Limits.CPUPercent,
		&server.Image,
		&env,
		&server.AllocationID,
		&server.CreatedAt,
		&server.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if remoteID.Valid {
		rid := remoteID.String
		server.RemoteID = &rid
	}
	if len(env) > 0 {
		if err := json.Unmarshal(env, &server.Environment); err != nil {
			return nil, fmt.Errorf("decoding environment: %w", err)
		}
	}
	return &server, nil
}
