package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/dcm2610/StellarStack-sub002/internal/models"
)

// BlueprintStore implements store.BlueprintStore using PostgreSQL.
type BlueprintStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

// conn returns the queryable connection (transaction or database).
func (s *BlueprintStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// Create persists a new blueprint.
func (s *BlueprintStore) Create(ctx context.Context, bp *models.Blueprint) error {
	vars, err := json.Marshal(bp.Variables)
	if err != nil {
		return fmt.Errorf("encoding variables: %w", err)
	}

	query := `
		INSERT INTO blueprints (id, name, description, docker_images, startup_command,
			variables, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`

	now := time.Now().UTC()
	bp.CreatedAt = now
	bp.UpdatedAt = now

	_, err = s.conn().ExecContext(ctx, query,
		bp.ID,
		bp.Name,
		bp.Description,
		pq.Array(bp.DockerImages),
		bp.StartupCommand,
		vars,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("creating blueprint: %w", err)
	}
	return nil
}

// Get retrieves a blueprint by ID.
func (s *BlueprintStore) Get(ctx context.Context, id string) (*models.Blueprint, error) {
	query := `
		SELECT id, name, description, docker_images, startup_command, variables,
			created_at, updated_at
		FROM blueprints WHERE id = $1`

	bp, err := scanBlueprint(s.conn().QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying blueprint: %w", err)
	}
	return bp, nil
}

// List retrieves all blueprints ordered by name.
func (s *BlueprintStore) List(ctx context.Context) ([]*models.Blueprint, error) {
	query := `
		SELECT id, name, description, docker_images, startup_command, variables,
			created_at, updated_at
		FROM blueprints ORDER BY name`

	rows, err := s.conn().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying blueprints: %w", err)
	}
	defer rows.Close()

	var bps []*models.Blueprint
	for rows.Next() {
		bp, err := scanBlueprint(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning blueprint: %w", err)
		}
		bps = append(bps, bp)
	}
	return bps, rows.Err()
}

// Update updates a blueprint.
func (s *BlueprintStore) Update(ctx context.Context, bp *models.Blueprint) error {
	vars, err := json.Marshal(bp.Variables)
	if err != nil {
		return fmt.Errorf("encoding variables: %w", err)
	}

	query := `
		UPDATE blueprints SET
			name = $2,
			description = $3,
			docker_images = $4,
			startup_command = $5,
			variables = $6,
			updated_at = $7
		WHERE id = $1`

	bp.UpdatedAt = time.Now().UTC()
	result, err := s.conn().ExecContext(ctx, query,
		bp.ID,
		bp.Name,
		bp.Description,
		pq.Array(bp.DockerImages),
		bp.StartupCommand,
		vars,
		bp.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("updating blueprint: %w", err)
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

// Delete deletes a blueprint. Blueprints referenced by servers cannot be
// deleted.
func (s *BlueprintStore) Delete(ctx context.Context, id string) error {
	result, err := s.conn().ExecContext(ctx, `DELETE FROM blueprints WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrInUse
		}
		return fmt.Errorf("deleting blueprint: %w", err)
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

func scanBlueprint(row rowScanner) (*models.Blueprint, error) {
	var bp models.Blueprint
	var description sql.NullString
	var vars []byte

	err := row.Scan(
		&bp.ID,
		&bp.Name,
		&description,
		pq.Array(&bp.DockerImages),
		&bp.StartupCommand,
		&vars,
		&bp.CreatedAt,
		&bp.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	bp.Description = description.String
	if len(vars) > 0 {
		if err := json.Unmarshal(vars, &bp.Variables); err != nil {
			return nil, fmt.Errorf("decoding variables: %w", err)
		}
	}
	return &bp, nil
}
