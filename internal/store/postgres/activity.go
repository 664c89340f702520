package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dcm2610/StellarStack-sub002/internal/models"
)

// ActivityStore implements store.ActivityStore using PostgreSQL.
type ActivityStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

// conn returns the queryable connection (transaction or database).
func (s *ActivityStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// Record appends an activity event.
func (s *ActivityStore) Record(ctx context.Context, event *models.ActivityEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	var metadata []byte
	if len(event.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata: %w", err)
		}
	}

	query := `
		INSERT INTO activity_events (id, actor_id, action, target_type, target_id,
			metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.conn().ExecContext(ctx, query,
		event.ID,
		event.ActorID,
		event.Action,
		event.TargetType,
		event.TargetID,
		metadata,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("recording activity: %w", err)
	}
	return nil
}

// List retrieves recent events, newest first.
func (s *ActivityStore) List(ctx context.Context, limit, offset int) ([]*models.ActivityEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, actor_id, action, target_type, target_id, metadata, created_at
		FROM activity_events
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := s.conn().QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying activity: %w", err)
	}
	defer rows.Close()

	var events []*models.ActivityEvent
	for rows.Next() {
		var event models.ActivityEvent
		var actorID sql.NullString
		var metadata []byte

		err := rows.Scan(&event.ID, &actorID, &event.Action, &event.TargetType,
			&event.TargetID, &metadata, &event.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning activity event: %w", err)
		}

		if actorID.Valid {
			actor := actorID.String
			event.ActorID = &actor
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
				return nil, fmt.Errorf("decoding metadata: %w", err)
			}
		}
		events = append(events, &event)
	}
	return events, rows.Err()
}
