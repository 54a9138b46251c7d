package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alexfarlander/stitch-run-sub015/pkg/models"
)

// JourneyRepository is the append-only journey log.
type JourneyRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *JourneyRepository) Append(ctx context.Context, event *models.JourneyEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	metadata, err := marshalJSON(event.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO journey_events (id, entity_id, event_type, node_id, edge_id, progress, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.db.ExecContext(ctx, query,
		event.ID, event.EntityID, event.Type, event.NodeID, event.EdgeID,
		event.Progress, metadata, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append journey event: %w", err)
	}

	return nil
}

func (r *JourneyRepository) GetByEntity(ctx context.Context, entityID string) ([]*models.JourneyEvent, error) {
	query := `
		SELECT
			id
		  , entity_id
		  , event_type
		  , COALESCE(node_id, '')
		  , COALESCE(edge_id, '')
		  , progress
		  , metadata
		  , created_at
		FROM journey_events
		WHERE entity_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query journey events: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	events := make([]*models.JourneyEvent, 0)

	for rows.Next() {
		var (
			event    models.JourneyEvent
			metadata []byte
		)

		err := rows.Scan(
			&event.ID,
			&event.EntityID,
			&event.Type,
			&event.NodeID,
			&event.EdgeID,
			&event.Progress,
			&metadata,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan journey event: %w", err)
		}

		if err := unmarshalJSON(metadata, &event.Metadata); err != nil {
			return nil, err
		}

		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journey events: %w", err)
	}

	return events, nil
}
