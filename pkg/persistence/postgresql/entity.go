package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/alexfarlander/stitch-run-sub015/pkg/models"
	"github.com/alexfarlander/stitch-run-sub015/pkg/persistence"
)

// EntityRepository stores entities. Writes are last-write-wins; the position
// invariant is validated before anything reaches the database.
type EntityRepository struct {
	db *sql.DB
}

func (r *EntityRepository) Save(ctx context.Context, entity *models.Entity) error {
	if err := entity.ValidatePosition(); err != nil {
		return persistence.NewEntityError("save", entity.ID, err)
	}

	now := time.Now().UTC()
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = now
	}

	entity.UpdatedAt = now

	metadata, err := marshalJSON(entity.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO entities (id, canvas_id, entity_type, current_node_id, current_edge_id, edge_progress, destination_node_id, metadata, completed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			entity_type = EXCLUDED.entity_type,
			current_node_id = EXCLUDED.current_node_id,
			current_edge_id = EXCLUDED.current_edge_id,
			edge_progress = EXCLUDED.edge_progress,
			destination_node_id = EXCLUDED.destination_node_id,
			metadata = EXCLUDED.metadata,
			completed_at = EXCLUDED.completed_at,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		entity.ID, entity.CanvasID, entity.EntityType,
		entity.CurrentNodeID, entity.CurrentEdgeID, entity.EdgeProgress, entity.DestinationNodeID,
		metadata, entity.CompletedAt, entity.CreatedAt, entity.UpdatedAt)
	if err != nil {
		return persistence.NewEntityError("save", entity.ID, err)
	}

	return nil
}

func (r *EntityRepository) Update(ctx context.Context, entity *models.Entity) error {
	return r.Save(ctx, entity)
}

func (r *EntityRepository) GetByID(ctx context.Context, id string) (*models.Entity, error) {
	query := `
		SELECT
			id
		  , canvas_id
		  , entity_type
		  , current_node_id
		  , current_edge_id
		  , edge_progress
		  , destination_node_id
		  , metadata
		  , completed_at
		  , created_at
		  , updated_at
		FROM entities
		WHERE id = $1
	`

	var (
		entity   models.Entity
		metadata []byte
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&entity.ID,
		&entity.CanvasID,
		&entity.EntityType,
		&entity.CurrentNodeID,
		&entity.CurrentEdgeID,
		&entity.EdgeProgress,
		&entity.DestinationNodeID,
		&metadata,
		&entity.CompletedAt,
		&entity.CreatedAt,
		&entity.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrEntityNotFound
		}

		return nil, persistence.NewEntityError("get", id, err)
	}

	if err := unmarshalJSON(metadata, &entity.Metadata); err != nil {
		return nil, err
	}

	return &entity, nil
}
