package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alexfarlander/stitch-run-sub015/pkg/models"
	"github.com/alexfarlander/stitch-run-sub015/pkg/persistence"
)

// FlowRepository handles flow-related database operations.
type FlowRepository struct {
	db *sql.DB
}

func (r *FlowRepository) Save(ctx context.Context, flow *models.Flow) error {
	now := time.Now().UTC()
	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = now
	}

	flow.UpdatedAt = now

	query := `
		INSERT INTO flows (id, name, canvas_type, parent_canvas_id, parent_id, current_version_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			canvas_type = EXCLUDED.canvas_type,
			parent_canvas_id = EXCLUDED.parent_canvas_id,
			parent_id = EXCLUDED.parent_id,
			current_version_id = EXCLUDED.current_version_id,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		flow.ID, flow.Name, flow.CanvasType, flow.ParentCanvasID, flow.ParentID,
		flow.CurrentVersionID, flow.CreatedAt, flow.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save flow: %w", err)
	}

	return nil
}

func (r *FlowRepository) GetByID(ctx context.Context, id string) (*models.Flow, error) {
	query := `
		SELECT
			id
		  , name
		  , canvas_type
		  , parent_canvas_id
		  , parent_id
		  , COALESCE(current_version_id::text, '')
		  , created_at
		  , updated_at
		FROM flows
		WHERE id = $1
	`

	flow, err := scanFlow(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrFlowNotFound
		}

		return nil, fmt.Errorf("failed to scan flow: %w", err)
	}

	return flow, nil
}

func (r *FlowRepository) GetAll(ctx context.Context) ([]*models.Flow, error) {
	query := `
		SELECT
			id
		  , name
		  , canvas_type
		  , parent_canvas_id
		  , parent_id
		  , COALESCE(current_version_id::text, '')
		  , created_at
		  , updated_at
		FROM flows
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query flows: %w", err)
	}

	defer func() { _ = rows.Close() }()

	flows := make([]*models.Flow, 0)

	for rows.Next() {
		flow, err := scanFlow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flow: %w", err)
		}

		flows = append(flows, flow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating flows: %w", err)
	}

	return flows, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFlow(row rowScanner) (*models.Flow, error) {
	var flow models.Flow

	err := row.Scan(
		&flow.ID,
		&flow.Name,
		&flow.CanvasType,
		&flow.ParentCanvasID,
		&flow.ParentID,
		&flow.CurrentVersionID,
		&flow.CreatedAt,
		&flow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &flow, nil
}
