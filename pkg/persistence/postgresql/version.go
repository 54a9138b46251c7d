package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/alexfarlander/stitch-run-sub015/pkg/models"
	"github.com/alexfarlander/stitch-run-sub015/pkg/persistence"
)

const uniqueViolation = "23505"

// VersionRepository stores immutable flow-version snapshots.
type VersionRepository struct {
	db *sql.DB
}

func (r *VersionRepository) Create(ctx context.Context, version *models.FlowVersion) error {
	if version.CreatedAt.IsZero() {
		version.CreatedAt = time.Now().UTC()
	}

	visual, err := marshalJSON(version.VisualGraph)
	if err != nil {
		return err
	}

	execution, err := marshalJSON(version.ExecutionGraph)
	if err != nil {
		return err
	}

	stitchMap, err := marshalJSON(version.StitchMap)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO flow_versions (id, flow_id, visual_graph, execution_graph, stitch_map, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.db.ExecContext(ctx, query,
		version.ID, version.FlowID, visual, execution, stitchMap, version.Message, version.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return persistence.ErrVersionAlreadyExists
		}

		return fmt.Errorf("failed to create flow version: %w", err)
	}

	return nil
}

func (r *VersionRepository) GetByID(ctx context.Context, id string) (*models.FlowVersion, error) {
	query := `
		SELECT
			id
		  , flow_id
		  , visual_graph
		  , execution_graph
		  , stitch_map
		  , COALESCE(message, '')
		  , created_at
		FROM flow_versions
		WHERE id = $1
	`

	var (
		version   models.FlowVersion
		visual    []byte
		execution []byte
		stitchMap []byte
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&version.ID,
		&version.FlowID,
		&visual,
		&execution,
		&stitchMap,
		&version.Message,
		&version.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrVersionNotFound
		}

		return nil, fmt.Errorf("failed to scan flow version: %w", err)
	}

	if err := unmarshalJSON(visual, &version.VisualGraph); err != nil {
		return nil, err
	}

	if err := unmarshalJSON(execution, &version.ExecutionGraph); err != nil {
		return nil, err
	}

	if err := unmarshalJSON(stitchMap, &version.StitchMap); err != nil {
		return nil, err
	}

	return &version, nil
}
