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

// RunRepository stores run records. State updates are conditional on the
// stored row version so concurrent writers never clobber each other.
type RunRepository struct {
	db *sql.DB
}

func (r *RunRepository) Create(ctx context.Context, run *models.Run) error {
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}

	run.UpdatedAt = now
	if run.RowVersion == 0 {
		run.RowVersion = 1
	}

	trigger, err := marshalJSON(run.Trigger)
	if err != nil {
		return err
	}

	uxContext, err := marshalJSON(run.UXContext)
	if err != nil {
		return err
	}

	input, err := marshalJSON(run.Input)
	if err != nil {
		return err
	}

	states, err := marshalJSON(run.NodeStates)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO runs (id, flow_id, flow_version_id, entity_id, trigger_info, ux_context, input, node_states, row_version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = r.db.ExecContext(ctx, query,
		run.ID, run.FlowID, run.FlowVersionID, run.EntityID,
		trigger, uxContext, input, states, run.RowVersion, run.CreatedAt, run.UpdatedAt)
	if err != nil {
		return persistence.NewRunError("create", run.ID, err)
	}

	return nil
}

func (r *RunRepository) GetByID(ctx context.Context, id string) (*models.Run, error) {
	run, err := r.scanRun(r.db.QueryRowContext(ctx, runSelect+" WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrRunNotFound
		}

		return nil, persistence.NewRunError("get", id, err)
	}

	return run, nil
}

// UpdateNodeStates writes the node-state map only when the stored row
// version still matches. A zero-row update against an existing run means
// another writer won; the caller re-reads and retries.
func (r *RunRepository) UpdateNodeStates(ctx context.Context, runID string, expectedRowVersion int64, states map[string]models.NodeState) (*models.Run, error) {
	encoded, err := marshalJSON(states)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE runs
		SET node_states = $3, row_version = row_version + 1, updated_at = $4
		WHERE id = $1 AND row_version = $2
	`

	result, err := r.db.ExecContext(ctx, query, runID, expectedRowVersion, encoded, time.Now().UTC())
	if err != nil {
		return nil, persistence.NewRunError("update", runID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, persistence.NewRunError("update", runID, err)
	}

	if affected == 0 {
		if _, err := r.GetByID(ctx, runID); err != nil {
			return nil, err
		}

		return nil, persistence.NewRunError("update", runID, persistence.ErrRunConcurrentUpdate)
	}

	return r.GetByID(ctx, runID)
}

// MarkCompleted claims the completion marker with a conditional write on
// the completed_at column. Zero rows against an existing run means another
// writer already claimed it.
func (r *RunRepository) MarkCompleted(ctx context.Context, runID string) (*models.Run, error) {
	query := `
		UPDATE runs
		SET completed_at = $2, row_version = row_version + 1, updated_at = $2
		WHERE id = $1 AND completed_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, runID, time.Now().UTC())
	if err != nil {
		return nil, persistence.NewRunError("markCompleted", runID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, persistence.NewRunError("markCompleted", runID, err)
	}

	if affected == 0 {
		if _, err := r.GetByID(ctx, runID); err != nil {
			return nil, err
		}

		return nil, persistence.NewRunError("markCompleted", runID, persistence.ErrRunAlreadyCompleted)
	}

	return r.GetByID(ctx, runID)
}

const runSelect = `
	SELECT
		id
	  , flow_id
	  , flow_version_id
	  , entity_id
	  , trigger_info
	  , ux_context
	  , input
	  , node_states
	  , row_version
	  , completed_at
	  , created_at
	  , updated_at
	FROM runs
`

func (r *RunRepository) scanRun(row rowScanner) (*models.Run, error) {
	var (
		run       models.Run
		trigger   []byte
		uxContext []byte
		input     []byte
		states    []byte
	)

	err := row.Scan(
		&run.ID,
		&run.FlowID,
		&run.FlowVersionID,
		&run.EntityID,
		&trigger,
		&uxContext,
		&input,
		&states,
		&run.RowVersion,
		&run.CompletedAt,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSON(trigger, &run.Trigger); err != nil {
		return nil, err
	}

	if err := unmarshalJSON(uxContext, &run.UXContext); err != nil {
		return nil, err
	}

	if err := unmarshalJSON(input, &run.Input); err != nil {
		return nil, err
	}

	run.NodeStates = make(map[string]models.NodeState)
	if err := unmarshalJSON(states, &run.NodeStates); err != nil {
		return nil, err
	}

	if run.NodeStates == nil {
		return nil, fmt.Errorf("run %s has no node states column", run.ID)
	}

	return &run, nil
}
