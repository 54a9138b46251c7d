package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/alexfarlander/stitch-run-sub015/pkg/models"
	"github.com/alexfarlander/stitch-run-sub015/pkg/persistence"
)

const runCollection = "runs"

type RunRepository struct {
	client *goredis.Client
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

	data, err := json.Marshal(run)
	if err != nil {
		return persistence.NewRunError("create", run.ID, err)
	}

	if err := r.client.Set(ctx, docKey(runCollection, run.ID), data, 0).Err(); err != nil {
		return persistence.NewRunError("create", run.ID, err)
	}

	return nil
}

func (r *RunRepository) GetByID(ctx context.Context, id string) (*models.Run, error) {
	data, err := r.client.Get(ctx, docKey(runCollection, id)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, persistence.ErrRunNotFound
		}

		return nil, persistence.NewRunError("get", id, err)
	}

	var run models.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, persistence.NewRunError("get", id, fmt.Errorf("failed to unmarshal run: %w", err))
	}

	return &run, nil
}

// UpdateNodeStates runs a WATCH transaction on the run key. If another
// writer touches the key, or the stored row version no longer matches,
// the update is rejected as a concurrent update.
func (r *RunRepository) UpdateNodeStates(ctx context.Context, runID string, expectedRowVersion int64, states map[string]models.NodeState) (*models.Run, error) {
	key := docKey(runCollection, runID)

	var updated *models.Run

	err := r.client.Watch(ctx, func(tx *goredis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				return persistence.ErrRunNotFound
			}

			return err
		}

		var run models.Run
		if err := json.Unmarshal(data, &run); err != nil {
			return fmt.Errorf("failed to unmarshal run: %w", err)
		}

		if run.RowVersion != expectedRowVersion {
			return persistence.ErrRunConcurrentUpdate
		}

		run.NodeStates = states
		run.RowVersion++
		run.UpdatedAt = time.Now().UTC()

		encoded, err := json.Marshal(&run)
		if err != nil {
			return fmt.Errorf("failed to marshal run: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)

			return nil
		})
		if err != nil {
			return err
		}

		updated = &run

		return nil
	}, key)
	if err != nil {
		if errors.Is(err, goredis.TxFailedErr) {
			return nil, persistence.NewRunError("update", runID, persistence.ErrRunConcurrentUpdate)
		}

		if errors.Is(err, persistence.ErrRunNotFound) {
			return nil, err
		}

		return nil, persistence.NewRunError("update", runID, err)
	}

	return updated, nil
}

// MarkCompleted claims the completion marker inside a WATCH transaction so
// exactly one caller wins even under racing callbacks.
func (r *RunRepository) MarkCompleted(ctx context.Context, runID string) (*models.Run, error) {
	key := docKey(runCollection, runID)

	var marked *models.Run

	err := r.client.Watch(ctx, func(tx *goredis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				return persistence.ErrRunNotFound
			}

			return err
		}

		var run models.Run
		if err := json.Unmarshal(data, &run); err != nil {
			return fmt.Errorf("failed to unmarshal run: %w", err)
		}

		if run.CompletedAt != nil {
			return persistence.ErrRunAlreadyCompleted
		}

		now := time.Now().UTC()
		run.CompletedAt = &now
		run.RowVersion++
		run.UpdatedAt = now

		encoded, err := json.Marshal(&run)
		if err != nil {
			return fmt.Errorf("failed to marshal run: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)

			return nil
		})
		if err != nil {
			return err
		}

		marked = &run

		return nil
	}, key)
	if err != nil {
		if errors.Is(err, goredis.TxFailedErr) {
			return nil, persistence.NewRunError("markCompleted", runID, persistence.ErrRunConcurrentUpdate)
		}

		if errors.Is(err, persistence.ErrRunNotFound) {
			return nil, err
		}

		if errors.Is(err, persistence.ErrRunAlreadyCompleted) {
			return nil, persistence.NewRunError("markCompleted", runID, persistence.ErrRunAlreadyCompleted)
		}

		return nil, persistence.NewRunError("markCompleted", runID, err)
	}

	return marked, nil
}
