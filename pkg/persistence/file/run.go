package file

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/alexfarlander/stitch-run-sub015/pkg/models"
	"github.com/alexfarlander/stitch-run-sub015/pkg/persistence"
)

const runsCollection = "runs"

// RunRepository handles run documents. Conditional node-state updates are
// serialized under the store mutex, with the run's RowVersion as the
// compare-and-swap token.
type RunRepository struct {
	store *store
}

func (r *RunRepository) Create(_ context.Context, run *models.Run) error {
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}

	run.UpdatedAt = now
	if run.RowVersion == 0 {
		run.RowVersion = 1
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.store.write(runsCollection, run.ID, run)
}

func (r *RunRepository) GetByID(_ context.Context, id string) (*models.Run, error) {
	var run models.Run

	err := r.store.read(runsCollection, id, &run)
	if errors.Is(err, os.ErrNotExist) {
		return nil, persistence.ErrRunNotFound
	}

	if err != nil {
		return nil, err
	}

	return &run, nil
}

// UpdateNodeStates applies a node-state map only when the stored row version
// still matches expectedRowVersion. The stored document is re-read under the
// lock; the caller's in-memory copy is advisory.
func (r *RunRepository) UpdateNodeStates(_ context.Context, runID string, expectedRowVersion int64, states map[string]models.NodeState) (*models.Run, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var run models.Run

	err := r.store.read(runsCollection, runID, &run)
	if errors.Is(err, os.ErrNotExist) {
		return nil, persistence.NewRunError("UpdateNodeStates", runID, persistence.ErrRunNotFound)
	}

	if err != nil {
		return nil, persistence.NewRunError("UpdateNodeStates", runID, err)
	}

	if run.RowVersion != expectedRowVersion {
		return nil, persistence.NewRunError("UpdateNodeStates", runID, persistence.ErrRunConcurrentUpdate)
	}

	run.NodeStates = states
	run.RowVersion++
	run.UpdatedAt = time.Now().UTC()

	if err := r.store.write(runsCollection, runID, &run); err != nil {
		return nil, persistence.NewRunError("UpdateNodeStates", runID, err)
	}

	return &run, nil
}

// MarkCompleted sets the completion timestamp once; the second and every
// later call sees the stored marker and reports ErrRunAlreadyCompleted.
func (r *RunRepository) MarkCompleted(_ context.Context, runID string) (*models.Run, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var run models.Run

	err := r.store.read(runsCollection, runID, &run)
	if errors.Is(err, os.ErrNotExist) {
		return nil, persistence.NewRunError("MarkCompleted", runID, persistence.ErrRunNotFound)
	}

	if err != nil {
		return nil, persistence.NewRunError("MarkCompleted", runID, err)
	}

	if run.CompletedAt != nil {
		return nil, persistence.NewRunError("MarkCompleted", runID, persistence.ErrRunAlreadyCompleted)
	}

	now := time.Now().UTC()
	run.CompletedAt = &now
	run.RowVersion++
	run.UpdatedAt = now

	if err := r.store.write(runsCollection, runID, &run); err != nil {
		return nil, persistence.NewRunError("MarkCompleted", runID, err)
	}

	return &run, nil
}
