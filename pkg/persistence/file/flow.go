package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/alexfarlander/stitch-run-sub015/pkg/models"
	"github.com/alexfarlander/stitch-run-sub015/pkg/persistence"
)

const flowsCollection = "flows"

// FlowRepository handles flow documents.
type FlowRepository struct {
	store *store
}

func (r *FlowRepository) Save(_ context.Context, flow *models.Flow) error {
	now := time.Now().UTC()
	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = now
	}

	flow.UpdatedAt = now

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.store.write(flowsCollection, flow.ID, flow)
}

func (r *FlowRepository) GetByID(_ context.Context, id string) (*models.Flow, error) {
	var flow models.Flow

	err := r.store.read(flowsCollection, id, &flow)
	if errors.Is(err, os.ErrNotExist) {
		return nil, persistence.ErrFlowNotFound
	}

	if err != nil {
		return nil, err
	}

	return &flow, nil
}

func (r *FlowRepository) GetAll(ctx context.Context) ([]*models.Flow, error) {
	ids, err := r.store.ids(flowsCollection)
	if err != nil {
		return nil, err
	}

	flows := make([]*models.Flow, 0, len(ids))

	for _, id := range ids {
		flow, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load flow %s: %w", id, err)
		}

		flows = append(flows, flow)
	}

	return flows, nil
}
