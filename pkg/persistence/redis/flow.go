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

const flowCollection = "flows"

type FlowRepository struct {
	client *goredis.Client
}

func (r *FlowRepository) Save(ctx context.Context, flow *models.Flow) error {
	now := time.Now().UTC()
	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = now
	}

	flow.UpdatedAt = now

	data, err := json.Marshal(flow)
	if err != nil {
		return fmt.Errorf("failed to marshal flow: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, docKey(flowCollection, flow.ID), data, 0)
	pipe.SAdd(ctx, indexKey(flowCollection), flow.ID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save flow: %w", err)
	}

	return nil
}

func (r *FlowRepository) GetByID(ctx context.Context, id string) (*models.Flow, error) {
	data, err := r.client.Get(ctx, docKey(flowCollection, id)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, persistence.ErrFlowNotFound
		}

		return nil, fmt.Errorf("failed to get flow: %w", err)
	}

	var flow models.Flow
	if err := json.Unmarshal(data, &flow); err != nil {
		return nil, fmt.Errorf("failed to unmarshal flow: %w", err)
	}

	return &flow, nil
}

func (r *FlowRepository) GetAll(ctx context.Context) ([]*models.Flow, error) {
	ids, err := r.client.SMembers(ctx, indexKey(flowCollection)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}

	flows := make([]*models.Flow, 0, len(ids))

	for _, id := range ids {
		flow, err := r.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, persistence.ErrFlowNotFound) {
				continue
			}

			return nil, err
		}

		flows = append(flows, flow)
	}

	return flows, nil
}
