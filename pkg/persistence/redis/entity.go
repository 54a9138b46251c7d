package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/alexfarlander/stitch-run-sub015/pkg/models"
	"github.com/alexfarlander/stitch-run-sub015/pkg/persistence"
)

const entityCollection = "entities"

// EntityRepository stores entities as JSON documents. Last write wins on a
// race between a manual move and a stitching relocation.
type EntityRepository struct {
	client *goredis.Client
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

	data, err := json.Marshal(entity)
	if err != nil {
		return persistence.NewEntityError("save", entity.ID, err)
	}

	if err := r.client.Set(ctx, docKey(entityCollection, entity.ID), data, 0).Err(); err != nil {
		return persistence.NewEntityError("save", entity.ID, err)
	}

	return nil
}

func (r *EntityRepository) Update(ctx context.Context, entity *models.Entity) error {
	return r.Save(ctx, entity)
}

func (r *EntityRepository) GetByID(ctx context.Context, id string) (*models.Entity, error) {
	data, err := r.client.Get(ctx, docKey(entityCollection, id)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, persistence.ErrEntityNotFound
		}

		return nil, persistence.NewEntityError("get", id, err)
	}

	var entity models.Entity
	if err := json.Unmarshal(data, &entity); err != nil {
		return nil, persistence.NewEntityError("get", id, err)
	}

	return &entity, nil
}
