package file

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/alexfarlander/stitch-run-sub015/pkg/models"
	"github.com/alexfarlander/stitch-run-sub015/pkg/persistence"
)

const entitiesCollection = "entities"

// EntityRepository handles entity documents.
type EntityRepository struct {
	store *store
}

func (r *EntityRepository) Save(_ context.Context, entity *models.Entity) error {
	if err := entity.ValidatePosition(); err != nil {
		return persistence.NewEntityError("Save", entity.ID, err)
	}

	now := time.Now().UTC()
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = now
	}

	entity.UpdatedAt = now

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.store.write(entitiesCollection, entity.ID, entity)
}

func (r *EntityRepository) GetByID(_ context.Context, id string) (*models.Entity, error) {
	var entity models.Entity

	err := r.store.read(entitiesCollection, id, &entity)
	if errors.Is(err, os.ErrNotExist) {
		return nil, persistence.ErrEntityNotFound
	}

	if err != nil {
		return nil, err
	}

	return &entity, nil
}

// Update overwrites the stored entity. Position fields are last-write-wins;
// a race between a manual move and a stitching relocation resolves to
// whichever write lands second.
func (r *EntityRepository) Update(_ context.Context, entity *models.Entity) error {
	if err := entity.ValidatePosition(); err != nil {
		return persistence.NewEntityError("Update", entity.ID, err)
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if !r.store.exists(entitiesCollection, entity.ID) {
		return persistence.NewEntityError("Update", entity.ID, persistence.ErrEntityNotFound)
	}

	entity.UpdatedAt = time.Now().UTC()

	return r.store.write(entitiesCollection, entity.ID, entity)
}
