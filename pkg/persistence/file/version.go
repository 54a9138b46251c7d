package file

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/alexfarlander/stitch-run-sub015/pkg/models"
	"github.com/alexfarlander/stitch-run-sub015/pkg/persistence"
)

const versionsCollection = "versions"

// VersionRepository handles immutable flow-version documents.
type VersionRepository struct {
	store *store
}

func (r *VersionRepository) Create(_ context.Context, version *models.FlowVersion) error {
	if version.CreatedAt.IsZero() {
		version.CreatedAt = time.Now().UTC()
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	// Versions never change once written.
	if r.store.exists(versionsCollection, version.ID) {
		return persistence.ErrVersionAlreadyExists
	}

	return r.store.write(versionsCollection, version.ID, version)
}

func (r *VersionRepository) GetByID(_ context.Context, id string) (*models.FlowVersion, error) {
	var version models.FlowVersion

	err := r.store.read(versionsCollection, id, &version)
	if errors.Is(err, os.ErrNotExist) {
		return nil, persistence.ErrVersionNotFound
	}

	if err != nil {
		return nil, err
	}

	return &version, nil
}
