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

const versionCollection = "versions"

type VersionRepository struct {
	client *goredis.Client
}

// Create refuses to overwrite an existing key; versions are immutable.
func (r *VersionRepository) Create(ctx context.Context, version *models.FlowVersion) error {
	if version.CreatedAt.IsZero() {
		version.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(version)
	if err != nil {
		return fmt.Errorf("failed to marshal flow version: %w", err)
	}

	created, err := r.client.SetNX(ctx, docKey(versionCollection, version.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to create flow version: %w", err)
	}

	if !created {
		return persistence.ErrVersionAlreadyExists
	}

	return nil
}

func (r *VersionRepository) GetByID(ctx context.Context, id string) (*models.FlowVersion, error) {
	data, err := r.client.Get(ctx, docKey(versionCollection, id)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, persistence.ErrVersionNotFound
		}

		return nil, fmt.Errorf("failed to get flow version: %w", err)
	}

	var version models.FlowVersion
	if err := json.Unmarshal(data, &version); err != nil {
		return nil, fmt.Errorf("failed to unmarshal flow version: %w", err)
	}

	return &version, nil
}
