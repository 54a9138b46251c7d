package file

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/alexfarlander/stitch-run-sub015/pkg/models"
	"github.com/alexfarlander/stitch-run-sub015/pkg/persistence"
)

const webhookConfigsCollection = "webhook_configs"

// WebhookConfigRepository handles webhook-config documents keyed by lookup key.
type WebhookConfigRepository struct {
	store *store
}

func (r *WebhookConfigRepository) Save(_ context.Context, config *models.WebhookConfig) error {
	now := time.Now().UTC()
	if config.CreatedAt.IsZero() {
		config.CreatedAt = now
	}

	config.UpdatedAt = now

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.store.write(webhookConfigsCollection, config.Key, config)
}

func (r *WebhookConfigRepository) GetByKey(_ context.Context, key string) (*models.WebhookConfig, error) {
	var config models.WebhookConfig

	err := r.store.read(webhookConfigsCollection, key, &config)
	if errors.Is(err, os.ErrNotExist) {
		return nil, persistence.ErrWebhookConfigNotFound
	}

	if err != nil {
		return nil, err
	}

	return &config, nil
}
