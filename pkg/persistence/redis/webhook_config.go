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

const webhookConfigCollection = "webhook-configs"

type WebhookConfigRepository struct {
	client *goredis.Client
}

func (r *WebhookConfigRepository) Save(ctx context.Context, config *models.WebhookConfig) error {
	now := time.Now().UTC()
	if config.CreatedAt.IsZero() {
		config.CreatedAt = now
	}

	config.UpdatedAt = now

	data, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook config: %w", err)
	}

	if err := r.client.Set(ctx, docKey(webhookConfigCollection, config.Key), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save webhook config: %w", err)
	}

	return nil
}

func (r *WebhookConfigRepository) GetByKey(ctx context.Context, key string) (*models.WebhookConfig, error) {
	data, err := r.client.Get(ctx, docKey(webhookConfigCollection, key)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, persistence.ErrWebhookConfigNotFound
		}

		return nil, fmt.Errorf("failed to get webhook config: %w", err)
	}

	var config models.WebhookConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal webhook config: %w", err)
	}

	return &config, nil
}
