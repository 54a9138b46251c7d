package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/alexfarlander/stitch-run-sub015/pkg/models"
)

const journeyCollection = "journey"

// JourneyRepository keeps one append-only list per entity.
type JourneyRepository struct {
	client *goredis.Client
}

func (r *JourneyRepository) Append(ctx context.Context, event *models.JourneyEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal journey event: %w", err)
	}

	if err := r.client.RPush(ctx, docKey(journeyCollection, event.EntityID), data).Err(); err != nil {
		return fmt.Errorf("failed to append journey event: %w", err)
	}

	return nil
}

func (r *JourneyRepository) GetByEntity(ctx context.Context, entityID string) ([]*models.JourneyEvent, error) {
	entries, err := r.client.LRange(ctx, docKey(journeyCollection, entityID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read journey log: %w", err)
	}

	events := make([]*models.JourneyEvent, 0, len(entries))

	for _, entry := range entries {
		var event models.JourneyEvent
		if err := json.Unmarshal([]byte(entry), &event); err != nil {
			return nil, fmt.Errorf("failed to unmarshal journey event: %w", err)
		}

		events = append(events, &event)
	}

	return events, nil
}
