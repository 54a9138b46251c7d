// Package redis provides a Redis persistence backend. Documents are stored
// as JSON strings; the run repository uses WATCH transactions for its
// conditional updates.
package redis

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/alexfarlander/stitch-run-sub015/pkg/persistence"
)

const keyPrefix = "stitch"

// Persistence implements the persistence layer on Redis.
type Persistence struct {
	client   *goredis.Client
	logger   *slog.Logger
	flows    *FlowRepository
	versions *VersionRepository
	runs     *RunRepository
	entities *EntityRepository
	journey  *JourneyRepository
	webhooks *WebhookConfigRepository
}

// NewPersistence parses a redis:// URL and wires repositories.
func NewPersistence(logger *slog.Logger, databaseURL string) (*Persistence, error) {
	options, err := goredis.ParseURL(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	return NewPersistenceWithClient(logger, goredis.NewClient(options)), nil
}

// NewPersistenceWithClient wires repositories over an existing client.
func NewPersistenceWithClient(logger *slog.Logger, client *goredis.Client) *Persistence {
	return &Persistence{
		client:   client,
		logger:   logger,
		flows:    &FlowRepository{client: client},
		versions: &VersionRepository{client: client},
		runs:     &RunRepository{client: client},
		entities: &EntityRepository{client: client},
		journey:  &JourneyRepository{client: client},
		webhooks: &WebhookConfigRepository{client: client},
	}
}

func (p *Persistence) FlowRepository() persistence.FlowRepository       { return p.flows }
func (p *Persistence) VersionRepository() persistence.VersionRepository { return p.versions }
func (p *Persistence) RunRepository() persistence.RunRepository         { return p.runs }
func (p *Persistence) EntityRepository() persistence.EntityRepository   { return p.entities }
func (p *Persistence) JourneyRepository() persistence.JourneyRepository { return p.journey }
func (p *Persistence) WebhookConfigRepository() persistence.WebhookConfigRepository {
	return p.webhooks
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

func (p *Persistence) Close(ctx context.Context) error {
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	return nil
}

func docKey(collection, id string) string {
	return keyPrefix + ":" + collection + ":" + id
}

func indexKey(collection string) string {
	return keyPrefix + ":" + collection
}
