package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alexfarlander/stitch-run-sub015/pkg/models"
	"github.com/alexfarlander/stitch-run-sub015/pkg/persistence"
)

// WebhookConfigRepository stores webhook configurations keyed by lookup key.
type WebhookConfigRepository struct {
	db *sql.DB
}

func (r *WebhookConfigRepository) Save(ctx context.Context, config *models.WebhookConfig) error {
	now := time.Now().UTC()
	if config.CreatedAt.IsZero() {
		config.CreatedAt = now
	}

	config.UpdatedAt = now

	schema, err := marshalJSON(config.PayloadSchema)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO webhook_configs (key, flow_id, version_id, entry_edge_id, secret, payload_schema, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (key) DO UPDATE SET
			flow_id = EXCLUDED.flow_id,
			version_id = EXCLUDED.version_id,
			entry_edge_id = EXCLUDED.entry_edge_id,
			secret = EXCLUDED.secret,
			payload_schema = EXCLUDED.payload_schema,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		config.Key, config.FlowID, config.VersionID, config.EntryEdgeID,
		config.Secret, schema, config.Active, config.CreatedAt, config.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save webhook config: %w", err)
	}

	return nil
}

func (r *WebhookConfigRepository) GetByKey(ctx context.Context, key string) (*models.WebhookConfig, error) {
	query := `
		SELECT
			key
		  , flow_id
		  , version_id
		  , entry_edge_id
		  , COALESCE(secret, '')
		  , payload_schema
		  , active
		  , created_at
		  , updated_at
		FROM webhook_configs
		WHERE key = $1
	`

	var (
		config models.WebhookConfig
		schema []byte
	)

	err := r.db.QueryRowContext(ctx, query, key).Scan(
		&config.Key,
		&config.FlowID,
		&config.VersionID,
		&config.EntryEdgeID,
		&config.Secret,
		&schema,
		&config.Active,
		&config.CreatedAt,
		&config.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrWebhookConfigNotFound
		}

		return nil, fmt.Errorf("failed to scan webhook config: %w", err)
	}

	if err := unmarshalJSON(schema, &config.PayloadSchema); err != nil {
		return nil, err
	}

	return &config, nil
}
