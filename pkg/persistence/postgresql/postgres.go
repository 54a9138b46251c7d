// Package postgresql provides the PostgreSQL persistence backend.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"

	"github.com/alexfarlander/stitch-run-sub015/pkg/persistence"
	"github.com/alexfarlander/stitch-run-sub015/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db       *sql.DB
	logger   *slog.Logger
	flows    *FlowRepository
	versions *VersionRepository
	runs     *RunRepository
	entities *EntityRepository
	journey  *JourneyRepository
	webhooks *WebhookConfigRepository
}

// NewPersistence opens a connection, runs migrations, and wires repositories.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:       database,
		logger:   logger,
		flows:    &FlowRepository{db: database},
		versions: &VersionRepository{db: database},
		runs:     &RunRepository{db: database},
		entities: &EntityRepository{db: database},
		journey:  &JourneyRepository{db: database, logger: logger},
		webhooks: &WebhookConfigRepository{db: database},
	}, nil
}

func (p *Persistence) FlowRepository() persistence.FlowRepository       { return p.flows }
func (p *Persistence) VersionRepository() persistence.VersionRepository { return p.versions }
func (p *Persistence) RunRepository() persistence.RunRepository         { return p.runs }
func (p *Persistence) EntityRepository() persistence.EntityRepository   { return p.entities }
func (p *Persistence) JourneyRepository() persistence.JourneyRepository { return p.journey }
func (p *Persistence) WebhookConfigRepository() persistence.WebhookConfigRepository {
	return p.webhooks
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
