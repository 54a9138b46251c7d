// Package persistence provides the storage abstraction for flows, versions,
// runs, entities, and journey events.
package persistence

import (
	"context"

	"github.com/alexfarlander/stitch-run-sub015/pkg/models"
)

// FlowRepository stores mutable flow records.
type FlowRepository interface {
	Save(ctx context.Context, flow *models.Flow) error
	GetByID(ctx context.Context, id string) (*models.Flow, error)
	GetAll(ctx context.Context) ([]*models.Flow, error)
}

// VersionRepository stores immutable flow-version snapshots. Create is the
// only write: versions are never updated or deleted.
type VersionRepository interface {
	Create(ctx context.Context, version *models.FlowVersion) error
	GetByID(ctx context.Context, id string) (*models.FlowVersion, error)
}

// RunRepository stores run records. UpdateNodeStates is a conditional write:
// it applies the given node-state map only when the stored row version still
// matches expectedRowVersion, and returns ErrRunConcurrentUpdate otherwise.
// The store is the source of truth for run state; callers must re-read and
// retry on conflict instead of writing from a stale in-memory copy.
type RunRepository interface {
	Create(ctx context.Context, run *models.Run) error
	GetByID(ctx context.Context, id string) (*models.Run, error)
	UpdateNodeStates(ctx context.Context, runID string, expectedRowVersion int64, states map[string]models.NodeState) (*models.Run, error)
	// MarkCompleted sets the run's completion timestamp exactly once and
	// returns ErrRunAlreadyCompleted on every later attempt. Callers use it
	// to claim the completion side effects for a run.
	MarkCompleted(ctx context.Context, runID string) (*models.Run, error)
}

// EntityRepository stores entities. The stored row is authoritative for
// position fields at write time; last write wins on a race between a manual
// move and an in-flight stitching relocation.
type EntityRepository interface {
	Save(ctx context.Context, entity *models.Entity) error
	GetByID(ctx context.Context, id string) (*models.Entity, error)
	Update(ctx context.Context, entity *models.Entity) error
}

// JourneyRepository is an append-only log of entity journey events.
type JourneyRepository interface {
	Append(ctx context.Context, event *models.JourneyEvent) error
	GetByEntity(ctx context.Context, entityID string) ([]*models.JourneyEvent, error)
}

// WebhookConfigRepository stores webhook configurations keyed by lookup key.
type WebhookConfigRepository interface {
	Save(ctx context.Context, config *models.WebhookConfig) error
	GetByKey(ctx context.Context, key string) (*models.WebhookConfig, error)
}

// Persistence aggregates the repositories of one storage backend.
type Persistence interface {
	FlowRepository() FlowRepository
	VersionRepository() VersionRepository
	RunRepository() RunRepository
	EntityRepository() EntityRepository
	JourneyRepository() JourneyRepository
	WebhookConfigRepository() WebhookConfigRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
