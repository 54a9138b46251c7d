// Package stitch couples system-flow execution to the UX canvas: per-node
// entity movement, UX spine progression on full completion, manual moves,
// and arrival handling.
package stitch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alexfarlander/stitch-run-sub015/pkg/eventbus"
	"github.com/alexfarlander/stitch-run-sub015/pkg/events"
	"github.com/alexfarlander/stitch-run-sub015/pkg/models"
	"github.com/alexfarlander/stitch-run-sub015/pkg/persistence"
)

var (
	// ErrTargetNodeNotFound indicates a move target that is not a node of
	// the entity's canvas.
	ErrTargetNodeNotFound = errors.New("target node not found in canvas")

	// ErrNoConnectingEdge indicates a manual cross-node move without a
	// connecting edge on the canvas.
	ErrNoConnectingEdge = errors.New("no connecting edge between nodes")

	// ErrEntityNotTraveling indicates an arrival signal for an entity that
	// is not mid-travel.
	ErrEntityNotTraveling = errors.New("entity is not traveling an edge")
)

// RunStarter creates and starts a run for a flow's current version. The run
// manager implements this; the indirection keeps stitch from depending on
// the engine package.
type RunStarter interface {
	StartFlow(ctx context.Context, flowID string, trigger models.Trigger, entityID *string, uxCtx *models.UXContext, input map[string]any) (*models.Run, error)
}

// Controller performs all entity movement and cross-layer progression.
// Every public method that runs on the callback path is best-effort: the
// run manager logs returned errors and never fails the triggering callback.
type Controller struct {
	flows     persistence.FlowRepository
	versions  persistence.VersionRepository
	entities  persistence.EntityRepository
	journeys  persistence.JourneyRepository
	publisher eventbus.EventPublisher
	starter   RunStarter
	logger    *slog.Logger
}

func NewController(store persistence.Persistence, publisher eventbus.EventPublisher, logger *slog.Logger) *Controller {
	return &Controller{
		flows:     store.FlowRepository(),
		versions:  store.VersionRepository(),
		entities:  store.EntityRepository(),
		journeys:  store.JourneyRepository(),
		publisher: publisher,
		logger:    logger.With("module", "stitch"),
	}
}

// SetRunStarter wires the run manager in after construction; the manager
// itself holds this controller.
func (c *Controller) SetRunStarter(starter RunStarter) {
	c.starter = starter
}

// ApplyNodeMovement applies the movement rule configured on a node for the
// outcome that just occurred. Missing rule or missing entity is a no-op.
func (c *Controller) ApplyNodeMovement(ctx context.Context, run *models.Run, node *models.ExecNode, outcome models.Outcome) error {
	var rule *models.MovementRule
	if outcome == models.OutcomeSuccess {
		rule = node.OnSuccess
	} else {
		rule = node.OnFailure
	}

	if rule == nil || run.EntityID == nil {
		return nil
	}

	entity, err := c.entities.GetByID(ctx, *run.EntityID)
	if err != nil {
		return fmt.Errorf("movement for node %s: %w", node.ID, err)
	}

	if rule.SetEntityType != nil && *rule.SetEntityType != entity.EntityType {
		previous := entity.EntityType
		entity.EntityType = *rule.SetEntityType

		if err := c.entities.Update(ctx, entity); err != nil {
			return fmt.Errorf("entity type change for node %s: %w", node.ID, err)
		}

		c.appendJourney(ctx, &models.JourneyEvent{
			EntityID: entity.ID,
			Type:     models.JourneyEventEntityTypeChange,
			Metadata: map[string]any{
				"from":    previous,
				"to":      entity.EntityType,
				"run_id":  run.ID,
				"node_id": node.ID,
			},
		})
	}

	if rule.TargetSectionID == nil {
		return nil
	}

	return c.relocate(ctx, entity, *rule.TargetSectionID, map[string]any{
		"run_id":  run.ID,
		"node_id": node.ID,
		"outcome": string(outcome),
	})
}

// relocate moves an entity toward a UX node: travel when a canvas edge
// connects the current node to the target, teleport otherwise. An entity
// without a current node degrades to teleport with from=unknown.
func (c *Controller) relocate(ctx context.Context, entity *models.Entity, targetNodeID string, metadata map[string]any) error {
	canvas, err := c.canvasGraph(ctx, entity.CanvasID)
	if err != nil {
		return err
	}

	if _, ok := canvas.NodeByID(targetNodeID); !ok {
		return fmt.Errorf("relocate entity %s: %w", entity.ID, ErrTargetNodeNotFound)
	}

	if entity.AtNode() {
		from := *entity.CurrentNodeID

		if edge, ok := canvas.EdgeBetween(from, targetNodeID); ok {
			entity.Travel(edge.ID, targetNodeID)

			if err := c.entities.Update(ctx, entity); err != nil {
				return err
			}

			metadata["from"] = from
			c.appendJourney(ctx, &models.JourneyEvent{
				EntityID: entity.ID,
				Type:     models.JourneyEventTravel,
				EdgeID:   edge.ID,
				NodeID:   targetNodeID,
				Metadata: metadata,
			})
			c.publishMoved(ctx, entity, "", edge.ID, "travel")

			return nil
		}

		metadata["from"] = from
	} else {
		metadata["from"] = "unknown"
	}

	entity.PlaceAtNode(targetNodeID)

	if err := c.entities.Update(ctx, entity); err != nil {
		return err
	}

	c.appendJourney(ctx, &models.JourneyEvent{
		EntityID: entity.ID,
		Type:     models.JourneyEventTeleport,
		NodeID:   targetNodeID,
		Metadata: metadata,
	})
	c.publishMoved(ctx, entity, targetNodeID, "", "teleport")

	return nil
}

// ProgressSpine advances the entity on the parent UX canvas after full
// system-path completion and auto-starts the next mapped system flow.
// Callers invoke it only for runs carrying both UX context and an entity.
func (c *Controller) ProgressSpine(ctx context.Context, run *models.Run) error {
	if run.UXContext == nil || run.EntityID == nil {
		return nil
	}

	canvasFlow, err := c.flows.GetByID(ctx, run.UXContext.CanvasID)
	if err != nil {
		return fmt.Errorf("spine progression for run %s: %w", run.ID, err)
	}

	version, err := c.versions.GetByID(ctx, canvasFlow.CurrentVersionID)
	if err != nil {
		return fmt.Errorf("spine progression for run %s: %w", run.ID, err)
	}

	entity, err := c.entities.GetByID(ctx, *run.EntityID)
	if err != nil {
		return fmt.Errorf("spine progression for run %s: %w", run.ID, err)
	}

	mapping := version.StitchMap[run.UXContext.UXNodeID]
	if mapping.NextUXNodeID == "" {
		// End of journey: terminal UX node, no new run.
		now := time.Now().UTC()
		entity.CompletedAt = &now

		if err := c.entities.Update(ctx, entity); err != nil {
			return fmt.Errorf("journey completion for entity %s: %w", entity.ID, err)
		}

		c.appendJourney(ctx, &models.JourneyEvent{
			EntityID: entity.ID,
			Type:     models.JourneyEventJourneyCompleted,
			NodeID:   run.UXContext.UXNodeID,
			Metadata: map[string]any{"run_id": run.ID},
		})

		c.logger.InfoContext(ctx, "Entity journey completed",
			"entity_id", entity.ID,
			"ux_node_id", run.UXContext.UXNodeID)

		return nil
	}

	if err := c.relocate(ctx, entity, mapping.NextUXNodeID, map[string]any{
		"run_id": run.ID,
		"reason": "spine_progression",
	}); err != nil {
		return err
	}

	nextMapping := version.StitchMap[mapping.NextUXNodeID]
	if nextMapping.SystemFlowID == "" || c.starter == nil {
		return nil
	}

	nextRun, err := c.starter.StartFlow(ctx,
		nextMapping.SystemFlowID,
		models.Trigger{Type: models.TriggerTypeStitch, Source: run.ID, At: time.Now().UTC()},
		run.EntityID,
		&models.UXContext{CanvasID: canvasFlow.ID, UXNodeID: mapping.NextUXNodeID},
		run.Input,
	)
	if err != nil {
		return fmt.Errorf("auto-start of flow %s: %w", nextMapping.SystemFlowID, err)
	}

	c.appendJourney(ctx, &models.JourneyEvent{
		EntityID: entity.ID,
		Type:     models.JourneyEventSystemTrigger,
		NodeID:   mapping.NextUXNodeID,
		Metadata: map[string]any{
			"run_id":         nextRun.ID,
			"system_flow_id": nextMapping.SystemFlowID,
			"triggered_by":   run.ID,
		},
	})

	return nil
}

// canvasGraph loads the visual graph of a UX canvas flow's current version.
func (c *Controller) canvasGraph(ctx context.Context, canvasID string) (*models.VisualGraph, error) {
	flow, err := c.flows.GetByID(ctx, canvasID)
	if err != nil {
		return nil, err
	}

	version, err := c.versions.GetByID(ctx, flow.CurrentVersionID)
	if err != nil {
		return nil, err
	}

	return &version.VisualGraph, nil
}

// appendJourney writes a journey event; the log is best-effort relative to
// the movement that already committed.
func (c *Controller) appendJourney(ctx context.Context, event *models.JourneyEvent) {
	event.ID = uuid.New().String()
	event.CreatedAt = time.Now().UTC()

	if err := c.journeys.Append(ctx, event); err != nil {
		c.logger.ErrorContext(ctx, "Failed to append journey event",
			"entity_id", event.EntityID,
			"type", string(event.Type),
			"error", err)
	}
}

func (c *Controller) publishMoved(ctx context.Context, entity *models.Entity, nodeID, edgeID, mode string) {
	if c.publisher == nil {
		return
	}

	event := events.EntityMoved{
		BaseEvent: events.NewBaseEvent(events.EntityMovedEvent, ""),
		EntityID:  entity.ID,
		NodeID:    nodeID,
		EdgeID:    edgeID,
		Mode:      mode,
	}

	if err := c.publisher.Publish(ctx, entity.ID, event); err != nil {
		c.logger.ErrorContext(ctx, "Failed to publish entity moved event",
			"entity_id", entity.ID,
			"error", err)
	}
}
