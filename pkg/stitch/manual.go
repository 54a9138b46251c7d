package stitch

import (
	"context"
	"fmt"

	"github.com/alexfarlander/stitch-run-sub015/pkg/models"
)

// ManualMove relocates an entity at a user's request. Unlike stitching
// relocation, manual moves are strict: the target must exist on the canvas
// and a cross-node move requires a connecting edge.
func (c *Controller) ManualMove(ctx context.Context, entityID, targetNodeID string) (*models.Entity, error) {
	entity, err := c.entities.GetByID(ctx, entityID)
	if err != nil {
		return nil, err
	}

	canvas, err := c.canvasGraph(ctx, entity.CanvasID)
	if err != nil {
		return nil, err
	}

	if _, ok := canvas.NodeByID(targetNodeID); !ok {
		return nil, fmt.Errorf("manual move of entity %s: %w", entityID, ErrTargetNodeNotFound)
	}

	if entity.AtNode() && *entity.CurrentNodeID != targetNodeID {
		if _, ok := canvas.EdgeBetween(*entity.CurrentNodeID, targetNodeID); !ok {
			return nil, fmt.Errorf("manual move of entity %s: %w", entityID, ErrNoConnectingEdge)
		}
	}

	var from string
	if entity.AtNode() {
		from = *entity.CurrentNodeID
	} else {
		from = "unknown"
	}

	entity.PlaceAtNode(targetNodeID)

	if err := c.entities.Update(ctx, entity); err != nil {
		return nil, err
	}

	c.appendJourney(ctx, &models.JourneyEvent{
		EntityID: entity.ID,
		Type:     models.JourneyEventManualMove,
		NodeID:   targetNodeID,
		Metadata: map[string]any{"from": from},
	})
	c.publishMoved(ctx, entity, targetNodeID, "", "manual")

	return entity, nil
}

// CompleteArrival finishes a travel: the animation layer signals that the
// entity reached its destination node.
func (c *Controller) CompleteArrival(ctx context.Context, entityID string) (*models.Entity, error) {
	entity, err := c.entities.GetByID(ctx, entityID)
	if err != nil {
		return nil, err
	}

	if !entity.Traveling() {
		return nil, fmt.Errorf("arrival for entity %s: %w", entityID, ErrEntityNotTraveling)
	}

	edgeID := *entity.CurrentEdgeID
	destination := *entity.DestinationNodeID
	entity.PlaceAtNode(destination)

	if err := c.entities.Update(ctx, entity); err != nil {
		return nil, err
	}

	c.appendJourney(ctx, &models.JourneyEvent{
		EntityID: entity.ID,
		Type:     models.JourneyEventArrival,
		NodeID:   destination,
		EdgeID:   edgeID,
		Metadata: map[string]any{"edge_id": edgeID},
	})
	c.publishMoved(ctx, entity, destination, "", "arrival")

	return entity, nil
}
