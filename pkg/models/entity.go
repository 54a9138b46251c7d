package models

import (
	"errors"
	"time"
)

// ErrInvalidEntityPosition is returned when an entity would end up neither
// at a node nor traveling an edge, or both at once.
var ErrInvalidEntityPosition = errors.New("entity must be either at a node or traveling an edge")

// Entity is an external subject (lead, customer) traversing a UX canvas.
// Exactly one of CurrentNodeID or the edge triple is set at any time.
type Entity struct {
	ID                string         `json:"id"`
	CanvasID          string         `json:"canvas_id"   validate:"required"`
	EntityType        string         `json:"entity_type" validate:"required"`
	CurrentNodeID     *string        `json:"current_node_id,omitempty"`
	CurrentEdgeID     *string        `json:"current_edge_id,omitempty"`
	EdgeProgress      float64        `json:"edge_progress,omitempty"`
	DestinationNodeID *string        `json:"destination_node_id,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// AtNode reports whether the entity is parked at a node.
func (e *Entity) AtNode() bool {
	return e.CurrentNodeID != nil
}

// Traveling reports whether the entity is mid-travel along an edge.
func (e *Entity) Traveling() bool {
	return e.CurrentEdgeID != nil
}

// PlaceAtNode puts the entity at a node, clearing any travel state.
func (e *Entity) PlaceAtNode(nodeID string) {
	e.CurrentNodeID = &nodeID
	e.CurrentEdgeID = nil
	e.EdgeProgress = 0
	e.DestinationNodeID = nil
}

// Travel puts the entity on an edge toward a destination node. Final
// placement is performed later by the arrival signal.
func (e *Entity) Travel(edgeID, destinationNodeID string) {
	e.CurrentNodeID = nil
	e.CurrentEdgeID = &edgeID
	e.EdgeProgress = 0
	e.DestinationNodeID = &destinationNodeID
}

// ValidatePosition checks the one-position-mode invariant.
func (e *Entity) ValidatePosition() error {
	atNode := e.CurrentNodeID != nil
	onEdge := e.CurrentEdgeID != nil

	if atNode == onEdge {
		return ErrInvalidEntityPosition
	}

	if onEdge && e.DestinationNodeID == nil {
		return ErrInvalidEntityPosition
	}

	return nil
}
