// Package events defines the event types published on the run-lifecycle bus.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/alexfarlander/stitch-run-sub015/pkg/models"
)

type EventType string

// Topic is the bus topic all engine events are published on.
const Topic = "stitch.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	RunStartedEvent     EventType = "run.started"
	RunCompletedEvent   EventType = "run.completed"
	NodeActivationEvent EventType = "node.activation"
	NodeCompletedEvent  EventType = "node.completed"
	EntityMovedEvent    EventType = "entity.moved"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"run_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, runID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		RunID:     runID,
	}
}

// RunStarted is published when a run is created and its entry node fired.
type RunStarted struct {
	BaseEvent

	FlowID        string `json:"flow_id"`
	FlowVersionID string `json:"flow_version_id"`
	EntryNodeID   string `json:"entry_node_id"`
}

func (e RunStarted) GetType() EventType {
	return RunStartedEvent
}

// NodeActivation asks a worker to execute one node of a run. The dispatcher
// consumes these; delivery is at-least-once and the callback path is
// idempotent to absorb duplicates.
type NodeActivation struct {
	BaseEvent

	FlowVersionID string         `json:"flow_version_id"`
	NodeID        string         `json:"node_id"`
	NodeType      string         `json:"node_type"`
	Input         map[string]any `json:"input,omitempty"`
}

func (e NodeActivation) GetType() EventType {
	return NodeActivationEvent
}

// NodeCompleted is published after a node outcome has been committed.
type NodeCompleted struct {
	BaseEvent

	NodeID  string            `json:"node_id"`
	Outcome models.Outcome    `json:"outcome"`
	Status  models.NodeStatus `json:"status"`
	Error   string            `json:"error,omitempty"`
}

func (e NodeCompleted) GetType() EventType {
	return NodeCompletedEvent
}

// RunCompleted is published when completion detection reports every node of
// the pinned execution graph terminal.
type RunCompleted struct {
	BaseEvent

	FlowID string                    `json:"flow_id"`
	Stats  map[models.NodeStatus]int `json:"stats,omitempty"`
}

func (e RunCompleted) GetType() EventType {
	return RunCompletedEvent
}

// EntityMoved is published after a stitching or manual relocation.
type EntityMoved struct {
	BaseEvent

	EntityID string `json:"entity_id"`
	NodeID   string `json:"node_id,omitempty"`
	EdgeID   string `json:"edge_id,omitempty"`
	Mode     string `json:"mode"` // travel, teleport, arrival, manual
}

func (e EntityMoved) GetType() EventType {
	return EntityMovedEvent
}
