package models

import "time"

// JourneyEventType labels an entry in an entity's append-only history.
type JourneyEventType string

const (
	JourneyEventManualMove       JourneyEventType = "manual_move"
	JourneyEventArrival          JourneyEventType = "arrival"
	JourneyEventSystemTrigger    JourneyEventType = "system_trigger"
	JourneyEventTravel           JourneyEventType = "travel"
	JourneyEventTeleport         JourneyEventType = "teleport"
	JourneyEventEntityTypeChange JourneyEventType = "entity_type_change"
	JourneyEventJourneyCompleted JourneyEventType = "journey_completed"
)

// JourneyEvent is one immutable log entry for an entity. Events are never
// updated or deleted; an entity's full history is reconstructed from them.
type JourneyEvent struct {
	ID        string           `json:"id"`
	EntityID  string           `json:"entity_id"`
	Type      JourneyEventType `json:"type"`
	NodeID    string           `json:"node_id,omitempty"`
	EdgeID    string           `json:"edge_id,omitempty"`
	Progress  float64          `json:"progress,omitempty"`
	Metadata  map[string]any   `json:"metadata,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}
