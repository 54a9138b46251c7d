// Package models defines the core domain models for canvas flows, versioned
// graphs, runs, and entity journeys.
package models

import "time"

// CanvasType distinguishes the two graph layers.
type CanvasType string

const (
	// CanvasTypeUX is the business-process canvas an entity moves through.
	CanvasTypeUX CanvasType = "ux_canvas"
	// CanvasTypeSystem is an automation workflow run per UX node.
	CanvasTypeSystem CanvasType = "system_workflow"
)

// Flow is a named graph container. The graphs themselves live on immutable
// FlowVersion snapshots; CurrentVersionID points at the latest one.
type Flow struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"        validate:"required,min=3"`
	CanvasType       CanvasType `json:"canvas_type" validate:"required,oneof=ux_canvas system_workflow"`
	ParentCanvasID   *string    `json:"parent_canvas_id,omitempty"` // UX canvas owning ParentID
	ParentID         *string    `json:"parent_id,omitempty"`        // UX node this system flow drills into
	CurrentVersionID string     `json:"current_version_id"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (f *Flow) IsUXCanvas() bool {
	return f.CanvasType == CanvasTypeUX
}

func (f *Flow) IsSystemWorkflow() bool {
	return f.CanvasType == CanvasTypeSystem
}
