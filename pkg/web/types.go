// Package web provides HTTP request and response types for the engine API.
package web

import "github.com/alexfarlander/stitch-run-sub015/pkg/models"

// CreateFlowRequest creates a flow container. System workflows may name the
// UX node they drill into; the node must exist on the given canvas.
type CreateFlowRequest struct {
	Name           string  `json:"name"             validate:"required,min=3"`
	CanvasType     string  `json:"canvas_type"      validate:"required,oneof=ux_canvas system_workflow"`
	ParentCanvasID *string `json:"parent_canvas_id,omitempty"`
	ParentID       *string `json:"parent_id,omitempty"`
}

// CreateVersionRequest snapshots new graphs for a flow.
type CreateVersionRequest struct {
	VisualGraph    models.VisualGraph    `json:"visual_graph"`
	ExecutionGraph models.ExecutionGraph `json:"execution_graph"`
	StitchMap      models.StitchMap      `json:"stitch_map,omitempty"`
	Message        string                `json:"message,omitempty"`
}

// CreateRunRequest starts a run from a flow's current version. A visual
// graph override is diffed against the current version and auto-versioned
// before the run is pinned.
type CreateRunRequest struct {
	FlowID      string              `json:"flow_id" validate:"required"`
	EntityID    *string             `json:"entity_id,omitempty"`
	UXContext   *models.UXContext   `json:"ux_context,omitempty"`
	Input       map[string]any      `json:"input,omitempty"`
	Override    *models.VisualGraph `json:"visual_graph_override,omitempty"`
	Description string              `json:"description,omitempty"`
}

// NodeCallbackRequest reports a node outcome.
type NodeCallbackRequest struct {
	Outcome string         `json:"outcome" validate:"required,oneof=success failure"`
	Output  map[string]any `json:"output,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// CreateWebhookConfigRequest registers a webhook lookup key for a flow. The
// flow's current version is pinned onto the config at this moment.
type CreateWebhookConfigRequest struct {
	Key           string         `json:"key"           validate:"required,min=3"`
	FlowID        string         `json:"flow_id"       validate:"required"`
	EntryEdgeID   string         `json:"entry_edge_id" validate:"required"`
	Secret        string         `json:"secret,omitempty"`
	PayloadSchema map[string]any `json:"payload_schema,omitempty"`
}

// CreateEntityRequest seeds an entity at a node of a UX canvas.
type CreateEntityRequest struct {
	CanvasID   string         `json:"canvas_id"   validate:"required"`
	EntityType string         `json:"entity_type" validate:"required"`
	NodeID     string         `json:"node_id"     validate:"required"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// MoveEntityRequest relocates an entity manually.
type MoveEntityRequest struct {
	TargetNodeID string `json:"target_node_id" validate:"required"`
}

// RunStatusResponse is the run snapshot returned by run endpoints,
// augmented with advisory per-status counts.
type RunStatusResponse struct {
	Run      *models.Run               `json:"run"`
	Stats    map[models.NodeStatus]int `json:"stats"`
	Complete bool                      `json:"complete"`
}
