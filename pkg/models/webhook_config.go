package models

import "time"

// WebhookConfig maps an inbound webhook key to a flow and the version runs
// are pinned to. VersionID is captured when the config is created; later
// edits to the flow never change what an existing config executes.
type WebhookConfig struct {
	Key           string         `json:"key"           validate:"required"`
	FlowID        string         `json:"flow_id"       validate:"required"`
	VersionID     string         `json:"version_id"`
	EntryEdgeID   string         `json:"entry_edge_id" validate:"required"`
	Secret        string         `json:"secret,omitempty"`
	PayloadSchema map[string]any `json:"payload_schema,omitempty"`
	Active        bool           `json:"active"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}
