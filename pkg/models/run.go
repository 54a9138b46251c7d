package models

import "time"

// NodeStatus is the per-node execution state inside a run.
type NodeStatus string

const (
	NodeStatusPending        NodeStatus = "pending"
	NodeStatusRunning        NodeStatus = "running"
	NodeStatusCompleted      NodeStatus = "completed"
	NodeStatusFailed         NodeStatus = "failed"
	NodeStatusWaitingForUser NodeStatus = "waiting_for_user"
)

// IsTerminal reports whether no further automatic transition occurs for a
// node in this status without an external event.
func (s NodeStatus) IsTerminal() bool {
	switch s {
	case NodeStatusCompleted, NodeStatusFailed, NodeStatusWaitingForUser:
		return true
	case NodeStatusPending, NodeStatusRunning:
		return false
	}

	return false
}

// Outcome is what a worker (or an external callback) reports for a node.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Status returns the terminal node status an outcome maps to.
func (o Outcome) Status() NodeStatus {
	if o == OutcomeSuccess {
		return NodeStatusCompleted
	}

	return NodeStatusFailed
}

// NodeState records one node's progress within a run.
type NodeState struct {
	Status     NodeStatus     `json:"status"`
	Output     map[string]any `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
	FiredAt    *time.Time     `json:"fired_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

// TriggerType describes what caused a run to be created.
type TriggerType string

const (
	TriggerTypeWebhook TriggerType = "webhook"
	TriggerTypeManual  TriggerType = "manual"
	TriggerTypeStitch  TriggerType = "stitch" // auto-started by UX spine progression
)

// Trigger is the descriptor of the event that created a run.
type Trigger struct {
	Type   TriggerType `json:"type"`
	Source string      `json:"source,omitempty"`
	At     time.Time   `json:"at"`
}

// UXContext ties a system-flow run to the UX node it was started on behalf
// of. Spine progression only happens when a run carries this context.
type UXContext struct {
	CanvasID string `json:"canvas_id"`
	UXNodeID string `json:"ux_node_id"`
}

// Run is one execution of a pinned flow version. The node-state map is the
// single shared mutable resource per run; RowVersion is the token for
// conditional updates against the store.
type Run struct {
	ID            string               `json:"id"`
	FlowID        string               `json:"flow_id"`
	FlowVersionID string               `json:"flow_version_id"`
	EntityID      *string              `json:"entity_id,omitempty"`
	Trigger       Trigger              `json:"trigger"`
	UXContext     *UXContext           `json:"ux_context,omitempty"`
	Input         map[string]any       `json:"input,omitempty"`
	NodeStates    map[string]NodeState `json:"node_states"`
	RowVersion    int64                `json:"row_version"`
	// CompletedAt is written exactly once, when completion is first
	// detected. Completion side effects key off this marker, so a listener
	// resolved after the run already completed does not replay them.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// NodeState returns the recorded state for a node id, defaulting to pending
// when the node has not been reached yet.
func (r *Run) NodeState(nodeID string) NodeState {
	if state, ok := r.NodeStates[nodeID]; ok {
		return state
	}

	return NodeState{Status: NodeStatusPending}
}
