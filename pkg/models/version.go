package models

import "time"

// VisualNode is a canvas node as drawn: position plus a display label.
type VisualNode struct {
	ID    string `json:"id"    validate:"required"`
	Label string `json:"label"`
	Kind  string `json:"kind"`
	X     int    `json:"x"`
	Y     int    `json:"y"`
}

// VisualEdge connects two visual nodes. Entry edges for webhook triggers are
// looked up here by id.
type VisualEdge struct {
	ID       string `json:"id"        validate:"required"`
	SourceID string `json:"source_id" validate:"required"`
	TargetID string `json:"target_id" validate:"required"`
}

// VisualGraph is the authoring/display representation of a flow.
type VisualGraph struct {
	Nodes []VisualNode `json:"nodes"`
	Edges []VisualEdge `json:"edges"`
}

// NodeByID returns the visual node with the given id.
func (g *VisualGraph) NodeByID(id string) (*VisualNode, bool) {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i], true
		}
	}

	return nil, false
}

// EdgeByID returns the visual edge with the given id.
func (g *VisualGraph) EdgeByID(id string) (*VisualEdge, bool) {
	for i := range g.Edges {
		if g.Edges[i].ID == id {
			return &g.Edges[i], true
		}
	}

	return nil, false
}

// EdgeBetween returns the first edge from source to target, if any.
func (g *VisualGraph) EdgeBetween(sourceID, targetID string) (*VisualEdge, bool) {
	for i := range g.Edges {
		if g.Edges[i].SourceID == sourceID && g.Edges[i].TargetID == targetID {
			return &g.Edges[i], true
		}
	}

	return nil, false
}

// Closed set of execution node types. New behavior is added by adding a
// variant and a worker for it, never by runtime type inspection.
const (
	ExecNodeTypeHTTPCall  = "http_call"
	ExecNodeTypeTransform = "transform"
	ExecNodeTypeListener  = "listener"
)

// MovementRule is an entity-movement action configured on an execution node,
// applied when the node reaches the matching outcome.
type MovementRule struct {
	SetEntityType   *string `json:"set_entity_type,omitempty"`
	TargetSectionID *string `json:"target_section_id,omitempty"` // UX canvas node id
}

// ExecNode is a node of the machine-walked graph.
type ExecNode struct {
	ID        string         `json:"id"   validate:"required"`
	Type      string         `json:"type" validate:"required,oneof=http_call transform listener"`
	Config    map[string]any `json:"config,omitempty"`
	OnSuccess *MovementRule  `json:"on_success,omitempty"`
	OnFailure *MovementRule  `json:"on_failure,omitempty"`
}

// IsListener reports whether the node waits for an external event instead of
// being invoked by the engine.
func (n *ExecNode) IsListener() bool {
	return n.Type == ExecNodeTypeListener
}

// ExecEdge connects two execution nodes.
type ExecEdge struct {
	ID       string `json:"id"        validate:"required"`
	SourceID string `json:"source_id" validate:"required"`
	TargetID string `json:"target_id" validate:"required"`
}

// ExecutionGraph is the runtime representation actually walked by the engine.
type ExecutionGraph struct {
	Nodes        []ExecNode `json:"nodes"`
	Edges        []ExecEdge `json:"edges"`
	EntryNodeIDs []string   `json:"entry_node_ids,omitempty"`
}

// NodeByID returns the execution node with the given id.
func (g *ExecutionGraph) NodeByID(id string) (*ExecNode, bool) {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i], true
		}
	}

	return nil, false
}

// Downstream returns the target node ids of all outgoing edges of nodeID,
// excluding self-loops.
func (g *ExecutionGraph) Downstream(nodeID string) []string {
	var targets []string

	for i := range g.Edges {
		if g.Edges[i].SourceID == nodeID && g.Edges[i].TargetID != nodeID {
			targets = append(targets, g.Edges[i].TargetID)
		}
	}

	return targets
}

// NodeMapping couples a UX node to the system flow that runs on its behalf
// and to the UX node the entity advances to once that flow completes.
type NodeMapping struct {
	SystemFlowID string `json:"system_flow_id,omitempty"`
	NextUXNodeID string `json:"next_ux_node_id,omitempty"`
}

// StitchMap is the explicit cross-layer mapping, keyed by UX node id.
// It is validated at version-creation time, not discovered at runtime.
type StitchMap map[string]NodeMapping

// FlowVersion is an immutable snapshot of a flow's graphs. Edits always
// produce a new version; runs resolve against the version they were pinned
// to at creation, never against the flow's live graph.
type FlowVersion struct {
	ID             string         `json:"id"`
	FlowID         string         `json:"flow_id"`
	VisualGraph    VisualGraph    `json:"visual_graph"`
	ExecutionGraph ExecutionGraph `json:"execution_graph"`
	StitchMap      StitchMap      `json:"stitch_map,omitempty"`
	Message        string         `json:"message,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
