// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/alexfarlander/stitch-run-sub015/pkg/models"
)

// CreateTestFlow creates a test flow with default values that can be overridden.
func CreateTestFlow(overrides ...func(*models.Flow)) *models.Flow {
	flow := &models.Flow{
		ID:         uuid.New().String(),
		Name:       "Test Flow",
		CanvasType: models.CanvasTypeSystem,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}

	for _, override := range overrides {
		override(flow)
	}

	return flow
}

// WithCanvasType sets the flow canvas type.
func WithCanvasType(canvasType models.CanvasType) func(*models.Flow) {
	return func(f *models.Flow) {
		f.CanvasType = canvasType
	}
}

// WithCurrentVersion points the flow at a version id.
func WithCurrentVersion(versionID string) func(*models.Flow) {
	return func(f *models.Flow) {
		f.CurrentVersionID = versionID
	}
}

// WithParent ties a system flow to the UX node it drills into.
func WithParent(canvasID, nodeID string) func(*models.Flow) {
	return func(f *models.Flow) {
		f.ParentCanvasID = &canvasID
		f.ParentID = &nodeID
	}
}

// LinearGraphs builds matching visual and execution graphs with the nodes
// chained in order: a -> b -> c. Visual edge ids are "<source>-<target>",
// execution node types default to http_call.
func LinearGraphs(nodeIDs ...string) (models.VisualGraph, models.ExecutionGraph) {
	var visual models.VisualGraph

	var execution models.ExecutionGraph

	for i, id := range nodeIDs {
		visual.Nodes = append(visual.Nodes, models.VisualNode{ID: id, Label: id, X: i * 100})
		execution.Nodes = append(execution.Nodes, models.ExecNode{ID: id, Type: models.ExecNodeTypeHTTPCall})

		if i > 0 {
			prev := nodeIDs[i-1]
			visual.Edges = append(visual.Edges, models.VisualEdge{ID: prev + "-" + id, SourceID: prev, TargetID: id})
			execution.Edges = append(execution.Edges, models.ExecEdge{ID: prev + "-" + id, SourceID: prev, TargetID: id})
		}
	}

	if len(nodeIDs) > 0 {
		execution.EntryNodeIDs = []string{nodeIDs[0]}
	}

	return visual, execution
}

// CreateTestVersion creates an immutable version snapshot for a flow with a
// linear three-node graph by default.
func CreateTestVersion(flowID string, overrides ...func(*models.FlowVersion)) *models.FlowVersion {
	visual, execution := LinearGraphs("a", "b", "c")

	version := &models.FlowVersion{
		ID:             uuid.New().String(),
		FlowID:         flowID,
		VisualGraph:    visual,
		ExecutionGraph: execution,
		CreatedAt:      time.Now().UTC(),
	}

	for _, override := range overrides {
		override(version)
	}

	return version
}

// WithGraphs replaces both graphs.
func WithGraphs(visual models.VisualGraph, execution models.ExecutionGraph) func(*models.FlowVersion) {
	return func(v *models.FlowVersion) {
		v.VisualGraph = visual
		v.ExecutionGraph = execution
	}
}

// WithStitchMap sets the version's cross-layer mapping.
func WithStitchMap(stitchMap models.StitchMap) func(*models.FlowVersion) {
	return func(v *models.FlowVersion) {
		v.StitchMap = stitchMap
	}
}

// WithNodeRule attaches a success movement rule to an execution node.
func WithNodeRule(nodeID string, rule *models.MovementRule) func(*models.FlowVersion) {
	return func(v *models.FlowVersion) {
		for i := range v.ExecutionGraph.Nodes {
			if v.ExecutionGraph.Nodes[i].ID == nodeID {
				v.ExecutionGraph.Nodes[i].OnSuccess = rule
			}
		}
	}
}

// CreateTestRun creates a run pinned to a version with every execution node
// pre-seeded pending.
func CreateTestRun(version *models.FlowVersion, overrides ...func(*models.Run)) *models.Run {
	states := make(map[string]models.NodeState, len(version.ExecutionGraph.Nodes))
	for _, node := range version.ExecutionGraph.Nodes {
		states[node.ID] = models.NodeState{Status: models.NodeStatusPending}
	}

	run := &models.Run{
		ID:            uuid.New().String(),
		FlowID:        version.FlowID,
		FlowVersionID: version.ID,
		Trigger:       models.Trigger{Type: models.TriggerTypeManual, At: time.Now().UTC()},
		NodeStates:    states,
		RowVersion:    1,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}

	for _, override := range overrides {
		override(run)
	}

	return run
}

// WithEntity ties the run to an entity.
func WithEntity(entityID string) func(*models.Run) {
	return func(r *models.Run) {
		r.EntityID = &entityID
	}
}

// WithUXContext ties the run to a UX node for spine progression.
func WithUXContext(canvasID, uxNodeID string) func(*models.Run) {
	return func(r *models.Run) {
		r.UXContext = &models.UXContext{CanvasID: canvasID, UXNodeID: uxNodeID}
	}
}

// CreateTestEntity creates an entity parked at a node of a canvas.
func CreateTestEntity(canvasID, nodeID string, overrides ...func(*models.Entity)) *models.Entity {
	entity := &models.Entity{
		ID:         uuid.New().String(),
		CanvasID:   canvasID,
		EntityType: "lead",
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	entity.PlaceAtNode(nodeID)

	for _, override := range overrides {
		override(entity)
	}

	return entity
}
