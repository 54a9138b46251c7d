package run

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexfarlander/stitch-run-sub015/pkg/models"
	"github.com/alexfarlander/stitch-run-sub015/pkg/persistence/file"
	"github.com/alexfarlander/stitch-run-sub015/pkg/stitch"
	"github.com/alexfarlander/stitch-run-sub015/pkg/testutil"
)

func newTestManager(t *testing.T) (*file.Persistence, *Manager) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := file.NewPersistence(t.TempDir())
	stitcher := stitch.NewController(store, nil, logger)

	return store, NewManager(store, stitcher, nil, logger)
}

func seedFlow(t *testing.T, store *file.Persistence, flow *models.Flow, version *models.FlowVersion) {
	t.Helper()

	require.NoError(t, store.VersionRepository().Create(t.Context(), version))
	flow.CurrentVersionID = version.ID
	require.NoError(t, store.FlowRepository().Save(t.Context(), flow))
}

func TestManager_CreateRun(t *testing.T) {
	store, manager := newTestManager(t)

	flow := testutil.CreateTestFlow()
	version := testutil.CreateTestVersion(flow.ID)
	seedFlow(t, store, flow, version)

	t.Run("pre-seeds every node pending", func(t *testing.T) {
		run, err := manager.CreateRun(t.Context(), flow.ID, version.ID, ManualTrigger("test"), nil, nil, nil)
		require.NoError(t, err)

		assert.Equal(t, version.ID, run.FlowVersionID)
		assert.Len(t, run.NodeStates, 3)

		for _, id := range []string{"a", "b", "c"} {
			assert.Equal(t, models.NodeStatusPending, run.NodeStates[id].Status)
		}
	})

	t.Run("rejects a version of another flow", func(t *testing.T) {
		other := testutil.CreateTestFlow()
		otherVersion := testutil.CreateTestVersion(other.ID)
		seedFlow(t, store, other, otherVersion)

		_, err := manager.CreateRun(t.Context(), flow.ID, otherVersion.ID, ManualTrigger("test"), nil, nil, nil)
		assert.ErrorIs(t, err, ErrVersionMismatch)
	})
}

func TestManager_LinearRunToCompletion(t *testing.T) {
	store, manager := newTestManager(t)

	flow := testutil.CreateTestFlow()
	version := testutil.CreateTestVersion(flow.ID)
	seedFlow(t, store, flow, version)

	run, err := manager.Launch(t.Context(), flow, version, ManualTrigger("test"), nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, models.NodeStatusRunning, run.NodeStates["a"].Status)
	assert.Equal(t, models.NodeStatusPending, run.NodeStates["b"].Status)

	run, err = manager.ReportNodeOutcome(t.Context(), run.ID, "a", models.OutcomeSuccess, nil, "")
	require.NoError(t, err)
	assert.Equal(t, models.NodeStatusCompleted, run.NodeStates["a"].Status)
	assert.Equal(t, models.NodeStatusRunning, run.NodeStates["b"].Status)

	run, err = manager.ReportNodeOutcome(t.Context(), run.ID, "b", models.OutcomeSuccess, nil, "")
	require.NoError(t, err)
	assert.Equal(t, models.NodeStatusRunning, run.NodeStates["c"].Status)

	run, err = manager.ReportNodeOutcome(t.Context(), run.ID, "c", models.OutcomeSuccess, map[string]any{"done": true}, "")
	require.NoError(t, err)

	for _, id := range []string{"a", "b", "c"} {
		assert.Equal(t, models.NodeStatusCompleted, run.NodeStates[id].Status)
	}

	// The store reflects the same terminal state.
	stored, err := manager.Get(t.Context(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.NodeStatusCompleted, stored.NodeStates["c"].Status)
}

func TestManager_FailureStopsDownstream(t *testing.T) {
	store, manager := newTestManager(t)

	flow := testutil.CreateTestFlow()
	version := testutil.CreateTestVersion(flow.ID)
	seedFlow(t, store, flow, version)

	run, err := manager.Launch(t.Context(), flow, version, ManualTrigger("test"), nil, nil, nil)
	require.NoError(t, err)

	run, err = manager.ReportNodeOutcome(t.Context(), run.ID, "a", models.OutcomeFailure, nil, "upstream unreachable")
	require.NoError(t, err)

	assert.Equal(t, models.NodeStatusFailed, run.NodeStates["a"].Status)
	assert.Equal(t, "upstream unreachable", run.NodeStates["a"].Error)
	assert.Equal(t, models.NodeStatusPending, run.NodeStates["b"].Status)
	assert.Equal(t, models.NodeStatusPending, run.NodeStates["c"].Status)
}

func TestManager_DuplicateCallbackIsIdempotent(t *testing.T) {
	store, manager := newTestManager(t)

	flow := testutil.CreateTestFlow()
	version := testutil.CreateTestVersion(flow.ID)
	seedFlow(t, store, flow, version)

	run, err := manager.Launch(t.Context(), flow, version, ManualTrigger("test"), nil, nil, nil)
	require.NoError(t, err)

	first, err := manager.ReportNodeOutcome(t.Context(), run.ID, "a", models.OutcomeSuccess, nil, "")
	require.NoError(t, err)

	second, err := manager.ReportNodeOutcome(t.Context(), run.ID, "a", models.OutcomeSuccess, nil, "")
	require.NoError(t, err)

	assert.Equal(t, first.NodeStates["a"], second.NodeStates["a"])
	assert.Equal(t, models.NodeStatusRunning, second.NodeStates["b"].Status)
}

func TestManager_ConflictingCallbackIsRejected(t *testing.T) {
	store, manager := newTestManager(t)

	flow := testutil.CreateTestFlow()
	version := testutil.CreateTestVersion(flow.ID)
	seedFlow(t, store, flow, version)

	run, err := manager.Launch(t.Context(), flow, version, ManualTrigger("test"), nil, nil, nil)
	require.NoError(t, err)

	_, err = manager.ReportNodeOutcome(t.Context(), run.ID, "a", models.OutcomeSuccess, nil, "")
	require.NoError(t, err)

	after, err := manager.ReportNodeOutcome(t.Context(), run.ID, "a", models.OutcomeFailure, nil, "late failure")
	require.NoError(t, err)

	assert.Equal(t, models.NodeStatusCompleted, after.NodeStates["a"].Status)
	assert.Empty(t, after.NodeStates["a"].Error)
}

func TestManager_FireNodesSkipsTerminal(t *testing.T) {
	store, manager := newTestManager(t)

	flow := testutil.CreateTestFlow()
	version := testutil.CreateTestVersion(flow.ID)
	seedFlow(t, store, flow, version)

	run, err := manager.Launch(t.Context(), flow, version, ManualTrigger("test"), nil, nil, nil)
	require.NoError(t, err)

	_, err = manager.ReportNodeOutcome(t.Context(), run.ID, "a", models.OutcomeSuccess, nil, "")
	require.NoError(t, err)

	refired, err := manager.FireNodes(t.Context(), run.ID, "a", "b")
	require.NoError(t, err)

	assert.Equal(t, models.NodeStatusCompleted, refired.NodeStates["a"].Status)
	assert.Equal(t, models.NodeStatusRunning, refired.NodeStates["b"].Status)
}

func TestManager_RunPinnedToVersionSurvivesNewVersions(t *testing.T) {
	store, manager := newTestManager(t)

	flow := testutil.CreateTestFlow()
	version := testutil.CreateTestVersion(flow.ID)
	seedFlow(t, store, flow, version)

	run, err := manager.Launch(t.Context(), flow, version, ManualTrigger("test"), nil, nil, nil)
	require.NoError(t, err)

	// A new current version appears mid-run; the run keeps walking the
	// graph it was pinned to.
	visual, execution := testutil.LinearGraphs("x", "y")
	newer := testutil.CreateTestVersion(flow.ID, testutil.WithGraphs(visual, execution))
	seedFlow(t, store, flow, newer)

	run, err = manager.ReportNodeOutcome(t.Context(), run.ID, "a", models.OutcomeSuccess, nil, "")
	require.NoError(t, err)

	assert.Equal(t, version.ID, run.FlowVersionID)
	assert.Equal(t, models.NodeStatusRunning, run.NodeStates["b"].Status)
	assert.NotContains(t, run.NodeStates, "x")
}

func TestManager_MovementRuleTeleportsEntity(t *testing.T) {
	store, manager := newTestManager(t)

	// UX canvas with two unconnected sections: movement degrades to teleport.
	canvas := testutil.CreateTestFlow(testutil.WithCanvasType(models.CanvasTypeUX))
	canvasVersion := testutil.CreateTestVersion(canvas.ID, testutil.WithGraphs(
		models.VisualGraph{Nodes: []models.VisualNode{{ID: "s1"}, {ID: "s2"}}},
		models.ExecutionGraph{},
	))
	seedFlow(t, store, canvas, canvasVersion)

	entity := testutil.CreateTestEntity(canvas.ID, "s1")
	require.NoError(t, store.EntityRepository().Save(t.Context(), entity))

	target := "s2"
	customer := "customer"
	flow := testutil.CreateTestFlow()
	version := testutil.CreateTestVersion(flow.ID, testutil.WithNodeRule("c", &models.MovementRule{
		SetEntityType:   &customer,
		TargetSectionID: &target,
	}))
	seedFlow(t, store, flow, version)

	run, err := manager.Launch(t.Context(), flow, version, ManualTrigger("test"), &entity.ID, nil, nil)
	require.NoError(t, err)

	for _, node := range []string{"a", "b", "c"} {
		run, err = manager.ReportNodeOutcome(t.Context(), run.ID, node, models.OutcomeSuccess, nil, "")
		require.NoError(t, err)
	}

	moved, err := store.EntityRepository().GetByID(t.Context(), entity.ID)
	require.NoError(t, err)
	assert.Equal(t, "customer", moved.EntityType)
	require.NotNil(t, moved.CurrentNodeID)
	assert.Equal(t, "s2", *moved.CurrentNodeID)

	journey, err := store.JourneyRepository().GetByEntity(t.Context(), entity.ID)
	require.NoError(t, err)

	types := make([]models.JourneyEventType, 0, len(journey))
	for _, event := range journey {
		types = append(types, event.Type)
	}

	assert.Contains(t, types, models.JourneyEventEntityTypeChange)
	assert.Contains(t, types, models.JourneyEventTeleport)
}

// countingStarter records auto-started flow ids without running anything.
type countingStarter struct {
	started []string
}

func (s *countingStarter) StartFlow(_ context.Context, flowID string, _ models.Trigger, _ *string, _ *models.UXContext, _ map[string]any) (*models.Run, error) {
	s.started = append(s.started, flowID)

	return &models.Run{ID: "auto-" + flowID}, nil
}

func TestManager_ListenerResolutionDoesNotReplayCompletion(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := file.NewPersistence(t.TempDir())
	stitcher := stitch.NewController(store, nil, logger)
	manager := NewManager(store, stitcher, nil, logger)

	starter := &countingStarter{}
	stitcher.SetRunStarter(starter)

	canvas := testutil.CreateTestFlow(testutil.WithCanvasType(models.CanvasTypeUX))
	canvasVersion := testutil.CreateTestVersion(canvas.ID,
		testutil.WithGraphs(
			models.VisualGraph{
				Nodes: []models.VisualNode{{ID: "s1"}, {ID: "s2"}},
				Edges: []models.VisualEdge{{ID: "s1-s2", SourceID: "s1", TargetID: "s2"}},
			},
			models.ExecutionGraph{},
		),
		testutil.WithStitchMap(models.StitchMap{
			"s1": {NextUXNodeID: "s2"},
			"s2": {SystemFlowID: "flow-next"},
		}),
	)
	seedFlow(t, store, canvas, canvasVersion)

	entity := testutil.CreateTestEntity(canvas.ID, "s1")
	require.NoError(t, store.EntityRepository().Save(t.Context(), entity))

	// System flow a -> l where l only parks until an external callback.
	flow := testutil.CreateTestFlow()
	visual, execution := testutil.LinearGraphs("a", "l")
	execution.Nodes[1].Type = models.ExecNodeTypeListener
	version := testutil.CreateTestVersion(flow.ID, testutil.WithGraphs(visual, execution))
	seedFlow(t, store, flow, version)

	launched, err := manager.Launch(t.Context(), flow, version, ManualTrigger("test"),
		&entity.ID, &models.UXContext{CanvasID: canvas.ID, UXNodeID: "s1"}, nil)
	require.NoError(t, err)

	// The listener parks terminal, so this callback completes the run and
	// progression auto-starts the mapped flow once.
	_, err = manager.ReportNodeOutcome(t.Context(), launched.ID, "a", models.OutcomeSuccess, nil, "")
	require.NoError(t, err)

	completed, err := manager.Get(t.Context(), launched.ID)
	require.NoError(t, err)
	require.NotNil(t, completed.CompletedAt)
	assert.Equal(t, []string{"flow-next"}, starter.started)

	// Resolving the listener reaches the complete state again; the claimed
	// marker keeps the side effects from replaying.
	_, err = manager.ReportNodeOutcome(t.Context(), launched.ID, "l", models.OutcomeSuccess, nil, "")
	require.NoError(t, err)

	assert.Equal(t, []string{"flow-next"}, starter.started)

	journey, err := store.JourneyRepository().GetByEntity(t.Context(), entity.ID)
	require.NoError(t, err)

	moves := 0
	for _, event := range journey {
		if event.Type == models.JourneyEventTravel || event.Type == models.JourneyEventTeleport {
			moves++
		}
	}

	assert.Equal(t, 1, moves)
}
