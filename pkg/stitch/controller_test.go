package stitch

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexfarlander/stitch-run-sub015/pkg/models"
	"github.com/alexfarlander/stitch-run-sub015/pkg/persistence/file"
	"github.com/alexfarlander/stitch-run-sub015/pkg/testutil"
)

type fakeStarter struct {
	started []string
	run     *models.Run
}

func (f *fakeStarter) StartFlow(_ context.Context, flowID string, trigger models.Trigger, entityID *string, uxCtx *models.UXContext, _ map[string]any) (*models.Run, error) {
	f.started = append(f.started, flowID)

	run := &models.Run{ID: "started-run", FlowID: flowID, Trigger: trigger, EntityID: entityID, UXContext: uxCtx}
	f.run = run

	return run, nil
}

func newTestController(t *testing.T) (*file.Persistence, *Controller) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := file.NewPersistence(t.TempDir())

	return store, NewController(store, nil, logger)
}

// seedCanvas stores a UX canvas whose visual graph has sections s1 -> s2
// connected by an edge, and s3 disconnected.
func seedCanvas(t *testing.T, store *file.Persistence, stitchMap models.StitchMap) *models.Flow {
	t.Helper()

	canvas := testutil.CreateTestFlow(testutil.WithCanvasType(models.CanvasTypeUX))
	version := testutil.CreateTestVersion(canvas.ID,
		testutil.WithGraphs(
			models.VisualGraph{
				Nodes: []models.VisualNode{{ID: "s1"}, {ID: "s2"}, {ID: "s3"}},
				Edges: []models.VisualEdge{{ID: "s1-s2", SourceID: "s1", TargetID: "s2"}},
			},
			models.ExecutionGraph{},
		),
		testutil.WithStitchMap(stitchMap),
	)
	require.NoError(t, store.VersionRepository().Create(t.Context(), version))

	canvas.CurrentVersionID = version.ID
	require.NoError(t, store.FlowRepository().Save(t.Context(), canvas))

	return canvas
}

func TestController_ManualMove(t *testing.T) {
	store, controller := newTestController(t)
	canvas := seedCanvas(t, store, nil)

	t.Run("moves along a connecting edge", func(t *testing.T) {
		entity := testutil.CreateTestEntity(canvas.ID, "s1")
		require.NoError(t, store.EntityRepository().Save(t.Context(), entity))

		moved, err := controller.ManualMove(t.Context(), entity.ID, "s2")
		require.NoError(t, err)
		assert.Equal(t, "s2", *moved.CurrentNodeID)

		journey, err := store.JourneyRepository().GetByEntity(t.Context(), entity.ID)
		require.NoError(t, err)
		require.Len(t, journey, 1)
		assert.Equal(t, models.JourneyEventManualMove, journey[0].Type)
	})

	t.Run("rejects a cross-node move without an edge", func(t *testing.T) {
		entity := testutil.CreateTestEntity(canvas.ID, "s1")
		require.NoError(t, store.EntityRepository().Save(t.Context(), entity))

		_, err := controller.ManualMove(t.Context(), entity.ID, "s3")
		assert.ErrorIs(t, err, ErrNoConnectingEdge)

		unchanged, err := store.EntityRepository().GetByID(t.Context(), entity.ID)
		require.NoError(t, err)
		assert.Equal(t, "s1", *unchanged.CurrentNodeID)
	})

	t.Run("rejects a target off the canvas", func(t *testing.T) {
		entity := testutil.CreateTestEntity(canvas.ID, "s1")
		require.NoError(t, store.EntityRepository().Save(t.Context(), entity))

		_, err := controller.ManualMove(t.Context(), entity.ID, "elsewhere")
		assert.ErrorIs(t, err, ErrTargetNodeNotFound)
	})
}

func TestController_CompleteArrival(t *testing.T) {
	store, controller := newTestController(t)
	canvas := seedCanvas(t, store, nil)

	entity := testutil.CreateTestEntity(canvas.ID, "s1")
	entity.Travel("s1-s2", "s2")
	require.NoError(t, store.EntityRepository().Save(t.Context(), entity))

	arrived, err := controller.CompleteArrival(t.Context(), entity.ID)
	require.NoError(t, err)
	assert.Equal(t, "s2", *arrived.CurrentNodeID)
	assert.Nil(t, arrived.CurrentEdgeID)

	t.Run("arrival for a parked entity is rejected", func(t *testing.T) {
		_, err := controller.CompleteArrival(t.Context(), entity.ID)
		assert.ErrorIs(t, err, ErrEntityNotTraveling)
	})
}

func TestController_ApplyNodeMovement(t *testing.T) {
	store, controller := newTestController(t)
	canvas := seedCanvas(t, store, nil)

	target := "s2"
	node := &models.ExecNode{
		ID:        "notify",
		Type:      models.ExecNodeTypeHTTPCall,
		OnSuccess: &models.MovementRule{TargetSectionID: &target},
	}

	t.Run("travels when the canvas edge exists", func(t *testing.T) {
		entity := testutil.CreateTestEntity(canvas.ID, "s1")
		require.NoError(t, store.EntityRepository().Save(t.Context(), entity))

		run := &models.Run{ID: "run-1", EntityID: &entity.ID}

		require.NoError(t, controller.ApplyNodeMovement(t.Context(), run, node, models.OutcomeSuccess))

		moved, err := store.EntityRepository().GetByID(t.Context(), entity.ID)
		require.NoError(t, err)
		assert.True(t, moved.Traveling())
		assert.Equal(t, "s1-s2", *moved.CurrentEdgeID)
		assert.Equal(t, "s2", *moved.DestinationNodeID)
	})

	t.Run("teleports when no edge connects", func(t *testing.T) {
		entity := testutil.CreateTestEntity(canvas.ID, "s3")
		require.NoError(t, store.EntityRepository().Save(t.Context(), entity))

		run := &models.Run{ID: "run-2", EntityID: &entity.ID}

		require.NoError(t, controller.ApplyNodeMovement(t.Context(), run, node, models.OutcomeSuccess))

		moved, err := store.EntityRepository().GetByID(t.Context(), entity.ID)
		require.NoError(t, err)
		assert.True(t, moved.AtNode())
		assert.Equal(t, "s2", *moved.CurrentNodeID)
	})

	t.Run("no rule for the outcome is a no-op", func(t *testing.T) {
		entity := testutil.CreateTestEntity(canvas.ID, "s1")
		require.NoError(t, store.EntityRepository().Save(t.Context(), entity))

		run := &models.Run{ID: "run-3", EntityID: &entity.ID}

		require.NoError(t, controller.ApplyNodeMovement(t.Context(), run, node, models.OutcomeFailure))

		unchanged, err := store.EntityRepository().GetByID(t.Context(), entity.ID)
		require.NoError(t, err)
		assert.Equal(t, "s1", *unchanged.CurrentNodeID)
	})

	t.Run("run without entity is a no-op", func(t *testing.T) {
		run := &models.Run{ID: "run-4"}
		assert.NoError(t, controller.ApplyNodeMovement(t.Context(), run, node, models.OutcomeSuccess))
	})
}

func TestController_ProgressSpine(t *testing.T) {
	t.Run("advances the entity and auto-starts the mapped flow", func(t *testing.T) {
		store, controller := newTestController(t)
		canvas := seedCanvas(t, store, models.StitchMap{
			"s1": {NextUXNodeID: "s2"},
			"s2": {SystemFlowID: "flow-next"},
		})

		starter := &fakeStarter{}
		controller.SetRunStarter(starter)

		entity := testutil.CreateTestEntity(canvas.ID, "s1")
		require.NoError(t, store.EntityRepository().Save(t.Context(), entity))

		run := &models.Run{
			ID:        "run-1",
			EntityID:  &entity.ID,
			UXContext: &models.UXContext{CanvasID: canvas.ID, UXNodeID: "s1"},
		}

		require.NoError(t, controller.ProgressSpine(t.Context(), run))

		moved, err := store.EntityRepository().GetByID(t.Context(), entity.ID)
		require.NoError(t, err)
		assert.True(t, moved.Traveling())

		require.Equal(t, []string{"flow-next"}, starter.started)
		assert.Equal(t, models.TriggerTypeStitch, starter.run.Trigger.Type)
		require.NotNil(t, starter.run.UXContext)
		assert.Equal(t, "s2", starter.run.UXContext.UXNodeID)
	})

	t.Run("end of journey marks the entity completed", func(t *testing.T) {
		store, controller := newTestController(t)
		canvas := seedCanvas(t, store, models.StitchMap{
			"s2": {SystemFlowID: "flow-here"},
		})

		entity := testutil.CreateTestEntity(canvas.ID, "s2")
		require.NoError(t, store.EntityRepository().Save(t.Context(), entity))

		run := &models.Run{
			ID:        "run-1",
			EntityID:  &entity.ID,
			UXContext: &models.UXContext{CanvasID: canvas.ID, UXNodeID: "s2"},
		}

		require.NoError(t, controller.ProgressSpine(t.Context(), run))

		done, err := store.EntityRepository().GetByID(t.Context(), entity.ID)
		require.NoError(t, err)
		require.NotNil(t, done.CompletedAt)
		assert.WithinDuration(t, time.Now().UTC(), *done.CompletedAt, time.Minute)

		journey, err := store.JourneyRepository().GetByEntity(t.Context(), entity.ID)
		require.NoError(t, err)
		require.Len(t, journey, 1)
		assert.Equal(t, models.JourneyEventJourneyCompleted, journey[0].Type)
	})

	t.Run("run without UX context is a no-op", func(t *testing.T) {
		_, controller := newTestController(t)
		assert.NoError(t, controller.ProgressSpine(t.Context(), &models.Run{ID: "run-1"}))
	})
}
