package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexfarlander/stitch-run-sub015/pkg/models"
	"github.com/alexfarlander/stitch-run-sub015/pkg/testutil"
)

func TestInterpreter_Fire(t *testing.T) {
	interp := NewInterpreter()

	t.Run("pending node transitions to running", func(t *testing.T) {
		version := testutil.CreateTestVersion("flow-1")
		run := testutil.CreateTestRun(version)

		err := interp.Fire(run, &version.ExecutionGraph, "a")
		require.NoError(t, err)

		state := run.NodeStates["a"]
		assert.Equal(t, models.NodeStatusRunning, state.Status)
		assert.NotNil(t, state.FiredAt)
	})

	t.Run("listener node parks in waiting_for_user", func(t *testing.T) {
		version := testutil.CreateTestVersion("flow-1")
		version.ExecutionGraph.Nodes[0].Type = models.ExecNodeTypeListener
		run := testutil.CreateTestRun(version)

		err := interp.Fire(run, &version.ExecutionGraph, "a")
		require.NoError(t, err)
		assert.Equal(t, models.NodeStatusWaitingForUser, run.NodeStates["a"].Status)
	})

	t.Run("refire of running node is a no-op", func(t *testing.T) {
		version := testutil.CreateTestVersion("flow-1")
		run := testutil.CreateTestRun(version)

		require.NoError(t, interp.Fire(run, &version.ExecutionGraph, "a"))
		firedAt := run.NodeStates["a"].FiredAt

		require.NoError(t, interp.Fire(run, &version.ExecutionGraph, "a"))
		assert.Equal(t, models.NodeStatusRunning, run.NodeStates["a"].Status)
		assert.Equal(t, firedAt, run.NodeStates["a"].FiredAt)
	})

	t.Run("refire of terminal node is rejected", func(t *testing.T) {
		version := testutil.CreateTestVersion("flow-1")
		run := testutil.CreateTestRun(version)
		run.NodeStates["a"] = models.NodeState{Status: models.NodeStatusCompleted}

		err := interp.Fire(run, &version.ExecutionGraph, "a")
		assert.ErrorIs(t, err, ErrNodeAlreadyTerminal)
	})

	t.Run("unknown node is rejected", func(t *testing.T) {
		version := testutil.CreateTestVersion("flow-1")
		run := testutil.CreateTestRun(version)

		err := interp.Fire(run, &version.ExecutionGraph, "ghost")
		assert.ErrorIs(t, err, ErrNodeNotFound)
	})
}

func TestInterpreter_Apply(t *testing.T) {
	interp := NewInterpreter()

	t.Run("success completes node and returns downstream", func(t *testing.T) {
		version := testutil.CreateTestVersion("flow-1")
		run := testutil.CreateTestRun(version)
		require.NoError(t, interp.Fire(run, &version.ExecutionGraph, "a"))

		downstream, err := interp.Apply(run, &version.ExecutionGraph, "a", models.OutcomeSuccess, map[string]any{"k": "v"}, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, downstream)

		state := run.NodeStates["a"]
		assert.Equal(t, models.NodeStatusCompleted, state.Status)
		assert.Equal(t, map[string]any{"k": "v"}, state.Output)
		assert.NotNil(t, state.FinishedAt)
	})

	t.Run("failure records error and fires nothing downstream", func(t *testing.T) {
		version := testutil.CreateTestVersion("flow-1")
		run := testutil.CreateTestRun(version)
		require.NoError(t, interp.Fire(run, &version.ExecutionGraph, "a"))

		downstream, err := interp.Apply(run, &version.ExecutionGraph, "a", models.OutcomeFailure, nil, "boom")
		require.NoError(t, err)
		assert.Empty(t, downstream)

		state := run.NodeStates["a"]
		assert.Equal(t, models.NodeStatusFailed, state.Status)
		assert.Equal(t, "boom", state.Error)
	})

	t.Run("duplicate outcome is reported as already applied", func(t *testing.T) {
		version := testutil.CreateTestVersion("flow-1")
		run := testutil.CreateTestRun(version)
		require.NoError(t, interp.Fire(run, &version.ExecutionGraph, "a"))

		_, err := interp.Apply(run, &version.ExecutionGraph, "a", models.OutcomeSuccess, nil, "")
		require.NoError(t, err)

		_, err = interp.Apply(run, &version.ExecutionGraph, "a", models.OutcomeSuccess, nil, "")
		assert.ErrorIs(t, err, ErrOutcomeAlreadyApplied)
	})

	t.Run("conflicting outcome never flips a terminal node", func(t *testing.T) {
		version := testutil.CreateTestVersion("flow-1")
		run := testutil.CreateTestRun(version)
		require.NoError(t, interp.Fire(run, &version.ExecutionGraph, "a"))

		_, err := interp.Apply(run, &version.ExecutionGraph, "a", models.OutcomeSuccess, nil, "")
		require.NoError(t, err)

		_, err = interp.Apply(run, &version.ExecutionGraph, "a", models.OutcomeFailure, nil, "late failure")
		assert.ErrorIs(t, err, ErrConflictingOutcome)
		assert.Equal(t, models.NodeStatusCompleted, run.NodeStates["a"].Status)
		assert.Empty(t, run.NodeStates["a"].Error)
	})

	t.Run("waiting listener resolves on callback", func(t *testing.T) {
		version := testutil.CreateTestVersion("flow-1")
		version.ExecutionGraph.Nodes[0].Type = models.ExecNodeTypeListener
		run := testutil.CreateTestRun(version)
		require.NoError(t, interp.Fire(run, &version.ExecutionGraph, "a"))
		require.Equal(t, models.NodeStatusWaitingForUser, run.NodeStates["a"].Status)

		downstream, err := interp.Apply(run, &version.ExecutionGraph, "a", models.OutcomeSuccess, nil, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, downstream)
		assert.Equal(t, models.NodeStatusCompleted, run.NodeStates["a"].Status)
	})
}
