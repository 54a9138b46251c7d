// Package graph walks execution graphs: it fires nodes, applies reported
// outcomes, and detects system-path completion.
package graph

import (
	"errors"
	"fmt"
	"time"

	"github.com/alexfarlander/stitch-run-sub015/pkg/models"
)

var (
	// ErrNodeNotFound indicates the node id is not part of the execution graph.
	ErrNodeNotFound = errors.New("node not found in execution graph")

	// ErrNodeAlreadyTerminal indicates a refire of a node that already
	// reached a terminal state.
	ErrNodeAlreadyTerminal = errors.New("node already in terminal state")

	// ErrOutcomeAlreadyApplied indicates a duplicate callback carrying the
	// same terminal outcome. Callers treat this as a no-op.
	ErrOutcomeAlreadyApplied = errors.New("outcome already applied")

	// ErrConflictingOutcome indicates a callback that would flip an already
	// terminal node to a different outcome. Never applied.
	ErrConflictingOutcome = errors.New("conflicting outcome for terminal node")
)

// Interpreter implements the node-state transitions of a run against its
// pinned execution graph. It mutates only the run's node-state map; callers
// own persisting the result.
type Interpreter struct{}

func NewInterpreter() *Interpreter {
	return &Interpreter{}
}

// Fire transitions a pending node to running, or to waiting_for_user for
// listener nodes, which only complete when a matching external callback
// arrives. Firing a node that is already running is a no-op; firing a
// terminal node is rejected with ErrNodeAlreadyTerminal.
func (i *Interpreter) Fire(run *models.Run, graph *models.ExecutionGraph, nodeID string) error {
	node, ok := graph.NodeByID(nodeID)
	if !ok {
		return fmt.Errorf("fire %s: %w", nodeID, ErrNodeNotFound)
	}

	state := run.NodeState(nodeID)
	if state.Status.IsTerminal() {
		return fmt.Errorf("fire %s: %w", nodeID, ErrNodeAlreadyTerminal)
	}

	if state.Status == models.NodeStatusRunning {
		return nil
	}

	now := time.Now().UTC()
	state.FiredAt = &now

	if node.IsListener() {
		state.Status = models.NodeStatusWaitingForUser
	} else {
		state.Status = models.NodeStatusRunning
	}

	run.NodeStates[nodeID] = state

	return nil
}

// Apply records a reported outcome for a node and returns the downstream
// node ids to fire when the outcome is success. Listener nodes parked in
// waiting_for_user are completed here by their matching external event.
// Re-applying the same terminal outcome returns ErrOutcomeAlreadyApplied; a
// different outcome for a terminal node returns ErrConflictingOutcome and
// leaves the state untouched.
func (i *Interpreter) Apply(run *models.Run, graph *models.ExecutionGraph, nodeID string, outcome models.Outcome, output map[string]any, errMessage string) ([]string, error) {
	if _, ok := graph.NodeByID(nodeID); !ok {
		return nil, fmt.Errorf("apply %s: %w", nodeID, ErrNodeNotFound)
	}

	state := run.NodeState(nodeID)
	target := outcome.Status()

	switch state.Status {
	case models.NodeStatusCompleted, models.NodeStatusFailed:
		if state.Status == target {
			return nil, ErrOutcomeAlreadyApplied
		}

		return nil, ErrConflictingOutcome
	case models.NodeStatusPending, models.NodeStatusRunning, models.NodeStatusWaitingForUser:
		// waiting_for_user resolves here: the callback is the external event.
	}

	now := time.Now().UTC()
	state.Status = target
	state.Output = output
	state.Error = errMessage
	state.FinishedAt = &now
	run.NodeStates[nodeID] = state

	if outcome == models.OutcomeSuccess {
		return graph.Downstream(nodeID), nil
	}

	return nil, nil
}
