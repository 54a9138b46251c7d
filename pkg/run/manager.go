// Package run implements the run lifecycle: creation pinned to an immutable
// flow version, node firing, the idempotent callback path, completion
// detection, and the hand-off into stitching.
package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alexfarlander/stitch-run-sub015/pkg/eventbus"
	"github.com/alexfarlander/stitch-run-sub015/pkg/events"
	"github.com/alexfarlander/stitch-run-sub015/pkg/graph"
	"github.com/alexfarlander/stitch-run-sub015/pkg/models"
	"github.com/alexfarlander/stitch-run-sub015/pkg/persistence"
	"github.com/alexfarlander/stitch-run-sub015/pkg/stitch"
)

// casRetryLimit bounds the read-modify-write retries under concurrent
// callbacks for the same run.
const casRetryLimit = 5

var (
	// ErrVersionMismatch indicates a version that does not belong to the
	// flow a run is being created for.
	ErrVersionMismatch = errors.New("version does not belong to flow")

	// ErrTooManyRetries indicates the CAS loop lost the race repeatedly.
	ErrTooManyRetries = errors.New("too many concurrent updates for run")
)

// Manager owns run records. All node-state writes go through conditional
// updates against the store; the in-memory run is only ever a working copy.
type Manager struct {
	flows    persistence.FlowRepository
	versions persistence.VersionRepository
	runs     persistence.RunRepository
	interp   *graph.Interpreter
	stitcher *stitch.Controller
	bus      eventbus.EventPublisher
	logger   *slog.Logger
}

func NewManager(store persistence.Persistence, stitcher *stitch.Controller, bus eventbus.EventPublisher, logger *slog.Logger) *Manager {
	manager := &Manager{
		flows:    store.FlowRepository(),
		versions: store.VersionRepository(),
		runs:     store.RunRepository(),
		interp:   graph.NewInterpreter(),
		stitcher: stitcher,
		bus:      bus,
		logger:   logger.With("module", "run_manager"),
	}

	if stitcher != nil {
		stitcher.SetRunStarter(manager)
	}

	return manager
}

// Get resolves a run by id.
func (m *Manager) Get(ctx context.Context, runID string) (*models.Run, error) {
	return m.runs.GetByID(ctx, runID)
}

// CreateRun creates a run pinned to the given version, with every node of
// the version's execution graph pre-seeded as pending.
func (m *Manager) CreateRun(ctx context.Context, flowID, versionID string, trigger models.Trigger, entityID *string, uxCtx *models.UXContext, input map[string]any) (*models.Run, error) {
	if _, err := m.flows.GetByID(ctx, flowID); err != nil {
		return nil, err
	}

	version, err := m.versions.GetByID(ctx, versionID)
	if err != nil {
		return nil, err
	}

	if version.FlowID != flowID {
		return nil, fmt.Errorf("version %s: %w", versionID, ErrVersionMismatch)
	}

	states := make(map[string]models.NodeState, len(version.ExecutionGraph.Nodes))
	for i := range version.ExecutionGraph.Nodes {
		states[version.ExecutionGraph.Nodes[i].ID] = models.NodeState{Status: models.NodeStatusPending}
	}

	run := &models.Run{
		ID:            uuid.New().String(),
		FlowID:        flowID,
		FlowVersionID: versionID,
		EntityID:      entityID,
		Trigger:       trigger,
		UXContext:     uxCtx,
		Input:         input,
		NodeStates:    states,
	}

	if err := m.runs.Create(ctx, run); err != nil {
		return nil, err
	}

	m.logger.InfoContext(ctx, "Created run",
		"run_id", run.ID,
		"flow_id", flowID,
		"flow_version_id", versionID,
		"trigger_type", string(trigger.Type))

	return run, nil
}

// FireNodes transitions the given nodes to running (listeners to
// waiting_for_user) and publishes activations for the running ones.
// Already-terminal nodes are skipped.
func (m *Manager) FireNodes(ctx context.Context, runID string, nodeIDs ...string) (*models.Run, error) {
	var fired []string

	updated, err := m.withRetry(ctx, runID, func(run *models.Run, execGraph *models.ExecutionGraph) error {
		fired = fired[:0]

		for _, nodeID := range nodeIDs {
			err := m.interp.Fire(run, execGraph, nodeID)
			if errors.Is(err, graph.ErrNodeAlreadyTerminal) {
				m.logger.DebugContext(ctx, "Skipping refire of terminal node",
					"run_id", runID, "node_id", nodeID)

				continue
			}

			if err != nil {
				return err
			}

			if run.NodeStates[nodeID].Status == models.NodeStatusRunning {
				fired = append(fired, nodeID)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	version, err := m.versions.GetByID(ctx, updated.FlowVersionID)
	if err != nil {
		return nil, err
	}

	for _, nodeID := range fired {
		node, _ := version.ExecutionGraph.NodeByID(nodeID)
		m.publishActivation(ctx, updated, node)
	}

	return updated, nil
}

// ReportNodeOutcome is the callback entry point. It applies the terminal
// transition with a conditional store update, then runs the side effects:
// per-node movement, downstream firing, completion detection, and spine
// progression. Duplicate callbacks with the same outcome are no-ops;
// conflicting callbacks are logged and rejected without mutating state.
func (m *Manager) ReportNodeOutcome(ctx context.Context, runID, nodeID string, outcome models.Outcome, output map[string]any, errMessage string) (*models.Run, error) {
	var downstream []string

	updated, err := m.withRetry(ctx, runID, func(run *models.Run, execGraph *models.ExecutionGraph) error {
		var applyErr error

		downstream, applyErr = m.interp.Apply(run, execGraph, nodeID, outcome, output, errMessage)

		return applyErr
	})

	switch {
	case errors.Is(err, graph.ErrOutcomeAlreadyApplied):
		m.logger.DebugContext(ctx, "Duplicate callback ignored",
			"run_id", runID, "node_id", nodeID, "outcome", string(outcome))

		return m.runs.GetByID(ctx, runID)
	case errors.Is(err, graph.ErrConflictingOutcome):
		m.logger.WarnContext(ctx, "Conflicting callback rejected",
			"run_id", runID, "node_id", nodeID, "outcome", string(outcome))

		return m.runs.GetByID(ctx, runID)
	case err != nil:
		return nil, err
	}

	m.logger.InfoContext(ctx, "Node outcome applied",
		"run_id", runID,
		"node_id", nodeID,
		"outcome", string(outcome))

	version, err := m.versions.GetByID(ctx, updated.FlowVersionID)
	if err != nil {
		return nil, err
	}

	m.publishCompleted(ctx, updated, nodeID, outcome, errMessage)

	// The callback itself has committed; everything below is layered on top
	// and must never fail it.
	if node, ok := version.ExecutionGraph.NodeByID(nodeID); ok && m.stitcher != nil {
		if err := m.stitcher.ApplyNodeMovement(ctx, updated, node, outcome); err != nil {
			m.logger.ErrorContext(ctx, "Stitching movement failed",
				"run_id", runID, "node_id", nodeID, "error", err)
		}
	}

	if len(downstream) > 0 {
		fired, err := m.FireNodes(ctx, runID, downstream...)
		if err != nil {
			m.logger.ErrorContext(ctx, "Failed to fire downstream nodes",
				"run_id", runID, "node_id", nodeID, "error", err)
		} else {
			updated = fired
		}
	}

	if graph.IsComplete(updated, &version.ExecutionGraph) {
		m.handleCompletion(ctx, updated)
	}

	return updated, nil
}

// StartFlow creates and starts a run against the flow's current version.
// This is how spine progression auto-starts mapped system flows.
func (m *Manager) StartFlow(ctx context.Context, flowID string, trigger models.Trigger, entityID *string, uxCtx *models.UXContext, input map[string]any) (*models.Run, error) {
	flow, err := m.flows.GetByID(ctx, flowID)
	if err != nil {
		return nil, err
	}

	if flow.CurrentVersionID == "" {
		return nil, persistence.ErrVersionNotFound
	}

	version, err := m.versions.GetByID(ctx, flow.CurrentVersionID)
	if err != nil {
		return nil, err
	}

	return m.Launch(ctx, flow, version, trigger, entityID, uxCtx, input)
}

// Launch creates a run pinned to the given version and fires its entry
// nodes. A graph without entry nodes yields a run that only moves when a
// node is fired explicitly.
func (m *Manager) Launch(ctx context.Context, flow *models.Flow, version *models.FlowVersion, trigger models.Trigger, entityID *string, uxCtx *models.UXContext, input map[string]any) (*models.Run, error) {
	run, err := m.CreateRun(ctx, flow.ID, version.ID, trigger, entityID, uxCtx, input)
	if err != nil {
		return nil, err
	}

	entryNodeID := ""
	if len(version.ExecutionGraph.EntryNodeIDs) > 0 {
		entryNodeID = version.ExecutionGraph.EntryNodeIDs[0]

		run, err = m.FireNodes(ctx, run.ID, version.ExecutionGraph.EntryNodeIDs...)
		if err != nil {
			return nil, err
		}
	}

	m.publishStarted(ctx, run, entryNodeID)

	return run, nil
}

// handleCompletion publishes the completion event and drives UX spine
// progression for runs that carry UX context. Stitching failures are caught
// here; the callback that completed the run has already succeeded.
//
// The completion marker is claimed through the store first, so a run that
// reaches the complete state again (a parked listener resolved by a later
// callback) does not replay the event or the progression.
func (m *Manager) handleCompletion(ctx context.Context, run *models.Run) {
	claimed, err := m.claimCompletion(ctx, run.ID)
	if errors.Is(err, persistence.ErrRunAlreadyCompleted) {
		m.logger.DebugContext(ctx, "Completion already handled",
			"run_id", run.ID)

		return
	}

	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to claim run completion",
			"run_id", run.ID, "error", err)

		return
	}

	run = claimed

	m.logger.InfoContext(ctx, "Run completed",
		"run_id", run.ID,
		"flow_id", run.FlowID)

	if m.bus != nil {
		event := events.RunCompleted{
			BaseEvent: events.NewBaseEvent(events.RunCompletedEvent, run.ID),
			FlowID:    run.FlowID,
			Stats:     graph.Stats(run),
		}
		if err := m.bus.Publish(ctx, run.ID, event); err != nil {
			m.logger.ErrorContext(ctx, "Failed to publish run completed event",
				"run_id", run.ID, "error", err)
		}
	}

	if m.stitcher == nil || run.UXContext == nil || run.EntityID == nil {
		return
	}

	if err := m.stitcher.ProgressSpine(ctx, run); err != nil {
		m.logger.ErrorContext(ctx, "Spine progression failed",
			"run_id", run.ID, "error", err)
	}
}

// claimCompletion marks the run completed, retrying transient write races.
// Exactly one caller per run gets a nil error.
func (m *Manager) claimCompletion(ctx context.Context, runID string) (*models.Run, error) {
	for attempt := 0; attempt < casRetryLimit; attempt++ {
		marked, err := m.runs.MarkCompleted(ctx, runID)
		if persistence.IsConcurrentUpdate(err) {
			continue
		}

		return marked, err
	}

	return nil, persistence.NewRunError("claimCompletion", runID, ErrTooManyRetries)
}

// withRetry runs a mutation against a fresh copy of the stored run and
// commits it with a conditional update, retrying on concurrent writers.
func (m *Manager) withRetry(ctx context.Context, runID string, mutate func(run *models.Run, execGraph *models.ExecutionGraph) error) (*models.Run, error) {
	for attempt := 0; attempt < casRetryLimit; attempt++ {
		run, err := m.runs.GetByID(ctx, runID)
		if err != nil {
			return nil, err
		}

		version, err := m.versions.GetByID(ctx, run.FlowVersionID)
		if err != nil {
			return nil, err
		}

		working := *run
		working.NodeStates = cloneStates(run.NodeStates)

		if err := mutate(&working, &version.ExecutionGraph); err != nil {
			return nil, err
		}

		updated, err := m.runs.UpdateNodeStates(ctx, runID, run.RowVersion, working.NodeStates)
		if persistence.IsConcurrentUpdate(err) {
			m.logger.DebugContext(ctx, "Run update lost race, retrying",
				"run_id", runID, "attempt", attempt+1)

			continue
		}

		if err != nil {
			return nil, err
		}

		return updated, nil
	}

	return nil, persistence.NewRunError("withRetry", runID, ErrTooManyRetries)
}

func (m *Manager) publishStarted(ctx context.Context, run *models.Run, entryNodeID string) {
	if m.bus == nil {
		return
	}

	event := events.RunStarted{
		BaseEvent:     events.NewBaseEvent(events.RunStartedEvent, run.ID),
		FlowID:        run.FlowID,
		FlowVersionID: run.FlowVersionID,
		EntryNodeID:   entryNodeID,
	}
	if err := m.bus.Publish(ctx, run.ID, event); err != nil {
		m.logger.ErrorContext(ctx, "Failed to publish run started event",
			"run_id", run.ID, "error", err)
	}
}

func (m *Manager) publishActivation(ctx context.Context, run *models.Run, node *models.ExecNode) {
	if m.bus == nil || node == nil {
		return
	}

	event := events.NodeActivation{
		BaseEvent:     events.NewBaseEvent(events.NodeActivationEvent, run.ID),
		FlowVersionID: run.FlowVersionID,
		NodeID:        node.ID,
		NodeType:      node.Type,
		Input:         run.Input,
	}
	if err := m.bus.Publish(ctx, run.ID, event); err != nil {
		m.logger.ErrorContext(ctx, "Failed to publish node activation",
			"run_id", run.ID, "node_id", node.ID, "error", err)
	}
}

func (m *Manager) publishCompleted(ctx context.Context, run *models.Run, nodeID string, outcome models.Outcome, errMessage string) {
	if m.bus == nil {
		return
	}

	event := events.NodeCompleted{
		BaseEvent: events.NewBaseEvent(events.NodeCompletedEvent, run.ID),
		NodeID:    nodeID,
		Outcome:   outcome,
		Status:    outcome.Status(),
		Error:     errMessage,
	}
	if err := m.bus.Publish(ctx, run.ID, event); err != nil {
		m.logger.ErrorContext(ctx, "Failed to publish node completed event",
			"run_id", run.ID, "node_id", nodeID, "error", err)
	}
}

func cloneStates(states map[string]models.NodeState) map[string]models.NodeState {
	clone := make(map[string]models.NodeState, len(states))
	for id, state := range states {
		clone[id] = state
	}

	return clone
}

// Trigger helpers used by the API layer.

// ManualTrigger builds the trigger descriptor for a user-initiated run.
func ManualTrigger(source string) models.Trigger {
	return models.Trigger{Type: models.TriggerTypeManual, Source: source, At: time.Now().UTC()}
}

// WebhookTrigger builds the trigger descriptor for a webhook-initiated run.
func WebhookTrigger(configKey string) models.Trigger {
	return models.Trigger{Type: models.TriggerTypeWebhook, Source: configKey, At: time.Now().UTC()}
}
