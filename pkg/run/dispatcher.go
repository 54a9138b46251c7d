package run

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alexfarlander/stitch-run-sub015/pkg/eventbus"
	"github.com/alexfarlander/stitch-run-sub015/pkg/events"
	"github.com/alexfarlander/stitch-run-sub015/pkg/models"
	"github.com/alexfarlander/stitch-run-sub015/pkg/workers"
)

// Dispatcher consumes node activations off the bus, invokes the worker for
// the node type, and reports the outcome back through the manager. This is
// what makes node execution asynchronous relative to the request that fired
// the node.
type Dispatcher struct {
	manager  *Manager
	registry *workers.Registry
	bus      eventbus.EventBus
	logger   *slog.Logger
}

func NewDispatcher(manager *Manager, registry *workers.Registry, bus eventbus.EventBus, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		manager:  manager,
		registry: registry,
		bus:      bus,
		logger:   logger.With("module", "dispatcher"),
	}
}

// Start registers the activation handler and begins consuming.
func (d *Dispatcher) Start(ctx context.Context) error {
	if err := d.bus.Handle(events.NodeActivationEvent, d.handleActivation); err != nil {
		return err
	}

	return d.bus.Subscribe(ctx)
}

func (d *Dispatcher) handleActivation(ctx context.Context, rawEvent interface{}) error {
	activation, ok := rawEvent.(*events.NodeActivation)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", rawEvent)
	}

	logger := d.logger.With(
		"run_id", activation.RunID,
		"node_id", activation.NodeID,
		"node_type", activation.NodeType)

	version, err := d.manager.versions.GetByID(ctx, activation.FlowVersionID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to resolve pinned version", "error", err)

		return err
	}

	node, ok := version.ExecutionGraph.NodeByID(activation.NodeID)
	if !ok {
		logger.ErrorContext(ctx, "Activation references unknown node")

		return nil
	}

	if node.IsListener() {
		// Listeners resolve via the callback endpoint, not by invocation.
		return nil
	}

	outcome, output, err := d.registry.Invoke(ctx, node.Type, node.Config, activation.Input)

	errMessage := ""
	if err != nil {
		logger.ErrorContext(ctx, "Worker invocation failed", "error", err)

		outcome = models.OutcomeFailure
		errMessage = err.Error()
	}

	if _, err := d.manager.ReportNodeOutcome(ctx, activation.RunID, activation.NodeID, outcome, output, errMessage); err != nil {
		logger.ErrorContext(ctx, "Failed to report node outcome", "error", err)

		return err
	}

	return nil
}
