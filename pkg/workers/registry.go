// Package workers implements the closed set of node types the engine can
// invoke. A node type is added by adding a Worker variant and registering
// it; the engine never inspects types at runtime beyond this registry.
package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alexfarlander/stitch-run-sub015/pkg/models"
)

var (
	// ErrUnknownNodeType indicates a node type no worker is registered for.
	ErrUnknownNodeType = errors.New("unknown node type")

	// ErrDuplicateWorker indicates a second registration for the same type.
	ErrDuplicateWorker = errors.New("worker already registered for node type")
)

// Worker executes one node type. Invoke returns the outcome the engine
// records; transport-level failures map to OutcomeFailure, not to an error.
// An error return means the invocation itself was malformed.
type Worker interface {
	Type() string
	Invoke(ctx context.Context, config map[string]any, input map[string]any) (models.Outcome, map[string]any, error)
}

// Registry holds the registered workers keyed by node type.
type Registry struct {
	logger  *slog.Logger
	workers map[string]Worker
}

// NewRegistry creates a registry pre-loaded with the built-in workers.
// Listener nodes have no worker: the interpreter parks them as
// waiting_for_user and they resolve through the callback endpoint.
func NewRegistry(logger *slog.Logger) *Registry {
	registry := &Registry{
		logger:  logger.With("module", "workers"),
		workers: make(map[string]Worker),
	}

	for _, worker := range []Worker{
		NewHTTPCallWorker(),
		NewTransformWorker(),
	} {
		if err := registry.Register(worker); err != nil {
			// Built-in registration only fails on a duplicate type constant.
			panic(err)
		}
	}

	return registry
}

// Register adds a worker for its node type.
func (r *Registry) Register(worker Worker) error {
	if _, exists := r.workers[worker.Type()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateWorker, worker.Type())
	}

	r.workers[worker.Type()] = worker

	return nil
}

// Invoke dispatches to the worker registered for the node type.
func (r *Registry) Invoke(ctx context.Context, nodeType string, config map[string]any, input map[string]any) (models.Outcome, map[string]any, error) {
	worker, exists := r.workers[nodeType]
	if !exists {
		return models.OutcomeFailure, nil, fmt.Errorf("%w: %s", ErrUnknownNodeType, nodeType)
	}

	r.logger.DebugContext(ctx, "Invoking worker", "node_type", nodeType)

	return worker.Invoke(ctx, config, input)
}
