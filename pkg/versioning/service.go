// Package versioning manages immutable flow-version snapshots: creation
// with authoring-time validation, lookup, and auto-versioning of run-time
// graph overrides.
package versioning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alexfarlander/stitch-run-sub015/pkg/models"
	"github.com/alexfarlander/stitch-run-sub015/pkg/persistence"
)

var (
	// ErrInvalidGraph indicates a graph that references missing nodes or
	// carries malformed configuration.
	ErrInvalidGraph = errors.New("invalid graph")

	// ErrInvalidStitchMap indicates a stitch map referencing nodes or flows
	// that do not exist in the version being created.
	ErrInvalidStitchMap = errors.New("invalid stitch map")
)

// Service creates and resolves flow versions. Writers only ever create new
// versions; existing snapshots are never mutated.
type Service struct {
	flows    persistence.FlowRepository
	versions persistence.VersionRepository
	logger   *slog.Logger
}

func NewService(store persistence.Persistence, logger *slog.Logger) *Service {
	return &Service{
		flows:    store.FlowRepository(),
		versions: store.VersionRepository(),
		logger:   logger.With("module", "versioning"),
	}
}

// CreateVersion validates the graphs and stitch map, stores the snapshot,
// and repoints the flow's current version at it.
func (s *Service) CreateVersion(ctx context.Context, flowID string, visual models.VisualGraph, execution models.ExecutionGraph, stitchMap models.StitchMap, message string) (*models.FlowVersion, error) {
	flow, err := s.flows.GetByID(ctx, flowID)
	if err != nil {
		return nil, err
	}

	if err := validateVisualGraph(&visual); err != nil {
		return nil, err
	}

	if err := validateExecutionGraph(&execution); err != nil {
		return nil, err
	}

	if err := validateStitchMap(stitchMap, &visual); err != nil {
		return nil, err
	}

	version := &models.FlowVersion{
		ID:             uuid.New().String(),
		FlowID:         flow.ID,
		VisualGraph:    visual,
		ExecutionGraph: execution,
		StitchMap:      stitchMap,
		Message:        message,
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.versions.Create(ctx, version); err != nil {
		return nil, err
	}

	flow.CurrentVersionID = version.ID
	if err := s.flows.Save(ctx, flow); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Created flow version",
		"flow_id", flow.ID,
		"version_id", version.ID,
		"message", message)

	return version, nil
}

// Get resolves a version by id.
func (s *Service) Get(ctx context.Context, versionID string) (*models.FlowVersion, error) {
	return s.versions.GetByID(ctx, versionID)
}

// CurrentVersion resolves the version the flow currently points at.
func (s *Service) CurrentVersion(ctx context.Context, flow *models.Flow) (*models.FlowVersion, error) {
	if flow.CurrentVersionID == "" {
		return nil, persistence.ErrVersionNotFound
	}

	return s.versions.GetByID(ctx, flow.CurrentVersionID)
}

// EnsureVersion returns the version a new run should be pinned to. When a
// visual-graph override diverges from the flow's current version, a new
// version is created first so the run never executes an unrecorded graph.
func (s *Service) EnsureVersion(ctx context.Context, flow *models.Flow, override *models.VisualGraph) (*models.FlowVersion, error) {
	current, err := s.CurrentVersion(ctx, flow)
	if err != nil {
		return nil, err
	}

	if override == nil || graphsEqual(&current.VisualGraph, override) {
		return current, nil
	}

	return s.CreateVersion(ctx, flow.ID, *override, current.ExecutionGraph, current.StitchMap, "auto-created from run override")
}

func validateVisualGraph(graph *models.VisualGraph) error {
	for i := range graph.Edges {
		edge := &graph.Edges[i]

		if _, ok := graph.NodeByID(edge.SourceID); !ok {
			return fmt.Errorf("%w: visual edge %s references missing source %s", ErrInvalidGraph, edge.ID, edge.SourceID)
		}

		if _, ok := graph.NodeByID(edge.TargetID); !ok {
			return fmt.Errorf("%w: visual edge %s references missing target %s", ErrInvalidGraph, edge.ID, edge.TargetID)
		}
	}

	return nil
}

func validateExecutionGraph(graph *models.ExecutionGraph) error {
	for i := range graph.Edges {
		edge := &graph.Edges[i]

		if _, ok := graph.NodeByID(edge.SourceID); !ok {
			return fmt.Errorf("%w: execution edge %s references missing source %s", ErrInvalidGraph, edge.ID, edge.SourceID)
		}

		if _, ok := graph.NodeByID(edge.TargetID); !ok {
			return fmt.Errorf("%w: execution edge %s references missing target %s", ErrInvalidGraph, edge.ID, edge.TargetID)
		}
	}

	for _, entry := range graph.EntryNodeIDs {
		if _, ok := graph.NodeByID(entry); !ok {
			return fmt.Errorf("%w: entry node %s does not exist", ErrInvalidGraph, entry)
		}
	}

	for i := range graph.Nodes {
		node := &graph.Nodes[i]

		for _, rule := range []*models.MovementRule{node.OnSuccess, node.OnFailure} {
			if rule != nil && rule.TargetSectionID != nil && *rule.TargetSectionID == "" {
				return fmt.Errorf("%w: node %s has empty movement target", ErrInvalidGraph, node.ID)
			}
		}
	}

	return nil
}

// validateStitchMap checks the explicit UX-node mapping against the visual
// graph so broken mappings fail at authoring time, not at run time.
func validateStitchMap(stitchMap models.StitchMap, visual *models.VisualGraph) error {
	for uxNodeID, mapping := range stitchMap {
		if _, ok := visual.NodeByID(uxNodeID); !ok {
			return fmt.Errorf("%w: mapping references missing UX node %s", ErrInvalidStitchMap, uxNodeID)
		}

		if mapping.NextUXNodeID != "" {
			if _, ok := visual.NodeByID(mapping.NextUXNodeID); !ok {
				return fmt.Errorf("%w: mapping for %s references missing next UX node %s", ErrInvalidStitchMap, uxNodeID, mapping.NextUXNodeID)
			}
		}
	}

	return nil
}
