// Package web provides the HTTP handlers exposing the engine: flows,
// versions, runs, webhooks, callbacks, and entity movement.
package web

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/alexfarlander/stitch-run-sub015/pkg/graph"
	"github.com/alexfarlander/stitch-run-sub015/pkg/models"
	"github.com/alexfarlander/stitch-run-sub015/pkg/persistence"
	"github.com/alexfarlander/stitch-run-sub015/pkg/run"
	"github.com/alexfarlander/stitch-run-sub015/pkg/stitch"
	"github.com/alexfarlander/stitch-run-sub015/pkg/versioning"
	"github.com/alexfarlander/stitch-run-sub015/pkg/webhook"
)

type APIHandlers struct {
	store     persistence.Persistence
	versions  *versioning.Service
	manager   *run.Manager
	processor *webhook.Processor
	stitcher  *stitch.Controller
	validator *validator.Validate
}

func NewAPIHandlers(
	store persistence.Persistence,
	versions *versioning.Service,
	manager *run.Manager,
	processor *webhook.Processor,
	stitcher *stitch.Controller,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		store:     store,
		versions:  versions,
		manager:   manager,
		processor: processor,
		stitcher:  stitcher,
		validator: validator,
	}
}

// Flows

func (h *APIHandlers) CreateFlow(c fiber.Ctx) error {
	var req CreateFlowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if req.ParentID != nil {
		if err := h.validateParentNode(c, req.ParentCanvasID, *req.ParentID); err != nil {
			return err
		}
	}

	flow := &models.Flow{
		ID:             uuid.New().String(),
		Name:           req.Name,
		CanvasType:     models.CanvasType(req.CanvasType),
		ParentCanvasID: req.ParentCanvasID,
		ParentID:       req.ParentID,
	}

	if err := h.store.FlowRepository().Save(c.Context(), flow); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(flow)
}

// validateParentNode enforces that a system flow's parent reference points
// at an existing UX-canvas node.
func (h *APIHandlers) validateParentNode(c fiber.Ctx, canvasID *string, parentNodeID string) error {
	if canvasID == nil {
		return badRequest(c, "parent_canvas_id is required when parent_id is set")
	}

	canvas, err := h.store.FlowRepository().GetByID(c.Context(), *canvasID)
	if err != nil {
		return handleError(c, err)
	}

	if !canvas.IsUXCanvas() {
		return badRequest(c, "parent_canvas_id must reference a UX canvas")
	}

	version, err := h.versions.CurrentVersion(c.Context(), canvas)
	if err != nil {
		return handleError(c, err)
	}

	if _, ok := version.VisualGraph.NodeByID(parentNodeID); !ok {
		return badRequest(c, "parent_id does not exist on the parent canvas")
	}

	return nil
}

func (h *APIHandlers) GetFlows(c fiber.Ctx) error {
	flows, err := h.store.FlowRepository().GetAll(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"flows": flows, "total_count": len(flows)})
}

func (h *APIHandlers) GetFlow(c fiber.Ctx) error {
	flow, err := h.store.FlowRepository().GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(flow)
}

// Versions

func (h *APIHandlers) CreateVersion(c fiber.Ctx) error {
	var req CreateVersionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	version, err := h.versions.CreateVersion(c.Context(), c.Params("id"), req.VisualGraph, req.ExecutionGraph, req.StitchMap, req.Message)
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(version)
}

func (h *APIHandlers) GetVersion(c fiber.Ctx) error {
	version, err := h.versions.Get(c.Context(), c.Params("versionId"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(version)
}

// Runs

func (h *APIHandlers) CreateRun(c fiber.Ctx) error {
	var req CreateRunRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	flow, err := h.store.FlowRepository().GetByID(c.Context(), req.FlowID)
	if err != nil {
		return handleError(c, err)
	}

	version, err := h.versions.EnsureVersion(c.Context(), flow, req.Override)
	if err != nil {
		return handleError(c, err)
	}

	created, err := h.manager.Launch(c.Context(), flow, version, run.ManualTrigger(req.Description), req.EntityID, req.UXContext, req.Input)
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(h.runStatus(created))
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	found, err := h.manager.Get(c.Context(), c.Params("runId"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(h.runStatus(found))
}

// NodeCallback reports a node outcome. Idempotent: repeating the same
// outcome returns the same run state; conflicting outcomes are rejected
// upstream and the current state is returned unchanged.
func (h *APIHandlers) NodeCallback(c fiber.Ctx) error {
	var req NodeCallbackRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.manager.ReportNodeOutcome(c.Context(), c.Params("runId"), c.Params("nodeId"), models.Outcome(req.Outcome), req.Output, req.Error)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(h.runStatus(updated))
}

func (h *APIHandlers) runStatus(r *models.Run) RunStatusResponse {
	return RunStatusResponse{
		Run:      r,
		Stats:    graph.Stats(r),
		Complete: len(r.NodeStates) > 0 && allTerminal(r),
	}
}

func allTerminal(r *models.Run) bool {
	for _, state := range r.NodeStates {
		if !state.Status.IsTerminal() {
			return false
		}
	}

	return true
}

// Webhooks

func (h *APIHandlers) CreateWebhookConfig(c fiber.Ctx) error {
	var req CreateWebhookConfigRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	config, err := h.processor.Setup(c.Context(), &models.WebhookConfig{
		Key:           req.Key,
		FlowID:        req.FlowID,
		EntryEdgeID:   req.EntryEdgeID,
		Secret:        req.Secret,
		PayloadSchema: req.PayloadSchema,
	})
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(config)
}

// ReceiveWebhook acknowledges immediately; node execution is asynchronous
// relative to this response.
func (h *APIHandlers) ReceiveWebhook(c fiber.Ctx) error {
	result, err := h.processor.Process(c.Context(), c.Params("configKey"), c.Body(), c.Get(webhook.SignatureHeader))
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(result)
}

// Entities

func (h *APIHandlers) CreateEntity(c fiber.Ctx) error {
	var req CreateEntityRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	canvas, err := h.store.FlowRepository().GetByID(c.Context(), req.CanvasID)
	if err != nil {
		return handleError(c, err)
	}

	version, err := h.versions.CurrentVersion(c.Context(), canvas)
	if err != nil {
		return handleError(c, err)
	}

	if _, ok := version.VisualGraph.NodeByID(req.NodeID); !ok {
		return badRequest(c, "node_id does not exist on the canvas")
	}

	entity := &models.Entity{
		ID:         uuid.New().String(),
		CanvasID:   req.CanvasID,
		EntityType: req.EntityType,
		Metadata:   req.Metadata,
	}
	entity.PlaceAtNode(req.NodeID)

	if err := h.store.EntityRepository().Save(c.Context(), entity); err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(entity)
}

func (h *APIHandlers) GetEntity(c fiber.Ctx) error {
	entity, err := h.store.EntityRepository().GetByID(c.Context(), c.Params("entityId"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(entity)
}

func (h *APIHandlers) GetEntityJourney(c fiber.Ctx) error {
	entityID := c.Params("entityId")

	if _, err := h.store.EntityRepository().GetByID(c.Context(), entityID); err != nil {
		return handleError(c, err)
	}

	journey, err := h.store.JourneyRepository().GetByEntity(c.Context(), entityID)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"entity_id": entityID, "events": journey})
}

func (h *APIHandlers) MoveEntity(c fiber.Ctx) error {
	var req MoveEntityRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	entity, err := h.stitcher.ManualMove(c.Context(), c.Params("entityId"), req.TargetNodeID)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(entity)
}

func (h *APIHandlers) EntityArrival(c fiber.Ctx) error {
	entity, err := h.stitcher.CompleteArrival(c.Context(), c.Params("entityId"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(entity)
}

// Health

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	storeCheck := "ok"

	if err := h.store.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		storeCheck = err.Error()
		c.Status(fiber.StatusServiceUnavailable)
	}

	return c.JSON(fiber.Map{
		"status":    status,
		"checkers":  fiber.Map{"persistence": storeCheck},
		"timestamp": time.Now().UTC(),
	})
}
