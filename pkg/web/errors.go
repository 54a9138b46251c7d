package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/alexfarlander/stitch-run-sub015/pkg/graph"
	"github.com/alexfarlander/stitch-run-sub015/pkg/models"
	"github.com/alexfarlander/stitch-run-sub015/pkg/persistence"
	"github.com/alexfarlander/stitch-run-sub015/pkg/stitch"
	"github.com/alexfarlander/stitch-run-sub015/pkg/versioning"
	"github.com/alexfarlander/stitch-run-sub015/pkg/webhook"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// isValidationError groups the errors that should surface as HTTP 400.
func isValidationError(err error) bool {
	return errors.Is(err, webhook.ErrInvalidPayload) ||
		errors.Is(err, versioning.ErrInvalidGraph) ||
		errors.Is(err, versioning.ErrInvalidStitchMap) ||
		errors.Is(err, stitch.ErrTargetNodeNotFound) ||
		errors.Is(err, stitch.ErrNoConnectingEdge) ||
		errors.Is(err, stitch.ErrEntityNotTraveling) ||
		errors.Is(err, models.ErrInvalidEntityPosition)
}

// handleError maps the engine's error taxonomy to problem responses.
func handleError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, webhook.ErrInvalidSignature):
		problem := problems.NewStatusProblem(401).
			WithInstance(c.Path()).
			WithType("invalid_signature").
			WithDetail("webhook signature verification failed")

		return c.Status(fiber.StatusUnauthorized).JSON(problem)

	case errors.Is(err, webhook.ErrEntryEdgeNotFound):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("entry_edge_not_found").
			WithDetail(err.Error())

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case isValidationError(err):
		return badRequest(c, err.Error())

	case persistence.IsNotFound(err) || errors.Is(err, graph.ErrNodeNotFound):
		return notFound(c, err.Error())

	default:
		return internalError(c, err)
	}
}
