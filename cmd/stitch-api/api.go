// Package main provides the Stitch API server implementation.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/alexfarlander/stitch-run-sub015/pkg/eventbus"
	"github.com/alexfarlander/stitch-run-sub015/pkg/persistence"
	"github.com/alexfarlander/stitch-run-sub015/pkg/run"
	"github.com/alexfarlander/stitch-run-sub015/pkg/stitch"
	"github.com/alexfarlander/stitch-run-sub015/pkg/versioning"
	"github.com/alexfarlander/stitch-run-sub015/pkg/web"
	"github.com/alexfarlander/stitch-run-sub015/pkg/webhook"
	"github.com/alexfarlander/stitch-run-sub015/pkg/workers"
)

type API struct {
	logger     *slog.Logger
	store      persistence.Persistence
	eventBus   eventbus.EventBus
	validate   *validator.Validate
	dispatcher *run.Dispatcher
	handlers   *web.APIHandlers
}

func NewAPI(
	logger *slog.Logger,
	store persistence.Persistence,
	eventBus eventbus.EventBus,
) *API {
	validate := validator.New(validator.WithRequiredStructEnabled())

	versions := versioning.NewService(store, logger)
	stitcher := stitch.NewController(store, eventBus, logger)
	manager := run.NewManager(store, stitcher, eventBus, logger)
	registry := workers.NewRegistry(logger)
	dispatcher := run.NewDispatcher(manager, registry, eventBus, logger)
	processor := webhook.NewProcessor(store, manager, logger)

	return &API{
		logger:     logger,
		store:      store,
		eventBus:   eventBus,
		validate:   validate,
		dispatcher: dispatcher,
		handlers:   web.NewAPIHandlers(store, versions, manager, processor, stitcher, validate),
	}
}

// StartDispatcher begins consuming node activations in the background.
func (a *API) StartDispatcher(ctx context.Context) error {
	go func() {
		if err := a.dispatcher.Start(ctx); err != nil {
			a.logger.ErrorContext(ctx, "Dispatcher stopped", "error", err)
		}
	}()

	return nil
}

func (a *API) App() *fiber.App {
	handlers := a.handlers

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Stitch API")
	})

	f := app.Group("/flows")
	f.Get("/", handlers.GetFlows)
	f.Post("/", handlers.CreateFlow)
	f.Get("/:id", handlers.GetFlow)
	f.Post("/:id/versions", handlers.CreateVersion)

	app.Get("/versions/:versionId", handlers.GetVersion)

	r := app.Group("/runs")
	r.Post("/", handlers.CreateRun)
	r.Get("/:runId", handlers.GetRun)
	r.Post("/:runId/nodes/:nodeId/callback", handlers.NodeCallback)

	app.Post("/webhook-configs", handlers.CreateWebhookConfig)
	app.Post("/webhooks/:configKey", handlers.ReceiveWebhook)

	e := app.Group("/entities")
	e.Post("/", handlers.CreateEntity)
	e.Get("/:entityId", handlers.GetEntity)
	e.Get("/:entityId/journey", handlers.GetEntityJourney)
	e.Post("/:entityId/move", handlers.MoveEntity)
	e.Post("/:entityId/arrival", handlers.EntityArrival)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
