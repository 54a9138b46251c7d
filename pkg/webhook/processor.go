// Package webhook maps inbound webhooks to pinned-version runs: config
// lookup, signature verification, payload validation, and entry-edge
// resolution.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xeipuuv/gojsonschema"

	"github.com/alexfarlander/stitch-run-sub015/pkg/models"
	"github.com/alexfarlander/stitch-run-sub015/pkg/persistence"
	"github.com/alexfarlander/stitch-run-sub015/pkg/run"
)

var (
	// ErrInvalidSignature indicates a signature mismatch against a
	// configured non-empty secret.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrEntryEdgeNotFound indicates the configured entry edge is absent
	// from the pinned version's visual graph.
	ErrEntryEdgeNotFound = errors.New("entry edge not found in pinned version")

	// ErrInvalidPayload indicates a payload that is not valid JSON or fails
	// the configured schema.
	ErrInvalidPayload = errors.New("invalid webhook payload")
)

// Result acknowledges webhook acceptance. Execution proceeds asynchronously;
// progress is observed by polling the run.
type Result struct {
	RunID     string `json:"run_id"`
	VersionID string `json:"version_id"`
	Status    string `json:"status"`
}

// Processor turns inbound webhooks into runs pinned to the version captured
// on the webhook config at setup time.
type Processor struct {
	configs  persistence.WebhookConfigRepository
	flows    persistence.FlowRepository
	versions persistence.VersionRepository
	manager  *run.Manager
	logger   *slog.Logger
}

func NewProcessor(store persistence.Persistence, manager *run.Manager, logger *slog.Logger) *Processor {
	return &Processor{
		configs:  store.WebhookConfigRepository(),
		flows:    store.FlowRepository(),
		versions: store.VersionRepository(),
		manager:  manager,
		logger:   logger.With("module", "webhook_processor"),
	}
}

// Setup registers a webhook config, pinning it to the flow's current
// version. This is the only moment the flow's live graph is consulted;
// every run the config creates afterwards uses the pinned version.
func (p *Processor) Setup(ctx context.Context, config *models.WebhookConfig) (*models.WebhookConfig, error) {
	flow, err := p.flows.GetByID(ctx, config.FlowID)
	if err != nil {
		return nil, err
	}

	if flow.CurrentVersionID == "" {
		return nil, persistence.ErrVersionNotFound
	}

	version, err := p.versions.GetByID(ctx, flow.CurrentVersionID)
	if err != nil {
		return nil, err
	}

	if _, ok := version.VisualGraph.EdgeByID(config.EntryEdgeID); !ok {
		return nil, fmt.Errorf("setup webhook %s: %w", config.Key, ErrEntryEdgeNotFound)
	}

	config.VersionID = version.ID
	config.Active = true

	if err := p.configs.Save(ctx, config); err != nil {
		return nil, err
	}

	p.logger.InfoContext(ctx, "Webhook config registered",
		"key", config.Key,
		"flow_id", config.FlowID,
		"version_id", config.VersionID)

	return config, nil
}

// Process handles one inbound webhook: verify, validate, create the pinned
// run, fire the entry edge's target node, and acknowledge immediately.
func (p *Processor) Process(ctx context.Context, configKey string, payload []byte, signatureHeader string) (*Result, error) {
	config, err := p.configs.GetByKey(ctx, configKey)
	if err != nil {
		return nil, err
	}

	if !config.Active {
		return nil, persistence.ErrWebhookConfigNotFound
	}

	if !Verify(config.Secret, payload, signatureHeader) {
		return nil, fmt.Errorf("webhook %s: %w", configKey, ErrInvalidSignature)
	}

	input, err := p.validatePayload(config, payload)
	if err != nil {
		return nil, err
	}

	version, err := p.versions.GetByID(ctx, config.VersionID)
	if err != nil {
		return nil, err
	}

	edge, ok := version.VisualGraph.EdgeByID(config.EntryEdgeID)
	if !ok {
		return nil, fmt.Errorf("webhook %s: %w", configKey, ErrEntryEdgeNotFound)
	}

	var entityID *string
	if id, ok := input["entity_id"].(string); ok && id != "" {
		entityID = &id
	}

	created, err := p.manager.CreateRun(ctx, config.FlowID, config.VersionID, run.WebhookTrigger(configKey), entityID, nil, input)
	if err != nil {
		return nil, err
	}

	if _, err := p.manager.FireNodes(ctx, created.ID, edge.TargetID); err != nil {
		return nil, err
	}

	p.logger.InfoContext(ctx, "Webhook accepted",
		"key", configKey,
		"run_id", created.ID,
		"version_id", config.VersionID,
		"entry_node_id", edge.TargetID)

	return &Result{RunID: created.ID, VersionID: config.VersionID, Status: "started"}, nil
}

// validatePayload parses the body as JSON and, when the config carries a
// schema, validates it with gojsonschema.
func (p *Processor) validatePayload(config *models.WebhookConfig, payload []byte) (map[string]any, error) {
	if len(payload) == 0 {
		return map[string]any{}, nil
	}

	var input map[string]any
	if err := json.Unmarshal(payload, &input); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPayload, err.Error())
	}

	if len(config.PayloadSchema) == 0 {
		return input, nil
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(config.PayloadSchema),
		gojsonschema.NewBytesLoader(payload),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPayload, err.Error())
	}

	if !result.Valid() {
		details := ""
		for _, issue := range result.Errors() {
			if details != "" {
				details += "; "
			}

			details += issue.String()
		}

		return nil, fmt.Errorf("%w: %s", ErrInvalidPayload, details)
	}

	return input, nil
}
