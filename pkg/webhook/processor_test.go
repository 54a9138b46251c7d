package webhook

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexfarlander/stitch-run-sub015/pkg/models"
	"github.com/alexfarlander/stitch-run-sub015/pkg/persistence"
	"github.com/alexfarlander/stitch-run-sub015/pkg/persistence/file"
	"github.com/alexfarlander/stitch-run-sub015/pkg/run"
	"github.com/alexfarlander/stitch-run-sub015/pkg/testutil"
)

func newTestProcessor(t *testing.T) (*file.Persistence, *Processor) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := file.NewPersistence(t.TempDir())
	manager := run.NewManager(store, nil, nil, logger)

	return store, NewProcessor(store, manager, logger)
}

func seedWebhookFlow(t *testing.T, store *file.Persistence) (*models.Flow, *models.FlowVersion) {
	t.Helper()

	flow := testutil.CreateTestFlow()
	version := testutil.CreateTestVersion(flow.ID)
	require.NoError(t, store.VersionRepository().Create(t.Context(), version))

	flow.CurrentVersionID = version.ID
	require.NoError(t, store.FlowRepository().Save(t.Context(), flow))

	return flow, version
}

func TestProcessor_Setup(t *testing.T) {
	store, processor := newTestProcessor(t)
	flow, version := seedWebhookFlow(t, store)

	t.Run("pins the current version", func(t *testing.T) {
		config, err := processor.Setup(t.Context(), &models.WebhookConfig{
			Key:         "intake",
			FlowID:      flow.ID,
			EntryEdgeID: "a-b",
		})
		require.NoError(t, err)

		assert.Equal(t, version.ID, config.VersionID)
		assert.True(t, config.Active)
	})

	t.Run("rejects an entry edge missing from the graph", func(t *testing.T) {
		_, err := processor.Setup(t.Context(), &models.WebhookConfig{
			Key:         "broken",
			FlowID:      flow.ID,
			EntryEdgeID: "ghost-edge",
		})
		assert.ErrorIs(t, err, ErrEntryEdgeNotFound)
	})

	t.Run("rejects a flow without versions", func(t *testing.T) {
		bare := testutil.CreateTestFlow()
		require.NoError(t, store.FlowRepository().Save(t.Context(), bare))

		_, err := processor.Setup(t.Context(), &models.WebhookConfig{
			Key:         "bare",
			FlowID:      bare.ID,
			EntryEdgeID: "a-b",
		})
		assert.ErrorIs(t, err, persistence.ErrVersionNotFound)
	})
}

func TestProcessor_Process(t *testing.T) {
	store, processor := newTestProcessor(t)
	flow, version := seedWebhookFlow(t, store)

	config, err := processor.Setup(t.Context(), &models.WebhookConfig{
		Key:         "intake",
		FlowID:      flow.ID,
		EntryEdgeID: "a-b",
		Secret:      "secret",
	})
	require.NoError(t, err)

	t.Run("starts a run pinned to the setup-time version", func(t *testing.T) {
		payload := []byte(`{"entity_id":"e1","source":"form"}`)

		result, err := processor.Process(t.Context(), "intake", payload, Sign("secret", payload))
		require.NoError(t, err)

		assert.Equal(t, "started", result.Status)
		assert.Equal(t, version.ID, result.VersionID)

		created, err := store.RunRepository().GetByID(t.Context(), result.RunID)
		require.NoError(t, err)
		assert.Equal(t, models.TriggerTypeWebhook, created.Trigger.Type)
		require.NotNil(t, created.EntityID)
		assert.Equal(t, "e1", *created.EntityID)

		// Entry edge a-b activates its target node.
		assert.Equal(t, models.NodeStatusRunning, created.NodeStates["b"].Status)
		assert.Equal(t, models.NodeStatusPending, created.NodeStates["a"].Status)
	})

	t.Run("a new version does not rebind the webhook", func(t *testing.T) {
		visual, execution := testutil.LinearGraphs("a", "b", "c", "d")
		newer := testutil.CreateTestVersion(flow.ID, testutil.WithGraphs(visual, execution))
		require.NoError(t, store.VersionRepository().Create(t.Context(), newer))

		flow.CurrentVersionID = newer.ID
		require.NoError(t, store.FlowRepository().Save(t.Context(), flow))

		payload := []byte(`{}`)

		result, err := processor.Process(t.Context(), "intake", payload, Sign("secret", payload))
		require.NoError(t, err)
		assert.Equal(t, version.ID, result.VersionID)
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := processor.Process(t.Context(), "missing", nil, "")
		assert.ErrorIs(t, err, persistence.ErrWebhookConfigNotFound)
	})

	t.Run("malformed JSON is rejected", func(t *testing.T) {
		payload := []byte(`{not json`)

		_, err := processor.Process(t.Context(), "intake", payload, Sign("secret", payload))
		assert.ErrorIs(t, err, ErrInvalidPayload)
	})

	t.Run("inactive config behaves like a missing one", func(t *testing.T) {
		config.Active = false
		require.NoError(t, store.WebhookConfigRepository().Save(t.Context(), config))

		_, err := processor.Process(t.Context(), "intake", []byte(`{}`), "")
		assert.ErrorIs(t, err, persistence.ErrWebhookConfigNotFound)
	})
}

func TestProcessor_InvalidSignatureCreatesNoRun(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	root := t.TempDir()
	store := file.NewPersistence(root)
	manager := run.NewManager(store, nil, nil, logger)
	processor := NewProcessor(store, manager, logger)

	flow, _ := seedWebhookFlow(t, store)

	_, err := processor.Setup(t.Context(), &models.WebhookConfig{
		Key:         "intake",
		FlowID:      flow.ID,
		EntryEdgeID: "a-b",
		Secret:      "secret",
	})
	require.NoError(t, err)

	_, err = processor.Process(t.Context(), "intake", []byte(`{"entity_id":"e2"}`), "sha256=forged")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	// The store never saw a run document for the rejected delivery.
	entries, err := os.ReadDir(filepath.Join(root, "runs"))
	if !errors.Is(err, os.ErrNotExist) {
		require.NoError(t, err)
		assert.Empty(t, entries)
	}
}

func TestProcessor_PayloadSchema(t *testing.T) {
	store, processor := newTestProcessor(t)
	flow, _ := seedWebhookFlow(t, store)

	_, err := processor.Setup(t.Context(), &models.WebhookConfig{
		Key:         "strict",
		FlowID:      flow.ID,
		EntryEdgeID: "a-b",
		PayloadSchema: map[string]any{
			"type":     "object",
			"required": []any{"entity_id"},
			"properties": map[string]any{
				"entity_id": map[string]any{"type": "string"},
			},
		},
	})
	require.NoError(t, err)

	t.Run("conforming payload passes", func(t *testing.T) {
		result, err := processor.Process(t.Context(), "strict", []byte(`{"entity_id":"e1"}`), "")
		require.NoError(t, err)
		assert.Equal(t, "started", result.Status)
	})

	t.Run("missing required field fails", func(t *testing.T) {
		_, err := processor.Process(t.Context(), "strict", []byte(`{"other":"x"}`), "")
		assert.ErrorIs(t, err, ErrInvalidPayload)
	})
}
