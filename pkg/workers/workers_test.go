package workers

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexfarlander/stitch-run-sub015/pkg/models"
)

func TestHTTPCallWorker(t *testing.T) {
	worker := NewHTTPCallWorker()

	t.Run("posts input and returns success on 2xx", func(t *testing.T) {
		var gotBody []byte

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotBody, _ = io.ReadAll(r.Body)
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"ok":true}`))
		}))
		defer server.Close()

		outcome, output, err := worker.Invoke(t.Context(),
			map[string]any{"url": server.URL},
			map[string]any{"entity_id": "e1"})
		require.NoError(t, err)

		assert.Equal(t, models.OutcomeSuccess, outcome)
		assert.JSONEq(t, `{"entity_id":"e1"}`, string(gotBody))
		assert.Equal(t, 200, output["status_code"])
		assert.Equal(t, map[string]any{"ok": true}, output["body"])
	})

	t.Run("non-2xx is a failure outcome", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		outcome, output, err := worker.Invoke(t.Context(), map[string]any{"url": server.URL}, nil)
		require.NoError(t, err)
		assert.Equal(t, models.OutcomeFailure, outcome)
		assert.Equal(t, 502, output["status_code"])
	})

	t.Run("network failure is an outcome, not an error", func(t *testing.T) {
		outcome, output, err := worker.Invoke(t.Context(),
			map[string]any{"url": "http://127.0.0.1:0"}, nil)
		require.NoError(t, err)
		assert.Equal(t, models.OutcomeFailure, outcome)
		assert.Contains(t, output, "error")
	})

	t.Run("missing url is an invocation error", func(t *testing.T) {
		_, _, err := worker.Invoke(t.Context(), map[string]any{}, nil)
		assert.ErrorIs(t, err, ErrMissingURL)
	})
}

func TestTransformWorker(t *testing.T) {
	worker := NewTransformWorker()

	t.Run("maps dot paths into output fields", func(t *testing.T) {
		input := map[string]any{
			"lead": map[string]any{"email": "a@example.com", "score": 42},
		}
		config := map[string]any{
			"mapping": map[string]any{
				"email":   "lead.email",
				"score":   "lead.score",
				"missing": "lead.phone",
			},
		}

		outcome, output, err := worker.Invoke(t.Context(), config, input)
		require.NoError(t, err)
		assert.Equal(t, models.OutcomeSuccess, outcome)
		assert.Equal(t, "a@example.com", output["email"])
		assert.Equal(t, 42, output["score"])
		assert.NotContains(t, output, "missing")
	})

	t.Run("no mapping is the identity transform", func(t *testing.T) {
		input := map[string]any{"k": "v"}

		outcome, output, err := worker.Invoke(t.Context(), map[string]any{}, input)
		require.NoError(t, err)
		assert.Equal(t, models.OutcomeSuccess, outcome)
		assert.Equal(t, input, output)
	})
}

func TestRegistry(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := NewRegistry(logger)

	t.Run("built-in workers are registered", func(t *testing.T) {
		outcome, _, err := registry.Invoke(t.Context(), models.ExecNodeTypeTransform, nil, map[string]any{"k": "v"})
		require.NoError(t, err)
		assert.Equal(t, models.OutcomeSuccess, outcome)
	})

	t.Run("listener has no worker", func(t *testing.T) {
		_, _, err := registry.Invoke(t.Context(), models.ExecNodeTypeListener, nil, nil)
		assert.ErrorIs(t, err, ErrUnknownNodeType)
	})

	t.Run("duplicate registration is rejected", func(t *testing.T) {
		err := registry.Register(NewTransformWorker())
		assert.ErrorIs(t, err, ErrDuplicateWorker)
	})
}
