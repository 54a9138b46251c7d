package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alexfarlander/stitch-run-sub015/pkg/models"
)

const (
	httpCallTimeout     = 30 * time.Second
	httpCallMaxBodySize = 1024 * 1024
)

// ErrMissingURL indicates an http_call node without a url in its config.
var ErrMissingURL = errors.New("http_call node requires a url")

// HTTPCallWorker posts the run input to a configured URL. Delivery is
// at-least-once: the remote side must tolerate duplicates.
type HTTPCallWorker struct {
	client *http.Client
}

func NewHTTPCallWorker() *HTTPCallWorker {
	return &HTTPCallWorker{
		client: &http.Client{Timeout: httpCallTimeout},
	}
}

func (w *HTTPCallWorker) Type() string {
	return models.ExecNodeTypeHTTPCall
}

func (w *HTTPCallWorker) Invoke(ctx context.Context, config map[string]any, input map[string]any) (models.Outcome, map[string]any, error) {
	url, _ := config["url"].(string)
	if url == "" {
		return models.OutcomeFailure, nil, ErrMissingURL
	}

	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodPost
	}

	body, err := json.Marshal(input)
	if err != nil {
		return models.OutcomeFailure, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), url, bytes.NewReader(body))
	if err != nil {
		return models.OutcomeFailure, nil, err
	}

	req.Header.Set("Content-Type", "application/json")

	if headers, ok := config["headers"].(map[string]any); ok {
		for key, value := range headers {
			if strValue, ok := value.(string); ok {
				req.Header.Set(key, strValue)
			}
		}
	}

	resp, err := w.client.Do(req)
	if err != nil {
		// Network failure is an outcome, not an invocation error.
		return models.OutcomeFailure, map[string]any{"error": err.Error()}, nil
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, httpCallMaxBodySize))
	if err != nil {
		return models.OutcomeFailure, map[string]any{"status_code": resp.StatusCode}, nil
	}

	output := map[string]any{"status_code": resp.StatusCode}

	var parsed map[string]any
	if json.Unmarshal(raw, &parsed) == nil {
		output["body"] = parsed
	} else if len(raw) > 0 {
		output["body"] = string(raw)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return models.OutcomeFailure, output, nil
	}

	return models.OutcomeSuccess, output, nil
}
