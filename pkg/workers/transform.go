package workers

import (
	"context"
	"strings"

	"github.com/alexfarlander/stitch-run-sub015/pkg/models"
)

// TransformWorker reshapes the run input according to a field mapping.
// Config: {"mapping": {"out_field": "in.path"}} where paths are dot-joined
// keys into the input map. Missing paths are skipped.
type TransformWorker struct{}

func NewTransformWorker() *TransformWorker {
	return &TransformWorker{}
}

func (w *TransformWorker) Type() string {
	return models.ExecNodeTypeTransform
}

func (w *TransformWorker) Invoke(_ context.Context, config map[string]any, input map[string]any) (models.Outcome, map[string]any, error) {
	mapping, ok := config["mapping"].(map[string]any)
	if !ok || len(mapping) == 0 {
		// Identity transform.
		return models.OutcomeSuccess, input, nil
	}

	output := make(map[string]any, len(mapping))

	for outField, pathValue := range mapping {
		path, ok := pathValue.(string)
		if !ok {
			continue
		}

		if value, found := lookupPath(input, path); found {
			output[outField] = value
		}
	}

	return models.OutcomeSuccess, output, nil
}

// lookupPath resolves a dot-joined key path inside nested maps.
func lookupPath(data map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	current := any(data)

	for _, part := range parts {
		asMap, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = asMap[part]
		if !ok {
			return nil, false
		}
	}

	return current, true
}
