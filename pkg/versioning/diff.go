package versioning

import (
	"bytes"
	"encoding/json"

	"github.com/alexfarlander/stitch-run-sub015/pkg/models"
)

// graphsEqual compares two visual graphs by canonical JSON encoding.
// Positions count: moving a node on the canvas is an edit worth a version.
func graphsEqual(a, b *models.VisualGraph) bool {
	left, err := json.Marshal(a)
	if err != nil {
		return false
	}

	right, err := json.Marshal(b)
	if err != nil {
		return false
	}

	return bytes.Equal(left, right)
}
