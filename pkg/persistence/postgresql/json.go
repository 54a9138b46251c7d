package postgresql

import (
	"encoding/json"
	"fmt"
)

// marshalJSON renders a value for a JSONB column; nil maps become SQL NULL.
func marshalJSON(value any) (any, error) {
	if value == nil {
		return nil, nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal json column: %w", err)
	}

	return data, nil
}

// unmarshalJSON fills target from a JSONB column, tolerating SQL NULL.
func unmarshalJSON(data []byte, target any) error {
	if len(data) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to unmarshal json column: %w", err)
	}

	return nil
}
