package model

import (
	"encoding/json"
	"fmt"
)

// Encode serializes a fitted model to its artifact form.
func Encode(m *Model) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal model artifact: %w", err)
	}
	return data, nil
}

// Decode deserializes and validates a model artifact. A corrupt or
// schema-incompatible artifact is rejected here, before it can be published
// to the serving path.
func Decode(data []byte) (*Model, error) {
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal model artifact: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model artifact: %w", err)
	}
	return &m, nil
}
