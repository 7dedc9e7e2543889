package cache

import (
	"encoding/json"
	"fmt"

	"github.com/rockcut/gridformula/pkg/types"
)

// envelope is the wire form of a cached value for out-of-process strategies.
type envelope struct {
	Value     interface{} `json:"v"`
	Undefined bool        `json:"u,omitempty"`
}

// Encode serializes a formula value for storage.
func Encode(v interface{}) ([]byte, error) {
	env := envelope{Value: types.Normalize(v)}
	if types.IsUndefined(v) {
		env = envelope{Undefined: true}
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return b, nil
}

// Decode is the inverse of Encode.
func Decode(data []byte) (interface{}, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	if env.Undefined {
		return types.Undefined, nil
	}
	return env.Value, nil
}
