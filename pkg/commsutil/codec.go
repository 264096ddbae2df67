package commsutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

const codecLogPrefix = "commsutil:codec"

// ErrNotObject is returned for event payloads that are not JSON objects.
var ErrNotObject = errors.New("commsutil: event payload is not a JSON object")

// EncodeEvent serializes an event for publishing. Events are always JSON objects so subscribers can
// decode them without knowing the concrete type first.
func EncodeEvent(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%s - encode: %w", codecLogPrefix, err)
	}
	if len(data) == 0 || data[0] != '{' {
		return nil, fmt.Errorf("%s - %T: %w", codecLogPrefix, v, ErrNotObject)
	}
	return data, nil
}

// DecodeEvent decodes a published event. Unknown fields are ignored so older subscribers keep working
// when events grow.
func DecodeEvent[T any](data []byte) (*T, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%s - decode: %w", codecLogPrefix, ErrNotObject)
	}
	var out T
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return nil, fmt.Errorf("%s - decode: %w", codecLogPrefix, err)
	}
	return &out, nil
}
