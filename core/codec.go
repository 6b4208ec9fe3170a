package core

import (
	"encoding/json"
	"fmt"
)

// Encode serializes a payload for the wire. A nil value encodes to nil and
// a []byte is taken as already encoded.
func Encode(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.([]byte); ok {
		return raw, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return data, nil
}

// Decode deserializes a payload into v. An empty payload leaves v untouched.
// Malformed input is reported as ErrInvalidArgument.
func Decode(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return nil
}

// Reply encodes a handler result, letting handlers write
// `return core.Reply(resp)`.
func Reply(v any) ([]byte, error) {
	return Encode(v)
}
