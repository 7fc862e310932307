package graph

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Serialization helpers for converting between nodes and Redis hashes
//
// Each node is stored as two hashes sharing the same field names: one holds
// the JSON-encoded value, the other the field's last-write-wins state.

// EncodeValue returns the hash representation of a value.
func EncodeValue(v Value) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal value: %w", err)
	}
	return string(data), nil
}

// DecodeValue parses the hash representation of a value.
func DecodeValue(raw string) (Value, error) {
	var v Value
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return Null(), fmt.Errorf("failed to unmarshal value: %w", err)
	}
	return v, nil
}

// HashToNode converts the value and state hashes of a node back to a Node.
// A field without a parseable state keeps state 0, so any later write wins.
func HashToNode(soul string, values, states map[string]string) (*Node, error) {
	node := NewNode(soul)
	for field, raw := range values {
		v, err := DecodeValue(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid field %q: %w", field, err)
		}
		node.Fields[field] = v

		state, _ := strconv.ParseInt(states[field], 10, 64)
		node.State[field] = state
	}
	return node, nil
}
