package graph

import "fmt"

// Redis key pattern helpers
//
// All keys and channels are namespaced so several independent graphs can
// share one Redis server.
//
// Key pattern: streams:{namespace}:{kind}:{soul}
// Channel pattern: streams:{namespace}:write_events

// NodeKey returns the Redis key of the hash holding a node's field values.
// Pattern: streams:{namespace}:node:{soul}
func NodeKey(namespace, soul string) string {
	return fmt.Sprintf("streams:%s:node:%s", namespace, soul)
}

// StateKey returns the Redis key of the hash holding a node's field states.
// Pattern: streams:{namespace}:state:{soul}
func StateKey(namespace, soul string) string {
	return fmt.Sprintf("streams:%s:state:%s", namespace, soul)
}

// NodePattern returns the SCAN pattern matching every node of a namespace.
func NodePattern(namespace string) string {
	return fmt.Sprintf("streams:%s:node:*", namespace)
}

// WriteEventsChannel returns the Pub/Sub channel carrying applied writes.
// Pattern: streams:{namespace}:write_events
func WriteEventsChannel(namespace string) string {
	return fmt.Sprintf("streams:%s:write_events", namespace)
}
