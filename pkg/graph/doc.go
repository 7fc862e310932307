// Package graph provides the replicated key-value graph store used by streams.
//
// # Overview
//
// The graph is a set of nodes addressed by a soul (an address string such as
// "~{pub}" or "messages~{pub}."). Each node is a flat map of fields. A field
// holds a primitive (string, number, bool), a link to another node
// ({"#": soul}) or null. Null is a tombstone: nodes are never physically
// removed, a collection "deletes" a member by nulling its link.
//
// Every field carries a state (a logical write timestamp in milliseconds).
// Writes are resolved last-write-wins on that state, so replicas that see the
// same writes in any order converge on the same node.
//
// # Primitives
//
//	Get / Once  one-shot read of a node
//	Put         single-field, optionally signed, write
//	Set         append a new node to a collection
//	On          replay a node, then stream its live changes
//	OnMap       replay every member of a collection, then stream member changes
//	OnLink      follow a link field and stream the linked node
//
// Subscriptions are at-least-once: they replay history on subscribe and may
// deliver the same change more than once. Consumers must be idempotent.
//
// # Redis Schema
//
// Nodes: streams:{namespace}:node:{soul} (hash, field -> JSON value)
// Field states: streams:{namespace}:state:{soul} (hash, field -> state)
// Write events: streams:{namespace}:write_events (Pub/Sub)
package graph
