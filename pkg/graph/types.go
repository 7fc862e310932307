package graph

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Kind identifies what a field value holds.
type Kind int

const (
	// KindNull is the tombstone value. It is also the zero Value.
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindLink
)

// Value is a single field value: a primitive, a link or null.
type Value struct {
	kind Kind
	str  string
	num  float64
	flag bool
}

// Null returns the tombstone value.
func Null() Value { return Value{} }

// Str returns a string value.
func Str(s string) Value { return Value{kind: KindString, str: s} }

// Num returns a number value.
func Num(n float64) Value { return Value{kind: KindNumber, num: n} }

// Flag returns a boolean value.
func Flag(b bool) Value { return Value{kind: KindBool, flag: b} }

// LinkTo returns a link to the node at soul.
func LinkTo(soul string) Value { return Value{kind: KindLink, str: soul} }

// Kind reports what the value holds.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the tombstone value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsString returns the string held by v.
func (v Value) AsString() (string, bool) {
	return v.str, v.kind == KindString
}

// AsNumber returns the number held by v.
func (v Value) AsNumber() (float64, bool) {
	return v.num, v.kind == KindNumber
}

// AsBool returns the boolean held by v.
func (v Value) AsBool() (bool, bool) {
	return v.flag, v.kind == KindBool
}

// AsLink returns the soul a link value points to.
func (v Value) AsLink() (string, bool) {
	return v.str, v.kind == KindLink
}

// String renders the value for display and logs.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.flag)
	case KindLink:
		return "#" + v.str
	default:
		return "null"
	}
}

// MarshalJSON encodes the value in the wire format. Links are {"#": soul}.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.flag)
	case KindLink:
		return json.Marshal(map[string]string{"#": v.str})
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes the wire format produced by MarshalJSON.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch t := raw.(type) {
	case nil:
		*v = Null()
	case string:
		*v = Str(t)
	case float64:
		*v = Num(t)
	case bool:
		*v = Flag(t)
	case map[string]interface{}:
		soul, ok := t["#"].(string)
		if !ok || len(t) != 1 {
			return fmt.Errorf("invalid link value: %s", string(data))
		}
		*v = LinkTo(soul)
	default:
		return fmt.Errorf("unsupported value: %s", string(data))
	}
	return nil
}

// Node is a snapshot of one graph node.
type Node struct {
	Soul   string           `json:"soul"`          // address of the node
	Get    string           `json:"get,omitempty"` // address the node was requested by, when reached through a link
	Fields map[string]Value `json:"fields"`
	State  map[string]int64 `json:"state"` // field -> last-write-wins state (ms)
}

// NewNode returns an empty node for soul.
func NewNode(soul string) *Node {
	return &Node{
		Soul:   soul,
		Fields: make(map[string]Value),
		State:  make(map[string]int64),
	}
}

// Clone returns a deep copy of n. Clone of nil is nil.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{
		Soul:   n.Soul,
		Get:    n.Get,
		Fields: make(map[string]Value, len(n.Fields)),
		State:  make(map[string]int64, len(n.State)),
	}
	for k, v := range n.Fields {
		out.Fields[k] = v
	}
	for k, s := range n.State {
		out.State[k] = s
	}
	return out
}

// Value returns the raw value of field.
func (n *Node) Value(field string) (Value, bool) {
	if n == nil {
		return Null(), false
	}
	v, ok := n.Fields[field]
	return v, ok
}

// String returns the string held by field, if any.
func (n *Node) String(field string) (string, bool) {
	v, ok := n.Value(field)
	if !ok {
		return "", false
	}
	return v.AsString()
}

// Link returns the soul a link field points to, if any.
func (n *Node) Link(field string) (string, bool) {
	v, ok := n.Value(field)
	if !ok {
		return "", false
	}
	return v.AsLink()
}

// Keys returns the node's field names in sorted order.
func (n *Node) Keys() []string {
	keys := make([]string, 0, len(n.Fields))
	for k := range n.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Apply merges a write event into the node, last-write-wins on state.
// Returns false when the event is older than what the node already holds.
func (n *Node) Apply(ev WriteEvent) bool {
	if n.Fields == nil {
		n.Fields = make(map[string]Value)
	}
	if n.State == nil {
		n.State = make(map[string]int64)
	}
	if current, ok := n.State[ev.Field]; ok {
		if ev.State < current {
			return false
		}
		if ev.State == current && !wins(ev.Value, n.Fields[ev.Field]) {
			return false
		}
	}
	n.Fields[ev.Field] = ev.Value
	n.State[ev.Field] = ev.State
	return true
}

// wins breaks a state tie by comparing the encoded values lexically, so every
// replica picks the same winner.
func wins(incoming, current Value) bool {
	a, _ := json.Marshal(incoming)
	b, _ := json.Marshal(current)
	return string(a) > string(b)
}

// Write is a single-field mutation of one node.
type Write struct {
	Soul      string // node address
	Field     string
	Value     Value
	State     int64  // logical write timestamp (ms)
	Pub       string // signer public key, required for user-space souls
	Signature string // signature over (Soul, Field, Value, State)
}

// Validate checks the write is well formed. Signature checks are done by the
// client's Verifier.
func (w *Write) Validate() error {
	if w.Soul == "" {
		return fmt.Errorf("soul cannot be empty")
	}
	if w.Field == "" {
		return fmt.Errorf("field cannot be empty")
	}
	if w.State <= 0 {
		return fmt.Errorf("invalid state: must be > 0, got %d", w.State)
	}
	return nil
}

// WriteEvent is published on the namespace channel after a write is applied.
type WriteEvent struct {
	EventID string `json:"event_id"`
	Soul    string `json:"soul"`
	Field   string `json:"field"`
	Value   Value  `json:"value"`
	State   int64  `json:"state"`
}
