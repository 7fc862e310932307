// Package ordering implements fractional indices: order keys for sibling
// lists that allow inserting an item between any two neighbours without
// rewriting the position of any other item.
//
// An index is a sequence of parts. Each part is a sibling identifier or the
// minimum sentinel. Indices compare lexicographically, with a missing part and
// the sentinel both sorting as the minimum, so a prefix sorts before every
// index that extends it.
package ordering

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Part is one element of an index. The zero Part is the minimum sentinel.
type Part struct {
	id    string
	valid bool
}

// Key returns the part holding a sibling identifier.
func Key(id string) Part {
	return Part{id: id, valid: true}
}

// Sentinel returns the minimum part.
func Sentinel() Part {
	return Part{}
}

// IsSentinel reports whether p is the minimum sentinel.
func (p Part) IsSentinel() bool {
	return !p.valid
}

// ID returns the identifier held by p, "" for the sentinel.
func (p Part) ID() string {
	return p.id
}

// comparePart orders two parts. The sentinel is below every identifier.
func comparePart(a, b Part) int {
	switch {
	case !a.valid && !b.valid:
		return 0
	case !a.valid:
		return -1
	case !b.valid:
		return 1
	default:
		return strings.Compare(a.id, b.id)
	}
}

// Index is an order key.
type Index []Part

// Of builds an index from identifiers.
func Of(ids ...string) Index {
	idx := make(Index, len(ids))
	for i, id := range ids {
		idx[i] = Key(id)
	}
	return idx
}

// at returns the part at position i, or the sentinel past the end.
func (idx Index) at(i int) (Part, bool) {
	if i < len(idx) {
		return idx[i], true
	}
	return Sentinel(), false
}

// String renders the index in its wire format.
func (idx Index) String() string {
	data, err := json.Marshal(idx)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// MarshalJSON encodes the index as a JSON array of strings, the sentinel as null.
func (idx Index) MarshalJSON() ([]byte, error) {
	parts := make([]*string, len(idx))
	for i, p := range idx {
		if p.valid {
			id := p.id
			parts[i] = &id
		}
	}
	return json.Marshal(parts)
}

// UnmarshalJSON decodes the format written by MarshalJSON.
func (idx *Index) UnmarshalJSON(data []byte) error {
	var parts []*string
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("invalid index: %w", err)
	}
	out := make(Index, len(parts))
	for i, p := range parts {
		if p != nil {
			out[i] = Key(*p)
		}
	}
	*idx = out
	return nil
}

// IndexOf parses a stored index field. An empty raw value means the item was
// never positioned explicitly; it then sorts as [id].
func IndexOf(id, raw string) (Index, error) {
	if strings.TrimSpace(raw) == "" || raw == "null" {
		return Of(id), nil
	}
	var idx Index
	if err := json.Unmarshal([]byte(raw), &idx); err != nil {
		return nil, err
	}
	if len(idx) == 0 {
		return Of(id), nil
	}
	return idx, nil
}

// between reports whether key sits strictly between lower and upper.
// A missing or sentinel lower bound is satisfied. A missing upper bound is
// unbounded; a sentinel upper bound can never be satisfied.
func between(key string, lower Part, upper Part, hasUpper bool) bool {
	if lower.valid && !(lower.id < key) {
		return false
	}
	if !hasUpper {
		return true
	}
	return upper.valid && key < upper.id
}

// Between returns the index for key placed after previous and before next.
// Either neighbour may be nil. With no neighbours the index is [key].
//
// The walk copies previous part by part until key fits strictly between the
// neighbours' parts at the current depth, then appends key.
func Between(key string, previous, next Index) Index {
	var idx Index
	for i := 0; ; i++ {
		lower, _ := previous.at(i)
		upper, hasUpper := next.at(i)
		if between(key, lower, upper, hasUpper) {
			break
		}
		idx = append(idx, lower)
	}
	return append(idx, Key(key))
}

// Compare orders two indices lexicographically. It returns 0 when they agree
// at every position, which distinct siblings can do; use CompareWithID for
// a strict order.
func Compare(a, b Index) int {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		pa, _ := a.at(i)
		pb, _ := b.at(i)
		if c := comparePart(pa, pb); c != 0 {
			return c
		}
	}
	return 0
}

// CompareWithID orders two siblings by index, then by identifier.
func CompareWithID(a Index, aID string, b Index, bID string) int {
	if c := Compare(a, b); c != 0 {
		return c
	}
	return strings.Compare(aID, bID)
}

// Sort orders siblings in place by CompareWithID.
func Sort[T any](items []T, id func(T) string, index func(T) Index) {
	sort.SliceStable(items, func(i, j int) bool {
		return CompareWithID(index(items[i]), id(items[i]), index(items[j]), id(items[j])) < 0
	})
}
