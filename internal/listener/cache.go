package listener

import (
	"sort"
	"sync"

	"github.com/dyluth/streams/pkg/graph"
)

// Cache is the live view built from batches: the merged snapshot of every
// key that has not been removed. It is safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*graph.Node
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*graph.Node)}
}

// Apply merges changes in order. Present data is merged field by field over
// the key's previous snapshot by field state; a tombstone removes the key. Primitive
// changes carry no snapshot and are skipped.
func (c *Cache) Apply(changes []Change) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range changes {
		if ch.Data == nil {
			if ch.Removed() {
				delete(c.entries, ch.Key)
			}
			continue
		}
		c.entries[ch.Key] = merge(c.entries[ch.Key], ch.Data)
	}
}

// merge folds data into current field by field. A field only replaces the
// current one when its state wins, so replaying an older snapshot is a no-op.
// Fields without a state always win.
func merge(current, data *graph.Node) *graph.Node {
	if current == nil {
		return data.Clone()
	}
	out := current.Clone()
	if data.Soul != "" {
		out.Soul = data.Soul
	}
	if data.Get != "" {
		out.Get = data.Get
	}
	for f, v := range data.Fields {
		state, ok := data.State[f]
		if !ok {
			out.Fields[f] = v
			continue
		}
		out.Apply(graph.WriteEvent{Soul: out.Soul, Field: f, Value: v, State: state})
	}
	return out
}

// Get returns a copy of the snapshot stored under key.
func (c *Cache) Get(key string) (*graph.Node, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.entries[key]
	return n.Clone(), ok
}

// Len returns the number of live keys.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Keys returns the live keys in sorted order.
func (c *Cache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns a copy of every live entry.
func (c *Cache) Snapshot() map[string]*graph.Node {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]*graph.Node, len(c.entries))
	for k, n := range c.entries {
		out[k] = n.Clone()
	}
	return out
}

// Values returns a copy of every live entry, ordered by key.
func (c *Cache) Values() []*graph.Node {
	snapshot := c.Snapshot()
	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := make([]*graph.Node, len(keys))
	for i, k := range keys {
		values[i] = snapshot[k]
	}
	return values
}

// Reset replaces the content of c with a copy of entries.
func (c *Cache) Reset(entries map[string]*graph.Node) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*graph.Node, len(entries))
	for k, n := range entries {
		c.entries[k] = n.Clone()
	}
}
