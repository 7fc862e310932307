// Package listener coalesces per-key change notifications into batches and
// keeps a tombstone-aware view of the latest snapshot per key.
package listener

import (
	"sync"
	"time"

	"github.com/dyluth/streams/pkg/graph"
)

// DefaultWindow is how long changes are coalesced after a delivery.
const DefaultWindow = 200 * time.Millisecond

// Change is one keyed update. A nil Data with a null Value is a tombstone:
// remove the key from the view. Primitive collection members carry Value
// and no Data.
type Change struct {
	Key   string
	Data  *graph.Node
	Value graph.Value
}

// Removed reports whether the change is a tombstone.
func (c Change) Removed() bool {
	return c.Data == nil && c.Value.IsNull()
}

// Listener receives batches of changes.
type Listener func(changes []Change)

// Batcher turns a stream of single changes into batches.
//
// The first change of a quiet period is delivered on its own, immediately.
// Changes that follow within the window are queued and delivered together
// when the window ends, after which the next change is again immediate.
// The listener is never called concurrently.
type Batcher struct {
	window   time.Duration
	listener Listener
	now      func() time.Time

	mu      sync.Mutex
	last    time.Time
	queue   []Change
	timer   *time.Timer
	stopped bool

	deliverMu sync.Mutex
}

// NewBatcher returns a batcher delivering to listener. A window of zero or
// less means DefaultWindow.
func NewBatcher(window time.Duration, listener Listener) *Batcher {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Batcher{
		window:   window,
		listener: listener,
		now:      time.Now,
	}
}

// Add records one change.
func (b *Batcher) Add(c Change) {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}

	if len(b.queue) > 0 {
		b.queue = append(b.queue, c)
		b.mu.Unlock()
		return
	}

	now := b.now()
	if b.last.IsZero() || now.Sub(b.last) > b.window {
		b.last = now
		b.mu.Unlock()
		b.deliver([]Change{c})
		return
	}

	b.queue = append(b.queue, c)
	b.timer = time.AfterFunc(b.window, b.flush)
	b.mu.Unlock()
}

// Node adapts the batcher to a graph node callback.
func (b *Batcher) Node() graph.NodeFunc {
	return func(node *graph.Node, key string) {
		b.Add(Change{Key: key, Data: node})
	}
}

// Item adapts the batcher to a graph collection callback.
func (b *Batcher) Item() graph.MapFunc {
	return func(item graph.Item) {
		b.Add(Change{Key: item.Key, Data: item.Node, Value: item.Value})
	}
}

// Flush delivers queued changes now.
func (b *Batcher) Flush() {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
	}
	b.mu.Unlock()
	b.flush()
}

// Stop cancels a pending flush and drops queued changes. Later changes are
// ignored.
func (b *Batcher) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.queue = nil
}

func (b *Batcher) flush() {
	b.mu.Lock()
	batch := b.queue
	b.queue = nil
	b.timer = nil
	b.last = time.Time{}
	stopped := b.stopped
	b.mu.Unlock()

	if stopped || len(batch) == 0 {
		return
	}
	b.deliver(batch)
}

func (b *Batcher) deliver(batch []Change) {
	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()
	b.listener(batch)
}

// Batch wraps each listener in its own batcher.
func Batch(window time.Duration, listeners ...Listener) []*Batcher {
	batchers := make([]*Batcher, len(listeners))
	for i, l := range listeners {
		batchers[i] = NewBatcher(window, l)
	}
	return batchers
}
