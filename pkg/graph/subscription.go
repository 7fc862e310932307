package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
)

// NodeFunc receives a node snapshot and the key it was delivered under.
// node is nil when the key was removed or does not exist yet.
type NodeFunc func(node *Node, key string)

// Item is one member of a collection as delivered by OnMap.
// For link members Node holds the linked node's snapshot; for primitive
// members Value holds the primitive. A null Value with a nil Node is a
// tombstone.
type Item struct {
	Key   string
	Value Value
	Node  *Node
}

// Removed reports whether the item is a tombstone.
func (i Item) Removed() bool {
	return i.Node == nil && i.Value.IsNull()
}

// MapFunc receives collection members.
type MapFunc func(item Item)

// Subscription represents an active Pub/Sub subscription to graph writes.
// Caller must call Close() when done to clean up resources.
// Callbacks run on the subscription's own goroutine, one at a time.
type Subscription struct {
	errors <-chan error
	done   <-chan struct{}
	cancel func()
	once   sync.Once
}

// Errors returns the channel of subscription errors.
// Errors are non-fatal: the subscription keeps delivering after them.
// Errors are dropped when nobody drains the channel.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Done is closed once the subscription goroutine has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close stops the subscription. Implements io.Closer.
// Safe to call multiple times, and from inside a callback.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// subscribe confirms a Pub/Sub subscription on the namespace channel, runs
// replay and then feeds every write event to handle until ctx is cancelled
// or the subscription is closed.
func (c *Client) subscribe(ctx context.Context, replay func(context.Context) error, handle func(context.Context, WriteEvent) error) (*Subscription, error) {
	pubsub := c.rdb.Subscribe(ctx, WriteEventsChannel(c.namespace))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to write events: %w", err)
	}

	// Start buffering live events before the replay reads history.
	ch := pubsub.Channel()

	errorsChan := make(chan error, 10)
	done := make(chan struct{})
	subCtx, cancelFunc := context.WithCancel(ctx)

	report := func(err error) {
		select {
		case errorsChan <- err:
		default:
			log.Printf("[Graph] Dropped subscription error: %v", err)
		}
	}

	go func() {
		defer close(done)
		defer close(errorsChan)
		defer pubsub.Close()

		if err := replay(subCtx); err != nil {
			report(err)
		}

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var event WriteEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					report(fmt.Errorf("failed to unmarshal write event: %w", err))
					continue
				}

				if err := handle(subCtx, event); err != nil {
					report(err)
				}
			}
		}
	}()

	return &Subscription{
		errors: errorsChan,
		done:   done,
		cancel: cancelFunc,
	}, nil
}

// On replays the node at soul, then delivers a fresh snapshot on every
// applied write to it. fn receives the soul as key.
func (c *Client) On(ctx context.Context, soul string, fn NodeFunc) (*Subscription, error) {
	var node *Node

	replay := func(ctx context.Context) error {
		n, err := c.Get(ctx, soul)
		if err != nil {
			if IsNotFound(err) {
				return nil
			}
			return err
		}
		node = n
		fn(node.Clone(), soul)
		return nil
	}

	handle := func(ctx context.Context, ev WriteEvent) error {
		if ev.Soul != soul {
			return nil
		}
		if node == nil {
			node = NewNode(soul)
		}
		if node.Apply(ev) {
			fn(node.Clone(), soul)
		}
		return nil
	}

	return c.subscribe(ctx, replay, handle)
}

// OnMap replays every member of the collection at soul and then streams
// member changes: links added or nulled in the collection, and field writes
// to any linked member node. Link members are delivered under their
// collection key with the member's full snapshot.
func (c *Client) OnMap(ctx context.Context, soul string, fn MapFunc) (*Subscription, error) {
	collection := NewNode(soul)
	members := make(map[string]*Node)              // member soul -> snapshot
	keysBySoul := make(map[string]map[string]bool) // member soul -> collection keys

	untrack := func(target, key string) {
		delete(keysBySoul[target], key)
		if len(keysBySoul[target]) == 0 {
			delete(keysBySoul, target)
			delete(members, target)
		}
	}

	track := func(ctx context.Context, key string, v Value) error {
		target, isLink := v.AsLink()
		if !isLink {
			fn(Item{Key: key, Value: v})
			return nil
		}

		if keysBySoul[target] == nil {
			keysBySoul[target] = make(map[string]bool)
		}
		keysBySoul[target][key] = true

		member, ok := members[target]
		if !ok {
			n, err := c.Get(ctx, target)
			if err != nil {
				if IsNotFound(err) {
					// Linked before the member replicated; its writes will follow.
					return nil
				}
				return err
			}
			n.Get = target
			members[target] = n
			member = n
		}
		fn(Item{Key: key, Value: v, Node: member.Clone()})
		return nil
	}

	replay := func(ctx context.Context) error {
		n, err := c.Get(ctx, soul)
		if err != nil {
			if IsNotFound(err) {
				return nil
			}
			return err
		}
		collection = n
		for _, key := range n.Keys() {
			if err := track(ctx, key, n.Fields[key]); err != nil {
				return err
			}
		}
		return nil
	}

	handle := func(ctx context.Context, ev WriteEvent) error {
		if ev.Soul == soul {
			previous, hadLink := collection.Link(ev.Field)
			if !collection.Apply(ev) {
				return nil
			}
			if hadLink {
				untrack(previous, ev.Field)
			}
			return track(ctx, ev.Field, ev.Value)
		}

		keys, ok := keysBySoul[ev.Soul]
		if !ok {
			return nil
		}
		member, ok := members[ev.Soul]
		if !ok {
			member = NewNode(ev.Soul)
			member.Get = ev.Soul
			members[ev.Soul] = member
		}
		if !member.Apply(ev) {
			return nil
		}
		for _, key := range sortedKeys(keys) {
			fn(Item{Key: key, Value: LinkTo(ev.Soul), Node: member.Clone()})
		}
		return nil
	}

	return c.subscribe(ctx, replay, handle)
}

// OnLink follows the link held in field of the node at soul and delivers the
// linked node's snapshot, keyed by the linked soul. It re-targets when the
// link changes and delivers (nil, field) when the link is nulled.
func (c *Client) OnLink(ctx context.Context, soul, field string, fn NodeFunc) (*Subscription, error) {
	var state int64
	var target string
	var linked *Node

	follow := func(ctx context.Context, v Value) error {
		next, ok := v.AsLink()
		if !ok {
			target, linked = "", nil
			fn(nil, field)
			return nil
		}
		target = next
		n, err := c.Get(ctx, next)
		if err != nil {
			if IsNotFound(err) {
				linked = NewNode(next)
				linked.Get = next
				return nil
			}
			return err
		}
		n.Get = next
		linked = n
		fn(linked.Clone(), target)
		return nil
	}

	replay := func(ctx context.Context) error {
		n, err := c.Get(ctx, soul)
		if err != nil {
			if IsNotFound(err) {
				return nil
			}
			return err
		}
		v, ok := n.Fields[field]
		if !ok {
			return nil
		}
		state = n.State[field]
		return follow(ctx, v)
	}

	handle := func(ctx context.Context, ev WriteEvent) error {
		if ev.Soul == soul && ev.Field == field {
			if ev.State < state {
				return nil
			}
			state = ev.State
			return follow(ctx, ev.Value)
		}
		if target != "" && ev.Soul == target && linked != nil {
			if linked.Apply(ev) {
				fn(linked.Clone(), target)
			}
		}
		return nil
	}

	return c.subscribe(ctx, replay, handle)
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
