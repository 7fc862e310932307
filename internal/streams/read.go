package streams

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/dyluth/streams/internal/listener"
	"github.com/dyluth/streams/internal/secure"
	"github.com/dyluth/streams/pkg/graph"
)

// DecryptSpace decrypts a space snapshot.
func (s *Service) DecryptSpace(space *secure.Entity, caps secure.Capabilities) (*secure.Entity, error) {
	return secure.Decrypt(s.crypto, space, caps, secure.Roles(secure.KindSpace))
}

// DecryptStream decrypts a stream snapshot.
func (s *Service) DecryptStream(stream *secure.Entity, caps secure.Capabilities) (*secure.Entity, error) {
	return secure.Decrypt(s.crypto, stream, caps, secure.Roles(secure.KindStream))
}

// DecryptMessage decrypts a message snapshot.
func (s *Service) DecryptMessage(message *secure.Entity, caps secure.Capabilities) (*secure.Entity, error) {
	return secure.Decrypt(s.crypto, message, caps, secure.Roles(secure.KindMessage))
}

// LoadSpace reads and decrypts a space once.
func (s *Service) LoadSpace(ctx context.Context, id string, caps secure.Capabilities) (*secure.Entity, error) {
	node, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load space %s: %w", id, err)
	}
	return s.DecryptSpace(node, caps)
}

// LoadStream reads and decrypts a stream once.
func (s *Service) LoadStream(ctx context.Context, id string, caps secure.Capabilities) (*secure.Entity, error) {
	node, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load stream %s: %w", id, err)
	}
	return s.DecryptStream(node, caps)
}

// ReaderCapabilities completes caps with the reader key carried by a
// decrypted stream, so its messages can be read by a member.
func ReaderCapabilities(stream *secure.Entity, caps secure.Capabilities) secure.Capabilities {
	if caps.Reader == "" {
		if key, ok := stream.String(string(secure.FieldReaderEPriv)); ok {
			caps.Reader = key
		}
	}
	return caps
}

// LoadMessages reads the current message set of a stream once, as a batch of
// raw changes in collection order. Tombstoned members are returned as
// tombstones.
func (s *Service) LoadMessages(ctx context.Context, streamID string) ([]listener.Change, error) {
	soul := secure.SubAddress(subMessages, secure.PubOf(streamID))
	collection, err := s.store.Get(ctx, soul)
	if err != nil {
		if graph.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load messages of %s: %w", streamID, err)
	}

	var changes []listener.Change
	for _, key := range collection.Keys() {
		target, ok := collection.Fields[key].AsLink()
		if !ok {
			changes = append(changes, listener.Change{Key: key})
			continue
		}
		message, err := s.store.Get(ctx, target)
		if err != nil {
			if graph.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		message.Get = target
		changes = append(changes, listener.Change{Key: key, Data: message})
	}
	return changes, nil
}

// Feed groups the subscriptions and batchers behind one live read.
type Feed struct {
	mu       sync.Mutex
	subs     []*graph.Subscription
	links    map[string]*graph.Subscription
	batchers []*listener.Batcher
	closed   bool
}

func newFeed(batchers ...*listener.Batcher) *Feed {
	return &Feed{links: make(map[string]*graph.Subscription), batchers: batchers}
}

func drain(sub *graph.Subscription) {
	go func() {
		for err := range sub.Errors() {
			log.Printf("[Streams] Subscription error: %v", err)
		}
	}()
}

func (f *Feed) add(sub *graph.Subscription) {
	drain(sub)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		sub.Close()
		return
	}
	f.subs = append(f.subs, sub)
}

// link keeps one subscription per key, replacing any earlier one.
func (f *Feed) link(key string, sub *graph.Subscription) {
	if sub != nil {
		drain(sub)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if old, ok := f.links[key]; ok {
		old.Close()
		delete(f.links, key)
	}
	if sub == nil {
		return
	}
	if f.closed {
		sub.Close()
		return
	}
	f.links[key] = sub
}

func (f *Feed) linked(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.links[key]
	return ok
}

// Flush delivers every queued change now.
func (f *Feed) Flush() {
	for _, b := range f.batchers {
		b.Flush()
	}
}

// Close stops every subscription and drops queued changes.
func (f *Feed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	for _, sub := range f.subs {
		sub.Close()
	}
	for _, sub := range f.links {
		sub.Close()
	}
	for _, b := range f.batchers {
		b.Stop()
	}
	return nil
}

// OnSpace delivers every snapshot of a space.
func (s *Service) OnSpace(ctx context.Context, id string, fn graph.NodeFunc) (*graph.Subscription, error) {
	return s.store.On(ctx, id, fn)
}

// OnStream delivers every snapshot of a stream.
func (s *Service) OnStream(ctx context.Context, id string, fn graph.NodeFunc) (*graph.Subscription, error) {
	return s.store.On(ctx, id, fn)
}

// OnLastMessage delivers the message a stream's lastMessage points to.
func (s *Service) OnLastMessage(ctx context.Context, streamID string, fn graph.NodeFunc) (*graph.Subscription, error) {
	return s.store.OnLink(ctx, streamID, string(secure.FieldLastMessage), fn)
}

// SpaceStreamListeners receive the batched streams of a space.
type SpaceStreamListeners struct {
	StreamEPriv       listener.Listener // member keys of streams, encrypted with the space epriv
	StreamReaderEPriv listener.Listener // reader keys of streams, encrypted with the space reader key
	Stream            listener.Listener // stream snapshots
	LastMessage       listener.Listener // last message of each stream, keyed by message address
}

// OnSpaceStream follows every stream of a space with four batched listeners.
// Nil listeners are skipped.
func (s *Service) OnSpaceStream(ctx context.Context, spaceID string, l SpaceStreamListeners) (*Feed, error) {
	pub := secure.PubOf(spaceID)
	feed := newFeed()

	var eprivs, readerEPrivs, streams, lastMessages *listener.Batcher
	slots := []struct {
		fn listener.Listener
		b  **listener.Batcher
	}{
		{l.StreamEPriv, &eprivs},
		{l.StreamReaderEPriv, &readerEPrivs},
		{l.Stream, &streams},
		{l.LastMessage, &lastMessages},
	}
	var (
		listeners []listener.Listener
		targets   []**listener.Batcher
	)
	for _, slot := range slots {
		if slot.fn != nil {
			listeners = append(listeners, slot.fn)
			targets = append(targets, slot.b)
		}
	}
	feed.batchers = listener.Batch(s.window, listeners...)
	for i, b := range feed.batchers {
		*targets[i] = b
	}

	subscribe := func(soul string, fn graph.MapFunc) error {
		sub, err := s.store.OnMap(ctx, soul, fn)
		if err != nil {
			feed.Close()
			return err
		}
		feed.add(sub)
		return nil
	}

	if eprivs != nil {
		if err := subscribe(secure.SubAddress(subStreamEPrivs, pub), eprivs.Item()); err != nil {
			return nil, err
		}
	}
	if readerEPrivs != nil {
		if err := subscribe(secure.SubAddress(subStreamReaderEPrivs, pub), readerEPrivs.Item()); err != nil {
			return nil, err
		}
	}

	onStream := func(item graph.Item) {
		if streams != nil {
			streams.Item()(item)
		}
		if lastMessages == nil {
			return
		}
		if item.Node == nil {
			feed.link(item.Key, nil)
			return
		}
		if feed.linked(item.Key) {
			return
		}
		sub, err := s.store.OnLink(ctx, secure.ID(item.Node), string(secure.FieldLastMessage), lastMessages.Node())
		if err != nil {
			log.Printf("[Streams] Failed to follow last message of %s: %v", item.Key, err)
			return
		}
		feed.link(item.Key, sub)
	}
	if err := subscribe(secure.SubAddress(subStreams, pub), onStream); err != nil {
		return nil, err
	}

	return feed, nil
}

// OnMessage follows the messages of a stream with a batched listener.
// Members that are not message nodes are delivered as tombstones.
func (s *Service) OnMessage(ctx context.Context, streamID string, fn listener.Listener) (*Feed, error) {
	b := listener.NewBatcher(s.window, fn)
	feed := newFeed(b)

	soul := secure.SubAddress(subMessages, secure.PubOf(streamID))
	sub, err := s.store.OnMap(ctx, soul, func(item graph.Item) {
		b.Add(listener.Change{Key: item.Key, Data: item.Node})
	})
	if err != nil {
		b.Stop()
		return nil, err
	}
	feed.add(sub)
	return feed, nil
}

// SpaceStream is a stream listed in a space, with the keys the space grants
// to it.
type SpaceStream struct {
	ID   string
	Name string
	Caps secure.Capabilities
}

// LoadSpaceStreams lists the live streams of a decrypted space. Stream keys
// are recovered from the space's key collections with the caller's space
// keys; a space reader only recovers stream reader keys.
func (s *Service) LoadSpaceStreams(ctx context.Context, space *secure.Entity, caps secure.Capabilities) ([]SpaceStream, error) {
	pub := secure.PubOf(secure.ID(space))
	caps = ReaderCapabilities(space, caps)

	collection := func(sub string) (*graph.Node, error) {
		node, err := s.store.Get(ctx, secure.SubAddress(sub, pub))
		if graph.IsNotFound(err) {
			return graph.NewNode(secure.SubAddress(sub, pub)), nil
		}
		return node, err
	}
	links, err := collection(subStreams)
	if err != nil {
		return nil, fmt.Errorf("failed to load streams of %s: %w", secure.ID(space), err)
	}
	eprivs, err := collection(subStreamEPrivs)
	if err != nil {
		return nil, err
	}
	readers, err := collection(subStreamReaderEPrivs)
	if err != nil {
		return nil, err
	}

	open := func(node *graph.Node, key, with string) string {
		raw, ok := node.String(key)
		if !ok || with == "" {
			return ""
		}
		v, err := s.crypto.Decrypt(raw, with)
		if err != nil {
			log.Printf("[Streams] Cannot open key of stream %s: %v", key, err)
			return ""
		}
		plain, _ := v.AsString()
		return plain
	}

	var out []SpaceStream
	for _, key := range links.Keys() {
		id, ok := links.Fields[key].AsLink()
		if !ok {
			continue
		}
		entry := SpaceStream{
			ID: id,
			Caps: secure.Capabilities{
				Member: open(eprivs, key, caps.Member),
				Reader: open(readers, key, caps.Reader),
			},
		}
		if stream, err := s.LoadStream(ctx, id, entry.Caps); err == nil {
			entry.Name, _ = stream.String(string(secure.FieldName))
		} else {
			log.Printf("[Streams] Cannot read stream %s: %v", id, err)
		}
		out = append(out, entry)
	}
	return out, nil
}
