package streams

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/streams/internal/listener"
	"github.com/dyluth/streams/internal/secure"
	"github.com/dyluth/streams/pkg/graph"
)

func TestView_RecentFilter(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	stream, cred := newStream(t, svc, "Notes")

	for _, text := range []string{"old", "older"} {
		_, err := svc.CreateMessage(ctx, stream, Message{Text: text}, "", nil, nil)
		require.NoError(t, err)
	}

	later := func() time.Time { return time.Now().Add(72 * time.Hour) }
	view := svc.NewView(cred.ID, ReaderCapabilities(stream, memberCaps(cred)), ViewOptions{Now: later})
	require.NoError(t, view.Load(ctx))

	assert.Empty(t, view.Messages())
	assert.True(t, view.OldMessagesAvailable())

	view.LoadFull()
	assert.Len(t, view.Messages(), 2)
	assert.False(t, view.OldMessagesAvailable())

	t.Run("recent messages are shown", func(t *testing.T) {
		recent := svc.NewView(cred.ID, ReaderCapabilities(stream, memberCaps(cred)), ViewOptions{})
		require.NoError(t, recent.Load(ctx))
		assert.Len(t, recent.Messages(), 2)
		assert.False(t, recent.OldMessagesAvailable())
	})
}

func TestView_TombstonesBypassFilter(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	stream, cred := newStream(t, svc, "Notes")

	id, err := svc.CreateMessage(ctx, stream, Message{Text: "gone soon"}, "", nil, nil)
	require.NoError(t, err)

	view := svc.NewView(cred.ID, ReaderCapabilities(stream, memberCaps(cred)), ViewOptions{Recent: time.Hour})
	require.NoError(t, view.Load(ctx))
	require.Len(t, view.Messages(), 1)

	require.NoError(t, view.Apply([]listener.Change{{Key: id}}))
	assert.Empty(t, view.Messages())
	assert.False(t, view.OldMessagesAvailable())
}

func TestView_ReportsUndecryptable(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	stream, cred := newStream(t, svc, "Notes")
	_, err := svc.CreateMessage(ctx, stream, Message{Text: "secret"}, "", nil, nil)
	require.NoError(t, err)

	other, err := secure.SEA{}.Pair()
	require.NoError(t, err)
	view := svc.NewView(cred.ID, secure.Capabilities{Reader: other.EPriv}, ViewOptions{All: true})

	err = view.Load(ctx)
	assert.ErrorIs(t, err, secure.ErrDecrypt)
	assert.Empty(t, view.Messages())
}

func TestView_Listen(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	stream, cred := newStream(t, svc, "Live")

	view := svc.NewView(cred.ID, ReaderCapabilities(stream, memberCaps(cred)), ViewOptions{})
	var mu sync.Mutex
	var errs []error
	feed, err := view.Listen(ctx, func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			errs = append(errs, err)
		}
	})
	require.NoError(t, err)
	defer feed.Close()

	first, err := svc.CreateMessage(ctx, stream, Message{Text: "first"}, "", nil, nil)
	require.NoError(t, err)
	_, err = svc.CreateMessage(ctx, stream, Message{Text: "second"}, first, nil, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return shape(view.Tree()) == "first(second)"
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, svc.DeleteMessage(ctx, stream, first))
	require.Eventually(t, func() bool {
		return len(view.Messages()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, errs)
}

type changeLog struct {
	mu      sync.Mutex
	changes map[string]listener.Change
}

func newChangeLog() *changeLog {
	return &changeLog{changes: make(map[string]listener.Change)}
}

func (l *changeLog) record(batch []listener.Change) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ch := range batch {
		l.changes[ch.Key] = ch
	}
}

func (l *changeLog) get(key string) (listener.Change, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.changes[key]
	return ch, ok
}

func (l *changeLog) any(fn func(listener.Change) bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ch := range l.changes {
		if fn(ch) {
			return true
		}
	}
	return false
}

func TestOnSpaceStream(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	spaceCred, err := svc.CreateSpace(ctx, "Team")
	require.NoError(t, err)
	space, err := svc.LoadSpace(ctx, spaceCred.ID, memberCaps(spaceCred))
	require.NoError(t, err)

	eprivs, readers, streams, lasts := newChangeLog(), newChangeLog(), newChangeLog(), newChangeLog()
	feed, err := svc.OnSpaceStream(ctx, spaceCred.ID, SpaceStreamListeners{
		StreamEPriv:       eprivs.record,
		StreamReaderEPriv: readers.record,
		Stream:            streams.record,
		LastMessage:       lasts.record,
	})
	require.NoError(t, err)
	defer feed.Close()

	streamCred, err := svc.CreateStream(ctx, space, "Notes")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		ch, ok := streams.get(streamCred.ID)
		return ok && ch.Data != nil
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		_, ok := eprivs.get(streamCred.ID)
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	ch, _ := eprivs.get(streamCred.ID)
	raw, _ := ch.Value.AsString()
	v, err := secure.SEA{}.Decrypt(raw, spaceCred.EPriv)
	require.NoError(t, err)
	key, _ := v.AsString()
	assert.Equal(t, streamCred.EPriv, key)

	require.Eventually(t, func() bool {
		_, ok := readers.get(streamCred.ID)
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	stream, err := svc.LoadStream(ctx, streamCred.ID, memberCaps(streamCred))
	require.NoError(t, err)
	messageID, err := svc.CreateMessage(ctx, stream, Message{Text: "latest"}, "", nil, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return lasts.any(func(ch listener.Change) bool {
			return ch.Data != nil && secure.ID(ch.Data) == messageID
		})
	}, 2*time.Second, 10*time.Millisecond)

	t.Run("removed stream is delivered as a tombstone", func(t *testing.T) {
		require.NoError(t, svc.DeleteStream(ctx, space, streamCred.ID))
		require.Eventually(t, func() bool {
			ch, ok := streams.get(streamCred.ID)
			return ok && ch.Removed()
		}, 2*time.Second, 10*time.Millisecond)
	})
}

func TestFeedClose(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	stream, cred := newStream(t, svc, "Quiet")

	log := newChangeLog()
	feed, err := svc.OnMessage(ctx, cred.ID, log.record)
	require.NoError(t, err)
	require.NoError(t, feed.Close())
	require.NoError(t, feed.Close())

	_, err = svc.CreateMessage(ctx, stream, Message{Text: "unheard"}, "", nil, nil)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.False(t, log.any(func(listener.Change) bool { return true }))
}

func TestFullText(t *testing.T) {
	msg := func(id, text, parent string) *secure.Entity {
		n := graph.NewNode(id)
		n.Fields[string(secure.FieldText)] = graph.Str(text)
		if parent != "" {
			n.Fields[string(secure.FieldParent)] = graph.LinkTo(parent)
		}
		return n
	}

	forest := Treeify([]*secure.Entity{
		msg("m1", "groceries", ""),
		msg("m2", "milk", "m1"),
		msg("m3", "skimmed", "m2"),
		msg("m4", "call home", ""),
	})

	assert.Equal(t, "groceries\n  milk\n    skimmed\ncall home\n", FullText(forest))
	assert.Equal(t, "", FullText(nil))
}

// nodeLog records snapshots delivered to a graph.NodeFunc
type nodeLog struct {
	mu    sync.Mutex
	nodes []*graph.Node
	keys  []string
}

func (l *nodeLog) record(node *graph.Node, key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nodes = append(l.nodes, node)
	l.keys = append(l.keys, key)
}

func (l *nodeLog) last() (*graph.Node, string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.nodes) == 0 {
		return nil, ""
	}
	return l.nodes[len(l.nodes)-1], l.keys[len(l.keys)-1]
}

func TestOnLastMessage(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	stream, cred := newStream(t, svc, "Notes")
	caps := ReaderCapabilities(stream, memberCaps(cred))

	lasts := &nodeLog{}
	sub, err := svc.OnLastMessage(ctx, cred.ID, lasts.record)
	require.NoError(t, err)
	defer sub.Close()

	for _, text := range []string{"first", "second"} {
		id, err := svc.CreateMessage(ctx, stream, Message{Text: text}, "", nil, nil)
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			_, key := lasts.last()
			return key == id
		}, 2*time.Second, 10*time.Millisecond, "follows the link to %s", text)

		node, _ := lasts.last()
		message, err := svc.DecryptMessage(node, caps)
		require.NoError(t, err)
		got, _ := message.String(string(secure.FieldText))
		assert.Equal(t, text, got)
	}
}

func TestOnSpaceAndStream(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	spaceCred, err := svc.CreateSpace(ctx, "Team")
	require.NoError(t, err)
	spaces := &nodeLog{}
	spaceSub, err := svc.OnSpace(ctx, spaceCred.ID, spaces.record)
	require.NoError(t, err)
	defer spaceSub.Close()

	require.Eventually(t, func() bool {
		node, _ := spaces.last()
		return node != nil
	}, 2*time.Second, 10*time.Millisecond)
	node, _ := spaces.last()
	space, err := svc.DecryptSpace(node, memberCaps(spaceCred))
	require.NoError(t, err)
	name, _ := space.String(string(secure.FieldName))
	assert.Equal(t, "Team", name)

	stream, cred := newStream(t, svc, "Notes")
	streamsLog := &nodeLog{}
	streamSub, err := svc.OnStream(ctx, cred.ID, streamsLog.record)
	require.NoError(t, err)
	defer streamSub.Close()

	id, err := svc.CreateMessage(ctx, stream, Message{Text: "hello"}, "", nil, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		node, _ := streamsLog.last()
		if node == nil {
			return false
		}
		last, ok := node.Link(string(secure.FieldLastMessage))
		return ok && last == id
	}, 2*time.Second, 10*time.Millisecond, "stream snapshots carry the new last message")
}
