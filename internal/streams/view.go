package streams

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dyluth/streams/internal/filter"
	"github.com/dyluth/streams/internal/listener"
	"github.com/dyluth/streams/internal/ordering"
	"github.com/dyluth/streams/internal/secure"
	"github.com/dyluth/streams/internal/tree"
)

// DefaultRecent is how far back a view shows messages until it is loaded in
// full.
const DefaultRecent = 48 * time.Hour

// ViewOptions configure a View.
type ViewOptions struct {
	All        bool          // show every message, not only recent ones
	Highlights bool          // show highlighted messages only
	Recent     time.Duration // recent window, DefaultRecent when zero
	Now        func() time.Time
}

// View is the decrypted message state of one stream, owned by whoever reads
// the stream. It keeps every message seen and the visible subset.
type View struct {
	svc      *Service
	streamID string
	caps     secure.Capabilities
	opts     ViewOptions

	all     *listener.Cache
	visible *listener.Cache

	mu           sync.Mutex
	showAll      bool
	oldAvailable bool
}

// NewView returns an empty view of streamID read with caps. caps must hold
// the stream's reader key; see ReaderCapabilities.
func (s *Service) NewView(streamID string, caps secure.Capabilities, opts ViewOptions) *View {
	if opts.Recent <= 0 {
		opts.Recent = DefaultRecent
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &View{
		svc:      s,
		streamID: streamID,
		caps:     caps,
		opts:     opts,
		all:      listener.NewCache(),
		visible:  listener.NewCache(),
		showAll:  opts.All,
	}
}

// StreamID returns the stream the view reads.
func (v *View) StreamID() string {
	return v.streamID
}

// Apply decrypts a batch of raw message changes and merges it into the view.
// Messages that fail to decrypt are skipped and reported together.
func (v *View) Apply(batch []listener.Change) error {
	var errs []error
	decrypted := make([]listener.Change, 0, len(batch))
	for _, ch := range batch {
		if ch.Data == nil {
			decrypted = append(decrypted, listener.Change{Key: ch.Key})
			continue
		}
		message, err := v.svc.DecryptMessage(ch.Data, v.caps)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		decrypted = append(decrypted, listener.Change{Key: ch.Key, Data: message})
	}

	v.all.Apply(decrypted)

	v.mu.Lock()
	defer v.mu.Unlock()

	filtered := decrypted
	if !v.showAll {
		criteria := filter.Criteria{SinceTimestampMs: v.opts.Now().Add(-v.opts.Recent).UnixMilli()}
		filtered = make([]listener.Change, 0, len(decrypted))
		for _, ch := range decrypted {
			if ch.Data == nil || criteria.Matches(ch.Data) {
				filtered = append(filtered, ch)
			}
		}
	}
	if len(filtered) > 0 {
		v.visible.Apply(filtered)
	}
	if len(filtered) != len(decrypted) {
		v.oldAvailable = true
	}

	return errors.Join(errs...)
}

// Load reads the stream's messages once and applies them.
func (v *View) Load(ctx context.Context) error {
	changes, err := v.svc.LoadMessages(ctx, v.streamID)
	if err != nil {
		return err
	}
	return v.Apply(changes)
}

// Listen applies live batches until the returned feed is closed. onBatch,
// if set, runs after each batch with the apply error.
func (v *View) Listen(ctx context.Context, onBatch func(err error)) (*Feed, error) {
	return v.svc.OnMessage(ctx, v.streamID, func(batch []listener.Change) {
		err := v.Apply(batch)
		if onBatch != nil {
			onBatch(err)
		}
	})
}

// OldMessagesAvailable reports whether messages outside the recent window
// were held back.
func (v *View) OldMessagesAvailable() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return !v.showAll && v.oldAvailable
}

// LoadFull shows every message seen so far and every later one.
func (v *View) LoadFull() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.showAll = true
	v.visible.Reset(v.all.Snapshot())
}

// Messages returns the visible messages, sorted by index then identifier.
func (v *View) Messages() []*secure.Entity {
	messages := v.visible.Values()
	if v.opts.Highlights {
		highlights := filter.Criteria{HighlightedOnly: true}
		kept := messages[:0]
		for _, m := range messages {
			if highlights.Matches(m) {
				kept = append(kept, m)
			}
		}
		messages = kept
	}
	ordering.Sort(messages, secure.ID, indexOrID)
	return messages
}

// Tree returns the visible messages as a sorted forest.
func (v *View) Tree() []*MessageNode {
	return Treeify(v.Messages())
}

// Find returns the node of messageID in forest.
func Find(forest []*MessageNode, messageID string) *MessageNode {
	var found *MessageNode
	tree.Walk(forest, func(n *MessageNode, _ int) {
		if found == nil && secure.ID(n.Entity) == messageID {
			found = n
		}
	})
	return found
}

// Treeify builds the display forest of decrypted messages.
func Treeify(messages []*secure.Entity) []*MessageNode {
	return tree.Treeify(messages, tree.Options[*secure.Entity]{
		ID: secure.ID,
		Parent: func(m *secure.Entity) string {
			parent, _ := m.Link(string(secure.FieldParent))
			return parent
		},
		Compare: func(a, b *secure.Entity) int {
			return ordering.CompareWithID(indexOrID(a), secure.ID(a), indexOrID(b), secure.ID(b))
		},
	})
}

// indexOrID is IndexOf with the identifier fallback for malformed indices.
func indexOrID(m *secure.Entity) ordering.Index {
	idx, err := IndexOf(m)
	if err != nil {
		return ordering.Of(secure.ID(m))
	}
	return idx
}

// FullText renders a forest as indented plain text, two spaces per level.
func FullText(forest []*MessageNode) string {
	var b strings.Builder
	tree.Walk(forest, func(n *MessageNode, depth int) {
		text, _ := n.Entity.String(string(secure.FieldText))
		fmt.Fprintf(&b, "%s%s\n", strings.Repeat("  ", depth), text)
	})
	return b.String()
}
