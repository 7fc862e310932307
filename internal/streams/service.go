// Package streams is the session layer over the graph: it creates spaces,
// streams and messages, keeps sibling order with fractional indices, stages
// tree moves and turns store subscriptions into batched, decrypted views.
package streams

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/dyluth/streams/internal/listener"
	"github.com/dyluth/streams/internal/secure"
	"github.com/dyluth/streams/internal/watch"
	"github.com/dyluth/streams/pkg/graph"
)

var (
	// ErrNotReady is returned by Init when the store never became reachable.
	ErrNotReady = errors.New("store not ready")

	// ErrNotWritable is returned when an entity lacks the keys a write needs.
	ErrNotWritable = errors.New("entity is not writable with the given keys")

	// ErrPayloadTooLarge is returned for attachments over MaxAttachmentSize.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrNoMove is returned when a tree action has nothing to move against.
	ErrNoMove = errors.New("nothing to move against")
)

const (
	// MaxAttachmentSize is the largest encoded attachment accepted.
	MaxAttachmentSize = 1000000

	DefaultPollInterval = 100 * time.Millisecond
	DefaultReadyTimeout = 10 * time.Second
)

// Store is the graph the service reads and writes.
type Store interface {
	Namespace() string
	Ping(ctx context.Context) error
	UUID() string
	State() int64
	Get(ctx context.Context, soul string) (*graph.Node, error)
	Put(ctx context.Context, w graph.Write) error
	On(ctx context.Context, soul string, fn graph.NodeFunc) (*graph.Subscription, error)
	OnMap(ctx context.Context, soul string, fn graph.MapFunc) (*graph.Subscription, error)
	OnLink(ctx context.Context, soul, field string, fn graph.NodeFunc) (*graph.Subscription, error)
}

// Service implements every stream operation on top of a Store.
type Service struct {
	store  Store
	crypto secure.Crypto
	writer *secure.Writer

	pollInterval time.Duration
	readyTimeout time.Duration
	window       time.Duration
	attempts     int
	now          func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithPollInterval sets how often Init probes the store.
func WithPollInterval(d time.Duration) Option {
	return func(s *Service) { s.pollInterval = d }
}

// WithReadyTimeout bounds how long Init waits for the store.
func WithReadyTimeout(d time.Duration) Option {
	return func(s *Service) { s.readyTimeout = d }
}

// WithBatchWindow sets the coalescing window of batched listeners.
func WithBatchWindow(d time.Duration) Option {
	return func(s *Service) { s.window = d }
}

// WithAttempts sets how many times an unacknowledged write is tried.
func WithAttempts(n int) Option {
	return func(s *Service) { s.attempts = n }
}

// WithClock replaces the wall clock used for created timestamps of spaces,
// streams and messages.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New returns a service over store.
func New(store Store, crypto secure.Crypto, opts ...Option) *Service {
	s := &Service{
		store:        store,
		crypto:       crypto,
		pollInterval: DefaultPollInterval,
		readyTimeout: DefaultReadyTimeout,
		window:       listener.DefaultWindow,
		attempts:     secure.DefaultAttempts,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.writer = secure.NewWriter(store, crypto, s.attempts, secure.WithClock(func() time.Time { return s.now() }))
	return s
}

// Init waits until the store answers, up to the ready timeout.
func (s *Service) Init(ctx context.Context) error {
	attempt := 0
	err := watch.Until(ctx, s.pollInterval, s.readyTimeout, func(ctx context.Context) (bool, error) {
		attempt++
		if err := s.store.Ping(ctx); err != nil {
			log.Printf("[Streams] Store not available yet (attempt %d): %v", attempt, err)
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		if errors.Is(err, watch.ErrTimeout) {
			return fmt.Errorf("%w after %v", ErrNotReady, s.readyTimeout)
		}
		return err
	}

	s.logEvent("store_ready", map[string]interface{}{
		"attempts": attempt,
	})
	return nil
}

// UUID assigns a new identifier through the store.
func (s *Service) UUID() string {
	return s.store.UUID()
}

// ownerKeys returns the reader-level write keys of a decrypted root entity.
func ownerKeys(e *secure.Entity) (secure.Keys, error) {
	id := secure.ID(e)
	if !strings.HasPrefix(id, "~") {
		return secure.Keys{}, fmt.Errorf("%w: %q is not a root entity", ErrNotWritable, id)
	}
	priv, ok := e.String(string(secure.FieldPriv))
	if !ok || priv == "" {
		return secure.Keys{}, fmt.Errorf("%w: %s has no signing key", ErrNotWritable, id)
	}
	reader, ok := e.String(string(secure.FieldReaderEPriv))
	if !ok || reader == "" {
		return secure.Keys{}, fmt.Errorf("%w: %s has no reader key", ErrNotWritable, id)
	}
	return secure.Keys{Priv: priv, Pub: secure.PubOf(id), EPriv: reader}, nil
}

// memberKeys returns the member-level write keys of a decrypted root entity.
func memberKeys(e *secure.Entity) (secure.Keys, error) {
	keys, err := ownerKeys(e)
	if err != nil {
		return secure.Keys{}, err
	}
	epriv, ok := e.String(string(secure.FieldEPriv))
	if !ok || epriv == "" {
		return secure.Keys{}, fmt.Errorf("%w: %s has no member key", ErrNotWritable, secure.ID(e))
	}
	keys.EPriv = epriv
	return keys, nil
}

// IsWritable reports whether stream, decrypted with caps, carries every key
// a write needs: signing, member and reader keys.
func IsWritable(stream *secure.Entity, caps secure.Capabilities) bool {
	if stream == nil || caps.Member == "" {
		return false
	}
	_, err := memberKeys(stream)
	return err == nil
}

// logEvent writes a structured JSON log line.
func (s *Service) logEvent(eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	data["component"] = "streams"
	data["event_type"] = eventType
	data["namespace"] = s.store.Namespace()

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Streams] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}
