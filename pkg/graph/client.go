package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrNoReference is returned when the store did not acknowledge a write.
	// It is transient: callers may retry.
	ErrNoReference = errors.New("store returned no reference")

	// ErrUnauthorized is returned when a write to a user-space soul is not
	// signed by the soul's owner.
	ErrUnauthorized = errors.New("unauthorized write")
)

// Verifier checks a write's signature before it is applied.
type Verifier func(w Write) error

// Option configures a Client.
type Option func(*Client)

// WithVerifier installs the signature check run on every Put.
func WithVerifier(v Verifier) Option {
	return func(c *Client) {
		c.verify = v
	}
}

// lwwScript applies a field write only if its state is newer than the stored
// one. Equal states resolve to the lexically greater encoded value.
// KEYS[1] node hash, KEYS[2] state hash; ARGV field, value, state.
var lwwScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[2], ARGV[1])
if current then
  local stored = tonumber(current)
  local incoming = tonumber(ARGV[3])
  if incoming < stored then
    return 0
  end
  if incoming == stored then
    local value = redis.call('HGET', KEYS[1], ARGV[1])
    if value and value >= ARGV[2] then
      return 0
    end
  end
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
redis.call('HSET', KEYS[2], ARGV[1], ARGV[3])
return 1
`)

// Client provides namespace-scoped graph operations on Redis.
// The client is thread-safe and can be used concurrently from multiple goroutines.
type Client struct {
	rdb       *redis.Client
	namespace string
	verify    Verifier

	mu        sync.Mutex
	lastState int64
}

// NewClient creates a graph client for the given namespace.
// Returns an error if namespace is empty.
func NewClient(redisOpts *redis.Options, namespace string, opts ...Option) (*Client, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace cannot be empty")
	}

	c := &Client{
		rdb:       redis.NewClient(redisOpts),
		namespace: namespace,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Namespace returns the namespace every key of this client lives in.
func (c *Client) Namespace() string {
	return c.namespace
}

// Close closes the Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// UUID assigns a new identifier. ULIDs sort lexically in creation order,
// which gives sensible default ordering to siblings without an index.
func (c *Client) UUID() string {
	return strings.ToLower(ulid.Make().String())
}

// State returns a logical write timestamp in milliseconds. Successive calls
// on one client are strictly increasing.
func (c *Client) State() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UnixMilli()
	if now <= c.lastState {
		now = c.lastState + 1
	}
	c.lastState = now
	return now
}

// Get reads a node.
// Returns (nil, redis.Nil) if the node has no fields.
// Use IsNotFound() to check for not-found errors.
func (c *Client) Get(ctx context.Context, soul string) (*Node, error) {
	pipe := c.rdb.Pipeline()
	valuesCmd := pipe.HGetAll(ctx, NodeKey(c.namespace, soul))
	statesCmd := pipe.HGetAll(ctx, StateKey(c.namespace, soul))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read node from Redis: %w", err)
	}

	values := valuesCmd.Val()
	if len(values) == 0 {
		return nil, redis.Nil
	}

	node, err := HashToNode(soul, values, statesCmd.Val())
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize node %s: %w", soul, err)
	}
	return node, nil
}

// Once reads a node a single time and hands it to fn.
// fn receives nil when the node does not exist yet.
func (c *Client) Once(ctx context.Context, soul string, fn NodeFunc) error {
	node, err := c.Get(ctx, soul)
	if err != nil && !IsNotFound(err) {
		return err
	}
	fn(node, soul)
	return nil
}

// Put applies a single-field write and publishes a write event.
// Writes older than the stored state are dropped silently: last write wins.
// Returns ErrNoReference (wrapped) when Redis did not acknowledge the write.
func (c *Client) Put(ctx context.Context, w Write) error {
	if err := w.Validate(); err != nil {
		return fmt.Errorf("invalid write: %w", err)
	}

	if c.verify != nil {
		if err := c.verify(w); err != nil {
			return fmt.Errorf("%w: %s.%s: %v", ErrUnauthorized, w.Soul, w.Field, err)
		}
	}

	encoded, err := EncodeValue(w.Value)
	if err != nil {
		return err
	}

	keys := []string{NodeKey(c.namespace, w.Soul), StateKey(c.namespace, w.Soul)}
	applied, err := lwwScript.Run(ctx, c.rdb, keys, w.Field, encoded, w.State).Int()
	if err != nil {
		return writeError("put", err)
	}
	if applied == 0 {
		return nil
	}

	event := WriteEvent{
		EventID: uuid.New().String(),
		Soul:    w.Soul,
		Field:   w.Field,
		Value:   w.Value,
		State:   w.State,
	}
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal write event: %w", err)
	}

	if err := c.rdb.Publish(ctx, WriteEventsChannel(c.namespace), eventJSON).Err(); err != nil {
		return fmt.Errorf("failed to publish write event: %w", err)
	}

	return nil
}

// Set appends a new node holding fields to the collection at collectionSoul
// and returns the new node's address. The member is keyed by its own soul.
// Collections in user space need signed writes and cannot use Set.
func (c *Client) Set(ctx context.Context, collectionSoul string, fields map[string]Value) (string, error) {
	soul := uuid.New().String()
	state := c.State()

	for field, v := range fields {
		if err := c.Put(ctx, Write{Soul: soul, Field: field, Value: v, State: state}); err != nil {
			return "", err
		}
	}

	link := Write{Soul: collectionSoul, Field: soul, Value: LinkTo(soul), State: state}
	if err := c.Put(ctx, link); err != nil {
		return "", err
	}
	return soul, nil
}

// ScanSouls returns every node address in the namespace whose soul has the
// given prefix.
func (c *Client) ScanSouls(ctx context.Context, prefix string) ([]string, error) {
	keyPrefix := NodeKey(c.namespace, "")
	var souls []string
	var cursor uint64

	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, NodePattern(c.namespace), 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan nodes: %w", err)
		}
		for _, key := range keys {
			soul := strings.TrimPrefix(key, keyPrefix)
			if strings.HasPrefix(soul, prefix) {
				souls = append(souls, soul)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return souls, nil
}

// IsNotFound returns true if the error is a Redis "key not found" error (redis.Nil).
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}

// writeError maps transport failures that may succeed on retry to
// ErrNoReference.
func writeError(op string, err error) error {
	var netErr net.Error
	switch {
	case errors.As(err, &netErr) && netErr.Timeout(),
		errors.Is(err, io.EOF),
		strings.Contains(err.Error(), "connection pool timeout"):
		return fmt.Errorf("%w: %s: %v", ErrNoReference, op, err)
	default:
		return fmt.Errorf("failed to %s: %w", op, err)
	}
}
