package secure

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dyluth/streams/pkg/graph"
)

var (
	// ErrEncryptedID is returned when a write targets an address that is
	// still ciphertext.
	ErrEncryptedID = errors.New("you are using an encrypted id")

	// ErrWriteFailed is returned when the store did not acknowledge a write
	// after every attempt.
	ErrWriteFailed = errors.New("write failed")
)

// DefaultAttempts is how many times a write is tried before it fails.
const DefaultAttempts = 3

// Store is the part of the graph client the writer needs.
type Store interface {
	Put(ctx context.Context, w graph.Write) error
	State() int64
}

// Keys are the credentials a write is made with: Priv and Pub sign it,
// EPriv encrypts primitive values.
type Keys struct {
	Priv  string
	Pub   string
	EPriv string
}

// Put describes one field write.
//
// The target is ID when set, otherwise {Sub}~{Pub}. or ~{Pub}. Primitive
// values are encrypted with EPriv; links and null tombstones are written as
// they are.
type Put struct {
	Keys
	ID    string
	Sub   string
	Key   string
	Value graph.Value
}

// Address resolves the soul the write targets.
func (p Put) Address() (string, error) {
	id := p.ID
	if id == "" {
		if p.Pub == "" {
			return "", errors.New("either id or pub are required")
		}
		if p.Sub != "" {
			id = SubAddress(p.Sub, p.Pub)
		} else {
			id = RootAddress(p.Pub)
		}
	}
	if strings.HasPrefix(id, "SEA") {
		return "", ErrEncryptedID
	}
	return id, nil
}

// Writer signs, encrypts and stores field writes.
type Writer struct {
	store    Store
	crypto   Crypto
	attempts uint64
	now      func() time.Time
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithClock replaces the wall clock used for created timestamps.
func WithClock(now func() time.Time) WriterOption {
	return func(w *Writer) { w.now = now }
}

// NewWriter returns a writer that tries each write up to attempts times.
// attempts below 1 means DefaultAttempts.
func NewWriter(store Store, crypto Crypto, attempts int, opts ...WriterOption) *Writer {
	if attempts < 1 {
		attempts = DefaultAttempts
	}
	w := &Writer{store: store, crypto: crypto, attempts: uint64(attempts), now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Put performs a single signed field write. Writes the store does not
// acknowledge are retried without delay; exhausting the attempts returns
// ErrWriteFailed.
func (w *Writer) Put(ctx context.Context, p Put) error {
	soul, err := p.Address()
	if err != nil {
		return err
	}
	if p.Key == "" {
		return errors.New("key is required")
	}

	value := p.Value
	switch value.Kind() {
	case graph.KindLink, graph.KindNull:
	default:
		ciphertext, err := w.crypto.Encrypt(value, p.EPriv)
		if err != nil {
			return fmt.Errorf("failed to encrypt %s.%s: %w", soul, p.Key, err)
		}
		value = graph.Str(ciphertext)
	}

	write := graph.Write{
		Soul:  soul,
		Field: p.Key,
		Value: value,
		State: w.store.State(),
		Pub:   p.Pub,
	}
	write.Signature, err = w.crypto.Sign(SignedPayload(write), Pair{Priv: p.Priv, Pub: p.Pub})
	if err != nil {
		return fmt.Errorf("failed to sign %s.%s: %w", soul, p.Key, err)
	}

	attempt := 0
	operation := func() error {
		attempt++
		err := w.store.Put(ctx, write)
		if err == nil {
			return nil
		}
		if errors.Is(err, graph.ErrNoReference) {
			log.Printf("[Secure] Write %s.%s not acknowledged (attempt %d/%d)", soul, p.Key, attempt, w.attempts)
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, w.attempts-1), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		if errors.Is(err, graph.ErrNoReference) {
			return fmt.Errorf("%w: %s.%s after %d attempts: %v", ErrWriteFailed, soul, p.Key, attempt, err)
		}
		return err
	}
	return nil
}

// Credentials are the keys of a newly created root entity.
type Credentials struct {
	ID          string `yaml:"id"`
	Priv        string `yaml:"priv"`
	Pub         string `yaml:"pub"`
	EPriv       string `yaml:"epriv"`
	EPub        string `yaml:"epub"`
	ReaderEPriv string `yaml:"reader_epriv"`
	ReaderEPub  string `yaml:"reader_epub"`
}

// Keys returns the credentials used for reader-level writes to the entity.
func (c Credentials) Keys() Keys {
	return Keys{Priv: c.Priv, Pub: c.Pub, EPriv: c.ReaderEPriv}
}

// Create generates the key pairs of a new root entity and stores them on it:
// priv, epriv and reader-epriv encrypted for members, created for readers.
func (w *Writer) Create(ctx context.Context) (Credentials, error) {
	pair, err := w.crypto.Pair()
	if err != nil {
		return Credentials{}, err
	}
	readerPair, err := w.crypto.Pair()
	if err != nil {
		return Credentials{}, err
	}

	cred := Credentials{
		ID:          RootAddress(pair.Pub),
		Priv:        pair.Priv,
		Pub:         pair.Pub,
		EPriv:       pair.EPriv,
		EPub:        pair.EPub,
		ReaderEPriv: readerPair.EPriv,
		ReaderEPub:  readerPair.EPub,
	}

	member := Keys{Priv: cred.Priv, Pub: cred.Pub, EPriv: cred.EPriv}
	writes := []Put{
		{Keys: member, ID: cred.ID, Key: string(FieldPriv), Value: graph.Str(cred.Priv)},
		{Keys: member, ID: cred.ID, Key: string(FieldEPriv), Value: graph.Str(cred.EPriv)},
		{Keys: member, ID: cred.ID, Key: string(FieldReaderEPriv), Value: graph.Str(cred.ReaderEPriv)},
		{Keys: cred.Keys(), ID: cred.ID, Key: string(FieldCreated), Value: graph.Num(float64(w.now().UnixMilli()))},
	}
	for _, p := range writes {
		if err := w.Put(ctx, p); err != nil {
			return Credentials{}, fmt.Errorf("failed to create entity: %w", err)
		}
	}
	return cred, nil
}
