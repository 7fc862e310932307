package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/dyluth/streams/internal/config"
	"github.com/dyluth/streams/internal/printer"
	"github.com/dyluth/streams/internal/resolver"
	"github.com/dyluth/streams/internal/secure"
	"github.com/dyluth/streams/internal/streams"
	"github.com/dyluth/streams/pkg/graph"
)

// session is one connected command invocation.
type session struct {
	cfg     *config.StreamsConfig
	client  *graph.Client
	svc     *streams.Service
	keyring *config.Keyring
}

// openSession loads configuration and keyring, connects to the store and
// waits for it to answer.
func openSession(ctx context.Context, opts *globalOptions) (*session, error) {
	cfg, err := config.LoadOrDefault(opts.configPath)
	if err != nil {
		return nil, printer.Error(
			"invalid configuration",
			fmt.Sprintf("Could not load %s: %v", opts.configPath, err),
			[]string{"Fix the file or remove it to use defaults"},
		)
	}

	keyringPath := cfg.Keyring
	if opts.keyringPath != "" {
		keyringPath = opts.keyringPath
	}
	keyring, err := config.LoadKeyring(keyringPath)
	if err != nil {
		return nil, err
	}

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client, err := graph.NewClient(redisOpts, cfg.Redis.Namespace, graph.WithVerifier(secure.Verifier(secure.SEA{})))
	if err != nil {
		return nil, fmt.Errorf("failed to create graph client: %w", err)
	}

	svc := streams.New(client, secure.SEA{},
		streams.WithBatchWindow(cfg.Client.BatchWindow),
		streams.WithReadyTimeout(cfg.Client.ReadyTimeout),
		streams.WithAttempts(cfg.Client.Attempts),
	)
	if err := svc.Init(ctx); err != nil {
		client.Close()
		if errors.Is(err, streams.ErrNotReady) {
			return nil, printer.ErrorWithContext(
				"Redis connection failed",
				fmt.Sprintf("Could not connect to Redis at %s", cfg.Redis.URL),
				map[string]string{"Namespace": cfg.Redis.Namespace},
				[]string{
					"Check that Redis is running",
					"Set REDIS_URL or redis.url in streams.yml",
				},
			)
		}
		return nil, err
	}

	return &session{cfg: cfg, client: client, svc: svc, keyring: keyring}, nil
}

func (s *session) Close() error {
	return s.client.Close()
}

// entry finds kind ref in the keyring with a friendly error.
func (s *session) entry(kind, ref string) (config.KeyringEntry, error) {
	e, err := s.keyring.Lookup(kind, ref)
	if err != nil {
		return config.KeyringEntry{}, printer.Error(
			fmt.Sprintf("%s not found", kind),
			err.Error(),
			[]string{fmt.Sprintf("Create one:\n  streams %s create <name>", kind)},
		)
	}
	return e, nil
}

// space loads and decrypts a space from the keyring.
func (s *session) space(ctx context.Context, ref string) (*secure.Entity, config.KeyringEntry, error) {
	e, err := s.entry(config.KindSpace, ref)
	if err != nil {
		return nil, e, err
	}
	space, err := s.svc.LoadSpace(ctx, e.ID, e.Capabilities())
	return space, e, err
}

// stream loads and decrypts a stream from the keyring.
func (s *session) stream(ctx context.Context, ref string) (*secure.Entity, config.KeyringEntry, error) {
	e, err := s.entry(config.KindStream, ref)
	if err != nil {
		return nil, e, err
	}
	stream, err := s.svc.LoadStream(ctx, e.ID, e.Capabilities())
	return stream, e, err
}

// writableStream is stream for commands that change it.
func (s *session) writableStream(ctx context.Context, ref string) (*secure.Entity, config.KeyringEntry, error) {
	stream, e, err := s.stream(ctx, ref)
	if err != nil {
		return nil, e, err
	}
	if !streams.IsWritable(stream, e.Capabilities()) {
		return nil, e, printer.Error(
			"stream is read-only",
			fmt.Sprintf("The keyring holds only reader keys for '%s'.", ref),
			[]string{"Ask a member of the stream for its member key"},
		)
	}
	return stream, e, nil
}

// view loads every message of a stream.
func (s *session) view(ctx context.Context, stream *secure.Entity, e config.KeyringEntry, opts streams.ViewOptions) (*streams.View, error) {
	if opts.Recent == 0 {
		opts.Recent = s.cfg.Client.Recent
	}
	view := s.svc.NewView(e.ID, streams.ReaderCapabilities(stream, e.Capabilities()), opts)
	if err := view.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	return view, nil
}

// message resolves a short message ID against a fully loaded view.
func (s *session) message(view *streams.View, ref string) (*streams.MessageNode, error) {
	messages := view.Messages()
	candidates := make([]string, len(messages))
	for i, m := range messages {
		candidates[i] = secure.ID(m)
	}

	id, err := resolver.Resolve(candidates, ref)
	if err != nil {
		var ambiguous *resolver.AmbiguousError
		if errors.As(err, &ambiguous) {
			return nil, printer.Error("ambiguous message ID", resolver.FormatAmbiguousError(ambiguous), nil)
		}
		return nil, printer.Error("message not found", err.Error(), []string{"List messages:\n  streams ls <stream>"})
	}

	node := streams.Find(view.Tree(), id)
	if node == nil {
		return nil, printer.Error("message not placed", fmt.Sprintf("Message %s has no place in the tree (its parent is missing).", id), nil)
	}
	return node, nil
}

// storedMessage resolves a short message ID against every message stored
// for the stream, deleted or not, without decrypting anything.
func (s *session) storedMessage(ctx context.Context, e config.KeyringEntry, ref string) (string, error) {
	id, err := resolver.ResolveInStore(ctx, s.client, secure.PubOf(e.ID), ref)
	if err != nil {
		var ambiguous *resolver.AmbiguousError
		if errors.As(err, &ambiguous) {
			return "", printer.Error("ambiguous message ID", resolver.FormatAmbiguousError(ambiguous), nil)
		}
		if resolver.IsNotFoundError(err) {
			return "", printer.Error("message not found", err.Error(), []string{"List messages:\n  streams ls <stream>"})
		}
		return "", err
	}
	return id, nil
}

// parentID resolves an optional parent reference.
func (s *session) parentID(ctx context.Context, e config.KeyringEntry, ref string) (string, error) {
	if ref == "" {
		return "", nil
	}
	return s.storedMessage(ctx, e, ref)
}

// saveKeyring persists the keyring and reports where.
func (s *session) saveKeyring() error {
	if err := s.keyring.Save(); err != nil {
		return err
	}
	printer.Info("Keys saved to %s\n", s.keyring.Path())
	return nil
}
