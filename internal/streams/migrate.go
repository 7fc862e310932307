package streams

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dyluth/streams/internal/ordering"
	"github.com/dyluth/streams/internal/secure"
	"github.com/dyluth/streams/pkg/graph"
)

// Migrate copies a stream of the legacy unencrypted layout into a new
// encrypted stream and returns the new stream's credentials.
//
// A legacy stream is a plain node with a name, a lastMessage link and a
// messages link to a collection of plain message nodes. Each message keeps
// its local identifier; references between messages are rewritten to the
// new stream's addresses. The created time of a message is the state of its
// text field, and the new stream's created time is the earliest of those.
func (s *Service) Migrate(ctx context.Context, oldStreamID string) (secure.Credentials, error) {
	old, err := s.store.Get(ctx, oldStreamID)
	if err != nil {
		return secure.Credentials{}, fmt.Errorf("failed to load legacy stream %s: %w", oldStreamID, err)
	}
	name, _ := old.String(string(secure.FieldName))

	cred, err := s.CreateStream(ctx, nil, name)
	if err != nil {
		return secure.Credentials{}, err
	}
	keys := cred.Keys()
	address := func(local string) string {
		return secure.SubAddress(secure.LocalID(local), cred.Pub)
	}
	put := func(sub, key string, value graph.Value) error {
		id := ""
		if sub == "" {
			id = cred.ID
		}
		return s.writer.Put(ctx, secure.Put{Keys: keys, ID: id, Sub: sub, Key: key, Value: value})
	}

	if last, ok := old.Link(string(secure.FieldLastMessage)); ok {
		if err := put("", string(secure.FieldLastMessage), graph.LinkTo(address(last))); err != nil {
			return cred, fmt.Errorf("failed to migrate last message: %w", err)
		}
	}

	collection, ok := old.Link(subMessages)
	if !ok {
		s.logEvent("stream_migrated", map[string]interface{}{
			"legacy_id": oldStreamID,
			"stream_id": cred.ID,
			"messages":  0,
		})
		return cred, nil
	}
	members, err := s.store.Get(ctx, collection)
	if err != nil {
		if graph.IsNotFound(err) {
			return cred, nil
		}
		return cred, fmt.Errorf("failed to load legacy messages: %w", err)
	}

	var created int64
	migrated := 0
	for _, key := range members.Keys() {
		target, ok := members.Fields[key].AsLink()
		if !ok {
			continue
		}
		message, err := s.store.Get(ctx, target)
		if err != nil {
			if graph.IsNotFound(err) {
				continue
			}
			return cred, err
		}

		uuid := secure.LocalID(target)
		messageID := address(uuid)
		if err := put(subMessages, messageID, graph.LinkTo(messageID)); err != nil {
			return cred, err
		}
		if err := s.migrateMessage(ctx, keys, uuid, message, address); err != nil {
			return cred, fmt.Errorf("failed to migrate message %s: %w", uuid, err)
		}
		if state, ok := message.State[string(secure.FieldText)]; ok && (created == 0 || state < created) {
			created = state
			if err := put("", string(secure.FieldCreated), graph.Num(float64(created))); err != nil {
				return cred, err
			}
		}
		migrated++
	}

	s.logEvent("stream_migrated", map[string]interface{}{
		"legacy_id": oldStreamID,
		"stream_id": cred.ID,
		"messages":  migrated,
	})
	return cred, nil
}

func (s *Service) migrateMessage(ctx context.Context, keys secure.Keys, uuid string, message *graph.Node, address func(string) string) error {
	put := func(key string, value graph.Value) error {
		return s.writer.Put(ctx, secure.Put{Keys: keys, Sub: uuid, Key: key, Value: value})
	}

	for _, field := range message.Keys() {
		value := message.Fields[field]
		switch secure.Field(field) {
		case secure.FieldText:
			if err := put(string(secure.FieldCreated), graph.Num(float64(message.State[field]))); err != nil {
				return err
			}
			if err := put(field, value); err != nil {
				return err
			}
		case secure.FieldHighlighted:
			if err := put(field, value); err != nil {
				return err
			}
		case secure.FieldIndex:
			raw, ok := value.AsString()
			if !ok || raw == "" {
				continue
			}
			var legacy ordering.Index
			if err := json.Unmarshal([]byte(raw), &legacy); err != nil {
				return fmt.Errorf("invalid index %q: %w", raw, err)
			}
			index := make(ordering.Index, len(legacy))
			for i, part := range legacy {
				if part.IsSentinel() {
					index[i] = ordering.Sentinel()
					continue
				}
				index[i] = ordering.Key(address(part.ID()))
			}
			if err := put(field, graph.Str(index.String())); err != nil {
				return err
			}
		case secure.FieldParent:
			parent, ok := value.AsLink()
			if !ok {
				continue
			}
			if err := put(field, graph.LinkTo(address(parent))); err != nil {
				return err
			}
		}
	}
	return nil
}
