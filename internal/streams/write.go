package streams

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/dyluth/streams/internal/ordering"
	"github.com/dyluth/streams/internal/secure"
	"github.com/dyluth/streams/pkg/graph"
)

const (
	subStreams            = "streams"
	subStreamEPrivs       = "streams-eprivs"
	subStreamReaderEPrivs = "streams-reader-eprivs"
	subMessages           = "messages"
)

// Message is the content of a new message.
type Message struct {
	Text        string
	Highlighted bool
}

// CreateSpace creates a space named name and returns its credentials.
func (s *Service) CreateSpace(ctx context.Context, name string) (secure.Credentials, error) {
	cred, err := s.writer.Create(ctx)
	if err != nil {
		return secure.Credentials{}, err
	}
	if err := s.writer.Put(ctx, secure.Put{Keys: cred.Keys(), ID: cred.ID, Key: string(secure.FieldName), Value: graph.Str(name)}); err != nil {
		return secure.Credentials{}, fmt.Errorf("failed to name space: %w", err)
	}

	s.logEvent("space_created", map[string]interface{}{
		"space_id": cred.ID,
	})
	return cred, nil
}

// CreateStream creates a stream named name and returns its credentials.
// When space is given the stream is added to it with both of its keys.
func (s *Service) CreateStream(ctx context.Context, space *secure.Entity, name string) (secure.Credentials, error) {
	cred, err := s.writer.Create(ctx)
	if err != nil {
		return secure.Credentials{}, err
	}
	if err := s.writer.Put(ctx, secure.Put{Keys: cred.Keys(), ID: cred.ID, Key: string(secure.FieldName), Value: graph.Str(name)}); err != nil {
		return secure.Credentials{}, fmt.Errorf("failed to name stream: %w", err)
	}

	if space != nil {
		if err := s.AddStream(ctx, space, cred.ID, cred.EPriv, cred.ReaderEPriv); err != nil {
			return secure.Credentials{}, err
		}
	}

	s.logEvent("stream_created", map[string]interface{}{
		"stream_id": cred.ID,
		"space_id":  secure.ID(space),
	})
	return cred, nil
}

// AddStream links streamID into space. A member key is stored for space
// members; the reader key is stored for space readers, recovered from the
// stream itself when only the member key is given.
func (s *Service) AddStream(ctx context.Context, space *secure.Entity, streamID, streamEPriv, streamReaderEPriv string) error {
	reader, err := ownerKeys(space)
	if err != nil {
		return err
	}

	if err := s.writer.Put(ctx, secure.Put{Keys: reader, Sub: subStreams, Key: streamID, Value: graph.LinkTo(streamID)}); err != nil {
		return fmt.Errorf("failed to link stream: %w", err)
	}

	if streamEPriv != "" {
		member, err := memberKeys(space)
		if err != nil {
			return err
		}
		if err := s.writer.Put(ctx, secure.Put{Keys: member, Sub: subStreamEPrivs, Key: streamID, Value: graph.Str(streamEPriv)}); err != nil {
			return fmt.Errorf("failed to store stream member key: %w", err)
		}

		if streamReaderEPriv == "" {
			streamReaderEPriv, err = s.streamReaderKey(ctx, streamID, streamEPriv)
			if err != nil {
				return err
			}
		}
	}

	if streamReaderEPriv != "" {
		if err := s.writer.Put(ctx, secure.Put{Keys: reader, Sub: subStreamReaderEPrivs, Key: streamID, Value: graph.Str(streamReaderEPriv)}); err != nil {
			return fmt.Errorf("failed to store stream reader key: %w", err)
		}
	}
	return nil
}

// streamReaderKey decrypts the reader key stored on a stream.
func (s *Service) streamReaderKey(ctx context.Context, streamID, streamEPriv string) (string, error) {
	stream, err := s.store.Get(ctx, streamID)
	if err != nil {
		if graph.IsNotFound(err) {
			return "", fmt.Errorf("%w: stream %s", secure.ErrTooEarly, streamID)
		}
		return "", err
	}
	raw, ok := stream.String(string(secure.FieldReaderEPriv))
	if !ok {
		return "", fmt.Errorf("%w: stream %s has no reader key yet", secure.ErrTooEarly, streamID)
	}
	v, err := s.crypto.Decrypt(raw, streamEPriv)
	if err != nil {
		return "", fmt.Errorf("%w: reader key of %s: %v", secure.ErrDecrypt, streamID, err)
	}
	key, _ := v.AsString()
	return key, nil
}

// CreateMessage writes a new message into stream and returns its address.
// The message is placed under parentID when given and between previous and
// next when either is given.
func (s *Service) CreateMessage(ctx context.Context, stream *secure.Entity, msg Message, parentID string, previous, next *secure.Entity) (string, error) {
	keys, err := ownerKeys(stream)
	if err != nil {
		return "", err
	}

	uuid := s.store.UUID()
	messageID := secure.SubAddress(uuid, keys.Pub)

	fields := []secure.Put{
		{Keys: keys, Sub: uuid, Key: string(secure.FieldCreated), Value: graph.Num(float64(s.now().UnixMilli()))},
		{Keys: keys, Sub: uuid, Key: string(secure.FieldText), Value: graph.Str(msg.Text)},
	}
	if msg.Highlighted {
		fields = append(fields, secure.Put{Keys: keys, Sub: uuid, Key: string(secure.FieldHighlighted), Value: graph.Flag(true)})
	}
	for _, p := range fields {
		if err := s.writer.Put(ctx, p); err != nil {
			return "", fmt.Errorf("failed to write message: %w", err)
		}
	}

	if parentID != "" {
		if err := s.Append(ctx, stream, messageID, parentID); err != nil {
			return "", err
		}
	}
	if previous != nil || next != nil {
		if err := s.MoveBetween(ctx, stream, messageID, previous, next); err != nil {
			return "", err
		}
	}

	if err := s.writer.Put(ctx, secure.Put{Keys: keys, Sub: subMessages, Key: messageID, Value: graph.LinkTo(messageID)}); err != nil {
		return "", fmt.Errorf("failed to link message: %w", err)
	}
	if err := s.writer.Put(ctx, secure.Put{Keys: keys, Key: string(secure.FieldLastMessage), Value: graph.LinkTo(messageID)}); err != nil {
		return "", fmt.Errorf("failed to update last message: %w", err)
	}

	s.logEvent("message_created", map[string]interface{}{
		"stream_id":  secure.ID(stream),
		"message_id": messageID,
		"parent_id":  parentID,
	})
	return messageID, nil
}

// Lines returns the non-empty lines of text, without line endings.
func Lines(text string) []string {
	var lines []string
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// ImportLines creates one message per non-empty line of text under parentID.
func (s *Service) ImportLines(ctx context.Context, stream *secure.Entity, parentID, text string) ([]string, error) {
	var ids []string
	for _, line := range Lines(text) {
		id, err := s.CreateMessage(ctx, stream, Message{Text: line}, parentID, nil, nil)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// UpdateMessage writes one field of a message.
func (s *Service) UpdateMessage(ctx context.Context, stream *secure.Entity, messageID string, field secure.Field, value graph.Value) error {
	keys, err := ownerKeys(stream)
	if err != nil {
		return err
	}
	return s.writer.Put(ctx, secure.Put{Keys: keys, ID: messageID, Key: string(field), Value: value})
}

// DeleteMessage tombstones a message in its stream.
func (s *Service) DeleteMessage(ctx context.Context, stream *secure.Entity, messageID string) error {
	keys, err := ownerKeys(stream)
	if err != nil {
		return err
	}
	if err := s.writer.Put(ctx, secure.Put{Keys: keys, Sub: subMessages, Key: messageID, Value: graph.Null()}); err != nil {
		return err
	}
	s.logEvent("message_deleted", map[string]interface{}{
		"stream_id":  secure.ID(stream),
		"message_id": messageID,
	})
	return nil
}

// DeleteStream tombstones a stream in a space.
func (s *Service) DeleteStream(ctx context.Context, space *secure.Entity, streamID string) error {
	keys, err := ownerKeys(space)
	if err != nil {
		return err
	}
	if err := s.writer.Put(ctx, secure.Put{Keys: keys, Sub: subStreams, Key: streamID, Value: graph.Null()}); err != nil {
		return err
	}
	s.logEvent("stream_deleted", map[string]interface{}{
		"space_id":  secure.ID(space),
		"stream_id": streamID,
	})
	return nil
}

// MoveBetween places a message between two siblings by rewriting its index.
// Either sibling may be nil.
func (s *Service) MoveBetween(ctx context.Context, stream *secure.Entity, currentID string, previous, next *secure.Entity) error {
	p, err := s.stageMove(stream, currentID, previous, next)
	if err != nil {
		return err
	}
	return s.writer.Put(ctx, p)
}

// Append makes parentID the parent of a message. An empty parentID moves it
// to the top level.
func (s *Service) Append(ctx context.Context, stream *secure.Entity, messageID, parentID string) error {
	p, err := s.stageAppend(stream, messageID, parentID)
	if err != nil {
		return err
	}
	return s.writer.Put(ctx, p)
}

func (s *Service) stageMove(stream *secure.Entity, currentID string, previous, next *secure.Entity) (secure.Put, error) {
	keys, err := ownerKeys(stream)
	if err != nil {
		return secure.Put{}, err
	}
	prevIndex, err := IndexOf(previous)
	if err != nil {
		return secure.Put{}, err
	}
	nextIndex, err := IndexOf(next)
	if err != nil {
		return secure.Put{}, err
	}
	index := ordering.Between(currentID, prevIndex, nextIndex)
	return secure.Put{Keys: keys, ID: currentID, Key: string(secure.FieldIndex), Value: graph.Str(index.String())}, nil
}

func (s *Service) stageAppend(stream *secure.Entity, messageID, parentID string) (secure.Put, error) {
	keys, err := ownerKeys(stream)
	if err != nil {
		return secure.Put{}, err
	}
	parent := graph.Null()
	if parentID != "" {
		parent = graph.LinkTo(parentID)
	}
	return secure.Put{Keys: keys, ID: messageID, Key: string(secure.FieldParent), Value: parent}, nil
}

// IndexOf returns the order key of a decrypted message, nil for nil.
func IndexOf(message *secure.Entity) (ordering.Index, error) {
	if message == nil {
		return nil, nil
	}
	raw, _ := message.String(string(secure.FieldIndex))
	idx, err := ordering.IndexOf(secure.ID(message), raw)
	if err != nil {
		return nil, fmt.Errorf("message %s: %w", secure.ID(message), err)
	}
	return idx, nil
}

// AddAttachment posts data as a data URL message. Payloads whose encoding
// exceeds MaxAttachmentSize are rejected before anything is written.
func (s *Service) AddAttachment(ctx context.Context, stream *secure.Entity, data []byte, parentID string) (string, error) {
	encoded := fmt.Sprintf("data:%s;base64,%s", http.DetectContentType(data), base64.StdEncoding.EncodeToString(data))
	if len(encoded) > MaxAttachmentSize {
		return "", fmt.Errorf("%w: %d", ErrPayloadTooLarge, len(encoded))
	}
	return s.CreateMessage(ctx, stream, Message{Text: encoded}, parentID, nil, nil)
}
