package watch

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dyluth/streams/internal/listener"
	"github.com/dyluth/streams/internal/resolver"
	"github.com/dyluth/streams/internal/secure"
)

// OutputFormat selects how live message events are written.
type OutputFormat string

const (
	// OutputFormatDefault writes human-readable lines with emojis
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSON writes one JSON object per event
	OutputFormatJSON OutputFormat = "json"
)

// EventType names what happened to a message.
type EventType string

const (
	EventMessageCreated EventType = "message_created"
	EventMessageUpdated EventType = "message_updated"
	EventMessageRemoved EventType = "message_removed"
)

// Event is one change to a stream's messages.
type Event struct {
	Type        EventType `json:"event"`
	MessageID   string    `json:"message_id"`
	Parent      string    `json:"parent,omitempty"`
	Text        string    `json:"text,omitempty"`
	Highlighted bool      `json:"highlighted,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Tracker turns batches of decrypted message changes into events. It
// remembers which messages it has seen to tell creations from edits.
type Tracker struct {
	mu   sync.Mutex
	seen map[string]bool
	now  func() time.Time
}

// NewTracker returns a tracker that has seen nothing.
func NewTracker() *Tracker {
	return &Tracker{seen: make(map[string]bool), now: time.Now}
}

// Events converts one batch. Tombstones of unseen messages are dropped.
func (t *Tracker) Events(batch []listener.Change) []Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	var events []Event
	for _, ch := range batch {
		if ch.Data == nil {
			if !ch.Removed() || !t.seen[ch.Key] {
				continue
			}
			delete(t.seen, ch.Key)
			events = append(events, Event{Type: EventMessageRemoved, MessageID: ch.Key, Timestamp: t.now()})
			continue
		}

		ev := Event{Type: EventMessageUpdated, MessageID: ch.Key, Timestamp: t.now()}
		if !t.seen[ch.Key] {
			ev.Type = EventMessageCreated
			t.seen[ch.Key] = true
		}
		ev.Parent, _ = ch.Data.Link(string(secure.FieldParent))
		ev.Text, _ = ch.Data.String(string(secure.FieldText))
		ev.Highlighted, _ = ch.Data.Fields[string(secure.FieldHighlighted)].AsBool()
		events = append(events, ev)
	}
	return events
}

// Formatter writes events.
type Formatter interface {
	Format(ev Event) error
}

// NewFormatter returns the formatter for format.
func NewFormatter(format OutputFormat, w io.Writer) (Formatter, error) {
	switch format {
	case OutputFormatDefault:
		return &defaultFormatter{writer: w}, nil
	case OutputFormatJSON:
		return &jsonFormatter{writer: w}, nil
	default:
		return nil, fmt.Errorf("unknown output format: %s", format)
	}
}

type defaultFormatter struct {
	writer io.Writer
}

func (f *defaultFormatter) Format(ev Event) error {
	ts := ev.Timestamp.Format("15:04:05")
	id := resolver.ShortID(ev.MessageID)

	var line string
	switch ev.Type {
	case EventMessageCreated:
		star := ""
		if ev.Highlighted {
			star = "★ "
		}
		line = fmt.Sprintf("[%s] 💬 %s %s%s", ts, id, star, ev.Text)
		if ev.Parent != "" {
			line += fmt.Sprintf(" (reply to %s)", resolver.ShortID(ev.Parent))
		}
	case EventMessageUpdated:
		line = fmt.Sprintf("[%s] ✏️  %s %s", ts, id, ev.Text)
	case EventMessageRemoved:
		line = fmt.Sprintf("[%s] 🗑️  %s removed", ts, id)
	default:
		line = fmt.Sprintf("[%s] %s %s", ts, ev.Type, id)
	}

	_, err := fmt.Fprintln(f.writer, line)
	return err
}

type jsonFormatter struct {
	writer io.Writer
}

func (f *jsonFormatter) Format(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = fmt.Fprintf(f.writer, "%s\n", data)
	return err
}
