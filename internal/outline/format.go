// Package outline renders a stream's message forest for the command line.
package outline

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dyluth/streams/internal/filter"
	"github.com/dyluth/streams/internal/resolver"
	"github.com/dyluth/streams/internal/secure"
	"github.com/dyluth/streams/internal/streams"
	"github.com/dyluth/streams/internal/tree"
)

// OutputFormat specifies how to format the message list output.
type OutputFormat string

const (
	// OutputFormatDefault prints an indented tree with short IDs and ages
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL outputs one message per line as JSON, depth first
	OutputFormatJSONL OutputFormat = "jsonl"

	// OutputFormatText outputs the plain indented text of every message
	OutputFormatText OutputFormat = "text"
)

// Record is one message as written by FormatJSONL.
type Record struct {
	ID          string `json:"id"`
	Parent      string `json:"parent,omitempty"`
	Depth       int    `json:"depth"`
	Position    int    `json:"position"`
	Text        string `json:"text"`
	Highlighted bool   `json:"highlighted,omitempty"`
	CreatedAtMs int64  `json:"created_at_ms,omitempty"`
	Index       string `json:"index,omitempty"`
}

// Records flattens a forest depth first, keeping messages that match
// criteria. A nil criteria keeps everything.
func Records(forest []*streams.MessageNode, criteria *filter.Criteria) []Record {
	var records []Record
	tree.Walk(forest, func(n *streams.MessageNode, depth int) {
		if criteria != nil && !criteria.Matches(n.Entity) {
			return
		}
		records = append(records, recordOf(n, depth))
	})
	return records
}

func recordOf(n *streams.MessageNode, depth int) Record {
	m := n.Entity
	r := Record{
		ID:       secure.ID(m),
		Depth:    depth,
		Position: n.Index,
	}
	r.Parent, _ = m.Link(string(secure.FieldParent))
	r.Text, _ = m.String(string(secure.FieldText))
	r.Highlighted, _ = m.Fields[string(secure.FieldHighlighted)].AsBool()
	if created, ok := m.Fields[string(secure.FieldCreated)].AsNumber(); ok {
		r.CreatedAtMs = int64(created)
	}
	r.Index, _ = m.String(string(secure.FieldIndex))
	return r
}

// FormatTree writes the forest as an indented tree to the provided writer.
// Returns the number of messages written.
func FormatTree(w io.Writer, forest []*streams.MessageNode, streamName string, criteria *filter.Criteria) int {
	records := Records(forest, criteria)
	if len(records) == 0 {
		fmt.Fprintf(w, "No messages found in stream '%s'\n", streamName)
		return 0
	}

	fmt.Fprintf(w, "Messages in stream '%s':\n\n", streamName)
	for _, r := range records {
		marker := " "
		if r.Highlighted {
			marker = "★"
		}
		fmt.Fprintf(w, "%-8s %-8s %s%s %s\n",
			resolver.ShortID(r.ID),
			formatTimestamp(r.CreatedAtMs),
			strings.Repeat("  ", r.Depth),
			marker,
			formatText(r.Text),
		)
	}

	countMsg := "message"
	if len(records) != 1 {
		countMsg = "messages"
	}
	fmt.Fprintf(w, "\n%d %s\n", len(records), countMsg)
	return len(records)
}

// FormatJSONL writes messages as line-delimited JSON (JSONL) to the provided writer.
func FormatJSONL(w io.Writer, forest []*streams.MessageNode, criteria *filter.Criteria) error {
	for _, r := range Records(forest, criteria) {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal message to JSON: %w", err)
		}
		if _, err := fmt.Fprintf(w, "%s\n", string(data)); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// Write formats the forest in the requested format.
func Write(w io.Writer, forest []*streams.MessageNode, streamName string, format OutputFormat, criteria *filter.Criteria) error {
	switch format {
	case OutputFormatDefault:
		FormatTree(w, forest, streamName, criteria)
	case OutputFormatJSONL:
		if err := FormatJSONL(w, forest, criteria); err != nil {
			return fmt.Errorf("failed to format JSONL output: %w", err)
		}
	case OutputFormatText:
		_, err := io.WriteString(w, streams.FullText(forest))
		return err
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
	return nil
}

// formatText shows the first non-empty line, truncated to 60 characters.
// Attachments are summarised by their media type.
func formatText(text string) string {
	if strings.HasPrefix(text, "data:") {
		if i := strings.IndexAny(text, ";,"); i > 0 {
			return fmt.Sprintf("[attachment %s]", text[len("data:"):i])
		}
		return "[attachment]"
	}

	var firstLine string
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			firstLine = trimmed
			break
		}
	}
	if firstLine == "" {
		return "-"
	}
	if len(firstLine) > 60 {
		return firstLine[:57] + "..."
	}
	return firstLine
}

// formatTimestamp formats Unix timestamp in milliseconds to human-readable time.
// Shows relative time like "2m ago", "1h ago", etc.
func formatTimestamp(timestampMs int64) string {
	if timestampMs == 0 {
		return "-"
	}

	diff := time.Since(time.UnixMilli(timestampMs))

	if diff < time.Minute {
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	} else if diff < time.Hour {
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	} else if diff < 24*time.Hour {
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	}
	return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
}
