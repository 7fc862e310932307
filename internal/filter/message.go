// Package filter selects decrypted messages by time, highlight and text.
package filter

import (
	"path/filepath"

	"github.com/dyluth/streams/pkg/graph"
)

// Criteria defines filtering criteria for messages.
// All filters are ANDed together - a message must match ALL criteria to pass.
type Criteria struct {
	SinceTimestampMs int64  // Unix timestamp in milliseconds, 0 = no filter
	UntilTimestampMs int64  // Unix timestamp in milliseconds, 0 = no filter
	TextGlob         string // Glob pattern for message text, empty = no filter
	HighlightedOnly  bool
}

// TextState returns when a message's text was last written, falling back to
// its created field for messages whose text carries no state.
func TextState(message *graph.Node) int64 {
	if s, ok := message.State["text"]; ok && s > 0 {
		return s
	}
	if v, ok := message.Value("created"); ok {
		if n, ok := v.AsNumber(); ok {
			return int64(n)
		}
	}
	return 0
}

// Matches returns true if the message matches all filter criteria.
// Empty/zero criteria values are treated as "match all" for that criterion.
func (c *Criteria) Matches(message *graph.Node) bool {
	if message == nil {
		return false
	}

	// Time filtering - last write of the text field
	state := TextState(message)
	if c.SinceTimestampMs > 0 && state < c.SinceTimestampMs {
		return false
	}
	if c.UntilTimestampMs > 0 && state > c.UntilTimestampMs {
		return false
	}

	if c.TextGlob != "" {
		text, _ := message.String("text")
		matched, err := filepath.Match(c.TextGlob, text)
		if err != nil || !matched {
			return false
		}
	}

	if c.HighlightedOnly {
		v, _ := message.Value("highlighted")
		if on, _ := v.AsBool(); !on {
			return false
		}
	}

	return true
}

// HasFilters returns true if any filters are active.
func (c *Criteria) HasFilters() bool {
	return c.SinceTimestampMs > 0 ||
		c.UntilTimestampMs > 0 ||
		c.TextGlob != "" ||
		c.HighlightedOnly
}
