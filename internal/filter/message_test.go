package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dyluth/streams/pkg/graph"
)

func message(text string, state int64, highlighted bool) *graph.Node {
	n := graph.NewNode("~m~pub.")
	n.Fields["text"] = graph.Str(text)
	n.State["text"] = state
	if highlighted {
		n.Fields["highlighted"] = graph.Flag(true)
		n.State["highlighted"] = state
	}
	return n
}

func TestCriteria_Matches(t *testing.T) {
	tests := []struct {
		name     string
		criteria Criteria
		message  *graph.Node
		want     bool
	}{
		{"no filters", Criteria{}, message("hello", 1000, false), true},
		{"since inside", Criteria{SinceTimestampMs: 500}, message("hello", 1000, false), true},
		{"since outside", Criteria{SinceTimestampMs: 1500}, message("hello", 1000, false), false},
		{"until inside", Criteria{UntilTimestampMs: 1500}, message("hello", 1000, false), true},
		{"until outside", Criteria{UntilTimestampMs: 500}, message("hello", 1000, false), false},
		{"glob match", Criteria{TextGlob: "hel*"}, message("hello", 1000, false), true},
		{"glob miss", Criteria{TextGlob: "bye*"}, message("hello", 1000, false), false},
		{"bad glob", Criteria{TextGlob: "["}, message("hello", 1000, false), false},
		{"highlighted", Criteria{HighlightedOnly: true}, message("hello", 1000, true), true},
		{"not highlighted", Criteria{HighlightedOnly: true}, message("hello", 1000, false), false},
		{"nil message", Criteria{}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.criteria.Matches(tt.message))
		})
	}
}

func TestTextState_FallsBackToCreated(t *testing.T) {
	n := graph.NewNode("~m~pub.")
	n.Fields["created"] = graph.Num(1234)
	assert.Equal(t, int64(1234), TextState(n))

	n.State["text"] = 99
	assert.Equal(t, int64(99), TextState(n))
}

func TestCriteria_HasFilters(t *testing.T) {
	assert.False(t, (&Criteria{}).HasFilters())
	assert.True(t, (&Criteria{TextGlob: "*"}).HasFilters())
	assert.True(t, (&Criteria{HighlightedOnly: true}).HasFilters())
	assert.True(t, (&Criteria{SinceTimestampMs: 1}).HasFilters())
}
