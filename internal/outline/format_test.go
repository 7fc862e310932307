package outline

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/streams/internal/filter"
	"github.com/dyluth/streams/internal/secure"
	"github.com/dyluth/streams/internal/streams"
	"github.com/dyluth/streams/pkg/graph"
)

func message(id, text, parent string, highlighted bool) *secure.Entity {
	n := graph.NewNode(id + "~pub.")
	n.Fields[string(secure.FieldText)] = graph.Str(text)
	n.State[string(secure.FieldText)] = time.Now().UnixMilli()
	n.Fields[string(secure.FieldCreated)] = graph.Num(float64(time.Now().Add(-2 * time.Hour).UnixMilli()))
	if parent != "" {
		n.Fields[string(secure.FieldParent)] = graph.LinkTo(parent + "~pub.")
	}
	if highlighted {
		n.Fields[string(secure.FieldHighlighted)] = graph.Flag(true)
	}
	return n
}

func sampleForest() []*streams.MessageNode {
	return streams.Treeify([]*secure.Entity{
		message("01aaaaaaaa11111111", "groceries", "", false),
		message("01aaaaaaaa22222222", "milk", "01aaaaaaaa11111111", true),
		message("01aaaaaaaa33333333", "call home", "", false),
	})
}

func TestFormatText(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected string
	}{
		{name: "empty text", text: "", expected: "-"},
		{name: "short single line", text: "hello", expected: "hello"},
		{name: "exactly 60 chars", text: strings.Repeat("a", 60), expected: strings.Repeat("a", 60)},
		{name: "61 chars - should truncate", text: strings.Repeat("a", 61), expected: strings.Repeat("a", 57) + "..."},
		{name: "multi-line text - first line only", text: "First line\nSecond line", expected: "First line"},
		{name: "whitespace around text", text: "  \n  hello world  \n  ", expected: "hello world"},
		{name: "attachment", text: "data:image/png;base64,iVBORw0KGgo=", expected: "[attachment image/png]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatText(tt.text))
		})
	}
}

func TestFormatTimestamp(t *testing.T) {
	assert.Equal(t, "-", formatTimestamp(0))
	assert.Equal(t, "2h ago", formatTimestamp(time.Now().Add(-2*time.Hour-time.Minute).UnixMilli()))
	assert.Equal(t, "3d ago", formatTimestamp(time.Now().Add(-73*time.Hour).UnixMilli()))
}

func TestFormatTree(t *testing.T) {
	var buf bytes.Buffer
	count := FormatTree(&buf, sampleForest(), "Notes", nil)
	assert.Equal(t, 3, count)

	output := buf.String()
	assert.Contains(t, output, "Messages in stream 'Notes':")
	assert.Contains(t, output, "11111111 2h ago     groceries")
	assert.Contains(t, output, "22222222 2h ago     ★ milk")
	assert.Contains(t, output, "3 messages")
}

func TestFormatTree_Empty(t *testing.T) {
	var buf bytes.Buffer
	count := FormatTree(&buf, nil, "Notes", nil)
	assert.Equal(t, 0, count)
	assert.Equal(t, "No messages found in stream 'Notes'\n", buf.String())
}

func TestFormatJSONL(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, FormatJSONL(&buf, sampleForest(), nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)

	var records []Record
	for _, line := range lines {
		var r Record
		require.NoError(t, json.Unmarshal([]byte(line), &r))
		records = append(records, r)
	}
	assert.Equal(t, "groceries", records[0].Text)
	assert.Equal(t, 0, records[0].Depth)
	assert.Equal(t, "milk", records[1].Text)
	assert.Equal(t, 1, records[1].Depth)
	assert.Equal(t, records[0].ID, records[1].Parent)
	assert.True(t, records[1].Highlighted)
	assert.Equal(t, 1, records[2].Position)
}

func TestWrite_Filters(t *testing.T) {
	var buf bytes.Buffer
	criteria := &filter.Criteria{HighlightedOnly: true}
	require.NoError(t, Write(&buf, sampleForest(), "Notes", OutputFormatJSONL, criteria))
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
	assert.Contains(t, buf.String(), `"text":"milk"`)
}

func TestWrite_Text(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleForest(), "Notes", OutputFormatText, nil))
	assert.Equal(t, "groceries\n  milk\ncall home\n", buf.String())
}

func TestWrite_UnknownFormat(t *testing.T) {
	err := Write(&bytes.Buffer{}, nil, "Notes", OutputFormat("xml"), nil)
	assert.ErrorContains(t, err, "unknown output format: xml")
}
