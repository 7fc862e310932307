package streams

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/streams/internal/secure"
	"github.com/dyluth/streams/pkg/graph"
)

func TestMigrate(t *testing.T) {
	svc, client := setupService(t)
	ctx := context.Background()

	legacy := func(soul, field string, value graph.Value) {
		require.NoError(t, client.Put(ctx, graph.Write{Soul: soul, Field: field, Value: value, State: client.State()}))
	}

	legacy("m1", "text", graph.Str("first"))
	legacy("m2", "text", graph.Str("second"))
	legacy("m2", "highlighted", graph.Flag(true))
	legacy("m2", "parent", graph.LinkTo("m1"))
	legacy("m2", "index", graph.Str(`[null,"m2"]`))
	legacy("legacy-messages", "m1", graph.LinkTo("m1"))
	legacy("legacy-messages", "m2", graph.LinkTo("m2"))
	legacy("legacy-stream", "name", graph.Str("Old notes"))
	legacy("legacy-stream", "lastMessage", graph.LinkTo("m2"))
	legacy("legacy-stream", "messages", graph.LinkTo("legacy-messages"))

	first, err := client.Get(ctx, "m1")
	require.NoError(t, err)
	firstState := first.State["text"]

	cred, err := svc.Migrate(ctx, "legacy-stream")
	require.NoError(t, err)

	stream, err := svc.LoadStream(ctx, cred.ID, memberCaps(cred))
	require.NoError(t, err)

	name, _ := stream.String(string(secure.FieldName))
	assert.Equal(t, "Old notes", name)

	last, ok := stream.Link(string(secure.FieldLastMessage))
	require.True(t, ok)
	assert.Equal(t, secure.SubAddress("m2", cred.Pub), last)

	created, ok := stream.Fields[string(secure.FieldCreated)].AsNumber()
	require.True(t, ok)
	assert.Equal(t, float64(firstState), created)

	view := loadView(t, svc, stream, cred)
	assert.Equal(t, "first(second)", shape(view.Tree()))

	second := Find(view.Tree(), secure.SubAddress("m2", cred.Pub))
	require.NotNil(t, second)
	highlighted, _ := second.Entity.Fields[string(secure.FieldHighlighted)].AsBool()
	assert.True(t, highlighted)
	index, _ := second.Entity.String(string(secure.FieldIndex))
	assert.Equal(t, `[null,"m2~`+cred.Pub+`."]`, index)

	messageCreated, ok := Find(view.Tree(), secure.SubAddress("m1", cred.Pub)).Entity.Fields[string(secure.FieldCreated)].AsNumber()
	require.True(t, ok)
	assert.Equal(t, float64(firstState), messageCreated)
}

func TestMigrate_EmptyLegacyStream(t *testing.T) {
	svc, client := setupService(t)
	ctx := context.Background()

	require.NoError(t, client.Put(ctx, graph.Write{Soul: "bare", Field: "name", Value: graph.Str("Bare"), State: client.State()}))

	cred, err := svc.Migrate(ctx, "bare")
	require.NoError(t, err)

	changes, err := svc.LoadMessages(ctx, cred.ID)
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestMigrate_MissingStream(t *testing.T) {
	svc, _ := setupService(t)
	_, err := svc.Migrate(context.Background(), "nowhere")
	assert.True(t, graph.IsNotFound(err))
}
