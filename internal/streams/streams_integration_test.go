//go:build integration

package streams

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/streams/internal/secure"
	"github.com/dyluth/streams/internal/testutil"
)

// TestIntegration_TwoClients writes through one client and reads the
// messages live through another against a real Redis.
func TestIntegration_TwoClients(t *testing.T) {
	redisURL := testutil.StartRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	writer := New(testutil.NewGraphClient(t, redisURL, "it"), secure.SEA{}, WithBatchWindow(20*time.Millisecond))
	reader := New(testutil.NewGraphClient(t, redisURL, "it"), secure.SEA{}, WithBatchWindow(20*time.Millisecond))
	require.NoError(t, writer.Init(ctx))
	require.NoError(t, reader.Init(ctx))

	cred, err := writer.CreateStream(ctx, nil, "shared")
	require.NoError(t, err)
	stream, err := writer.LoadStream(ctx, cred.ID, secure.Capabilities{Member: cred.EPriv})
	require.NoError(t, err)

	readerCaps := secure.Capabilities{Reader: cred.ReaderEPriv}
	view := reader.NewView(cred.ID, readerCaps, ViewOptions{All: true})
	batches := make(chan error, 16)
	feed, err := view.Listen(ctx, func(err error) { batches <- err })
	require.NoError(t, err)
	defer feed.Close()

	first, err := writer.CreateMessage(ctx, stream, Message{Text: "first"}, "", nil, nil)
	require.NoError(t, err)
	_, err = writer.CreateMessage(ctx, stream, Message{Text: "second"}, first, nil, nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return shape(view.Tree()) == "first(second)"
	}, 10*time.Second, 50*time.Millisecond)

	// Readers cannot write
	readOnly, err := reader.LoadStream(ctx, cred.ID, readerCaps)
	require.NoError(t, err)
	assert.False(t, IsWritable(readOnly, readerCaps))

	changes, err := reader.LoadMessages(ctx, cred.ID)
	require.NoError(t, err)
	assert.Len(t, changes, 2)
	for _, ch := range changes {
		assert.NotNil(t, ch.Data)
	}
}
