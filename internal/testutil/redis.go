// Package testutil starts Redis servers for tests and connects graph
// clients to them.
package testutil

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/streams/internal/secure"
	"github.com/dyluth/streams/pkg/graph"
)

// MiniRedis starts an in-process Redis and returns its URL.
func MiniRedis(t *testing.T) (*miniredis.Miniredis, string) {
	t.Helper()
	mr := miniredis.RunT(t)
	return mr, "redis://" + mr.Addr()
}

// NewGraphClient connects a verifying graph client to redisURL in namespace.
// The client is closed when the test ends.
func NewGraphClient(t *testing.T, redisURL, namespace string) *graph.Client {
	t.Helper()
	opts, err := redis.ParseURL(redisURL)
	require.NoError(t, err, "Failed to parse Redis URL")

	client, err := graph.NewClient(opts, namespace, graph.WithVerifier(secure.Verifier(secure.SEA{})))
	require.NoError(t, err, "Failed to create graph client")
	t.Cleanup(func() { client.Close() })
	return client
}
