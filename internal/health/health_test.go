package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/streams/pkg/graph"
)

func serve(t *testing.T, server *Server, method string) (*httptest.ResponseRecorder, Response) {
	req := httptest.NewRequest(method, "/healthz", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	req = req.WithContext(ctx)

	w := httptest.NewRecorder()
	server.healthCheckHandler(w, req)

	var response Response
	if w.Code != http.StatusMethodNotAllowed {
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	}
	return w, response
}

// TestHealthCheckEndpoint_MethodNotAllowed verifies non-GET requests are rejected.
func TestHealthCheckEndpoint_MethodNotAllowed(t *testing.T) {
	w, _ := serve(t, NewServer(nil, ":0"), http.MethodPost)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHealthCheckResponse(t *testing.T) {
	t.Run("healthy when Redis answers", func(t *testing.T) {
		mr := miniredis.NewMiniRedis()
		require.NoError(t, mr.Start())
		defer mr.Close()

		client, err := graph.NewClient(&redis.Options{Addr: mr.Addr()}, "test-ns")
		require.NoError(t, err)
		defer client.Close()

		server := NewServer(client, ":0")
		server.Observe()
		server.Observe()

		w, response := serve(t, server, http.MethodGet)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "healthy", response.Status)
		assert.Equal(t, "connected", response.Redis)
		assert.Equal(t, "test-ns", response.Namespace)
		assert.Equal(t, int64(2), response.Batches)
		assert.NotZero(t, response.LastBatchAtMs)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	})

	t.Run("unhealthy when Redis unavailable", func(t *testing.T) {
		// Port 9 is the discard protocol - connections will fail immediately
		client, err := graph.NewClient(&redis.Options{
			Addr:         "localhost:9",
			DialTimeout:  50 * time.Millisecond,
			ReadTimeout:  50 * time.Millisecond,
			WriteTimeout: 50 * time.Millisecond,
			MaxRetries:   -1,
		}, "test")
		require.NoError(t, err)
		defer client.Close()

		w, response := serve(t, NewServer(client, ":0"), http.MethodGet)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "unhealthy", response.Status)
		assert.Equal(t, "disconnected", response.Redis)
		assert.NotEmpty(t, response.Error)
	})
}

func TestShutdownWithoutStart(t *testing.T) {
	assert.NoError(t, NewServer(nil, ":0").Shutdown(context.Background()))
}
