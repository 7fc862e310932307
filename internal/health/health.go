// Package health serves the /healthz endpoint of long-running stream
// commands.
package health

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync/atomic"
	"time"
)

// Pinger is the store connectivity check.
type Pinger interface {
	Ping(ctx context.Context) error
	Namespace() string
}

// Server provides HTTP health check endpoints for a live feed.
type Server struct {
	store   Pinger
	addr    string
	server  *http.Server
	batches atomic.Int64
	lastMs  atomic.Int64
}

// NewServer creates a new health check server listening on addr.
func NewServer(store Pinger, addr string) *Server {
	return &Server{
		store: store,
		addr:  addr,
	}
}

// Observe records that a batch of changes was delivered.
func (h *Server) Observe() {
	h.batches.Add(1)
	h.lastMs.Store(time.Now().UnixMilli())
}

// Start starts the HTTP health check server in the background.
func (h *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.healthCheckHandler)

	h.server = &http.Server{
		Addr:         h.addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[Health] Server error: %v", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the health check server.
func (h *Server) Shutdown(ctx context.Context) error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

// healthCheckHandler handles GET /healthz requests.
// Returns 200 OK if Redis is accessible, 503 Service Unavailable otherwise.
func (h *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := Response{
		Status:        "healthy",
		Namespace:     h.store.Namespace(),
		Batches:       h.batches.Load(),
		LastBatchAtMs: h.lastMs.Load(),
	}

	status := http.StatusOK
	if err := h.store.Ping(ctx); err != nil {
		response.Status = "unhealthy"
		response.Redis = "disconnected"
		response.Error = err.Error()
		status = http.StatusServiceUnavailable
	} else {
		response.Redis = "connected"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

// Response is the JSON response structure for health checks.
type Response struct {
	Status        string `json:"status"`
	Namespace     string `json:"namespace"`
	Redis         string `json:"redis,omitempty"`
	Batches       int64  `json:"batches"`
	LastBatchAtMs int64  `json:"last_batch_at_ms,omitempty"`
	Error         string `json:"error,omitempty"`
}
