package instance

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"

	dockerpkg "github.com/dyluth/streams/internal/docker"
)

const (
	// Port range for local Redis containers (allows 100 namespaces)
	startPort = 6379
	endPort   = 6478
)

// Lister lists containers; *client.Client satisfies it.
type Lister interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error)
}

// FindNextAvailablePort finds the next available port for Redis, starting from 6379.
// Returns the port number or error if all ports in range (6379-6478) are exhausted.
// Checks both Docker container labels and actual port bindability on the host.
func FindNextAvailablePort(ctx context.Context, cli Lister) (int, error) {
	filter := filters.NewArgs()
	filter.Add("label", fmt.Sprintf("%s=true", dockerpkg.LabelProject))
	filter.Add("label", fmt.Sprintf("%s=%s", dockerpkg.LabelComponent, dockerpkg.ComponentRedis))

	containers, err := cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filter,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to query Docker containers: %w", err)
	}

	usedPorts := make(map[int]bool)
	for _, c := range containers {
		if port, ok := portOf(c); ok {
			usedPorts[port] = true
		}
	}

	for port := startPort; port <= endPort; port++ {
		if usedPorts[port] {
			continue
		}
		if isPortBindable(port) {
			return port, nil
		}
	}

	return 0, fmt.Errorf("no available Redis ports (range %d-%d exhausted)", startPort, endPort)
}

// portOf reads the Redis port label of a container.
func portOf(c types.Container) (int, bool) {
	portStr, ok := c.Labels[dockerpkg.LabelRedisPort]
	if !ok {
		return 0, false
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, false
	}
	return port, true
}

// isPortBindable checks if a port can be bound on localhost.
// Returns true if port is available, false if in use.
func isPortBindable(port int) bool {
	addr := fmt.Sprintf("localhost:%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return false
	}
	listener.Close()
	return true
}
