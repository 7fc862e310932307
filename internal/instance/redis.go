// Package instance runs a local Redis in Docker for one streams namespace.
package instance

import (
	"context"
	"fmt"
	"strconv"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	dockerpkg "github.com/dyluth/streams/internal/docker"
)

// DefaultRedisImage is the image `streams up` runs.
const DefaultRedisImage = "redis:7-alpine"

// Info describes the local Redis of a namespace.
type Info struct {
	Name    string
	Port    int
	Status  Status
	Started bool // false when an existing container was reused
}

// RedisURL is the URL clients connect to.
func (i Info) RedisURL() string {
	return fmt.Sprintf("redis://localhost:%d", i.Port)
}

// Containers lists the local Redis containers of namespace.
func Containers(ctx context.Context, cli Lister, namespace string) ([]types.Container, error) {
	filter := filters.NewArgs()
	filter.Add("label", fmt.Sprintf("%s=%s", dockerpkg.LabelNamespace, namespace))
	filter.Add("label", fmt.Sprintf("%s=%s", dockerpkg.LabelComponent, dockerpkg.ComponentRedis))

	containers, err := cli.ContainerList(ctx, container.ListOptions{All: true, Filters: filter})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}
	return containers, nil
}

// StartRedis starts the local Redis of namespace, creating it on first use.
func StartRedis(ctx context.Context, cli *client.Client, namespace, image string) (Info, error) {
	name := dockerpkg.RedisContainerName(namespace)

	existing, err := Containers(ctx, cli, namespace)
	if err != nil {
		return Info{}, err
	}
	if len(existing) > 0 {
		c := existing[0]
		port, _ := portOf(c)
		info := Info{Name: name, Port: port, Status: DetermineStatus(existing)}
		if info.Status == StatusRunning {
			return info, nil
		}
		if err := cli.ContainerStart(ctx, c.ID, container.StartOptions{}); err != nil {
			return Info{}, fmt.Errorf("failed to restart Redis container: %w", err)
		}
		info.Status = StatusRunning
		info.Started = true
		return info, nil
	}

	if image == "" {
		image = DefaultRedisImage
	}
	port, err := FindNextAvailablePort(ctx, cli)
	if err != nil {
		return Info{}, fmt.Errorf("failed to allocate Redis port: %w", err)
	}

	labels := dockerpkg.BuildLabels(namespace, dockerpkg.GenerateRunID(), dockerpkg.ComponentRedis)
	labels[dockerpkg.LabelRedisPort] = strconv.Itoa(port)

	resp, err := cli.ContainerCreate(ctx, &container.Config{
		Image:  image,
		Labels: labels,
		ExposedPorts: nat.PortSet{
			"6379/tcp": struct{}{},
		},
	}, &container.HostConfig{
		PortBindings: nat.PortMap{
			"6379/tcp": []nat.PortBinding{
				{
					HostIP:   "127.0.0.1",
					HostPort: strconv.Itoa(port),
				},
			},
		},
	}, nil, nil, name)
	if err != nil {
		return Info{}, fmt.Errorf("failed to create Redis container: %w", err)
	}

	if err := cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return Info{}, fmt.Errorf("failed to start Redis container: %w", err)
	}

	return Info{Name: name, Port: port, Status: StatusRunning, Started: true}, nil
}

// StopRedis stops and removes the local Redis of namespace, with its data.
// It returns the names of the removed containers.
func StopRedis(ctx context.Context, cli *client.Client, namespace string) ([]string, error) {
	containers, err := Containers(ctx, cli, namespace)
	if err != nil {
		return nil, err
	}

	timeout := 10
	var removed []string
	for _, c := range containers {
		name := c.ID
		if len(c.Names) > 0 {
			name = c.Names[0]
		}
		// The container may already be stopped
		_ = cli.ContainerStop(ctx, c.ID, container.StopOptions{Timeout: &timeout})
		if err := cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", name, err)
		}
		removed = append(removed, name)
	}
	return removed, nil
}
