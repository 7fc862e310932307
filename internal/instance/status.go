package instance

import (
	"github.com/docker/docker/api/types"
)

// Status represents the state of a namespace's local Redis
type Status string

const (
	// StatusRunning indicates all containers are running
	StatusRunning Status = "Running"

	// StatusDegraded indicates some containers are stopped
	StatusDegraded Status = "Degraded"

	// StatusStopped indicates no container is running
	StatusStopped Status = "Stopped"
)

// DetermineStatus analyzes a set of containers and determines the overall status.
func DetermineStatus(containers []types.Container) Status {
	if len(containers) == 0 {
		return StatusStopped
	}

	runningCount := 0
	for _, c := range containers {
		if c.State == "running" {
			runningCount++
		}
	}

	switch {
	case runningCount == len(containers):
		return StatusRunning
	case runningCount > 0:
		return StatusDegraded
	default:
		return StatusStopped
	}
}
