package docker

import (
	"fmt"

	"github.com/google/uuid"
)

// Label keys used for streams resources
const (
	LabelProject   = "streams.project"
	LabelNamespace = "streams.namespace"
	LabelRunID     = "streams.run_id"
	LabelComponent = "streams.component"
	LabelRedisPort = "streams.redis.port"
)

// ComponentRedis labels the local Redis container
const ComponentRedis = "redis"

// BuildLabels creates the standard label set for streams resources.
// component may be empty.
func BuildLabels(namespace, runID, component string) map[string]string {
	labels := map[string]string{
		LabelProject:   "true",
		LabelNamespace: namespace,
		LabelRunID:     runID,
	}

	if component != "" {
		labels[LabelComponent] = component
	}

	return labels
}

// GenerateRunID creates a new UUID for one `streams up`.
func GenerateRunID() string {
	return uuid.New().String()
}

// RedisContainerName returns the local Redis container name for a namespace
func RedisContainerName(namespace string) string {
	return fmt.Sprintf("streams-redis-%s", namespace)
}
