package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultRedisURL     = "redis://localhost:6379"
	DefaultNamespace    = "streams"
	DefaultBatchWindow  = 200 * time.Millisecond
	DefaultReadyTimeout = 10 * time.Second
	DefaultRecent       = 48 * time.Hour
	DefaultKeyring      = ".streams-keys.yml"
)

// StreamsConfig represents the top-level streams.yml configuration
type StreamsConfig struct {
	Version string        `yaml:"version"`
	Redis   *RedisConfig  `yaml:"redis,omitempty"`
	Client  *ClientConfig `yaml:"client,omitempty"`
	Keyring string        `yaml:"keyring,omitempty"` // Path of the credentials file (default .streams-keys.yml)
}

// RedisConfig selects the graph store
type RedisConfig struct {
	URL       string `yaml:"url,omitempty"`
	Namespace string `yaml:"namespace,omitempty"`
}

// ClientConfig tunes the session layer
type ClientConfig struct {
	BatchWindow  time.Duration `yaml:"batch_window,omitempty"`  // Coalescing window of live listeners
	ReadyTimeout time.Duration `yaml:"ready_timeout,omitempty"` // How long to wait for the store on startup
	Recent       time.Duration `yaml:"recent,omitempty"`        // Messages older than this are held back until --all
	Attempts     int           `yaml:"attempts,omitempty"`      // Tries per unacknowledged write (default 3)
}

// Default returns the configuration used when no streams.yml exists
func Default() *StreamsConfig {
	c := &StreamsConfig{Version: "1.0"}
	if err := c.Validate(); err != nil {
		panic(err)
	}
	return c
}

// Validate performs strict validation on the configuration and applies defaults
func (c *StreamsConfig) Validate() error {
	// Required: version
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.Redis == nil {
		c.Redis = &RedisConfig{}
	}
	if c.Redis.URL == "" {
		c.Redis.URL = DefaultRedisURL
	}
	if c.Redis.Namespace == "" {
		c.Redis.Namespace = DefaultNamespace
	}
	u, err := url.Parse(c.Redis.URL)
	if err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
		return fmt.Errorf("redis.url must be a redis:// or rediss:// URL, got %q", c.Redis.URL)
	}

	if c.Client == nil {
		c.Client = &ClientConfig{}
	}
	if c.Client.BatchWindow == 0 {
		c.Client.BatchWindow = DefaultBatchWindow
	}
	if c.Client.ReadyTimeout == 0 {
		c.Client.ReadyTimeout = DefaultReadyTimeout
	}
	if c.Client.Recent == 0 {
		c.Client.Recent = DefaultRecent
	}
	if c.Client.Attempts == 0 {
		c.Client.Attempts = 3
	}

	if c.Client.BatchWindow < 0 {
		return fmt.Errorf("client.batch_window must be >= 0, got %v", c.Client.BatchWindow)
	}
	if c.Client.ReadyTimeout < 0 {
		return fmt.Errorf("client.ready_timeout must be >= 0, got %v", c.Client.ReadyTimeout)
	}
	if c.Client.Recent < 0 {
		return fmt.Errorf("client.recent must be >= 0, got %v", c.Client.Recent)
	}
	if c.Client.Attempts < 1 {
		return fmt.Errorf("client.attempts must be >= 1, got %d", c.Client.Attempts)
	}

	if c.Keyring == "" {
		c.Keyring = DefaultKeyring
	}

	return nil
}

// ApplyEnv overrides the store settings from REDIS_URL and STREAMS_NAMESPACE
func (c *StreamsConfig) ApplyEnv() {
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("STREAMS_NAMESPACE"); v != "" {
		c.Redis.Namespace = v
	}
}

// Load reads and validates streams.yml from the specified path
func Load(path string) (*StreamsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config StreamsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// LoadOrDefault loads path when it exists, otherwise the defaults. Env
// overrides are applied either way and validated with the rest.
func LoadOrDefault(path string) (*StreamsConfig, error) {
	var config *StreamsConfig
	if _, err := os.Stat(path); os.IsNotExist(err) {
		config = Default()
	} else {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		config = loaded
	}
	config.ApplyEnv()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}
