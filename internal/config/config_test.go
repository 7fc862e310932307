package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "streams.yml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `version: "1.0"
redis:
  url: "redis://cache:6380/2"
  namespace: "team"
client:
  batch_window: 50ms
  ready_timeout: 3s
  recent: 24h
  attempts: 5
keyring: "/tmp/keys.yml"
`)

	config, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "redis://cache:6380/2", config.Redis.URL)
	assert.Equal(t, "team", config.Redis.Namespace)
	assert.Equal(t, 50*time.Millisecond, config.Client.BatchWindow)
	assert.Equal(t, 3*time.Second, config.Client.ReadyTimeout)
	assert.Equal(t, 24*time.Hour, config.Client.Recent)
	assert.Equal(t, 5, config.Client.Attempts)
	assert.Equal(t, "/tmp/keys.yml", config.Keyring)
}

func TestLoad_AppliesDefaults(t *testing.T) {
	config, err := Load(writeConfig(t, `version: "1.0"`))
	require.NoError(t, err)
	assert.Equal(t, DefaultRedisURL, config.Redis.URL)
	assert.Equal(t, DefaultNamespace, config.Redis.Namespace)
	assert.Equal(t, DefaultBatchWindow, config.Client.BatchWindow)
	assert.Equal(t, DefaultReadyTimeout, config.Client.ReadyTimeout)
	assert.Equal(t, DefaultRecent, config.Client.Recent)
	assert.Equal(t, 3, config.Client.Attempts)
	assert.Equal(t, DefaultKeyring, config.Keyring)
}

func TestLoad_FileNotFound(t *testing.T) {
	config, err := Load("/nonexistent/streams.yml")
	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestLoad_InvalidYAML(t *testing.T) {
	config, err := Load(writeConfig(t, `version: "1.0"
redis:
  - this is invalid
    yaml syntax
`))
	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  StreamsConfig
		wantErr string
	}{
		{"unsupported version", StreamsConfig{Version: "2.0"}, "unsupported version: 2.0"},
		{"bad redis scheme", StreamsConfig{Version: "1.0", Redis: &RedisConfig{URL: "http://localhost"}}, "redis.url"},
		{"negative window", StreamsConfig{Version: "1.0", Client: &ClientConfig{BatchWindow: -time.Second}}, "client.batch_window"},
		{"negative timeout", StreamsConfig{Version: "1.0", Client: &ClientConfig{ReadyTimeout: -time.Second}}, "client.ready_timeout"},
		{"negative recent", StreamsConfig{Version: "1.0", Client: &ClientConfig{Recent: -time.Hour}}, "client.recent"},
		{"negative attempts", StreamsConfig{Version: "1.0", Client: &ClientConfig{Attempts: -1}}, "client.attempts"},
		{"rediss accepted", StreamsConfig{Version: "1.0", Redis: &RedisConfig{URL: "rediss://secure:6379"}}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadOrDefault(t *testing.T) {
	t.Run("missing file uses defaults", func(t *testing.T) {
		config, err := LoadOrDefault(filepath.Join(t.TempDir(), "streams.yml"))
		require.NoError(t, err)
		assert.Equal(t, "1.0", config.Version)
		assert.Equal(t, DefaultNamespace, config.Redis.Namespace)
	})

	t.Run("env overrides", func(t *testing.T) {
		t.Setenv("REDIS_URL", "redis://env:6379")
		t.Setenv("STREAMS_NAMESPACE", "from-env")
		config, err := LoadOrDefault(writeConfig(t, `version: "1.0"
redis:
  namespace: "from-file"
`))
		require.NoError(t, err)
		assert.Equal(t, "redis://env:6379", config.Redis.URL)
		assert.Equal(t, "from-env", config.Redis.Namespace)
	})

	t.Run("invalid env override is an error", func(t *testing.T) {
		t.Setenv("REDIS_URL", "http://localhost:6379")
		_, err := LoadOrDefault(filepath.Join(t.TempDir(), "streams.yml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "redis.url must be a redis://")

		_, err = LoadOrDefault(writeConfig(t, `version: "1.0"`))
		assert.Error(t, err)
	})

	t.Run("invalid file is an error", func(t *testing.T) {
		_, err := LoadOrDefault(writeConfig(t, `version: "0.1"`))
		assert.Error(t, err)
	})
}
