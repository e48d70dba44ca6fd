package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, Endpoints{"localhost:6379"}, cfg.StoreEndpoint)
	assert.Equal(t, Endpoints{"localhost:9092"}, cfg.QueueEndpoint)
	assert.Equal(t, 50051, cfg.ListenPort)
	assert.Equal(t, "orders", cfg.Queue.Topic)
	assert.Equal(t, "orders.dlt", cfg.Queue.DeadLetterTopic)
	assert.Equal(t, 1, cfg.Worker.Slots)
	assert.Equal(t, 30*time.Second, cfg.Worker.ProcessingDuration)
	assert.Equal(t, 10, cfg.ConnectRetry.MaxAttempts)
	assert.Equal(t, 3*time.Second, cfg.ConnectRetry.Delay)
	assert.Equal(t, "@every 1m", cfg.Reconciler.Schedule)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NoError(t, cfg.Validate(RoleWorker))
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `
store_endpoint: "redis-a:6379, redis-b:6379"
queue_endpoint:
  - kafka-1:9092
  - kafka-2:9092
listen_port: 50052
worker:
  slots: 4
  processing_duration: 2s
connect_retry:
  max_attempts: 5
  delay: 1s
`)

	t.Run("should read scalar and list endpoints", func(t *testing.T) {
		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, Endpoints{"redis-a:6379", "redis-b:6379"}, cfg.StoreEndpoint)
		assert.Equal(t, Endpoints{"kafka-1:9092", "kafka-2:9092"}, cfg.QueueEndpoint)
		assert.Equal(t, 50052, cfg.ListenPort)
		assert.Equal(t, 4, cfg.Worker.Slots)
		assert.Equal(t, 2*time.Second, cfg.Worker.ProcessingDuration)
		assert.Equal(t, 5, cfg.ConnectRetry.MaxAttempts)
		// 文件未设置的字段仍取默认值
		assert.Equal(t, "orders", cfg.Queue.Topic)
	})

	t.Run("should let the environment override the file", func(t *testing.T) {
		t.Setenv("STORE_ENDPOINT", "redis-env:6379")
		t.Setenv("LISTEN_PORT", "6000")
		t.Setenv("PROCESSING_DURATION", "250ms")

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, Endpoints{"redis-env:6379"}, cfg.StoreEndpoint)
		assert.Equal(t, 6000, cfg.ListenPort)
		assert.Equal(t, 250*time.Millisecond, cfg.Worker.ProcessingDuration)
	})

	t.Run("should fail on a missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("should fail on malformed YAML", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "store_endpoint: {a: b}"))
		assert.Error(t, err)
	})
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg, err := LoadConfig("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		role   Role
		mutate func(*Config)
	}{
		{"empty store endpoint", RoleIntake, func(c *Config) { c.StoreEndpoint = nil }},
		{"empty queue endpoint", RoleWorker, func(c *Config) { c.QueueEndpoint = nil }},
		{"blank topic", RoleReconciler, func(c *Config) { c.Queue.Topic = " " }},
		{"port out of range", RoleGateway, func(c *Config) { c.ListenPort = 70000 }},
		{"zero port", RoleIntake, func(c *Config) { c.ListenPort = 0 }},
		{"gateway without intake", RoleGateway, func(c *Config) { c.IntakeEndpoint = "" }},
		{"zero slots", RoleWorker, func(c *Config) { c.Worker.Slots = 0 }},
		{"negative duration", RoleWorker, func(c *Config) { c.Worker.ProcessingDuration = -time.Second }},
		{"zero connect attempts", RoleWorker, func(c *Config) { c.ConnectRetry.MaxAttempts = 0 }},
		{"zero connect attempts on intake", RoleIntake, func(c *Config) { c.ConnectRetry.MaxAttempts = 0 }},
		{"negative connect delay on reconciler", RoleReconciler, func(c *Config) { c.ConnectRetry.Delay = -time.Second }},
		{"negative stale_after", RoleReconciler, func(c *Config) { c.Reconciler.StaleAfter = -time.Minute }},
		{"negative shutdown timeout", RoleIntake, func(c *Config) { c.ShutdownTimeout = -time.Second }},
	}
	for _, tc := range tests {
		t.Run("should reject "+tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate(tc.role))
		})
	}

	t.Run("should not require store settings on the gateway", func(t *testing.T) {
		cfg := valid()
		cfg.StoreEndpoint = nil
		cfg.QueueEndpoint = nil
		assert.NoError(t, cfg.Validate(RoleGateway))
	})
}
