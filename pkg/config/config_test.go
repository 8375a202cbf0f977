package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimal = `
environment: test
backend:
  type: kafka
kafka:
  brokers: ["localhost:9092"]
engine:
  gamma: 0.9
  queue_size: 64
`

func TestLoadKeepsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimal))
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Environment)
	assert.Equal(t, 0.9, cfg.Engine.Gamma)
	assert.Equal(t, 64, cfg.Engine.QueueSize)
	assert.Equal(t, 0.05, cfg.Engine.Alpha)
	assert.Equal(t, "engine.decisions", cfg.Kafka.DecisionsTopic)
	assert.Equal(t, 2*time.Second, cfg.Kafka.Consumer.BackoffMax)

	ec := cfg.EngineConfig()
	assert.Len(t, ec.Emission, 3)
	assert.NoError(t, ec.Validate())
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("SYMBOLS", "BTCUSDT, ETHUSDT,,")
	t.Setenv("BACKEND", "both")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("LOG_LEVEL", "debug")

	body := minimal + `
clickhouse:
  host: ch
`
	cfg, err := LoadWithEnv(writeConfig(t, body))
	require.NoError(t, err)

	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Stream.Symbols)
	assert.Equal(t, BackendBoth, cfg.Backend.Type)
	assert.True(t, cfg.UsesKafka())
	assert.True(t, cfg.UsesClickHouse())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"unknown backend", func(c *Config) { c.Backend.Type = "s3" }, "backend.type must be"},
		{"no brokers", func(c *Config) { c.Kafka.Brokers = nil }, "kafka.brokers"},
		{"clickhouse without host", func(c *Config) { c.Backend.Type = BackendClickHouse }, "clickhouse.host"},
		{"stream without url", func(c *Config) { c.Stream.Enabled = true }, "stream.websocket_url"},
		{"aggregate without redis", func(c *Config) { c.Log.Aggregate.Enabled = true }, "log.aggregate requires redis"},
		{"static regime size", func(c *Config) { c.Regime.Static = []float64{1} }, "regime.static"},
		{"bad alpha", func(c *Config) { c.Engine.Alpha = 0 }, "engine:"},
		{"zero queue", func(c *Config) { c.Engine.QueueSize = 0 }, "engine.queue_size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			c.Kafka.Brokers = []string{"localhost:9092"}
			require.NoError(t, c.Validate())
			tt.mutate(c)
			assert.ErrorContains(t, c.Validate(), tt.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "read config")
}
