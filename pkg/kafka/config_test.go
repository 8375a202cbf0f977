package kafka

import (
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProducerConfigValidate(t *testing.T) {
	cfg := DefaultProducerConfig()
	assert.ErrorContains(t, cfg.Validate(), "brokers are required")

	cfg.Brokers = []string{"localhost:9092"}
	require.NoError(t, cfg.Validate())

	cfg.Compression = "brotli"
	cfg.RequiredAcks = 3
	err := cfg.Validate()
	assert.ErrorContains(t, err, `unknown compression "brotli"`)
	assert.ErrorContains(t, err, "required acks 3")
}

func TestProducerOptionsKeepDefaultsOnZero(t *testing.T) {
	cfg := DefaultProducerConfig()
	for _, opt := range []ProducerOption{
		WithBrokers([]string{"b1:9092"}),
		WithCompression(""),
		WithBatching(0, 0, 250*time.Millisecond),
		WithTimeouts(0, 0),
		WithMaxAttempts(0),
		WithKeyOrdering(false),
	} {
		opt(&cfg)
	}

	assert.Equal(t, "gzip", cfg.Compression)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Linger)
	assert.Equal(t, 3, cfg.MaxAttempts)

	w := cfg.writer()
	assert.IsType(t, &kafka.LeastBytes{}, w.Balancer)
	assert.Equal(t, kafka.Gzip, w.Compression)
	assert.Equal(t, kafka.RequireAll, w.RequiredAcks)
}

func TestNewProducerRejectsBadConfig(t *testing.T) {
	_, err := NewProducer(WithBrokers([]string{"b1:9092"}), WithCompression("brotli"))
	assert.ErrorContains(t, err, "kafka producer config")
}
