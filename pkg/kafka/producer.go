package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// Message is one record to publish. Value is written as is when it is
// []byte or string and JSON encoded otherwise.
type Message struct {
	Key     []byte
	Value   interface{}
	Headers []kafka.Header
}

// Producer writes records through a single kafka-go Writer. It is safe for
// concurrent use.
type Producer struct {
	w       *kafka.Writer
	codec   string
	metrics *producerMetrics
	now     func() time.Time
}

func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := DefaultProducerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("kafka producer config: %w", err)
	}
	return &Producer{
		w:       cfg.writer(),
		codec:   cfg.Compression,
		metrics: sharedProducerMetrics(),
		now:     time.Now,
	}, nil
}

func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	return p.PublishBatch(ctx, topic, []Message{{Key: key, Value: value}})
}

// PublishBatch writes all messages in one call. Nothing is written when any
// value fails to encode.
func (p *Producer) PublishBatch(ctx context.Context, topic string, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}

	stamp := p.now()
	records := make([]kafka.Message, len(messages))
	var size int64
	for i, m := range messages {
		v, err := valueBytes(m.Value)
		if err != nil {
			return fmt.Errorf("encode record %d for %s: %w", i, topic, err)
		}
		records[i] = kafka.Message{Topic: topic, Key: m.Key, Value: v, Headers: m.Headers, Time: stamp}
		size += int64(len(v))
	}

	err := p.w.WriteMessages(ctx, records...)
	p.metrics.observe(topic, p.codec, len(records), size, p.now().Sub(stamp), err)
	if err != nil {
		return fmt.Errorf("write %s: %w", topic, err)
	}
	return nil
}

func valueBytes(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case []byte:
		return val, nil
	case string:
		return []byte(val), nil
	}
	return json.Marshal(v)
}

// Close flushes pending async writes.
func (p *Producer) Close() error {
	if p.w == nil {
		return nil
	}
	return p.w.Close()
}

type producerMetrics struct {
	messages *prometheus.CounterVec
	bytes    *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	producerStats     *producerMetrics
	producerStatsOnce sync.Once
)

func sharedProducerMetrics() *producerMetrics {
	producerStatsOnce.Do(func() {
		producerStats = &producerMetrics{
			messages: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "decisioncore",
				Subsystem: "kafka_producer",
				Name:      "messages_total",
				Help:      "Records written, by outcome.",
			}, []string{"topic", "result"}),
			bytes: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "decisioncore",
				Subsystem: "kafka_producer",
				Name:      "bytes_total",
				Help:      "Uncompressed value bytes written.",
			}, []string{"topic", "compression"}),
			latency: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "decisioncore",
				Subsystem: "kafka_producer",
				Name:      "write_seconds",
				Help:      "WriteMessages latency per batch.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
			}, []string{"topic"}),
		}
	})
	return producerStats
}

func (m *producerMetrics) observe(topic, codec string, n int, size int64, took time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.messages.WithLabelValues(topic, result).Add(float64(n))
	m.bytes.WithLabelValues(topic, codec).Add(float64(size))
	m.latency.WithLabelValues(topic).Observe(took.Seconds())
}
