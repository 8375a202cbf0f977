package kafka

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strconv"
	"sync"
	"time"

	applogger "DecisionCore/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// PermanentError marks a handler failure that retrying cannot fix
// (malformed payload, failed validation). The message goes straight to DLQ.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the consumer skips retries.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was wrapped by Permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Consumer wraps Kafka readers with a worker pool. Every worker drains its
// own lane and a partition always maps to the same lane, so records of one
// partition are handled and committed in fetch order. Per-symbol order
// survives when producers key by symbol.
type Consumer struct {
	cfg      ConsumerConfig
	log      *applogger.Logger
	readers  map[string]*kafka.Reader
	handlers map[string]MessageHandler
	hook     ConsumerHook
	dlq      recordWriter
	lanes    []chan Delivery
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type recordWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewConsumer creates a new Kafka consumer.
func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := DefaultConsumerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("kafka consumer config: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = applogger.Nop()
	}

	// BufferSize bounds the whole pool, split across the lanes
	laneSize := cfg.BufferSize / cfg.WorkerCount
	if laneSize < 1 {
		laneSize = 1
	}
	c := &Consumer{
		cfg:      cfg,
		log:      cfg.Logger,
		readers:  make(map[string]*kafka.Reader),
		handlers: make(map[string]MessageHandler),
		hook:     NoopHook{},
		lanes:    make([]chan Delivery, cfg.WorkerCount),
		stop:     make(chan struct{}),
	}
	for i := range c.lanes {
		c.lanes[i] = make(chan Delivery, laneSize)
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Topic: cfg.DLQTopic, Balancer: &kafka.Hash{}}
	}

	initConsumerMetricsOnce()
	return c, nil
}

// RegisterHandler registers handler for its topic. The first registration
// for a topic wins.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.log.Warn("kafka handler already registered", applogger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// WithConsumerHook sets the hook run around every attempt.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// Start creates one reader per registered topic and launches the workers.
func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return errors.New("no handlers registered")
	}
	for topic := range c.handlers {
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:     c.cfg.Brokers,
			Topic:       topic,
			GroupID:     c.cfg.GroupID,
			StartOffset: c.cfg.StartOffset,
			MinBytes:    c.cfg.MinBytes,
			MaxBytes:    c.cfg.MaxBytes,
		})
	}

	c.startWorkers()
	for topic, r := range c.readers {
		c.wg.Add(1)
		go c.fetch(topic, r)
	}

	c.log.Info("kafka consumer started",
		applogger.String("group", c.cfg.GroupID),
		applogger.Int("workers", c.cfg.WorkerCount),
		applogger.Int("topics", len(c.readers)),
	)
	return nil
}

// Stop signals the fetchers and workers and waits for them within ctx. A
// record interrupted mid-retry stays uncommitted and is redelivered.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		close(c.stop)

		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			stopErr = fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
		}

		for topic, r := range c.readers {
			if err := r.Close(); err != nil {
				c.log.Warn("kafka reader close failed", applogger.String("topic", topic), applogger.Error(err))
			}
		}
		if c.dlq != nil {
			if err := c.dlq.Close(); err != nil {
				c.log.Warn("kafka dlq close failed", applogger.Error(err))
			}
		}
		if stopErr == nil {
			c.log.Info("kafka consumer stopped")
		}
	})
	return stopErr
}

func (c *Consumer) fetch(topic string, r *kafka.Reader) {
	defer c.wg.Done()
	for {
		select {
		case <-c.stop:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		km, err := r.FetchMessage(ctx)
		cancel()
		if err != nil {
			if !errors.Is(err, context.DeadlineExceeded) {
				c.log.Warn("kafka fetch failed", applogger.String("topic", topic), applogger.Error(err))
			}
			continue
		}

		if !c.dispatch(Delivery{Topic: topic, Msg: km, Data: km.Value}) {
			return
		}
	}
}

func (c *Consumer) startWorkers() {
	for _, lane := range c.lanes {
		c.wg.Add(1)
		go c.work(lane)
	}
}

// dispatch hands d to the lane owning its partition. The send blocks, so a
// slow engine backs up into the reader and nothing is dropped. It reports
// false once the consumer is stopping.
func (c *Consumer) dispatch(d Delivery) bool {
	lane := c.lanes[c.laneFor(d.Topic, d.Msg.Partition)]
	select {
	case lane <- d:
		consumerQueueDepth.WithLabelValues(d.Topic).Set(float64(len(lane)))
		return true
	case <-c.stop:
		return false
	}
}

func (c *Consumer) laneFor(topic string, partition int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(topic))
	_, _ = h.Write([]byte(strconv.Itoa(partition)))
	return int(h.Sum32() % uint32(len(c.lanes)))
}

func (c *Consumer) work(lane <-chan Delivery) {
	defer c.wg.Done()
	for {
		select {
		case <-c.stop:
			return
		case d := <-lane:
			c.handle(d)
		}
	}
}

func (c *Consumer) handle(d Delivery) {
	handler, ok := c.handlers[d.Topic]
	if !ok {
		return
	}
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			consumerResults.WithLabelValues(d.Topic, "panic").Inc()
			c.log.Error("kafka handler panic", applogger.String("topic", d.Topic), applogger.Any("panic", r))
		}
	}()

	attempts, aborted, err := c.process(handler, d)
	if aborted {
		return
	}

	if err != nil {
		consumerResults.WithLabelValues(d.Topic, "failed").Inc()
		c.log.Error("kafka message failed",
			applogger.String("topic", d.Topic),
			applogger.Int("partition", d.Msg.Partition),
			applogger.Int64("offset", d.Msg.Offset),
			applogger.Int("attempts", attempts),
			applogger.Error(err),
		)
		c.deadLetter(d, attempts, err)
	} else {
		consumerResults.WithLabelValues(d.Topic, "ok").Inc()
	}

	// commit after success or after the DLQ took it, so a poison record
	// cannot block its partition forever
	if err == nil || c.dlq != nil {
		if r := c.readers[d.Topic]; r != nil {
			_ = c.commit(r, d.Msg)
		}
	}
	consumerHandleLatency.WithLabelValues(d.Topic).Observe(time.Since(start).Seconds())
}

// process runs the hook chain and handler until success, a permanent error
// or RetryMax retries. aborted is set when Stop interrupted a backoff.
func (c *Consumer) process(handler MessageHandler, d Delivery) (attempts int, aborted bool, err error) {
	for {
		attempts++
		attempt := d
		ctx, berr := c.hook.Before(context.Background(), &attempt)
		if berr != nil {
			return attempts, false, berr
		}

		err = handler.Handle(ctx, attempt.Data)
		c.hook.After(ctx, attempt, err)
		if err == nil || IsPermanent(err) || attempts > c.cfg.RetryMax {
			if err != nil {
				c.hook.OnError(ctx, attempt, err)
			}
			return attempts, false, err
		}
		c.hook.OnError(ctx, attempt, err)

		select {
		case <-time.After(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempts)):
		case <-c.stop:
			return attempts, true, err
		}
	}
}

func (c *Consumer) deadLetter(d Delivery, attempts int, cause error) {
	if c.dlq == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.dlq.WriteMessages(ctx, kafka.Message{
		Key:   d.Msg.Key,
		Value: d.Msg.Value,
		Time:  time.Now(),
		Headers: append(append([]kafka.Header(nil), d.Msg.Headers...),
			kafka.Header{Key: "source_topic", Value: []byte(d.Topic)},
			kafka.Header{Key: "source_offset", Value: []byte(strconv.FormatInt(d.Msg.Offset, 10))},
			kafka.Header{Key: "attempts", Value: []byte(strconv.Itoa(attempts))},
			kafka.Header{Key: "error", Value: []byte(cause.Error())},
		),
	})
	if err != nil {
		c.log.Error("kafka dlq write failed", applogger.String("dlq", c.cfg.DLQTopic), applogger.Error(err))
	}
}

// commit retries a single offset commit a few times before giving up; the
// record is then redelivered after a rebalance.
func (c *Consumer) commit(r *kafka.Reader, km kafka.Message) error {
	const tries = 3
	var err error
	for i := 1; i <= tries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = r.CommitMessages(ctx, km)
		cancel()
		if err == nil {
			return nil
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, i))
	}
	c.log.Warn("kafka commit failed", applogger.Int("attempts", tries), applogger.Error(err))
	return err
}

func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	if attempt < 1 {
		attempt = 1
	}
	exp := min * time.Duration(1<<uint(attempt-1))
	if exp > max || exp <= 0 {
		exp = max
	}
	// jitter up to 50%
	if half := int64(exp) / 2; half > 0 {
		exp -= time.Duration(rand.Int63n(half))
	}
	return exp
}

var (
	consumerQueueDepth    *prometheus.GaugeVec
	consumerResults       *prometheus.CounterVec
	consumerHandleLatency *prometheus.HistogramVec
	consumerOnce          sync.Once
)

func initConsumerMetricsOnce() {
	consumerOnce.Do(func() {
		consumerQueueDepth = promauto.NewGaugeVec(
			prometheus.GaugeOpts{Name: "decisioncore_kafka_consumer_queue_depth", Help: "Messages waiting in consumer queue"},
			[]string{"topic"},
		)
		consumerResults = promauto.NewCounterVec(
			prometheus.CounterOpts{Name: "decisioncore_kafka_consumer_messages_total", Help: "Handled messages by result"},
			[]string{"topic", "result"},
		)
		consumerHandleLatency = promauto.NewHistogramVec(
			prometheus.HistogramOpts{Name: "decisioncore_kafka_consumer_handle_seconds", Help: "Handling time per message"},
			[]string{"topic"},
		)
	})
}
