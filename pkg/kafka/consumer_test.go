package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyHandler struct {
	failures int
	err      error
	calls    int
	payloads []string
}

func (h *flakyHandler) Topic() string { return "market.observations" }

func (h *flakyHandler) Handle(_ context.Context, b []byte) error {
	h.calls++
	h.payloads = append(h.payloads, string(b))
	if h.calls <= h.failures {
		return h.err
	}
	return nil
}

type captureWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) Close() error { return nil }

func newTestConsumer(t *testing.T, retries int) *Consumer {
	t.Helper()
	c, err := NewConsumer(
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(retries, time.Millisecond, 2*time.Millisecond),
	)
	require.NoError(t, err)
	return c
}

func delivery(value string) Delivery {
	km := kafka.Message{Topic: "market.observations", Key: []byte("BTCUSDT"), Value: []byte(value), Offset: 42}
	return Delivery{Topic: km.Topic, Msg: km, Data: km.Value}
}

func TestConsumerProcessRetriesTransientErrors(t *testing.T) {
	c := newTestConsumer(t, 3)
	h := &flakyHandler{failures: 2, err: errors.New("manager busy")}

	attempts, aborted, err := c.process(h, delivery(`{"symbol":"BTCUSDT"}`))
	require.NoError(t, err)
	assert.False(t, aborted)
	assert.Equal(t, 3, attempts)
}

func TestConsumerProcessStopsOnPermanent(t *testing.T) {
	c := newTestConsumer(t, 5)
	h := &flakyHandler{failures: 10, err: Permanent(errors.New("bad json"))}

	attempts, _, err := c.process(h, delivery(`{`))
	assert.True(t, IsPermanent(err))
	assert.Equal(t, 1, attempts)
}

func TestConsumerProcessUsesHookData(t *testing.T) {
	c := newTestConsumer(t, 0)
	var calls []string
	c.WithConsumerHook(NewHookChain(recordingHook{name: "!", calls: &calls}))
	h := &flakyHandler{}

	_, _, err := c.process(h, delivery("x"))
	require.NoError(t, err)
	assert.Equal(t, []string{"x!"}, h.payloads)
}

func TestConsumerHandleDeadLettersExhaustedRecord(t *testing.T) {
	c := newTestConsumer(t, 1)
	w := &captureWriter{}
	c.dlq = w
	h := &flakyHandler{failures: 5, err: errors.New("store down")}
	c.RegisterHandler(h)

	c.handle(delivery(`{"symbol":"BTCUSDT"}`))

	assert.Equal(t, 2, h.calls)
	require.Len(t, w.msgs, 1)
	dl := w.msgs[0]
	assert.Equal(t, "BTCUSDT", string(dl.Key))
	assert.Equal(t, "market.observations", HeaderValue(dl, "source_topic"))
	assert.Equal(t, "42", HeaderValue(dl, "source_offset"))
	assert.Equal(t, "2", HeaderValue(dl, "attempts"))
	assert.Equal(t, "store down", HeaderValue(dl, "error"))
}

func TestConsumerConfigValidate(t *testing.T) {
	_, err := NewConsumer()
	assert.ErrorContains(t, err, "brokers are required")

	_, err = NewConsumer(WithConsumerBrokers([]string{"b:9092"}), WithConsumerFetch(20e6, 0))
	assert.ErrorContains(t, err, "min bytes")
}

func TestConsumerStartRequiresHandlers(t *testing.T) {
	c := newTestConsumer(t, 0)
	assert.EqualError(t, c.Start(), "no handlers registered")
}

// orderHandler records payloads per partition prefix ("p<n>:<offset>") and
// stalls a little on some of them to shuffle worker timing.
type orderHandler struct {
	mu   sync.Mutex
	seen map[string][]string
	all  chan struct{}
	want int
	got  int
}

func (h *orderHandler) Topic() string { return "market.observations" }

func (h *orderHandler) Handle(_ context.Context, b []byte) error {
	if rand.Intn(3) == 0 {
		time.Sleep(time.Duration(rand.Intn(300)) * time.Microsecond)
	}
	part, _, _ := strings.Cut(string(b), ":")
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen[part] = append(h.seen[part], string(b))
	h.got++
	if h.got == h.want {
		close(h.all)
	}
	return nil
}

func TestConsumerKeepsPartitionOrderAcrossWorkers(t *testing.T) {
	c, err := NewConsumer(
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerWorkers(4),
		WithConsumerBufferSize(64),
	)
	require.NoError(t, err)

	const partitions, perPartition = 3, 100
	h := &orderHandler{seen: make(map[string][]string), all: make(chan struct{}), want: partitions * perPartition}
	c.RegisterHandler(h)
	c.startWorkers()

	for off := 0; off < perPartition; off++ {
		for p := 0; p < partitions; p++ {
			km := kafka.Message{Topic: h.Topic(), Partition: p, Offset: int64(off), Value: []byte(fmt.Sprintf("p%d:%03d", p, off))}
			require.True(t, c.dispatch(Delivery{Topic: km.Topic, Msg: km, Data: km.Value}))
		}
	}

	select {
	case <-h.all:
	case <-time.After(5 * time.Second):
		t.Fatal("records not handled in time")
	}
	require.NoError(t, c.Stop(context.Background()))

	for p := 0; p < partitions; p++ {
		got := h.seen[fmt.Sprintf("p%d", p)]
		require.Len(t, got, perPartition)
		for off, v := range got {
			assert.Equal(t, fmt.Sprintf("p%d:%03d", p, off), v)
		}
	}
}

func TestConsumerLaneIsStablePerPartition(t *testing.T) {
	c, err := NewConsumer(WithConsumerBrokers([]string{"localhost:9092"}), WithConsumerWorkers(4))
	require.NoError(t, err)
	for p := 0; p < 16; p++ {
		lane := c.laneFor("market.observations", p)
		assert.Equal(t, lane, c.laneFor("market.observations", p))
		assert.GreaterOrEqual(t, lane, 0)
		assert.Less(t, lane, 4)
	}
}
