package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"DecisionCore/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Role selects which half of the queue a process runs.
type Role int

const (
	RoleBoth Role = iota
	RolePublisher
	RoleWorker
)

func (r Role) String() string {
	switch r {
	case RolePublisher:
		return "publisher"
	case RoleWorker:
		return "worker"
	default:
		return "both"
	}
}

var (
	ErrNotRunning     = errors.New("queue not running")
	ErrAlreadyRunning = errors.New("queue already running")
)

// Redis layout under one prefix. A worker moves a message from pending to
// inflight atomically and removes it from inflight only once it is acked,
// retried or buried, so a crash mid-job leaves it recoverable.
type keys struct {
	pending  string // list, LPUSH in, consumed from the right
	inflight string // list
	delayed  string // sorted set scored by unix second of next attempt
	dead     string // list
}

func newKeys(prefix string) keys {
	return keys{
		pending:  prefix + ":pending",
		inflight: prefix + ":inflight",
		delayed:  prefix + ":delayed",
		dead:     prefix + ":dead",
	}
}

// RedisQueue is a reliable Redis list queue with delayed retries and a dead
// letter list.
type RedisQueue struct {
	rdb  *redis.Client
	log  *logger.Logger
	cfg  Config
	role Role
	keys keys

	now             func() time.Time
	newID           func() string
	recoverInflight bool

	mu     sync.RWMutex
	jobs   map[string]Job
	cancel context.CancelFunc // nil while stopped
	active sync.WaitGroup
}

type RedisQueueOption func(*RedisQueue)

func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(q *RedisQueue) {
		if prefix != "" {
			q.keys = newKeys(prefix)
		}
	}
}

func WithClock(now func() time.Time) RedisQueueOption {
	return func(q *RedisQueue) { q.now = now }
}

func WithIDFunc(fn func() string) RedisQueueOption {
	return func(q *RedisQueue) { q.newID = fn }
}

// WithInflightRecovery makes Start push messages left in flight by a
// previous run back to pending. Only safe with a single worker process per
// prefix.
func WithInflightRecovery(enabled bool) RedisQueueOption {
	return func(q *RedisQueue) { q.recoverInflight = enabled }
}

func NewRedisQueue(rdb *redis.Client, log *logger.Logger, cfg Config, role Role, opts ...RedisQueueOption) *RedisQueue {
	if log == nil {
		log = logger.Nop()
	}
	q := &RedisQueue{
		rdb:   rdb,
		log:   log,
		cfg:   cfg.withDefaults(),
		role:  role,
		keys:  newKeys("decisioncore:queue"),
		now:   time.Now,
		newID: uuid.NewString,
		jobs:  make(map[string]Job),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// NewRedisPublisher returns a started queue that only publishes.
func NewRedisPublisher(rdb *redis.Client, log *logger.Logger, opts ...RedisQueueOption) (*RedisQueue, error) {
	q := NewRedisQueue(rdb, log, Config{}, RolePublisher, opts...)
	if err := q.Start(); err != nil {
		return nil, err
	}
	return q, nil
}

// RegisterJobs adds handlers by message type. The first job for a type wins.
func (q *RedisQueue) RegisterJobs(jobs ...Job) {
	if q.role == RolePublisher {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, j := range jobs {
		if prev, ok := q.jobs[j.Type()]; ok {
			q.log.Warn("duplicate queue job ignored",
				logger.String("type", j.Type()),
				logger.String("kept", prev.Name()),
				logger.String("dropped", j.Name()))
			continue
		}
		q.jobs[j.Type()] = j
	}
}

func (q *RedisQueue) job(msgType string) Job {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.jobs[msgType]
}

// Start checks the connection and launches the workers and the retry
// promoter unless the queue only publishes.
func (q *RedisQueue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cancel != nil {
		return ErrAlreadyRunning
	}

	setup, cancelSetup := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelSetup()
	if err := q.rdb.Ping(setup).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	if q.role == RolePublisher {
		return nil
	}

	if q.recoverInflight {
		n, err := q.Recover(setup)
		if err != nil {
			q.log.Warn("inflight recovery incomplete", logger.Int("moved", n), logger.Error(err))
		} else if n > 0 {
			q.log.Info("inflight messages requeued", logger.Int("moved", n))
		}
	}

	for i := 0; i < q.cfg.Workers; i++ {
		q.active.Add(1)
		go q.work(ctx)
	}
	q.active.Add(1)
	go q.promote(ctx)

	q.log.Info("control queue running",
		logger.String("role", q.role.String()),
		logger.String("pending", q.keys.pending),
		logger.Int("workers", q.cfg.Workers),
		logger.Int("jobs", len(q.jobs)))
	return nil
}

// Stop cancels the workers and waits for running jobs until ctx is done.
func (q *RedisQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	cancel := q.cancel
	q.cancel = nil
	q.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	idle := make(chan struct{})
	go func() {
		q.active.Wait()
		close(idle)
	}()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queue stop: %w", ctx.Err())
	}
}

func (q *RedisQueue) running() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.cancel != nil
}

// Enqueue wraps payload in a Message and appends it to pending. Queues that
// also consume refuse types they have no job for.
func (q *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	if !q.running() {
		return ErrNotRunning
	}
	if q.role != RolePublisher && q.job(msgType) == nil {
		return fmt.Errorf("no job for message type %q", msgType)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	raw, err := json.Marshal(Message{
		ID:         q.newID(),
		Type:       msgType,
		Payload:    body,
		EnqueuedAt: q.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode %s message: %w", msgType, err)
	}
	if err := q.rdb.LPush(ctx, q.keys.pending, string(raw)).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", msgType, err)
	}
	return nil
}

// PublishMessage implements QueueService.
func (q *RedisQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	return q.Enqueue(ctx, msgType, payload)
}

// DeadLetters reports how many messages were given up on.
func (q *RedisQueue) DeadLetters(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.keys.dead).Result()
}

// Recover moves everything in flight back to pending, oldest first in line.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := q.rdb.LMove(ctx, q.keys.inflight, q.keys.pending, "LEFT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, err
		}
		moved++
	}
}

func (q *RedisQueue) work(ctx context.Context) {
	defer q.active.Done()
	for ctx.Err() == nil {
		raw, err := q.rdb.BLMove(ctx, q.keys.pending, q.keys.inflight, "RIGHT", "LEFT", time.Second).Result()
		switch {
		case err == nil:
			q.handle(ctx, raw)
		case errors.Is(err, redis.Nil) || ctx.Err() != nil:
		default:
			q.log.Warn("queue pop failed", logger.Error(err))
			pause(ctx, time.Second)
		}
	}
}

// handle runs the job for one inflight message and settles it. A job
// interrupted by shutdown stays in flight.
func (q *RedisQueue) handle(ctx context.Context, raw string) {
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		q.log.Error("undecodable queue message buried", logger.Error(err))
		q.bury(ctx, raw, raw)
		return
	}

	j := q.job(msg.Type)
	if j == nil {
		q.log.Error("queue message without job buried",
			logger.String("id", msg.ID),
			logger.String("type", msg.Type))
		msg.LastError = "no job registered"
		q.bury(ctx, raw, encodeMessage(msg))
		return
	}

	began := q.now()
	err := j.Handle(ctx, msg.Payload)
	switch {
	case err == nil:
		q.ack(ctx, raw)
		q.log.Debug("queue job done",
			logger.String("id", msg.ID),
			logger.String("job", j.Name()),
			logger.Duration("took", q.now().Sub(began)))
	case errors.Is(err, context.Canceled):
		q.log.Warn("queue job interrupted",
			logger.String("id", msg.ID),
			logger.String("job", j.Name()))
	case msg.Attempts < q.cfg.MaxRetries:
		msg.Attempts++
		msg.LastError = err.Error()
		q.log.Warn("queue job failed, retry scheduled",
			logger.String("id", msg.ID),
			logger.String("job", j.Name()),
			logger.Int("attempts", msg.Attempts),
			logger.Error(err))
		q.retry(ctx, raw, encodeMessage(msg), q.now().Add(q.cfg.RetryDelay))
	default:
		msg.Attempts++
		msg.LastError = err.Error()
		q.log.Error("queue job failed, retries exhausted",
			logger.String("id", msg.ID),
			logger.String("job", j.Name()),
			logger.Int("attempts", msg.Attempts),
			logger.Error(err))
		q.bury(ctx, raw, encodeMessage(msg))
	}
}

func (q *RedisQueue) ack(ctx context.Context, raw string) {
	if err := q.rdb.LRem(context.WithoutCancel(ctx), q.keys.inflight, 1, raw).Err(); err != nil {
		q.log.Warn("queue ack failed", logger.Error(err))
	}
}

func (q *RedisQueue) retry(ctx context.Context, raw, next string, at time.Time) {
	bg := context.WithoutCancel(ctx)
	_, err := q.rdb.TxPipelined(bg, func(p redis.Pipeliner) error {
		p.LRem(bg, q.keys.inflight, 1, raw)
		p.ZAdd(bg, q.keys.delayed, redis.Z{Score: float64(at.Unix()), Member: next})
		return nil
	})
	if err != nil {
		q.log.Error("queue retry not scheduled", logger.Error(err))
	}
}

func (q *RedisQueue) bury(ctx context.Context, raw, final string) {
	bg := context.WithoutCancel(ctx)
	_, err := q.rdb.TxPipelined(bg, func(p redis.Pipeliner) error {
		p.LRem(bg, q.keys.inflight, 1, raw)
		p.LPush(bg, q.keys.dead, final)
		return nil
	})
	if err != nil {
		q.log.Error("queue dead letter failed", logger.Error(err))
	}
}

func (q *RedisQueue) promote(ctx context.Context) {
	defer q.active.Done()
	t := time.NewTicker(q.cfg.PollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			q.promoteDue(ctx)
		}
	}
}

// promoteDue moves retries whose time has come back to pending. ZREM
// decides ownership when several processes promote the same set.
func (q *RedisQueue) promoteDue(ctx context.Context) int {
	due, err := q.rdb.ZRangeByScore(ctx, q.keys.delayed, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(q.now().Unix(), 10),
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			q.log.Warn("delayed scan failed", logger.Error(err))
		}
		return 0
	}

	promoted := 0
	for _, m := range due {
		removed, err := q.rdb.ZRem(ctx, q.keys.delayed, m).Result()
		if err != nil || removed == 0 {
			continue
		}
		if err := q.rdb.LPush(ctx, q.keys.pending, m).Err(); err != nil {
			q.log.Error("delayed message lost on promote", logger.Error(err))
			continue
		}
		promoted++
	}
	return promoted
}

func encodeMessage(m Message) string {
	b, _ := json.Marshal(m)
	return string(b)
}

func pause(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
