package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"DecisionCore/internal/domain/models"
	domrepo "DecisionCore/internal/domain/repository"
	"DecisionCore/internal/service/ratelimit"
)

// Submitter is the minimal downstream the pipeline needs.
type Submitter interface {
	Submit(ctx context.Context, obs *models.MarketObservation) error
}

// ErrThrottled is returned when a symbol exceeds its observation rate.
var ErrThrottled = errors.New("observation throttled")

// RealtimePipeline sits between the stream reader and the engine manager.
// It validates, throttles per symbol, optionally transforms, and parks
// observations in a bounded buffer when the downstream queue is saturated so
// the socket reader never blocks.
type RealtimePipeline struct {
	next          Submitter
	metrics       domrepo.Metrics
	limiter       *ratelimit.Limiter
	maxRPS        float64
	burst         int
	bufSize       int
	submitTimeout time.Duration
	bufCh         chan *models.MarketObservation
	stopCh        chan struct{}
	doneCh        chan struct{}
	started       bool
	stopOnce      sync.Once
	mu            sync.Mutex
	transform     func(*models.MarketObservation) *models.MarketObservation
}

type PipelineOption func(*RealtimePipeline)

// WithMaxRPS sets the max observations per second per symbol. Zero disables throttling.
func WithMaxRPS(rps float64, burst int) PipelineOption {
	return func(p *RealtimePipeline) {
		if rps >= 0 {
			p.maxRPS = rps
		}
		if burst > 0 {
			p.burst = burst
		}
	}
}

// WithBufferSize sets the temporary buffer size used while downstream is saturated.
func WithBufferSize(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithSubmitTimeout bounds how long Process waits on the downstream queue.
func WithSubmitTimeout(d time.Duration) PipelineOption {
	return func(p *RealtimePipeline) {
		if d > 0 {
			p.submitTimeout = d
		}
	}
}

// WithTransform sets a hook that rewrites observations before submission.
func WithTransform(fn func(*models.MarketObservation) *models.MarketObservation) PipelineOption {
	return func(p *RealtimePipeline) { p.transform = fn }
}

// NewRealtimePipeline creates a new pipeline.
func NewRealtimePipeline(next Submitter, metrics domrepo.Metrics, opts ...PipelineOption) *RealtimePipeline {
	p := &RealtimePipeline{
		next:          next,
		metrics:       metrics,
		maxRPS:        20,
		burst:         20,
		bufSize:       1000,
		submitTimeout: 200 * time.Millisecond,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.MarketObservation, p.bufSize)
	p.limiter = ratelimit.New(p.maxRPS, p.burst)
	return p
}

// Start launches background flushing of buffered observations.
func (p *RealtimePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go p.flush(ctx)
}

func (p *RealtimePipeline) flush(ctx context.Context) {
	defer close(p.doneCh)
	const minBackoff, maxBackoff = 50 * time.Millisecond, 2 * time.Second
	backoff := minBackoff
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case obs := <-p.bufCh:
			p.metrics.RecordQueueDepth("pipeline", len(p.bufCh))
			if err := p.submit(ctx, obs); err != nil {
				p.metrics.RecordError("pipeline_flush")
				if !p.park(obs) {
					p.metrics.RecordError("pipeline_buffer_drop")
				}
				t := time.NewTimer(backoff)
				select {
				case <-t.C:
				case <-p.stopCh:
					t.Stop()
					return
				case <-ctx.Done():
					t.Stop()
					return
				}
				if backoff < maxBackoff {
					backoff *= 2
				}
				continue
			}
			backoff = minBackoff
		}
	}
}

// Stop stops the background flushing. Observations still buffered are dropped.
func (p *RealtimePipeline) Stop() {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()

	p.stopOnce.Do(func() { close(p.stopCh) })
	if started {
		<-p.doneCh
	}
}

// Buffered reports how many observations wait for a retry.
func (p *RealtimePipeline) Buffered() int { return len(p.bufCh) }

// Process validates, throttles and forwards obs downstream, buffering it when
// the downstream does not accept it in time.
func (p *RealtimePipeline) Process(ctx context.Context, obs *models.MarketObservation) error {
	start := time.Now()
	if err := obs.Validate(); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if p.transform != nil {
		obs = p.transform(obs)
		if err := obs.Validate(); err != nil {
			p.metrics.RecordError("pipeline_transform_invalid")
			return err
		}
	}
	if !p.limiter.Allow(obs.Symbol) {
		p.metrics.RecordError("pipeline_throttle")
		return ErrThrottled
	}

	if err := p.submit(ctx, obs); err != nil {
		if errors.Is(err, models.ErrInvalidObservation) {
			return err
		}
		p.metrics.RecordError("pipeline_process")
		if !p.park(obs) {
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

func (p *RealtimePipeline) submit(ctx context.Context, obs *models.MarketObservation) error {
	ctx, cancel := context.WithTimeout(ctx, p.submitTimeout)
	defer cancel()
	return p.next.Submit(ctx, obs)
}

func (p *RealtimePipeline) park(obs *models.MarketObservation) bool {
	select {
	case p.bufCh <- obs:
		p.metrics.RecordQueueDepth("pipeline", len(p.bufCh))
		return true
	default:
		return false
	}
}
