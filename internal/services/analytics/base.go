package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	xhttp "DecisionCore/pkg/http"
	applogger "DecisionCore/pkg/logger"

	"github.com/sony/gobreaker"
)

// HTTPServiceBase is the shared foundation for analytics HTTP clients:
// JSON POST, bounded retries with linear backoff and a circuit breaker
// around the whole retry sequence.
type HTTPServiceBase struct {
	baseURL  string
	client   *xhttp.Client
	attempts int
	backoff  time.Duration
	breaker  *gobreaker.CircuitBreaker
	log      *applogger.Logger
}

// BaseOption configures HTTPServiceBase.
type BaseOption func(*HTTPServiceBase)

// WithRetries sets the number of attempts per call (minimum 1).
func WithRetries(attempts int) BaseOption {
	return func(b *HTTPServiceBase) {
		if attempts < 1 {
			attempts = 1
		}
		b.attempts = attempts
	}
}

// WithBackoff sets the base delay; attempt i waits i*d.
func WithBackoff(d time.Duration) BaseOption {
	return func(b *HTTPServiceBase) {
		b.backoff = d
	}
}

// WithLogger sets the logger used for breaker state changes.
func WithLogger(l *applogger.Logger) BaseOption {
	return func(b *HTTPServiceBase) {
		b.log = l
	}
}

// WithBreaker trips after consecutiveFailures failed calls (or >5% failures
// over at least 20 calls) and stays open for openTimeout.
func WithBreaker(name string, consecutiveFailures uint32, openTimeout time.Duration) BaseOption {
	return func(b *HTTPServiceBase) {
		if consecutiveFailures == 0 {
			consecutiveFailures = 3
		}
		st := gobreaker.Settings{
			Name:     name,
			Interval: 60 * time.Second,
			Timeout:  openTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.ConsecutiveFailures >= consecutiveFailures {
					return true
				}
				if counts.Requests < 20 {
					return false
				}
				return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
			},
			// 4xx means the service is up and rejected our input
			IsSuccessful: func(err error) bool {
				return err == nil || !retryable(err)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				b.log.Warn("circuit breaker state change",
					applogger.String("breaker", name),
					applogger.String("from", from.String()),
					applogger.String("to", to.String()),
				)
			},
		}
		b.breaker = gobreaker.NewCircuitBreaker(st)
	}
}

// NewHTTPServiceBase builds a client for baseURL with a per-request timeout.
func NewHTTPServiceBase(baseURL string, timeout time.Duration, opts ...BaseOption) *HTTPServiceBase {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	b := &HTTPServiceBase{
		baseURL:  baseURL,
		client:   xhttp.NewClient(xhttp.WithTimeout(timeout), xhttp.WithHeader("User-Agent", "decisioncore")),
		attempts: 1,
		backoff:  50 * time.Millisecond,
		log:      applogger.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// PostJSON posts the given payload to `path` under baseURL and decodes JSON into dest.
func (b *HTTPServiceBase) PostJSON(ctx context.Context, path string, payload interface{}, dest interface{}) error {
	if b.client == nil || b.baseURL == "" {
		return fmt.Errorf("analytics http client not initialized")
	}
	err := b.client.PostJSON(ctx, b.baseURL+path, payload, dest)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	return nil
}

// PostJSONWithRetry posts with the configured attempts. Non-retryable statuses
// stop early. When a breaker is configured and open the call fails immediately.
func (b *HTTPServiceBase) PostJSONWithRetry(ctx context.Context, path string, payload interface{}, dest interface{}) error {
	if b.breaker == nil {
		return b.retry(ctx, path, payload, dest)
	}
	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, b.retry(ctx, path, payload, dest)
	})
	return err
}

func (b *HTTPServiceBase) retry(ctx context.Context, path string, payload interface{}, dest interface{}) error {
	var err error
	for i := 1; i <= b.attempts; i++ {
		err = b.PostJSON(ctx, path, payload, dest)
		if err == nil || !retryable(err) || i == b.attempts {
			return err
		}
		select {
		case <-time.After(time.Duration(i) * b.backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// BreakerState reports the breaker state, "disabled" when none is configured.
func (b *HTTPServiceBase) BreakerState() string {
	if b.breaker == nil {
		return "disabled"
	}
	return b.breaker.State().String()
}

func retryable(err error) bool {
	var se *xhttp.StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return !errors.Is(err, context.Canceled)
}
