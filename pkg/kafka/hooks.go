package kafka

import (
	"context"
	"fmt"
	"time"

	applogger "DecisionCore/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// Delivery is one fetched record on its way to a handler. Hooks may replace
// Data, e.g. to unwrap an envelope.
type Delivery struct {
	Topic string
	Msg   kafka.Message
	Data  []byte
}

// ConsumerHook observes each handling attempt. A Before error skips the
// handler; a Permanent one also skips retries.
type ConsumerHook interface {
	Before(ctx context.Context, d *Delivery) (context.Context, error)
	After(ctx context.Context, d Delivery, err error)
	OnError(ctx context.Context, d Delivery, err error)
}

// NoopHook does nothing.
type NoopHook struct{}

func (NoopHook) Before(ctx context.Context, _ *Delivery) (context.Context, error) { return ctx, nil }
func (NoopHook) After(context.Context, Delivery, error)                          {}
func (NoopHook) OnError(context.Context, Delivery, error)                        {}

// HookError is an error raised by a hook rather than by the handler.
// Code is ERR_PANIC or ERR_EMPTY.
type HookError struct {
	Code string
	Err  error
}

func (e *HookError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *HookError) Unwrap() error { return e.Err }

// HookChain runs Before in order and After in reverse. A panicking hook is
// turned into an ERR_PANIC error instead of taking the worker down.
type HookChain struct {
	hooks []ConsumerHook
}

// NewHookChain ignores nil hooks.
func NewHookChain(hooks ...ConsumerHook) *HookChain {
	c := &HookChain{}
	for _, h := range hooks {
		if h != nil {
			c.hooks = append(c.hooks, h)
		}
	}
	return c
}

func (c *HookChain) Before(ctx context.Context, d *Delivery) (context.Context, error) {
	for _, h := range c.hooks {
		next, err := safeBefore(h, ctx, d)
		if err != nil {
			c.OnError(ctx, *d, err)
			return ctx, err
		}
		ctx = next
	}
	return ctx, nil
}

func (c *HookChain) After(ctx context.Context, d Delivery, err error) {
	for i := len(c.hooks) - 1; i >= 0; i-- {
		h := c.hooks[i]
		guard(func() { h.After(ctx, d, err) })
	}
}

func (c *HookChain) OnError(ctx context.Context, d Delivery, err error) {
	for _, h := range c.hooks {
		guard(func() { h.OnError(ctx, d, err) })
	}
}

type ctxKey int

const (
	startTimeKey ctxKey = iota
	traceIDKey
)

// TraceHeader is the record header producers set to correlate an
// observation with the decision it causes.
const TraceHeader = "trace_id"

// TraceIDFrom returns the trace id stored by TraceHook, if any.
func TraceIDFrom(ctx context.Context) string {
	s, _ := ctx.Value(traceIDKey).(string)
	return s
}

// StartTimeFrom returns when TraceHook saw the delivery.
func StartTimeFrom(ctx context.Context) (time.Time, bool) {
	t, ok := ctx.Value(startTimeKey).(time.Time)
	return t, ok
}

// HeaderValue returns the first header named key.
func HeaderValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// TraceHook stamps the start time and trace id on the context and rejects
// empty payloads as permanent failures.
type TraceHook struct{}

func (TraceHook) Before(ctx context.Context, d *Delivery) (context.Context, error) {
	if len(d.Data) == 0 {
		return ctx, Permanent(&HookError{Code: "ERR_EMPTY", Err: fmt.Errorf("empty payload on %s", d.Topic)})
	}
	ctx = context.WithValue(ctx, startTimeKey, time.Now())
	if id := HeaderValue(d.Msg, TraceHeader); id != "" {
		ctx = context.WithValue(ctx, traceIDKey, id)
	}
	return ctx, nil
}

func (TraceHook) After(context.Context, Delivery, error)   {}
func (TraceHook) OnError(context.Context, Delivery, error) {}

// LoggingHook logs handled records at debug and failed attempts at warn.
type LoggingHook struct {
	Log *applogger.Logger
}

func (LoggingHook) Before(ctx context.Context, _ *Delivery) (context.Context, error) { return ctx, nil }

func (h LoggingHook) After(ctx context.Context, d Delivery, err error) {
	if err != nil || h.Log == nil {
		return
	}
	if st, ok := StartTimeFrom(ctx); ok {
		h.Log.Debug("kafka message handled",
			applogger.String("topic", d.Topic),
			applogger.String("key", string(d.Msg.Key)),
			applogger.String("trace_id", TraceIDFrom(ctx)),
			applogger.Duration("took", time.Since(st)),
		)
	}
}

func (h LoggingHook) OnError(ctx context.Context, d Delivery, err error) {
	if h.Log == nil {
		return
	}
	h.Log.Warn("kafka handler attempt failed",
		applogger.String("topic", d.Topic),
		applogger.String("key", string(d.Msg.Key)),
		applogger.Int64("offset", d.Msg.Offset),
		applogger.String("trace_id", TraceIDFrom(ctx)),
		applogger.Error(err),
	)
}

func safeBefore(h ConsumerHook, ctx context.Context, d *Delivery) (next context.Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			next = ctx
			err = &HookError{Code: "ERR_PANIC", Err: fmt.Errorf("hook panic: %v", r)}
		}
	}()
	return h.Before(ctx, d)
}

func guard(fn func()) {
	defer func() { _ = recover() }()
	fn()
}
