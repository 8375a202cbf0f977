package usecase

import (
	"context"
	"sync"

	"DecisionCore/internal/domain/models"
	drepo "DecisionCore/internal/domain/repository"
	mid "DecisionCore/internal/middleware"
	applogger "DecisionCore/pkg/logger"
)

// ObservationCollector reads observations from a market stream and feeds the
// engines through the realtime pipeline (or directly when pipe is nil).
type ObservationCollector struct {
	stream  drepo.ObservationStream
	next    ObservationSubmitter
	pipe    *mid.RealtimePipeline
	metrics drepo.Metrics
	log     *applogger.Logger
	wg      sync.WaitGroup
}

// NewObservationCollector creates a new ObservationCollector instance.
func NewObservationCollector(stream drepo.ObservationStream, next ObservationSubmitter, pipe *mid.RealtimePipeline, metrics drepo.Metrics, log *applogger.Logger) *ObservationCollector {
	if log == nil {
		log = applogger.Nop()
	}
	return &ObservationCollector{stream: stream, next: next, pipe: pipe, metrics: metrics, log: log}
}

// IsConnected returns true if the market stream is connected.
func (c *ObservationCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *ObservationCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	obsCh, errCh := c.stream.Read(ctx)
	c.wg.Add(1)
	go c.consume(ctx, obsCh, errCh)
	return nil
}

func (c *ObservationCollector) consume(ctx context.Context, obsCh <-chan *models.MarketObservation, errCh <-chan error) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errCh:
			if !ok {
				return
			}
			if err == nil {
				continue
			}
			c.metrics.RecordError("stream")
			c.log.Warn("stream read failed, reconnecting", applogger.Error(err))
			if rerr := c.stream.Reconnect(ctx); rerr != nil {
				c.log.Error("stream reconnect failed", applogger.Error(rerr))
			}
		case obs, ok := <-obsCh:
			if !ok {
				return
			}
			if obs == nil {
				continue
			}
			var err error
			if c.pipe != nil {
				err = c.pipe.Process(ctx, obs)
			} else {
				err = c.next.Submit(ctx, obs)
			}
			if err != nil {
				c.log.Debug("observation not submitted",
					applogger.String("symbol", obs.Symbol),
					applogger.Error(err),
				)
			}
		}
	}
}

// Shutdown stops the pipeline, closes the stream and waits for the reader.
func (c *ObservationCollector) Shutdown(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	err := c.stream.Close()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if d, ok := c.stream.(interface{ Dropped() uint64 }); ok && d.Dropped() > 0 {
		c.log.Warn("stream dropped observations while the engines lagged",
			applogger.Uint64("dropped", d.Dropped()))
	}
	return err
}
