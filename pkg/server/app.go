package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"DecisionCore/internal/usecase"
	"DecisionCore/pkg/cache"
	pkgch "DecisionCore/pkg/clickhouse"
	"DecisionCore/pkg/config"
	xhttp "DecisionCore/pkg/http"
	pkgkafka "DecisionCore/pkg/kafka"
	applogger "DecisionCore/pkg/logger"
	"DecisionCore/pkg/queue"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// Components are the long-running parts the app starts and stops. Everything
// except HTTP, Manager and Processor is optional.
type Components struct {
	HTTP      *xhttp.Server
	Manager   *usecase.EngineManager
	Processor *usecase.DecisionProcessor
	Collector *usecase.ObservationCollector
	Consumer  *pkgkafka.Consumer
	Handler   pkgkafka.MessageHandler
	Control   *queue.RedisQueue
	Jobs      []queue.Job
	CH        *pkgch.Client
	Cache     cache.Service
	Redis     *redis.Client
}

// App encapsulates the application lifecycle.
type App struct {
	cfg *config.Config
	log *applogger.Logger
	c   Components
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, log *applogger.Logger, c Components) *App {
	if log == nil {
		log = applogger.Nop()
	}
	return &App{cfg: cfg, log: log, c: c}
}

// Run starts every component and blocks until ctx is cancelled, a signal
// arrives or the HTTP server fails. Shutdown runs in both cases.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.c.Control != nil {
		a.c.Control.RegisterJobs(a.c.Jobs...)
		if err := a.c.Control.Start(); err != nil {
			return fmt.Errorf("control queue: %w", err)
		}
	}

	if a.c.Consumer != nil && a.c.Handler != nil {
		a.c.Consumer.RegisterHandler(a.c.Handler)
		if err := a.c.Consumer.Start(); err != nil {
			a.shutdown()
			return fmt.Errorf("kafka consumer: %w", err)
		}
		a.log.Info("kafka consumer started", applogger.String("topic", a.c.Handler.Topic()))
	}

	g, gctx := errgroup.WithContext(ctx)

	if a.c.Collector != nil {
		if err := a.c.Collector.Start(gctx); err != nil {
			a.log.Error("collector start failed", applogger.Error(err))
		} else {
			a.log.Info("collector started", applogger.Strings("symbols", a.cfg.Stream.Symbols))
		}
	}

	g.Go(func() error { return a.c.HTTP.Run(gctx) })

	<-gctx.Done()
	a.log.Info("shutdown signal received")
	a.shutdown()
	return g.Wait()
}

// shutdown stops inputs first, then drains the engines so their last
// decisions still reach the sinks, then closes the sinks.
func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer cancel()

	if a.c.Collector != nil {
		if err := a.c.Collector.Shutdown(ctx); err != nil {
			a.log.Warn("collector stop error", applogger.Error(err))
		}
	}
	if a.c.Consumer != nil {
		if err := a.c.Consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.c.Control != nil {
		if err := a.c.Control.Stop(ctx); err != nil {
			a.log.Warn("control queue stop error", applogger.Error(err))
		}
	}
	if err := a.c.Manager.Close(ctx); err != nil {
		a.log.Warn("engine manager close error", applogger.Error(err))
	}
	a.c.Processor.Close()
	if a.c.CH != nil {
		if err := a.c.CH.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if a.c.Cache != nil {
		_ = a.c.Cache.Close()
	}
	a.log.RemoveCollector()
	if a.c.Redis != nil {
		if err := a.c.Redis.Close(); err != nil {
			a.log.Warn("redis close error", applogger.Error(err))
		}
	}
	a.log.Info("shutdown complete")
}

func (a *App) shutdownTimeout() time.Duration {
	if a.cfg != nil && a.cfg.Server.ShutdownTimeout > 0 {
		return a.cfg.Server.ShutdownTimeout
	}
	return 15 * time.Second
}
