package di

import (
	"context"
	"fmt"
	"io"
	"time"

	"DecisionCore/internal/domain/repository"
	domsvc "DecisionCore/internal/domain/service"
	"DecisionCore/internal/handler/api"
	mid "DecisionCore/internal/middleware"
	internalrepo "DecisionCore/internal/repository"
	"DecisionCore/internal/service/ratelimit"
	"DecisionCore/internal/service/stream"
	"DecisionCore/internal/services/analytics"
	"DecisionCore/internal/services/hypotheses"
	"DecisionCore/internal/usecase"
	"DecisionCore/pkg/cache"
	pkgch "DecisionCore/pkg/clickhouse"
	"DecisionCore/pkg/config"
	xhttp "DecisionCore/pkg/http"
	pkgkafka "DecisionCore/pkg/kafka"
	applogger "DecisionCore/pkg/logger"
	"DecisionCore/pkg/metrics"
	"DecisionCore/pkg/queue"
	"DecisionCore/pkg/server"

	"github.com/redis/go-redis/v9"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:           cfg.Log.Level,
		Format:          cfg.Log.Format,
		Output:          cfg.Log.Output,
		CollectWarnings: cfg.Log.CollectWarnings,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() *metrics.Recorder {
	return metrics.New()
}

// ProvideClickHouseClient connects to ClickHouse and creates the schema.
// Returns nil when nothing in the config reads or writes ClickHouse.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.UsesClickHouse() && !cfg.ClickHouse.StoreObservations && !cfg.ClickHouse.WarmStart {
		return nil, nil
	}
	chCfg := pkgch.DefaultClientConfig()
	chCfg.Host = cfg.ClickHouse.Host
	chCfg.Port = cfg.ClickHouse.Port
	chCfg.Database = cfg.ClickHouse.Database
	chCfg.User = cfg.ClickHouse.User
	chCfg.Password = cfg.ClickHouse.Password
	chCfg.UseHTTP = cfg.ClickHouse.UseHTTP
	chCfg.AsyncInsert = cfg.ClickHouse.AsyncInsert
	chCfg.WaitForAsync = cfg.ClickHouse.WaitForAsync
	chCfg.MaxExecTime = cfg.ClickHouse.MaxExecutionTime
	if cfg.ClickHouse.DialTimeout > 0 {
		chCfg.DialTimeout = cfg.ClickHouse.DialTimeout
	}
	if cfg.ClickHouse.ReadTimeout > 0 {
		chCfg.ReadTimeout = cfg.ClickHouse.ReadTimeout
	}
	client, err := pkgch.NewClient(chCfg)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.Schema(client.Database())); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideRedisClient returns nil when redis is disabled.
func ProvideRedisClient(cfg *config.Config) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// ProvideCache backs the regime and decision caches: memory in front of
// Redis when Redis is enabled, memory only otherwise.
func ProvideCache(rdb *redis.Client, cfg *config.Config) cache.Service {
	if rdb == nil {
		return cache.NewMemoryCache(cache.WithMaxEntries(10000))
	}
	rc := cache.NewRedisCache(rdb, cfg.Redis.Queue.Name)
	return cache.NewLayeredCache(rc, cache.WithL1Entries(1000), cache.WithL1TTL(30*time.Second))
}

// ProvideKafkaProducer returns nil when decisions are not published to Kafka.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.UsesKafka() {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithKeyOrdering(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideDecisionPublisher creates the Kafka decision publisher.
func ProvideDecisionPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.DecisionPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.DecisionsTopic)
}

// ProvideDecisionStore creates the ClickHouse decision store.
func ProvideDecisionStore(ch *pkgch.Client, log *applogger.Logger) repository.DecisionStore {
	if ch == nil {
		return nil
	}
	return internalrepo.NewCHDecisionStore(ch, log)
}

// ProvideObservationStore creates the ClickHouse observation store used for
// archiving, warm start and the regime endpoint.
func ProvideObservationStore(ch *pkgch.Client, log *applogger.Logger) repository.ObservationStore {
	if ch == nil {
		return nil
	}
	return internalrepo.NewCHObservationStore(ch, log)
}

// ProvideDecisionProcessor creates the decision sink router.
func ProvideDecisionProcessor(
	pub repository.DecisionPublisher,
	store repository.DecisionStore,
	m *metrics.Recorder,
	cfg *config.Config,
) *usecase.DecisionProcessor {
	return usecase.NewDecisionProcessor(pub, store, m, cfg.Backend.Type)
}

// ProvideRegimeProvider wraps the regime service (or the static vector when no
// service is configured) in the last-known cache.
func ProvideRegimeProvider(cfg *config.Config, c cache.Service, log *applogger.Logger) *analytics.CachedRegimeProvider {
	regimes := len(cfg.EngineConfig().Emission)
	var inner domsvc.RegimeProvider
	if cfg.Regime.ServiceURL == "" {
		inner = analytics.NewStaticRegimeProvider(StaticRegimeVector(cfg))
	} else {
		base := analytics.NewHTTPServiceBase(cfg.Regime.ServiceURL, cfg.Regime.Timeout,
			analytics.WithRetries(cfg.Regime.Retries),
			analytics.WithLogger(log),
			analytics.WithBreaker("regime", cfg.Regime.Breaker.ConsecutiveFailures, cfg.Regime.Breaker.OpenTimeout),
		)
		inner = analytics.NewHTTPRegimeProvider(base, regimes)
	}
	return analytics.NewCachedRegimeProvider(inner, c, cfg.Regime.CacheTTL, log)
}

// StaticRegimeVector returns the configured static vector, or a uniform one
// over the configured regimes.
func StaticRegimeVector(cfg *config.Config) []float64 {
	if len(cfg.Regime.Static) > 0 {
		return cfg.Regime.Static
	}
	n := len(cfg.EngineConfig().Emission)
	probs := make([]float64, n)
	for i := range probs {
		probs[i] = 1 / float64(n)
	}
	return probs
}

// ProvideHypotheses creates the rule-based hypothesis generator.
func ProvideHypotheses(cfg *config.Config) *hypotheses.Generator {
	hc := hypotheses.DefaultConfig()
	hc.RangeSlopeThreshold = cfg.Hypotheses.RangeSlopeThreshold
	hc.FundingThreshold = cfg.Hypotheses.FundingThreshold
	hc.BaseConfidence = cfg.Hypotheses.BaseConfidence
	hc.ReturnScale = cfg.Hypotheses.ReturnScale
	return hypotheses.NewGenerator(hc)
}

// ProvideEngineManager creates the per-symbol engine manager.
func ProvideEngineManager(
	cfg *config.Config,
	regime *analytics.CachedRegimeProvider,
	hyps *hypotheses.Generator,
	sink *usecase.DecisionProcessor,
	m *metrics.Recorder,
	history repository.ObservationStore,
	log *applogger.Logger,
) (*usecase.EngineManager, error) {
	opts := []usecase.ManagerOption{usecase.WithManagerLogger(log)}
	if cfg.ClickHouse.WarmStart && history != nil {
		opts = append(opts, usecase.WithObservationHistory(history))
	}
	return usecase.NewEngineManager(usecase.ManagerConfig{
		Engine:        cfg.EngineConfig(),
		QueueSize:     cfg.Engine.QueueSize,
		RegimeTimeout: cfg.Engine.RegimeTimeout,
	}, regime, hyps, sink, m, opts...)
}

// ProvidePipeline builds the throttle/buffer stage between the stream and the manager.
func ProvidePipeline(manager *usecase.EngineManager, m *metrics.Recorder, cfg *config.Config) *mid.RealtimePipeline {
	rps := 0.0
	if cfg.Stream.Throttle > 0 {
		rps = 1 / cfg.Stream.Throttle.Seconds()
	}
	return mid.NewRealtimePipeline(manager, m,
		mid.WithMaxRPS(rps, 1),
		mid.WithBufferSize(2000),
	)
}

// ProvideObservationStream returns nil when the websocket feed is disabled.
func ProvideObservationStream(cfg *config.Config, log *applogger.Logger) repository.ObservationStream {
	if !cfg.Stream.Enabled {
		return nil
	}
	return stream.New(cfg.Stream.WebSocketURL, cfg.Stream.Symbols,
		stream.WithLogger(log),
		stream.WithReconnectDelay(cfg.Stream.ReconnectDelay),
		stream.WithPingInterval(cfg.Stream.PingInterval),
	)
}

// ProvideObservationCollector returns nil when there is no stream.
func ProvideObservationCollector(
	s repository.ObservationStream,
	manager *usecase.EngineManager,
	pipe *mid.RealtimePipeline,
	m *metrics.Recorder,
	log *applogger.Logger,
) *usecase.ObservationCollector {
	if s == nil {
		return nil
	}
	return usecase.NewObservationCollector(s, manager, pipe, m, log)
}

// ProvideKafkaConsumer returns nil when the observations consumer is disabled.
func ProvideKafkaConsumer(cfg *config.Config, log *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerStartOffset(cfg.Kafka.Consumer.StartOffset),
		pkgkafka.WithConsumerLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewHookChain(pkgkafka.TraceHook{}, pkgkafka.LoggingHook{Log: log}))
	return consumer, nil
}

// ProvideKafkaHandler handles the observations topic. Observations are
// archived first when store_observations is set.
func ProvideKafkaHandler(
	cfg *config.Config,
	manager *usecase.EngineManager,
	store repository.ObservationStore,
	m *metrics.Recorder,
) pkgkafka.MessageHandler {
	if !cfg.Kafka.Consumer.Enabled {
		return nil
	}
	if !cfg.ClickHouse.StoreObservations {
		store = nil
	}
	return usecase.NewKafkaObservationsHandler(cfg.Kafka.ObservationsTopic, manager, store, m)
}

// ProvideDecisionReader returns nil when there is no decision store to read from.
func ProvideDecisionReader(store repository.DecisionStore, c cache.Service) api.DecisionReader {
	if store == nil {
		return nil
	}
	return usecase.NewDecisionsUseCase(store, c, 5*time.Second)
}

// ProvideRegimeReader returns nil when there is no observation history.
func ProvideRegimeReader(store repository.ObservationStore, regime *analytics.CachedRegimeProvider, cfg *config.Config) api.RegimeReader {
	if store == nil {
		return nil
	}
	return usecase.NewRegimeInspector(store, regime, cfg.Engine.VolLookback*3)
}

// ProvideHTTPHandler creates the engine API handler.
func ProvideHTTPHandler(
	cfg *config.Config,
	log *applogger.Logger,
	manager *usecase.EngineManager,
	decisions api.DecisionReader,
	regime api.RegimeReader,
) *api.EnginesEchoHandler {
	var limiter *ratelimit.Limiter
	if cfg.Server.RateLimit.RPS > 0 {
		limiter = ratelimit.New(cfg.Server.RateLimit.RPS, cfg.Server.RateLimit.Burst)
	}
	if limiter == nil {
		return api.NewEnginesEchoHandler(log, manager, decisions, regime, nil)
	}
	return api.NewEnginesEchoHandler(log, manager, decisions, regime, limiter)
}

// ProvideHTTPServer creates the echo server. ClickHouse and Redis, when
// configured, back /readyz.
func ProvideHTTPServer(h *api.EnginesEchoHandler, ch *pkgch.Client, rdb *redis.Client, cfg *config.Config, log *applogger.Logger) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithCORS(true, cfg.Server.CORSOrigins...),
		xhttp.WithSlowThreshold(cfg.Server.SlowRequest),
		xhttp.WithLogger(log),
	}
	if ch != nil {
		opts = append(opts, xhttp.WithReadyCheck("clickhouse", ch.Health))
	}
	if rdb != nil {
		opts = append(opts, xhttp.WithReadyCheck("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}))
	}
	return xhttp.NewServer(h, opts...)
}

// ProvideControlQueue creates the Redis control queue and, when configured,
// routes aggregated error logs through it. Returns nil without Redis.
func ProvideControlQueue(rdb *redis.Client, cfg *config.Config, log *applogger.Logger) *queue.RedisQueue {
	if rdb == nil {
		return nil
	}
	q := queue.NewRedisQueue(rdb, log, queue.Config{
		Workers:    cfg.Redis.Queue.Workers,
		MaxRetries: cfg.Redis.Queue.MaxRetry,
		RetryDelay: cfg.Redis.Queue.RetryDelay,
	}, queue.RoleBoth,
		queue.WithKeyPrefix(cfg.Redis.Queue.Name+":queue"),
		queue.WithInflightRecovery(true),
	)

	if cfg.Log.Aggregate.Enabled {
		log.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Log.Aggregate.Interval,
			CountThreshold: cfg.Log.Aggregate.CountThreshold,
			Topic:          cfg.Log.Aggregate.Topic,
			Publisher:      q,
		})
	}
	return q
}

// ProvideJobs lists the control queue jobs.
func ProvideJobs(cfg *config.Config, manager *usecase.EngineManager, regime *analytics.CachedRegimeProvider, log *applogger.Logger) []queue.Job {
	jobs := []queue.Job{usecase.NewResetEngineJob(manager, regime, log)}
	if cfg.Log.Aggregate.Enabled {
		jobs = append(jobs, usecase.NewLogDigestJob(cfg.Log.Aggregate.Topic, log))
	}
	return jobs
}

// ProvideApp creates the application server.
func ProvideApp(cfg *config.Config, log *applogger.Logger, c server.Components) *server.App {
	return server.New(cfg, log, c)
}

// ProvideReplayer builds an offline replayer that writes decisions to out.
// The regime vector is the static one so reruns are reproducible.
func ProvideReplayer(cfg *config.Config, out io.Writer, log *applogger.Logger) *usecase.Replayer {
	regime := analytics.NewStaticRegimeProvider(StaticRegimeVector(cfg))
	return usecase.NewReplayer(cfg.EngineConfig(), regime, ProvideHypotheses(cfg), usecase.NewWriterSink(out), log)
}
