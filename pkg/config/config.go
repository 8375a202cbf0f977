package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"DecisionCore/internal/engine"

	"gopkg.in/yaml.v3"
)

const (
	BackendKafka      = "kafka"
	BackendClickHouse = "clickhouse"
	BackendBoth       = "both"
)

type Config struct {
	Environment string `yaml:"environment"`
	Log         struct {
		Level           string `yaml:"level"`
		Format          string `yaml:"format"`
		Output          string `yaml:"output"`
		CollectWarnings bool   `yaml:"collect_warnings"`
		Aggregate       struct {
			Enabled        bool          `yaml:"enabled"`
			Interval       time.Duration `yaml:"interval"`
			CountThreshold int           `yaml:"count_threshold"`
			Topic          string        `yaml:"topic"`
		} `yaml:"aggregate"`
	} `yaml:"log"`
	Server struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		CORSOrigins     []string      `yaml:"cors_origins"`
		SlowRequest     time.Duration `yaml:"slow_request"`
		RateLimit       struct {
			RPS   float64 `yaml:"rps"`
			Burst int     `yaml:"burst"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Backend struct {
		Type string `yaml:"type"` // decision sink routing: kafka, clickhouse or both
	} `yaml:"backend"`
	Kafka struct {
		Brokers           []string `yaml:"brokers"`
		ObservationsTopic string   `yaml:"observations_topic"`
		DecisionsTopic    string   `yaml:"decisions_topic"`
		RequiredAcks      int      `yaml:"required_acks"`
		Compression       string   `yaml:"compression"`
		Producer          struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled     bool          `yaml:"enabled"`
			GroupID     string        `yaml:"group_id"`
			Workers     int           `yaml:"workers"`
			BufferSize  int           `yaml:"buffer_size"`
			RetryMax    int           `yaml:"retry_max"`
			BackoffMin  time.Duration `yaml:"backoff_min"`
			BackoffMax  time.Duration `yaml:"backoff_max"`
			DLQTopic    string        `yaml:"dlq_topic"`
			MinBytes    int           `yaml:"min_bytes"`
			MaxBytes    int           `yaml:"max_bytes"`
			StartOffset string        `yaml:"start_offset"` // earliest or latest, new groups only
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host              string        `yaml:"host"`
		Port              int           `yaml:"port"`
		Database          string        `yaml:"database"`
		User              string        `yaml:"user"`
		Password          string        `yaml:"password"`
		UseHTTP           bool          `yaml:"use_http"`
		AsyncInsert       bool          `yaml:"async_insert"`
		WaitForAsync      bool          `yaml:"wait_for_async_insert"`
		DialTimeout       time.Duration `yaml:"dial_timeout"`
		ReadTimeout       time.Duration `yaml:"read_timeout"`
		MaxExecutionTime  time.Duration `yaml:"max_execution_time"`
		StoreObservations bool          `yaml:"store_observations"`
		WarmStart         bool          `yaml:"warm_start"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Queue    struct {
			Name       string        `yaml:"name"`
			Workers    int           `yaml:"workers"`
			MaxRetry   int           `yaml:"max_retry"`
			RetryDelay time.Duration `yaml:"retry_delay"`
		} `yaml:"queue"`
	} `yaml:"redis"`
	Stream struct {
		Enabled        bool          `yaml:"enabled"`
		WebSocketURL   string        `yaml:"websocket_url"`
		Symbols        []string      `yaml:"symbols"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		PingInterval   time.Duration `yaml:"ping_interval"`
		Throttle       time.Duration `yaml:"throttle"`
	} `yaml:"stream"`
	Regime struct {
		ServiceURL string        `yaml:"service_url"`
		Timeout    time.Duration `yaml:"timeout"`
		Retries    int           `yaml:"retries"`
		CacheTTL   time.Duration `yaml:"cache_ttl"`
		Static     []float64     `yaml:"static"` // used when service_url is empty
		Breaker    struct {
			ConsecutiveFailures uint32        `yaml:"consecutive_failures"`
			OpenTimeout         time.Duration `yaml:"open_timeout"`
		} `yaml:"breaker"`
	} `yaml:"regime"`
	Engine struct {
		Alpha             float64       `yaml:"alpha"`
		Beta              float64       `yaml:"beta"`
		Gamma             float64       `yaml:"gamma"`
		KellyFraction     float64       `yaml:"kelly_fraction"`
		MaxPosition       float64       `yaml:"max_position"`
		VolLookback       int           `yaml:"vol_lookback"`
		TransactionCost   float64       `yaml:"transaction_cost"`
		MinExpectedReturn float64       `yaml:"min_expected_return"`
		WindowSize        int           `yaml:"window_size"`
		MinObservations   int           `yaml:"min_observations"`
		QueueSize         int           `yaml:"queue_size"`
		RegimeTimeout     time.Duration `yaml:"regime_timeout"`
	} `yaml:"engine"`
	Emission   []engine.EmissionParams `yaml:"emission"`
	Hypotheses struct {
		RangeSlopeThreshold float64 `yaml:"range_slope_threshold"`
		FundingThreshold    float64 `yaml:"funding_threshold"`
		BaseConfidence      float64 `yaml:"base_confidence"`
		ReturnScale         float64 `yaml:"return_scale"`
	} `yaml:"hypotheses"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML, applies environment overrides and validates.
func LoadWithEnv(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Stream.Symbols = splitList(v)
	}
	if v := os.Getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("REGIME_SERVICE_URL"); v != "" {
		c.Regime.ServiceURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func read(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}

// Default returns a config with every tunable set to its reference value.
func Default() *Config {
	c := &Config{Environment: "development"}
	c.Log.Level = "info"
	c.Log.Format = "json"
	c.Log.Output = "stdout"
	c.Log.Aggregate.Interval = 30 * time.Second
	c.Log.Aggregate.CountThreshold = 100
	c.Log.Aggregate.Topic = "logs.aggregated"
	c.Server.Port = 8080
	c.Server.ReadTimeout = 10 * time.Second
	c.Server.WriteTimeout = 10 * time.Second
	c.Server.ShutdownTimeout = 15 * time.Second
	c.Server.SlowRequest = 500 * time.Millisecond
	c.Server.RateLimit.RPS = 20
	c.Server.RateLimit.Burst = 40
	c.Metrics.Enabled = true
	c.Metrics.Path = "/metrics"
	c.Backend.Type = BackendKafka
	c.Kafka.ObservationsTopic = "market.observations"
	c.Kafka.DecisionsTopic = "engine.decisions"
	c.Kafka.RequiredAcks = -1
	c.Kafka.Compression = "gzip"
	c.Kafka.Producer.MaxAttempts = 3
	c.Kafka.Producer.Linger = 10 * time.Millisecond
	c.Kafka.Producer.WriteTimeout = 10 * time.Second
	c.Kafka.Producer.ReadTimeout = 10 * time.Second
	c.Kafka.Consumer.Enabled = true
	c.Kafka.Consumer.GroupID = "decision-core"
	c.Kafka.Consumer.Workers = 4
	c.Kafka.Consumer.BufferSize = 100
	c.Kafka.Consumer.RetryMax = 3
	c.Kafka.Consumer.BackoffMin = 50 * time.Millisecond
	c.Kafka.Consumer.BackoffMax = 2 * time.Second
	c.Redis.Queue.Name = "decisioncore"
	c.Redis.Queue.Workers = 1
	c.Redis.Queue.MaxRetry = 3
	c.Redis.Queue.RetryDelay = 10 * time.Second
	c.Stream.ReconnectDelay = 5 * time.Second
	c.Stream.PingInterval = 30 * time.Second
	c.Regime.Timeout = 2 * time.Second
	c.Regime.Retries = 2
	c.Regime.CacheTTL = 10 * time.Minute
	c.Regime.Breaker.ConsecutiveFailures = 3
	c.Regime.Breaker.OpenTimeout = 30 * time.Second

	def := engine.DefaultConfig()
	c.Engine.Alpha = def.Alpha
	c.Engine.Beta = def.Beta
	c.Engine.Gamma = def.Gamma
	c.Engine.KellyFraction = def.KellyFraction
	c.Engine.MaxPosition = def.MaxPosition
	c.Engine.VolLookback = def.VolLookback
	c.Engine.TransactionCost = def.TransactionCost
	c.Engine.MinExpectedReturn = def.MinExpectedReturn
	c.Engine.WindowSize = def.WindowSize
	c.Engine.MinObservations = def.MinObservations
	c.Engine.QueueSize = 256
	c.Engine.RegimeTimeout = 2 * time.Second

	c.Hypotheses.RangeSlopeThreshold = 0.05
	c.Hypotheses.FundingThreshold = 0.0003
	c.Hypotheses.BaseConfidence = 0.6
	c.Hypotheses.ReturnScale = 0.01
	return c
}

// EngineConfig converts the engine section to the engine's own config.
func (c *Config) EngineConfig() engine.Config {
	emission := c.Emission
	if len(emission) == 0 {
		emission = engine.DefaultEmission()
	}
	return engine.Config{
		Alpha:             c.Engine.Alpha,
		Beta:              c.Engine.Beta,
		Gamma:             c.Engine.Gamma,
		KellyFraction:     c.Engine.KellyFraction,
		MaxPosition:       c.Engine.MaxPosition,
		VolLookback:       c.Engine.VolLookback,
		TransactionCost:   c.Engine.TransactionCost,
		MinExpectedReturn: c.Engine.MinExpectedReturn,
		WindowSize:        c.Engine.WindowSize,
		MinObservations:   c.Engine.MinObservations,
		Emission:          emission,
	}
}

// UsesKafka reports whether decisions are published to Kafka.
func (c *Config) UsesKafka() bool {
	return c.Backend.Type == BackendKafka || c.Backend.Type == BackendBoth
}

// UsesClickHouse reports whether decisions are written to ClickHouse.
func (c *Config) UsesClickHouse() bool {
	return c.Backend.Type == BackendClickHouse || c.Backend.Type == BackendBoth
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	switch c.Backend.Type {
	case BackendKafka, BackendClickHouse, BackendBoth:
	case "":
		return fmt.Errorf("backend.type is required")
	default:
		return fmt.Errorf("backend.type must be 'kafka', 'clickhouse' or 'both', got '%s'", c.Backend.Type)
	}
	if c.UsesKafka() || c.Kafka.Consumer.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers cannot be empty")
		}
	}
	if c.UsesKafka() && c.Kafka.DecisionsTopic == "" {
		return fmt.Errorf("kafka.decisions_topic is required")
	}
	if c.Kafka.Consumer.Enabled && c.Kafka.ObservationsTopic == "" {
		return fmt.Errorf("kafka.observations_topic is required")
	}
	if (c.UsesClickHouse() || c.ClickHouse.StoreObservations || c.ClickHouse.WarmStart) && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required")
	}
	if c.Stream.Enabled {
		if c.Stream.WebSocketURL == "" {
			return fmt.Errorf("stream.websocket_url is required")
		}
		if len(c.Stream.Symbols) == 0 {
			return fmt.Errorf("stream.symbols cannot be empty")
		}
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}
	if c.Log.Aggregate.Enabled && !c.Redis.Enabled {
		return fmt.Errorf("log.aggregate requires redis")
	}
	if c.Regime.ServiceURL == "" && len(c.Regime.Static) > 0 && len(c.Regime.Static) != len(c.EngineConfig().Emission) {
		return fmt.Errorf("regime.static has %d entries, emission has %d", len(c.Regime.Static), len(c.EngineConfig().Emission))
	}
	if c.Engine.QueueSize < 1 {
		return fmt.Errorf("engine.queue_size must be >= 1")
	}
	if err := c.EngineConfig().Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
