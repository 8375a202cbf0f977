package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"DecisionCore/pkg/http/middleware"
	applogger "DecisionCore/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler mounts a group of routes.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}

type ServerOption func(*ServerConfig)

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORS            bool
	CORSOrigins     []string // empty allows any origin
	MetricsPath     string   // empty disables /metrics
	SlowThreshold   time.Duration
	Logger          *applogger.Logger
	ReadyChecks     []ReadyCheck
}

// ReadyCheck reports whether one dependency can serve. /readyz runs all of
// them.
type ReadyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		CORS:            true,
		MetricsPath:     "/metrics",
		SlowThreshold:   500 * time.Millisecond,
	}
}

// Server is the echo instance plus its lifecycle.
type Server struct {
	e   *echo.Echo
	cfg ServerConfig
	log *applogger.Logger
}

// NewServer builds the middleware chain, mounts handler and adds /healthz
// and, unless disabled, the Prometheus endpoint.
func NewServer(handler Handler, opts ...ServerOption) *Server {
	cfg := defaultServerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	log := cfg.Logger
	if log == nil {
		log = applogger.Nop()
	}

	e := echo.New()
	e.HideBanner, e.HidePort = true, true
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout

	chain := []echo.MiddlewareFunc{
		middleware.RequestID(),
		middleware.Recover(log),
		middleware.Metrics(log, cfg.SlowThreshold),
		middleware.RequestLogging(log, cfg.MetricsPath, "/healthz", "/readyz"),
	}
	if cfg.CORS {
		chain = append(chain, middleware.CORS(cfg.CORSOrigins, 600))
	}
	e.Use(chain...)

	if handler != nil {
		handler.RegisterRoutes(e)
	}
	if cfg.MetricsPath != "" {
		e.GET(cfg.MetricsPath, echo.WrapHandler(promhttp.Handler()))
	}
	e.GET("/healthz", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/readyz", readyHandler(cfg.ReadyChecks))

	return &Server{e: e, cfg: cfg, log: log}
}

// readyHandler runs every check concurrently with a shared deadline and
// reports each result. Any failure makes the envelope status 503.
func readyHandler(checks []ReadyCheck) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		results := make([]string, len(checks))
		var wg sync.WaitGroup
		for i, rc := range checks {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := rc.Check(ctx); err != nil {
					results[i] = err.Error()
					return
				}
				results[i] = "ok"
			}()
		}
		wg.Wait()

		status := http.StatusOK
		report := make(map[string]string, len(checks))
		for i, rc := range checks {
			report[rc.Name] = results[i]
			if results[i] != "ok" {
				status = http.StatusServiceUnavailable
			}
		}
		return writeEnvelope(c, status, report)
	}
}

func (s *Server) addr() string {
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
}

// Run serves until ctx is cancelled, then shuts down within
// ShutdownTimeout. A listener failure is returned immediately.
func (s *Server) Run(ctx context.Context) error {
	served := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", applogger.String("addr", s.addr()))
		err := s.e.Start(s.addr())
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		served <- err
	}()

	select {
	case err := <-served:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return s.Stop(stopCtx)
}

func (s *Server) Stop(ctx context.Context) error {
	if err := s.e.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.log.Info("http server stopped")
	return nil
}

func (s *Server) Echo() *echo.Echo { return s.e }

func WithHost(host string) ServerOption {
	return func(c *ServerConfig) { c.Host = host }
}

func WithPort(port int) ServerOption {
	return func(c *ServerConfig) { c.Port = port }
}

// WithTimeouts sets read, write and shutdown timeouts. Zero keeps the
// default.
func WithTimeouts(read, write, shutdown time.Duration) ServerOption {
	return func(c *ServerConfig) {
		if read > 0 {
			c.ReadTimeout = read
		}
		if write > 0 {
			c.WriteTimeout = write
		}
		if shutdown > 0 {
			c.ShutdownTimeout = shutdown
		}
	}
}

// WithCORS toggles CORS. No origins means any origin.
func WithCORS(enabled bool, origins ...string) ServerOption {
	return func(c *ServerConfig) {
		c.CORS = enabled
		c.CORSOrigins = origins
	}
}

func WithMetricsPath(path string) ServerOption {
	return func(c *ServerConfig) { c.MetricsPath = path }
}

// WithSlowThreshold sets when a request is logged as slow; <= 0 disables.
func WithSlowThreshold(d time.Duration) ServerOption {
	return func(c *ServerConfig) { c.SlowThreshold = d }
}

// WithReadyCheck adds a dependency to /readyz. A nil check is ignored.
func WithReadyCheck(name string, check func(ctx context.Context) error) ServerOption {
	return func(c *ServerConfig) {
		if check != nil {
			c.ReadyChecks = append(c.ReadyChecks, ReadyCheck{Name: name, Check: check})
		}
	}
}

func WithLogger(l *applogger.Logger) ServerOption {
	return func(c *ServerConfig) { c.Logger = l }
}
