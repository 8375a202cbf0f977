package middleware

import (
	"strconv"
	"sync"
	"time"

	applogger "DecisionCore/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type httpMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

var (
	httpStats     *httpMetrics
	httpStatsOnce sync.Once
)

func sharedHTTPMetrics() *httpMetrics {
	httpStatsOnce.Do(func() {
		httpStats = &httpMetrics{
			requests: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Requests served, by route template and status.",
			}, []string{"route", "method", "status"}),
			latency: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Request latency, by route template and status class.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			}, []string{"route", "method", "class"}),
			inFlight: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "http_in_flight_requests",
				Help: "Requests currently being served.",
			}),
		}
	})
	return httpStats
}

// Metrics counts requests by route template (c.Path()), so symbols in the
// URL do not add series. 5xx replies are logged at error and replies slower
// than slow at warn; slow <= 0 turns the latter off.
func Metrics(l *applogger.Logger, slow time.Duration) echo.MiddlewareFunc {
	m := sharedHTTPMetrics()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.inFlight.Inc()
			defer m.inFlight.Dec()
			began := time.Now()

			if err := next(c); err != nil {
				// write the error now so Response().Status is final
				c.Error(err)
			}

			took := time.Since(began)
			route, method, status := c.Path(), c.Request().Method, c.Response().Status
			m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
			m.latency.WithLabelValues(route, method, statusClass(status)).Observe(took.Seconds())

			if status < 500 && (slow <= 0 || took < slow) {
				return nil
			}
			fields := []applogger.Field{
				applogger.String("request_id", requestID(c)),
				applogger.String("route", route),
				applogger.String("method", method),
				applogger.Int("status", status),
				applogger.Duration("took", took),
			}
			if status >= 500 {
				l.Error("http request failed", fields...)
			} else {
				l.Warn("http request slow", fields...)
			}
			return nil
		}
	}
}

func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "5xx"
	}
	return strconv.Itoa(code/100) + "xx"
}
