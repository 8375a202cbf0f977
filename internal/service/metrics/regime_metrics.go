package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	RegimeLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "decisioncore",
			Subsystem: "regime",
			Name:      "request_seconds",
			Help:      "Latency of regime service calls",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"result"},
	)

	RegimeFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "decisioncore",
			Subsystem: "regime",
			Name:      "fallbacks_total",
			Help:      "Regime lookups answered from the last-known cache or not at all",
		},
		[]string{"symbol", "result"},
	)
)

// Register adds the regime collectors to the default registry once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(RegimeLatency, RegimeFallbacks)
	})
}

// ObserveRegimeCall records one regime service call.
func ObserveRegimeCall(start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	RegimeLatency.WithLabelValues(result).Observe(time.Since(start).Seconds())
}
