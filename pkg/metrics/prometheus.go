package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	observations *prometheus.CounterVec
	outcomes     *prometheus.CounterVec
	decisions    *prometheus.CounterVec
	positionSize *prometheus.HistogramVec
	topBelief    *prometheus.GaugeVec
	logOdds      *prometheus.GaugeVec
	errorsTotal  *prometheus.CounterVec
	regimeStale  *prometheus.CounterVec
	queueDepth   *prometheus.GaugeVec
	latency      *prometheus.HistogramVec
}

// New creates a recorder registered with the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the collectors with reg.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		observations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "decisioncore_observations_total",
				Help: "Observations handed to an engine",
			},
			[]string{"symbol"},
		),
		outcomes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "decisioncore_engine_outcomes_total",
				Help: "Engine step outcomes by kind and reason",
			},
			[]string{"symbol", "outcome", "reason"},
		),
		decisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "decisioncore_decisions_total",
				Help: "Decisions emitted",
			},
			[]string{"symbol", "direction"},
		),
		positionSize: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "decisioncore_position_size",
				Help:    "Absolute position size of emitted decisions",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.5, 1},
			},
			[]string{"symbol"},
		),
		topBelief: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "decisioncore_top_belief",
				Help: "Posterior probability of the leading hypothesis",
			},
			[]string{"symbol"},
		),
		logOdds: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "decisioncore_log_odds_ratio",
				Help: "SPRT log odds ratio between the top two hypotheses",
			},
			[]string{"symbol"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "decisioncore_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		regimeStale: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "decisioncore_regime_stale_total",
				Help: "Observations evaluated with a fallback regime vector",
			},
			[]string{"symbol"},
		),
		queueDepth: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "decisioncore_queue_depth",
				Help: "Pending observations per symbol worker",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "decisioncore_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordObservation(symbol string) {
	r.observations.WithLabelValues(symbol).Inc()
}

func (r *Recorder) RecordOutcome(symbol, outcome, reason string) {
	r.outcomes.WithLabelValues(symbol, outcome, reason).Inc()
}

func (r *Recorder) RecordDecision(symbol, direction string, size float64) {
	r.decisions.WithLabelValues(symbol, direction).Inc()
	if size < 0 {
		size = -size
	}
	r.positionSize.WithLabelValues(symbol).Observe(size)
}

func (r *Recorder) RecordBelief(symbol string, top, logOdds float64) {
	r.topBelief.WithLabelValues(symbol).Set(top)
	r.logOdds.WithLabelValues(symbol).Set(logOdds)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordRegimeStale(symbol string) {
	r.regimeStale.WithLabelValues(symbol).Inc()
}

func (r *Recorder) RecordQueueDepth(symbol string, depth int) {
	r.queueDepth.WithLabelValues(symbol).Set(float64(depth))
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
