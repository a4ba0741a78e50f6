package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	snapshotsTotal *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	midPrice       *prometheus.GaugeVec
	trackedEntries *prometheus.GaugeVec
	verdictsTotal  *prometheus.CounterVec
	latency        *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		snapshotsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "depthwatch_snapshots_total",
				Help: "Total number of depth snapshots processed",
			},
			[]string{"symbol"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "depthwatch_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		midPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "depthwatch_mid_price",
				Help: "Last observed mid price for a symbol",
			},
			[]string{"symbol"},
		),
		trackedEntries: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "depthwatch_tracked_entries",
				Help: "Number of tracked large orders for a symbol",
			},
			[]string{"symbol"},
		),
		verdictsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "depthwatch_verdicts_total",
				Help: "Detection verdicts emitted per symbol",
			},
			[]string{"symbol", "verdict"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "depthwatch_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordSnapshot records one processed depth snapshot.
func (r *Recorder) RecordSnapshot(symbol string) {
	r.snapshotsTotal.WithLabelValues(symbol).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordMidPrice records the last mid price for a symbol.
func (r *Recorder) RecordMidPrice(symbol string, price float64) {
	r.midPrice.WithLabelValues(symbol).Set(price)
}

// RecordTrackedEntries records the tracked set size for a symbol.
func (r *Recorder) RecordTrackedEntries(symbol string, n int) {
	r.trackedEntries.WithLabelValues(symbol).Set(float64(n))
}

// RecordVerdict records one emitted verdict.
func (r *Recorder) RecordVerdict(symbol, verdict string) {
	r.verdictsTotal.WithLabelValues(symbol, verdict).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
