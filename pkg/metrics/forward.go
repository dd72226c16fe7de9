package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/seqstore/pkg/forward"
)

// forwardMetrics is the Prometheus implementation of forward.Metrics.
type forwardMetrics struct {
	unitsTotal   *prometheus.CounterVec
	bytesTotal   *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	retriesTotal *prometheus.CounterVec
	skippedTotal prometheus.Counter
}

// NewForwardMetrics creates a Prometheus-backed forward.Metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewForwardMetrics() forward.Metrics {
	if !IsEnabled() {
		return nil
	}
	return newForwardMetrics(GetRegistry())
}

func newForwardMetrics(reg prometheus.Registerer) *forwardMetrics {
	factory := promauto.With(reg)

	return &forwardMetrics{
		unitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "forwarder",
				Name:      "units_total",
				Help:      "Total number of units handed to a sink by sink and status",
			},
			[]string{"sink", "status"},
		),
		bytesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "forwarder",
				Name:      "bytes_total",
				Help:      "Total payload bytes delivered by sink",
			},
			[]string{"sink"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "forwarder",
				Name:      "put_duration_seconds",
				Help:      "Time to deliver one unit, including retries",
				Buckets: []float64{
					0.01,  // 10ms
					0.05,  // 50ms
					0.1,   // 100ms
					0.5,   // 500ms
					1.0,   // 1s
					5.0,   // 5s
					30.0,  // 30s
					120.0, // 2m
				},
			},
			[]string{"sink"},
		),
		retriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "forwarder",
				Name:      "retries_total",
				Help:      "Total number of repeated sink attempts",
			},
			[]string{"sink"},
		),
		skippedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forwarder",
			Name:      "skipped_total",
			Help:      "Total number of store ids without a unit on disk",
		}),
	}
}

func (m *forwardMetrics) ObserveForward(sink string, bytes int64, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.unitsTotal.WithLabelValues(sink, status).Inc()
	m.duration.WithLabelValues(sink).Observe(duration.Seconds())
	if success {
		m.bytesTotal.WithLabelValues(sink).Add(float64(bytes))
	}
}

func (m *forwardMetrics) ObserveRetry(sink string) {
	m.retriesTotal.WithLabelValues(sink).Inc()
}

func (m *forwardMetrics) ObserveSkip() {
	m.skippedTotal.Inc()
}
