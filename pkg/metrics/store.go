package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/seqstore/pkg/store"
)

// storeMetrics is the Prometheus implementation of store.Metrics.
type storeMetrics struct {
	commitsTotal    *prometheus.CounterVec
	commitDuration  prometheus.Histogram
	commitBytes     prometheus.Histogram
	discardsTotal   prometheus.Counter
	publishedID     prometheus.Gauge
	publishWait     prometheus.Histogram
	dirRetriesTotal prometheus.Counter
	recoveredID     prometheus.Gauge
	recoveryRemoved prometheus.Gauge
	deletesTotal    prometheus.Counter
}

// NewStoreMetrics creates a Prometheus-backed store.Metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called), which
// makes the store use its built-in no-op implementation.
func NewStoreMetrics() store.Metrics {
	if !IsEnabled() {
		return nil
	}
	return newStoreMetrics(GetRegistry())
}

func newStoreMetrics(reg prometheus.Registerer) *storeMetrics {
	factory := promauto.With(reg)

	return &storeMetrics{
		commitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "commits_total",
				Help:      "Total number of session commits by status (success, burned)",
			},
			[]string{"status"},
		),
		commitDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "commit_duration_seconds",
			Help:      "Time from commit start to publication, including the wait for earlier ids",
			Buckets: []float64{
				0.001, // 1ms
				0.005, // 5ms
				0.01,  // 10ms
				0.05,  // 50ms
				0.1,   // 100ms
				0.5,   // 500ms
				1.0,   // 1s
				5.0,   // 5s
			},
		}),
		commitBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "commit_bytes",
			Help:      "Size of committed payload packages in bytes",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10), // 1KiB .. 256MiB
		}),
		discardsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "discards_total",
			Help:      "Total number of discarded sessions (explicit or empty)",
		}),
		publishedID: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "published_id",
			Help:      "Highest store id visible to consumers",
		}),
		publishWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "publish_wait_seconds",
			Help:      "Time a producer waited for smaller ids to be published",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 9), // 100us .. ~6.5s
		}),
		dirRetriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "dir_retries_total",
			Help:      "Total number of directories recreated before a file operation was retried",
		}),
		recoveredID: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "recovered_id",
			Help:      "Highest complete store id found at startup",
		}),
		recoveryRemoved: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "recovery_removed_units",
			Help:      "Incomplete units removed by startup recovery",
		}),
		deletesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "deletes_total",
			Help:      "Total number of consumed units deleted",
		}),
	}
}

func (m *storeMetrics) ObserveCommit(bytes int64, duration time.Duration, success bool) {
	if !success {
		m.commitsTotal.WithLabelValues("burned").Inc()
		return
	}
	m.commitsTotal.WithLabelValues("success").Inc()
	m.commitDuration.Observe(duration.Seconds())
	m.commitBytes.Observe(float64(bytes))
}

func (m *storeMetrics) ObserveDiscard() {
	m.discardsTotal.Inc()
}

func (m *storeMetrics) ObservePublish(id uint64, wait time.Duration) {
	m.publishedID.Set(float64(id))
	m.publishWait.Observe(wait.Seconds())
}

func (m *storeMetrics) ObserveDirRetry() {
	m.dirRetriesTotal.Inc()
}

func (m *storeMetrics) RecordRecovery(maxID uint64, removed int) {
	m.recoveredID.Set(float64(maxID))
	m.recoveryRemoved.Set(float64(removed))
	m.publishedID.Set(float64(maxID))
}

func (m *storeMetrics) RecordDelete() {
	m.deletesTotal.Inc()
}
