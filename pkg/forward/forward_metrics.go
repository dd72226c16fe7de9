package forward

import "time"

// Metrics provides observability for the forwarder.
//
// This is optional - if not provided, metrics collection is skipped.
// pkg/metrics provides a Prometheus-backed implementation.
type Metrics interface {
	// ObserveForward records one unit delivery (after all retries).
	ObserveForward(sink string, bytes int64, duration time.Duration, success bool)

	// ObserveRetry records a repeated Sink.Put attempt.
	ObserveRetry(sink string)

	// ObserveSkip records an id without a unit on disk.
	ObserveSkip()
}

type noopMetrics struct{}

func (noopMetrics) ObserveForward(string, int64, time.Duration, bool) {}
func (noopMetrics) ObserveRetry(string)                              {}
func (noopMetrics) ObserveSkip()                                     {}
