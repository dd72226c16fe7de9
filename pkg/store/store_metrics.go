package store

// This file contains metrics-related types for observability of commits,
// discards, publishing and recovery.

import (
	"time"
)

// Metrics provides observability for store operations.
//
// This is optional - if not provided, metrics collection is skipped.
// pkg/metrics provides a Prometheus-backed implementation.
type Metrics interface {
	// ObserveCommit records a commit attempt. bytes is the size of the
	// packaged payload; success is false when the commit failed and the
	// store id was burned.
	ObserveCommit(bytes int64, duration time.Duration, success bool)

	// ObserveDiscard records a discarded session.
	ObserveDiscard()

	// ObservePublish records a published id and how long the producer
	// waited for earlier ids.
	ObservePublish(id uint64, wait time.Duration)

	// ObserveDirRetry records a directory recreated after a race.
	ObserveDirRetry()

	// RecordRecovery records the outcome of startup recovery.
	RecordRecovery(maxID uint64, removed int)

	// RecordDelete records a consumed unit removed from the store.
	RecordDelete()
}

// noopMetrics is a default no-op metrics implementation
type noopMetrics struct{}

func (noopMetrics) ObserveCommit(bytes int64, duration time.Duration, success bool) {}
func (noopMetrics) ObserveDiscard()                                               {}
func (noopMetrics) ObservePublish(id uint64, wait time.Duration)                  {}
func (noopMetrics) ObserveDirRetry()                                              {}
func (noopMetrics) RecordRecovery(maxID uint64, removed int)                      {}
func (noopMetrics) RecordDelete()                                                 {}
