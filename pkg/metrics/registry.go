// Package metrics provides Prometheus metrics collection for seqstore
// components.
//
// All metrics are optional - if not initialized, components use no-op
// implementations. This allows seqstore to run with or without metrics
// collection enabled.
//
// Usage:
//
//	// Initialize global registry (typically in main.go)
//	metrics.InitRegistry()
//
//	// Create metrics instances for components
//	storeMetrics := metrics.NewStoreMetrics()
//	forwardMetrics := metrics.NewForwardMetrics()
//
//	// Or use nil for no-op behavior
//	s, err := store.Open(ctx, store.Config{TempRoot: t, StoreRoot: r}) // No metrics
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// namespace prefixes every metric name.
const namespace = "seqstore"

var (
	// registry is the global Prometheus registry for all seqstore metrics.
	// Protected by registryOnce for write-once, read-many pattern.
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry, including the Go
// runtime and process collectors.
//
// This must be called before creating any metrics instances. It's safe to
// call multiple times - subsequent calls are ignored.
//
// If not called, GetRegistry() returns nil and all metrics constructors
// return nil, selecting the components' no-op implementations.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

// GetRegistry returns the global Prometheus registry, or nil when metrics are
// disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled returns true if InitRegistry() has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
