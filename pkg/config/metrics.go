package config

import (
	"github.com/marmos91/seqstore/pkg/forward"
	"github.com/marmos91/seqstore/pkg/metrics"
	"github.com/marmos91/seqstore/pkg/registry"
	"github.com/marmos91/seqstore/pkg/store"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// StoreMetrics is the store collector (nil if disabled, selecting the no-op)
	StoreMetrics store.Metrics

	// ForwardMetrics is the forwarder collector (nil if disabled)
	ForwardMetrics forward.Metrics
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Registers a collector reporting the size of every root in roots
//   - Creates the metrics HTTP server
//   - Creates Prometheus-backed metrics instances for all components
//
// If metrics are disabled, every field of the result is nil.
//
// Parameters:
//   - cfg: The complete seqstore configuration
//   - roots: Registry of directories to report on (may be nil)
//   - health: Reports the last published store id on /healthz (may be nil)
//
// Returns:
//   - MetricsResult containing all metrics components
//   - error if the roots collector cannot be registered
func InitializeMetrics(cfg *Config, roots *registry.Registry, health func() uint64) (*MetricsResult, error) {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{}, nil
	}

	metrics.InitRegistry()

	if roots != nil {
		if err := metrics.RegisterRoots(roots); err != nil {
			return nil, err
		}
	}

	server := metrics.NewServer(metrics.ServerConfig{
		Port:            cfg.Metrics.Port,
		Health:          health,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})

	return &MetricsResult{
		Server:         server,
		StoreMetrics:   metrics.NewStoreMetrics(),
		ForwardMetrics: metrics.NewForwardMetrics(),
	}, nil
}
