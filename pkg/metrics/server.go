package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marmos91/seqstore/internal/logger"
)

const defaultShutdownTimeout = 5 * time.Second

// Server serves the store's operational endpoints over HTTP:
//
//	/metrics  Prometheus exposition (503 when metrics are disabled)
//	/healthz  "ok last_published=<id>"
//	/         plain-text list of the above
type Server struct {
	server          *http.Server
	health          func() uint64
	shutdownTimeout time.Duration
	stopOnce        sync.Once
	stopErr         error
}

// ServerConfig configures the metrics HTTP server.
type ServerConfig struct {
	// Port to listen on (default: 9090).
	Port int

	// Health reports the last published store id on /healthz. Optional.
	Health func() uint64

	// ShutdownTimeout bounds the graceful shutdown started when the Start
	// context is cancelled (default: 5s).
	ShutdownTimeout time.Duration
}

// NewServer builds a server without starting it.
func NewServer(config ServerConfig) *Server {
	if config.Port <= 0 {
		config.Port = 9090
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = defaultShutdownTimeout
	}

	s := &Server{
		health:          config.Health,
		shutdownTimeout: config.ShutdownTimeout,
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metricsHandler())
	mux.HandleFunc("/healthz", s.serveHealth)
	mux.HandleFunc("/", s.serveIndex)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) metricsHandler() http.Handler {
	if reg := GetRegistry(); reg != nil {
		return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "metrics collection is disabled", http.StatusServiceUnavailable)
	})
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if s.health == nil {
		_, _ = fmt.Fprintln(w, "ok")
		return
	}
	_, _ = fmt.Fprintf(w, "ok last_published=%d\n", s.health())
}

func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintln(w, "seqstore")
	_, _ = fmt.Fprintln(w, "  /metrics  store, forwarder and root size metrics")
	_, _ = fmt.Fprintln(w, "  /healthz  last published store id")
}

// Handler returns the HTTP handler serving the endpoints.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until ctx is cancelled, then shuts down gracefully within the
// configured timeout. It returns nil after a clean shutdown and an error if
// the listener fails.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Metrics server listening on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		// ctx is already cancelled: shutdown gets its own deadline.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("metrics server failed: %w", err)
	}
}

// Stop shuts the server down. Only the first call does any work; later calls
// return its result.
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			s.stopErr = fmt.Errorf("metrics server shutdown: %w", err)
			logger.Error("Metrics server shutdown error: %v", err)
			return
		}
		logger.Info("Metrics server stopped")
	})
	return s.stopErr
}
