// Package gc provides retention-based garbage collection for store units.
//
// When the forwarder runs without delete_after_forward, delivered units stay
// in the store. The collector periodically removes the ones that are both
// behind a horizon (normally the forwarder cursor) and older than a maximum
// age. Units that have not been delivered are never collected.
//
// Every run also sweeps units left partly on disk by a crash (see
// store.Store.Incomplete). Those are removed whatever their age or horizon,
// since no consumer can ever read them.
package gc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/seqstore/internal/logger"
	"github.com/marmos91/seqstore/pkg/store"
)

// Source is the part of *store.Store the collector needs.
type Source interface {
	Units(ctx context.Context) ([]store.UnitInfo, error)
	Incomplete(ctx context.Context) ([]uint64, error)
	Delete(id uint64) error
}

// Horizon reports the highest store id that may be collected.
// forward.Cursor implements it.
type Horizon interface {
	Load(ctx context.Context) (uint64, error)
}

// Collector performs periodic garbage collection on a store.
//
// Thread Safety: Safe for concurrent use.
type Collector struct {
	source  Source
	horizon Horizon
	config  Config

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
	started   atomic.Bool
}

// Config contains configuration for the garbage collector.
type Config struct {
	// Enabled controls whether periodic collection is active
	Enabled bool

	// Interval is how often to run garbage collection (default: 1h)
	Interval time.Duration

	// MaxAge is how long a delivered unit is kept (default: 24h)
	MaxAge time.Duration

	// BatchSize is how many units are deleted between cancellation checks
	// (default: 1000)
	BatchSize int

	// DryRun mode logs what would be deleted without actually deleting
	DryRun bool
}

// NewCollector creates a new garbage collector.
//
// The collector will be initialized but not started. Call Start() to begin
// background garbage collection.
//
// Parameters:
//   - source: Store to scan and delete from
//   - horizon: Highest collectable id; nil makes every published unit
//     eligible once it is older than MaxAge
//   - config: Garbage collection configuration
func NewCollector(source Source, horizon Horizon, config Config) *Collector {
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	if config.MaxAge <= 0 {
		config.MaxAge = 24 * time.Hour
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 1000
	}

	return &Collector{
		source:  source,
		horizon: horizon,
		config:  config,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start begins background garbage collection.
//
// Safe to call multiple times (subsequent calls are no-ops).
func (c *Collector) Start() {
	if !c.config.Enabled {
		logger.Info("Garbage collection disabled")
		return
	}

	c.startOnce.Do(func() {
		logger.Info("Starting garbage collector: interval=%s max_age=%s batch_size=%d dry_run=%v",
			c.config.Interval, c.config.MaxAge, c.config.BatchSize, c.config.DryRun)
		c.started.Store(true)
		go c.worker()
	})
}

// Stop stops the garbage collector and waits for an in-progress run.
//
// Returns an error if ctx expires before the worker finished.
func (c *Collector) Stop(ctx context.Context) error {
	if !c.started.Load() {
		return nil
	}

	c.stopOnce.Do(func() {
		logger.Info("Stopping garbage collector...")
		close(c.stopCh)
	})

	select {
	case <-c.doneCh:
		logger.Info("Garbage collector stopped successfully")
		return nil
	case <-ctx.Done():
		logger.Warn("Garbage collector shutdown timeout")
		return ctx.Err()
	}
}

// RunNow triggers an immediate garbage collection run and blocks until it
// completes or ctx is cancelled.
func (c *Collector) RunNow(ctx context.Context) (*Stats, error) {
	logger.Info("Running garbage collection (manual trigger)...")
	return c.collect(ctx, time.Now())
}

// worker is the background goroutine that runs periodic garbage collection.
func (c *Collector) worker() {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.config.Interval)
			go func() {
				select {
				case <-c.stopCh:
					cancel()
				case <-ctx.Done():
				}
			}()
			stats, err := c.collect(ctx, time.Now())
			cancel()

			if err != nil {
				logger.Error("Garbage collection failed: %v", err)
			} else {
				logger.Info("Garbage collection completed: %s", stats.Summary())
			}

		case <-c.stopCh:
			return
		}
	}
}

// collect performs a single garbage collection run:
//  1. Read the horizon
//  2. List the units on disk
//  3. Select units at or below the horizon and older than MaxAge, plus
//     incomplete units
//  4. Delete them in batches
func (c *Collector) collect(ctx context.Context, now time.Time) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}

	// Phase 1: Horizon
	horizon := ^uint64(0)
	if c.horizon != nil {
		h, err := c.horizon.Load(ctx)
		if err != nil {
			return stats, fmt.Errorf("failed to read horizon: %w", err)
		}
		horizon = h
	}
	stats.Horizon = horizon

	// Phase 2: Units on disk
	units, err := c.source.Units(ctx)
	if err != nil {
		return stats, err
	}
	stats.ExistingCount = uint64(len(units))

	// Phase 3: Expired units
	cutoff := now.Add(-c.config.MaxAge)
	expired := make([]uint64, 0)
	for _, u := range units {
		if u.ID > horizon {
			stats.PendingCount++
			continue
		}
		if u.ModTime.After(cutoff) {
			continue
		}
		expired = append(expired, u.ID)
	}
	stats.ExpiredCount = uint64(len(expired))

	incomplete, err := c.source.Incomplete(ctx)
	if err != nil {
		return stats, err
	}
	stats.IncompleteCount = uint64(len(incomplete))
	if len(incomplete) > 0 {
		logger.Info("GC: found %d incomplete units (first id %d)", len(incomplete), incomplete[0])
	}

	if len(expired) == 0 && len(incomplete) == 0 {
		stats.EndTime = time.Now()
		return stats, nil
	}

	if c.config.DryRun {
		logger.Info("GC: DRY RUN - Would delete %d expired and %d incomplete units",
			len(expired), len(incomplete))
		stats.EndTime = time.Now()
		return stats, nil
	}

	expired = append(expired, incomplete...)

	// Phase 4: Delete in batches
	for i := 0; i < len(expired); i += c.config.BatchSize {
		if err := ctx.Err(); err != nil {
			stats.EndTime = time.Now()
			return stats, err
		}

		end := min(i+c.config.BatchSize, len(expired))
		for _, id := range expired[i:end] {
			if err := c.source.Delete(id); err != nil {
				logger.Debug("GC: Failed to delete store id %d: %v", id, err)
				stats.FailedCount++
				continue
			}
			stats.DeletedCount++
		}

		logger.Debug("GC: Deleted batch %d-%d", expired[i], expired[end-1])
	}

	stats.EndTime = time.Now()
	return stats, nil
}

// Stats contains statistics from a garbage collection run.
type Stats struct {
	StartTime     time.Time // When collection started
	EndTime       time.Time // When collection ended
	Horizon       uint64    // Highest collectable id
	ExistingCount uint64    // Units on disk
	PendingCount  uint64    // Units above the horizon (not yet delivered)
	ExpiredCount  uint64    // Units selected for deletion
	DeletedCount  uint64    // Units successfully deleted (expired and incomplete)
	FailedCount   uint64    // Units that failed to delete

	IncompleteCount uint64 // Units with only one of their files on disk
}

// Duration returns the total collection duration.
func (s *Stats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Summary returns a human-readable summary of the collection.
func (s *Stats) Summary() string {
	return fmt.Sprintf("existing=%d pending=%d expired=%d incomplete=%d deleted=%d failed=%d duration=%s",
		s.ExistingCount, s.PendingCount, s.ExpiredCount, s.IncompleteCount,
		s.DeletedCount, s.FailedCount, s.Duration())
}
