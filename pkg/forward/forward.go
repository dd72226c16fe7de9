// Package forward drains a store into a downstream sink.
//
// A Forwarder is an ordinary consumer of the store: it waits for the next
// published id, hands the unit to a Sink, records progress in a Cursor and
// optionally deletes the unit. Units are forwarded strictly in id order,
// one at a time.
package forward

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marmos91/seqstore/internal/logger"
	"github.com/marmos91/seqstore/internal/ratelimiter"
	"github.com/marmos91/seqstore/internal/retry"
	"github.com/marmos91/seqstore/pkg/store"
)

const (
	// DefaultMaxAttempts bounds Sink.Put attempts per unit before Run fails.
	DefaultMaxAttempts = 5

	// DefaultRetryBackoff caps the delay between Sink.Put attempts.
	DefaultRetryBackoff = 5 * time.Second
)

// Source is the consumer side of a store. *store.Store implements it.
type Source interface {
	AwaitNext(ctx context.Context, lastSeen uint64) (uint64, error)
	Stat(id uint64) (store.UnitInfo, error)
	ReadAttributes(id uint64) (*store.AttributeMap, error)
	Delete(id uint64) error
	Recovered() uint64
}

// Unit is a committed unit handed to a Sink.
type Unit struct {
	ID         uint64
	Attributes *store.AttributeMap

	// ZipPath and MetaPath point at the unit's files in the store. They are
	// valid until the forwarder deletes the unit, i.e. for the duration of
	// Sink.Put.
	ZipPath  string
	MetaPath string
	Size     int64
}

// Sink receives forwarded units.
//
// Put may be called more than once for the same unit (after a crash or a
// failed attempt) and must be idempotent.
type Sink interface {
	Put(ctx context.Context, unit Unit) error
	Name() string
	Close() error
}

// Cursor persists the id of the last forwarded unit.
type Cursor interface {
	Load(ctx context.Context) (uint64, error)
	Save(ctx context.Context, id uint64) error
	Close() error
}

// Config configures a Forwarder.
type Config struct {
	// RateLimit is the maximum number of units forwarded per second.
	// 0 means unlimited.
	RateLimit uint

	// Burst is the number of units that may be forwarded back to back.
	Burst uint

	// DeleteAfterForward removes each unit from the store once the sink
	// accepted it.
	DeleteAfterForward bool

	// MaxAttempts bounds Sink.Put attempts per unit (default: 5).
	MaxAttempts int

	// RetryBackoff caps the delay between attempts (default: 5s).
	RetryBackoff time.Duration

	// Metrics receives forwarding observations. Nil disables collection.
	Metrics Metrics
}

func (c *Config) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
	if c.Metrics == nil {
		c.Metrics = noopMetrics{}
	}
}

// Forwarder moves units from a Source to a Sink.
type Forwarder struct {
	source  Source
	sink    Sink
	cursor  Cursor
	limiter *ratelimiter.RateLimiter
	policy  retry.Policy
	cfg     Config
	metrics Metrics
}

// New creates a Forwarder. The source, sink and cursor stay owned by the
// caller.
func New(source Source, sink Sink, cursor Cursor, cfg Config) *Forwarder {
	cfg.applyDefaults()
	return &Forwarder{
		source:  source,
		sink:    sink,
		cursor:  cursor,
		limiter: ratelimiter.New(cfg.RateLimit, cfg.Burst),
		policy: retry.Policy{
			MaxAttempts: cfg.MaxAttempts,
			MaxBackoff:  cfg.RetryBackoff,
		},
		cfg:     cfg,
		metrics: cfg.Metrics,
	}
}

// Run forwards units until ctx is cancelled (returns nil) or a unit cannot be
// forwarded after all attempts (returns the error; the cursor still points
// at the previous unit so a restart retries it).
//
// Ids that have no unit on disk (burned by a failed commit, or consumed by
// someone else) are skipped with a warning.
func (f *Forwarder) Run(ctx context.Context) error {
	// ========================================================================
	// Step 1: Resume from the cursor
	// ========================================================================

	last, err := f.cursor.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load cursor: %w", err)
	}

	// Recovery reports fewer ids than the cursor has seen when every unit was
	// consumed: the store then numbers new units from the recovered maximum.
	if recovered := f.source.Recovered(); last > recovered {
		logger.Warn("Forwarder: cursor %d is ahead of the store (recovered %d), resuming from %d",
			last, recovered, recovered)
		last = recovered
		if err := f.cursor.Save(ctx, last); err != nil {
			return fmt.Errorf("failed to rewind cursor: %w", err)
		}
	}

	logger.Info("Forwarder started: sink=%s, resume_after=%d", f.sink.Name(), last)

	// ========================================================================
	// Step 2: Forward in order
	// ========================================================================

	for {
		next, err := f.source.AwaitNext(ctx, last)
		if err != nil {
			if errors.Is(err, store.ErrInterrupted) {
				logger.Info("Forwarder stopped: last_forwarded=%d", last)
				return nil
			}
			return err
		}

		if err := f.limiter.Wait(ctx); err != nil {
			logger.Info("Forwarder stopped: last_forwarded=%d", last)
			return nil
		}

		if err := f.forward(ctx, next); err != nil {
			switch {
			case errors.Is(err, store.ErrNotFound):
				logger.Warn("Forwarder: skipping store id %d: %v", next, err)
				f.metrics.ObserveSkip()
			case ctx.Err() != nil:
				logger.Info("Forwarder stopped: last_forwarded=%d", last)
				return nil
			default:
				return fmt.Errorf("forward store id %d: %w", next, err)
			}
		}

		// The unit is delivered: record it even if ctx was cancelled meanwhile.
		if err := f.cursor.Save(context.WithoutCancel(ctx), next); err != nil {
			return fmt.Errorf("failed to save cursor at %d: %w", next, err)
		}
		last = next
	}
}

// forward delivers a single unit and deletes it when configured to.
func (f *Forwarder) forward(ctx context.Context, id uint64) error {
	info, err := f.source.Stat(id)
	if err != nil {
		return err
	}
	attrs, err := f.source.ReadAttributes(id)
	if err != nil {
		return err
	}

	unit := Unit{
		ID:         id,
		Attributes: attrs,
		ZipPath:    info.ZipPath,
		MetaPath:   info.MetaPath,
		Size:       info.Size,
	}

	start := time.Now()
	err = retry.Do(ctx, f.policy, func(attempt int) error {
		if attempt > 0 {
			f.metrics.ObserveRetry(f.sink.Name())
			logger.Debug("Forwarder: retrying store id %d (attempt %d)", id, attempt+1)
		}
		err := f.sink.Put(ctx, unit)
		if err != nil {
			logger.Warn("Forwarder: sink %s rejected store id %d: %v", f.sink.Name(), id, err)
		}
		return err
	})
	f.metrics.ObserveForward(f.sink.Name(), unit.Size, time.Since(start), err == nil)
	if err != nil {
		return err
	}

	if f.cfg.DeleteAfterForward {
		if err := f.source.Delete(id); err != nil {
			return fmt.Errorf("failed to delete forwarded unit: %w", err)
		}
	}

	logger.Debug("Forwarder: store id %d forwarded to %s (%d bytes)", id, f.sink.Name(), unit.Size)
	return nil
}
