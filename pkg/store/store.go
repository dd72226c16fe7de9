package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/marmos91/seqstore/internal/logger"
	"github.com/marmos91/seqstore/internal/retry"
)

const (
	// DefaultMaxDirRetries bounds how often a vanished directory is recreated
	// for a single file operation.
	DefaultMaxDirRetries = 5

	// DefaultRetryBackoff caps the wait between directory retries.
	DefaultRetryBackoff = 50 * time.Millisecond

	probeName = ".volume-probe"

	// LockName is the lock file Open creates in the store root.
	LockName = ".lock"
)

// Config configures a Store.
type Config struct {
	// TempRoot holds in-progress sessions. It is wiped on every Open.
	TempRoot string

	// StoreRoot holds committed units in the sharded layout. It must live on
	// the same volume as TempRoot.
	StoreRoot string

	// MaxDirRetries bounds directory-race retries per file operation
	// (default: 5).
	MaxDirRetries int

	// RetryBackoff caps the delay between directory-race retries
	// (default: 50ms). The first retry is always immediate.
	RetryBackoff time.Duration

	// Metrics receives store observations. Nil disables collection.
	Metrics Metrics
}

func (c *Config) applyDefaults() {
	if c.MaxDirRetries <= 0 {
		c.MaxDirRetries = DefaultMaxDirRetries
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
	if c.Metrics == nil {
		c.Metrics = noopMetrics{}
	}
}

// Store is a sequential, crash-recoverable file store.
//
// Producers obtain a Session with NewSession, add entries and commit. Each
// commit is assigned the next store id and becomes visible to consumers
// strictly in id order, whatever order the commits physically complete in.
// Consumers discover new ids with AwaitNext and remove consumed units with
// Delete.
//
// On-disk layout:
//
//	<TempRoot>/<temp-id>.zip, <temp-id>.meta         transient
//	<StoreRoot>/<depth>/<chunk>/.../<padded-id>.zip  committed payload
//	<StoreRoot>/<depth>/<chunk>/.../<padded-id>.meta committed attributes
//
// Thread Safety:
// All methods are safe for concurrent use. A single Session must only be
// used by one goroutine at a time.
type Store struct {
	tempRoot  string
	storeRoot string

	tempSeq   *Sequence
	storeSeq  *Sequence
	publisher *Publisher

	// recovered is the maximum id found at Open.
	recovered uint64

	dirRetry retry.Policy
	metrics  Metrics
	lock     *rootLock
	closed   atomic.Bool
}

// Open creates or reopens a store.
//
// A Store owns its roots exclusively: Open takes a lock on
// <StoreRoot>/.lock that is held until Close, and a second Open of the same
// roots fails with ErrLocked instead of clearing the first owner's temp root
// and reusing its store ids.
//
// Side effects:
//   - StoreRoot is created if absent and locked
//   - TempRoot is removed if present and recreated empty
//   - if StoreRoot existed, recovery removes units left half-committed by a
//     crash and seeds the store id from the greatest complete unit
//   - a probe file is renamed from TempRoot to StoreRoot to fail early when
//     the two roots are on different volumes
//
// Parameters:
//   - ctx: Context for cancellation of the startup scan
//   - cfg: Roots and retry settings
//
// Returns:
//   - *Store: Ready store
//   - error: ErrLocked if the roots are in use, ErrCrossDevice if they span
//     volumes, or the failure to create a root or to recover
func Open(ctx context.Context, cfg Config) (_ *Store, err error) {
	// ========================================================================
	// Step 1: Validate configuration
	// ========================================================================

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.TempRoot == "" || cfg.StoreRoot == "" {
		return nil, fmt.Errorf("store: temp root and store root are required")
	}
	if filepath.Clean(cfg.TempRoot) == filepath.Clean(cfg.StoreRoot) {
		return nil, fmt.Errorf("store: temp root and store root must differ")
	}
	cfg.applyDefaults()

	// ========================================================================
	// Step 2: Create and lock the store root, remembering whether it existed
	// ========================================================================

	existed := false
	if info, err := os.Stat(cfg.StoreRoot); err == nil {
		if !info.IsDir() {
			return nil, fmt.Errorf("store root %s is not a directory", cfg.StoreRoot)
		}
		existed = true
	}
	if err := os.MkdirAll(cfg.StoreRoot, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store root %s: %w", cfg.StoreRoot, err)
	}

	lock, err := lockRoot(filepath.Join(cfg.StoreRoot, LockName))
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = lock.release()
		}
	}()

	// ========================================================================
	// Step 3: Reset the temp area
	// ========================================================================

	if err := os.RemoveAll(cfg.TempRoot); err != nil {
		return nil, fmt.Errorf("failed to clear temp root %s: %w", cfg.TempRoot, err)
	}
	if err := os.MkdirAll(cfg.TempRoot, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp root %s: %w", cfg.TempRoot, err)
	}

	s := &Store{
		tempRoot:  cfg.TempRoot,
		storeRoot: cfg.StoreRoot,
		tempSeq:   NewSequence(0),
		storeSeq:  NewSequence(0),
		publisher: NewPublisher(0, cfg.Metrics),
		dirRetry: retry.Policy{
			MaxAttempts: cfg.MaxDirRetries + 1,
			MaxBackoff:  cfg.RetryBackoff,
			Immediate:   true,
		},
		metrics: cfg.Metrics,
		lock:    lock,
	}

	if err := s.probeVolume(); err != nil {
		return nil, err
	}

	// ========================================================================
	// Step 4: Recover and seed counters
	// ========================================================================

	if existed {
		maxID, removed, err := s.recover(ctx)
		if err != nil {
			return nil, fmt.Errorf("recovery of %s failed: %w", cfg.StoreRoot, err)
		}
		s.recovered = maxID
		s.storeSeq.Reset(maxID)
		s.publisher.reset(maxID)
		s.metrics.RecordRecovery(maxID, removed)
		logger.Info("Store recovered: root=%s, max_id=%d, removed_incomplete=%d", cfg.StoreRoot, maxID, removed)
	} else {
		s.metrics.RecordRecovery(0, 0)
		logger.Info("Store created: root=%s", cfg.StoreRoot)
	}

	return s, nil
}

// probeVolume renames a file from the temp root into the store root so a
// cross-volume setup fails at Open instead of on the first commit.
func (s *Store) probeVolume() error {
	src := filepath.Join(s.tempRoot, probeName)
	dst := filepath.Join(s.storeRoot, probeName)

	if err := os.WriteFile(src, nil, 0644); err != nil {
		return fmt.Errorf("failed to write volume probe: %w", err)
	}
	defer func() { _ = os.Remove(src) }()

	if err := os.Rename(src, dst); err != nil {
		if errors.Is(err, syscall.EXDEV) {
			return fmt.Errorf("%s -> %s: %w", s.tempRoot, s.storeRoot, ErrCrossDevice)
		}
		return fmt.Errorf("volume probe rename failed: %w", err)
	}
	return os.Remove(dst)
}

// NewSession starts a write session for one unit.
//
// A fresh temp id is allocated and the packaging stream is opened at the
// matching temp path. If the temp directory was removed by an external
// cleanup, it is recreated and only the open is retried; the temp id is kept.
//
// Parameters:
//   - attrs: Attributes written verbatim to the unit's .meta file (copied)
//
// Returns:
//   - *Session: Open session owned by the caller
//   - error: ErrStoreClosed, ErrRetriesExhausted, or the open failure
func (s *Store) NewSession(attrs *AttributeMap) (*Session, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}

	tempID := s.tempSeq.Next()
	temp := Resolve(s.tempRoot, tempID, false)

	var file *os.File
	err := s.withDirs([]string{s.tempRoot}, func() error {
		f, err := os.OpenFile(temp.Zip, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err != nil {
			return err
		}
		file = f
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file for session %d: %w", tempID, err)
	}

	return newSession(s, temp, file, attrs.Clone()), nil
}

// AwaitNext blocks until a store id greater than lastSeen has been published
// and returns lastSeen+1.
//
// Pass 0 to start from the beginning. Cancelling ctx returns an error
// matching ErrInterrupted.
func (s *Store) AwaitNext(ctx context.Context, lastSeen uint64) (uint64, error) {
	return s.publisher.Await(ctx, lastSeen)
}

// LastPublished returns the highest id visible to consumers.
func (s *Store) LastPublished() uint64 {
	return s.publisher.Watermark()
}

// Recovered returns the greatest id found by recovery at Open (0 for a new
// or fully consumed store). Ids allocated by this process start above it.
func (s *Store) Recovered() uint64 {
	return s.recovered
}

// LastAllocated returns the highest store id handed to a commit. It is never
// below LastPublished; the difference is commits in flight.
func (s *Store) LastAllocated() uint64 {
	return s.storeSeq.Current()
}

// MaxStoreID returns the highest id present in the store directory tree.
//
// It inspects the disk and is meant for diagnostics and tests; the result may
// include a commit that has been renamed into place but not yet published.
func (s *Store) MaxStoreID() (uint64, error) {
	id, _, err := findMaxID(context.Background(), s.storeRoot)
	return id, err
}

// Roots returns the temp and store root directories.
func (s *Store) Roots() (temp, store string) { return s.tempRoot, s.storeRoot }

// TempRoot returns the temp root directory.
func (s *Store) TempRoot() string { return s.tempRoot }

// StoreRoot returns the store root directory.
func (s *Store) StoreRoot() string { return s.storeRoot }

// Close stops accepting new sessions and releases the root lock. Sessions
// still open should be committed or discarded first: once the lock is gone
// another owner may open the roots. Consumers blocked in AwaitNext keep
// waiting until their context is cancelled.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	logger.Debug("Store closed: root=%s, last_published=%d", s.storeRoot, s.LastPublished())
	return s.lock.release()
}

// withDirs runs op and, whenever it fails because a directory is missing,
// recreates the innermost of dirs (with its parents) and runs op again. The number of attempts
// is bounded; exhaustion returns ErrRetriesExhausted.
func (s *Store) withDirs(dirs []string, op func() error) error {
	err := retry.Do(context.Background(), s.dirRetry, func(attempt int) error {
		err := op()
		switch {
		case err == nil:
			return nil
		case retry.IsPermanent(err):
			return err
		case !errors.Is(err, os.ErrNotExist):
			return retry.Permanent(err)
		}

		dir := dirs[len(dirs)-1]
		s.metrics.ObserveDirRetry()
		logger.Debug("Recreating missing directory %s (attempt %d)", dir, attempt+1)
		if mkErr := os.MkdirAll(dir, 0755); mkErr != nil {
			if errors.Is(mkErr, os.ErrNotExist) {
				// A parent was pruned while being recreated.
				return err
			}
			return retry.Permanent(fmt.Errorf("failed to create directory %s: %w", dir, mkErr))
		}
		return err
	})
	if errors.Is(err, retry.ErrExhausted) {
		return fmt.Errorf("%w: %w", ErrRetriesExhausted, err)
	}
	return err
}
