//go:build !unix

package store

import "github.com/marmos91/seqstore/internal/logger"

// rootLock is a no-op where flock(2) is unavailable.
type rootLock struct{}

func lockRoot(path string) (*rootLock, error) {
	logger.Warn("Store root locking is not supported on this platform: %s is unlocked", path)
	return &rootLock{}, nil
}

func (l *rootLock) release() error { return nil }
