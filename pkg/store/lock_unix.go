//go:build unix

package store

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// rootLock is an exclusive advisory lock on a store root, held for the
// lifetime of a Store. The kernel drops it when the process exits, so a
// crash never leaves a stale lock behind.
type rootLock struct {
	file *os.File
}

// lockRoot takes the lock file at path without blocking.
//
// Returns:
//   - *rootLock: Held lock, released with release
//   - error: ErrLocked if another Store (in this or another process) holds it
func lockRoot(path string) (*rootLock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%s: %w", path, ErrLocked)
		}
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}

	// Holder pid, for whoever finds the store locked.
	if err := f.Truncate(0); err == nil {
		_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}

	return &rootLock{file: f}, nil
}

func (l *rootLock) release() error {
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		_ = l.file.Close()
		return fmt.Errorf("failed to unlock %s: %w", l.file.Name(), err)
	}
	return l.file.Close()
}
