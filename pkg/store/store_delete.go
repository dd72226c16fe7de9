package store

import (
	"errors"
	"fmt"
	"os"

	"github.com/marmos91/seqstore/internal/logger"
)

// Delete removes a consumed unit.
//
// The .zip, .meta and .entries files are removed (missing files are
// ignored), then the shard directories are removed from the innermost
// outward. A directory that still has other units is expected to fail removal;
// that failure is swallowed and stops the pruning.
//
// Directory pruning is not reference counted: a concurrent commit into the
// same shard may find its directory gone, in which case the commit recreates
// it and retries.
//
// Parameters:
//   - id: Store id of the unit to remove
//
// Returns:
//   - error: Returns error if a file exists but cannot be removed
func (s *Store) Delete(id uint64) error {
	fset := Resolve(s.storeRoot, id, true)
	if err := s.deleteFileSet(fset); err != nil {
		return err
	}
	s.metrics.RecordDelete()
	return nil
}

// deleteFileSet is shared by Delete and recovery.
func (s *Store) deleteFileSet(fset FileSet) error {
	// .zip goes first: recovery reads a lone .meta as "delete interrupted".
	for _, path := range []string{fset.Zip, fset.Meta, fset.Entries} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
	}

	pruneDirs(fset.SubDirs)
	return nil
}

// pruneDirs removes dirs from the last (innermost) to the first, stopping at
// the first directory that is not empty.
func pruneDirs(dirs []string) {
	for i := len(dirs) - 1; i >= 0; i-- {
		err := os.Remove(dirs[i])
		if err == nil || errors.Is(err, os.ErrNotExist) {
			continue
		}
		logger.Debug("Keeping directory %s: %v", dirs[i], err)
		return
	}
}
