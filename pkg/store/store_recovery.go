package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/marmos91/seqstore/internal/logger"
)

// recover finds the greatest complete unit and removes incomplete units
// above it.
//
// Commits rename .zip before .meta and Delete removes .zip before .meta, so
// the state of an id tells how a crash interrupted it:
//
//	.zip + .meta   complete                   -> recovered maximum
//	.zip only      commit interrupted         -> removed, keep walking down
//	.meta only     delete interrupted         -> leftover removed, maximum
//	neither        consumed (below candidate) -> maximum
//
// Stopping at consumed ids keeps the store id from regressing into ranges a
// consumer has already seen.
func (s *Store) recover(ctx context.Context) (uint64, int, error) {
	candidate, found, err := findMaxID(ctx, s.storeRoot)
	if err != nil {
		return 0, 0, err
	}
	if !found {
		return 0, 0, nil
	}

	removed := 0
	for id := candidate; ; id-- {
		if err := ctx.Err(); err != nil {
			return 0, removed, err
		}

		fset := Resolve(s.storeRoot, id, true)
		hasZip := fileExists(fset.Zip)
		hasMeta := fileExists(fset.Meta)

		switch {
		case hasZip && hasMeta:
			return id, removed, nil
		case hasMeta:
			logger.Info("Recovery: removing leftover metadata of consumed unit %d", id)
			if err := s.deleteFileSet(fset); err != nil {
				return 0, removed, err
			}
			return id, removed, nil
		case !hasZip && id != candidate:
			return id, removed, nil
		}

		logger.Info("Recovery: removing incomplete unit %d", id)
		if err := s.deleteFileSet(fset); err != nil {
			return 0, removed, err
		}
		removed++

		if id == 0 {
			return 0, removed, nil
		}
	}
}

// findMaxID descends from root, at every level trying integer-named children
// from the greatest down, and returns the first unit id found at its canonical
// location. Empty or foreign subtrees are skipped.
func findMaxID(ctx context.Context, root string) (uint64, bool, error) {
	return descend(ctx, root, root)
}

func descend(ctx context.Context, root, dir string) (uint64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Pruned by a concurrent Delete.
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	type candidate struct {
		id    uint64
		name  string
		isDir bool
	}
	candidates := make([]candidate, 0, len(entries))
	for _, e := range entries {
		id, ok := ParseID(e.Name())
		if !ok {
			continue
		}
		candidates = append(candidates, candidate{id: id, name: e.Name(), isDir: e.IsDir()})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].id > candidates[j].id
	})

	for _, c := range candidates {
		path := filepath.Join(dir, c.name)
		if c.isDir {
			id, found, err := descend(ctx, root, path)
			if err != nil {
				return 0, false, err
			}
			if found {
				return id, true, nil
			}
			continue
		}
		if id, ok := IDFromPath(root, path); ok {
			return id, true, nil
		}
	}
	return 0, false, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
