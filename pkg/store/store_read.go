package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/zip"
)

// UnitInfo describes a committed unit.
type UnitInfo struct {
	ID       uint64
	ZipPath  string
	MetaPath string
	Size     int64
	ModTime  time.Time
}

// Stat returns information about a published unit.
//
// Ids above the publish watermark, burned ids and consumed ids all report
// ErrNotFound.
func (s *Store) Stat(id uint64) (UnitInfo, error) {
	fset, err := s.published(id)
	if err != nil {
		return UnitInfo{}, err
	}

	zipInfo, err := os.Stat(fset.Zip)
	if err != nil {
		return UnitInfo{}, notFound(id, err)
	}
	if _, err := os.Stat(fset.Meta); err != nil {
		return UnitInfo{}, notFound(id, err)
	}

	return UnitInfo{
		ID:       id,
		ZipPath:  fset.Zip,
		MetaPath: fset.Meta,
		Size:     zipInfo.Size(),
		ModTime:  zipInfo.ModTime(),
	}, nil
}

// ReadAttributes returns the attribute map of a published unit.
func (s *Store) ReadAttributes(id uint64) (*AttributeMap, error) {
	fset, err := s.published(id)
	if err != nil {
		return nil, err
	}
	attrs, err := readAttributesFile(fset.Meta)
	if err != nil {
		return nil, notFound(id, err)
	}
	return attrs, nil
}

// OpenPayload opens the zip of a published unit. The caller closes it.
func (s *Store) OpenPayload(id uint64) (*zip.ReadCloser, error) {
	fset, err := s.published(id)
	if err != nil {
		return nil, err
	}
	rc, err := zip.OpenReader(fset.Zip)
	if err != nil {
		return nil, notFound(id, err)
	}
	return rc, nil
}

// Units lists the published units currently on disk, in ascending id order.
//
// The listing is a snapshot: units may be deleted or committed while it is
// being built. A unit is listed only once both of its files exist.
func (s *Store) Units(ctx context.Context) ([]UnitInfo, error) {
	watermark := s.publisher.Watermark()
	var units []UnitInfo

	err := filepath.WalkDir(s.storeRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Directories pruned by a concurrent Delete
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ZipExt {
			return nil
		}

		id, ok := IDFromPath(s.storeRoot, path)
		if !ok || id > watermark {
			return nil
		}
		info, err := s.Stat(id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return err
		}
		units = append(units, info)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list units: %w", err)
	}

	sort.Slice(units, func(i, j int) bool { return units[i].ID < units[j].ID })
	return units, nil
}

// Incomplete lists published ids whose unit is only partly on disk: a .zip
// without its .meta or the reverse, in ascending order.
//
// A crash while several commits were in flight can leave such a unit below a
// complete one, where recovery does not look. Ids above the watermark are
// skipped because their commits may still be installing files. Deleting the
// listed ids with Delete is always safe.
func (s *Store) Incomplete(ctx context.Context) ([]uint64, error) {
	watermark := s.publisher.Watermark()
	seen := make(map[uint64]bool)
	var ids []uint64

	err := filepath.WalkDir(s.storeRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if ext := filepath.Ext(path); ext != ZipExt && ext != MetaExt {
			return nil
		}

		id, ok := IDFromPath(s.storeRoot, path)
		if !ok || id == 0 || id > watermark || seen[id] {
			return nil
		}
		seen[id] = true

		fset := Resolve(s.storeRoot, id, true)
		if fileExists(fset.Zip) != fileExists(fset.Meta) {
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list incomplete units: %w", err)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *Store) published(id uint64) (FileSet, error) {
	if id == 0 || id > s.publisher.Watermark() {
		return FileSet{}, fmt.Errorf("store id %d (published up to %d): %w",
			id, s.publisher.Watermark(), ErrNotFound)
	}
	return Resolve(s.storeRoot, id, true), nil
}

// notFound maps a missing file to ErrNotFound and keeps other failures as-is.
func notFound(id uint64, err error) error {
	if os.IsNotExist(err) {
		return fmt.Errorf("store id %d: %w", id, ErrNotFound)
	}
	return fmt.Errorf("store id %d: %w", id, err)
}
