package forward

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/marmos91/seqstore/pkg/store"
)

// FilesystemSink copies units into another directory tree using the store's
// sharded layout, for example a mount shared with the downstream system.
//
// Each file is written to a temporary name, synced and renamed, so readers of
// the target tree never see a partial file. The .zip lands before the .meta;
// a unit is complete once its .meta exists.
type FilesystemSink struct {
	root string
}

// NewFilesystemSink creates the target root if needed.
func NewFilesystemSink(root string) (*FilesystemSink, error) {
	if root == "" {
		return nil, fmt.Errorf("filesystem sink: path is required")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create sink root %s: %w", root, err)
	}
	return &FilesystemSink{root: root}, nil
}

func (s *FilesystemSink) Name() string { return "filesystem" }

// Root returns the target directory.
func (s *FilesystemSink) Root() string { return s.root }

// Put copies the unit's files into the target tree, replacing any earlier copy.
func (s *FilesystemSink) Put(ctx context.Context, unit Unit) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dst := store.Resolve(s.root, unit.ID, true)
	if err := os.MkdirAll(dst.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dst.Dir, err)
	}

	if err := copyFile(unit.ZipPath, dst.Zip); err != nil {
		return err
	}
	return copyFile(unit.MetaPath, dst.Meta)
}

func (s *FilesystemSink) Close() error { return nil }

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	tmp := dst + ".part"
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}

	_, err = io.Copy(out, in)
	if err == nil {
		err = out.Sync()
	}
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmp, dst)
	}
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	return nil
}
