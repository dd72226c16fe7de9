package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/seqstore/pkg/config"
	"github.com/marmos91/seqstore/pkg/registry"
	"github.com/marmos91/seqstore/pkg/store"
)

func TestPrintStats(t *testing.T) {
	var buf bytes.Buffer
	err := printStats(&buf, []registry.RootStats{
		{Name: "store", Path: "/data/store", Units: 3, Files: 6, Dirs: 2, Bytes: 2048},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "ROOT")
	assert.Contains(t, lines[1], "/data/store")
	assert.Contains(t, lines[1], "2.0 KiB")
}

func TestRunPut(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("store:\n  root: \""+filepath.ToSlash(dir)+"\"\n"), 0o644))

	payload := filepath.Join(dir, "data.dat")
	require.NoError(t, os.WriteFile(payload, []byte("hello"), 0o644))

	require.NoError(t, runPut([]string{
		"--config", configPath,
		"--attr", "Feed=TEST",
		"--entry", payload,
	}))

	fset := store.Resolve(filepath.Join(dir, "store"), 1, true)
	assert.FileExists(t, fset.Zip)
	assert.FileExists(t, fset.Meta)

	assert.Error(t, runPut([]string{"--config", configPath, "--attr", "novalue"}))
}

func TestRunPut_StoreInUse(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("store:\n  root: \""+filepath.ToSlash(dir)+"\"\n"), 0o644))

	cfg, err := config.Load(configPath)
	require.NoError(t, err)
	daemon, err := config.OpenStore(context.Background(), &cfg.Store, nil)
	require.NoError(t, err)
	defer func() { _ = daemon.Close() }()

	payload := filepath.Join(dir, "data.dat")
	require.NoError(t, os.WriteFile(payload, []byte("hello"), 0o644))

	err = runPut([]string{"--config", configPath, "--entry", payload})
	require.ErrorIs(t, err, store.ErrLocked)
	assert.Contains(t, err.Error(), "seqstore start")
	assert.Equal(t, uint64(0), daemon.LastPublished())
}

func TestRunInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seqstore.yaml")
	require.NoError(t, runInit([]string{"--config", path}))
	assert.FileExists(t, path)
	assert.Error(t, runInit([]string{"--config", path}), "existing file without --force")
	assert.NoError(t, runInit([]string{"--config", path, "--force"}))
}
