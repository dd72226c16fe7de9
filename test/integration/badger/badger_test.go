//go:build integration

package badger_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/seqstore/pkg/forward"
	"github.com/marmos91/seqstore/pkg/store"
)

// TestForwarderRestart_Integration drives a store, a filesystem sink and a
// BadgerDB cursor on disk through two process lifetimes.
//
// Prerequisites:
//   - None (BadgerDB is embedded, no external services needed)
//   - Run with: go test -tags=integration ./test/integration/badger/...
//
// It verifies that:
//   - A restarted forwarder resumes after the last forwarded unit
//   - Units committed while the forwarder was down are forwarded in order
//   - Store ids keep increasing across a store restart
func TestForwarderRestart_Integration(t *testing.T) {
	ctx := context.Background()

	// ========================================================================
	// Setup: On-disk roots shared by both lifetimes
	// ========================================================================

	base := t.TempDir()
	storeCfg := store.Config{
		TempRoot:  filepath.Join(base, "temp"),
		StoreRoot: filepath.Join(base, "store"),
	}
	cursorCfg := forward.BadgerCursorConfig{DBPath: filepath.Join(base, "cursor")}
	sinkRoot := filepath.Join(base, "forwarded")

	// ========================================================================
	// Lifetime 1: Commit and forward three units
	// ========================================================================

	s := openStore(t, ctx, storeCfg)
	for i := 0; i < 3; i++ {
		commit(t, s, "first")
	}
	runForwarder(t, s, cursorCfg, sinkRoot, 3)
	commit(t, s, "unforwarded")
	if err := s.Close(); err != nil {
		t.Fatalf("Failed to close store: %v", err)
	}

	// ========================================================================
	// Lifetime 2: Recovery keeps id 4, new commits continue at 5
	// ========================================================================

	s = openStore(t, ctx, storeCfg)
	defer func() { _ = s.Close() }()

	if s.Recovered() != 4 {
		t.Fatalf("Expected recovered max 4, got %d", s.Recovered())
	}
	if id := commit(t, s, "second"); id != 5 {
		t.Fatalf("Expected store id 5 after restart, got %d", id)
	}

	runForwarder(t, s, cursorCfg, sinkRoot, 5)

	// Every unit is in the sink exactly once, at its own id
	for id := uint64(1); id <= 5; id++ {
		fset := store.Resolve(sinkRoot, id, true)
		if got, ok := store.IDFromPath(sinkRoot, fset.Zip); !ok || got != id {
			t.Errorf("Forwarded unit %d has an unexpected path %s", id, fset.Zip)
		}
		meta, err := os.ReadFile(fset.Meta)
		if err != nil {
			t.Fatalf("Forwarded unit %d has no attributes: %v", id, err)
		}
		attrs, err := store.ReadAttributes(bytes.NewReader(meta))
		if err != nil {
			t.Fatalf("Failed to read forwarded attributes for %d: %v", id, err)
		}
		if v, _ := attrs.Get("Lifetime"); v == "" {
			t.Errorf("Forwarded unit %d lost its attributes", id)
		}
	}
}

func openStore(t *testing.T, ctx context.Context, cfg store.Config) *store.Store {
	t.Helper()
	s, err := store.Open(ctx, cfg)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	return s
}

func commit(t *testing.T, s *store.Store, lifetime string) uint64 {
	t.Helper()
	sess, err := s.NewSession(store.NewAttributeMap("Lifetime", lifetime))
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	w, err := sess.AddEntry("data.dat")
	if err != nil {
		t.Fatalf("Failed to add entry: %v", err)
	}
	if _, err := w.Write([]byte(lifetime)); err != nil {
		t.Fatalf("Failed to write entry: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close entry: %v", err)
	}
	id, err := sess.Commit()
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	return id
}

// runForwarder forwards until the cursor reaches want, then stops the
// forwarder and closes the cursor database.
func runForwarder(t *testing.T, s *store.Store, cursorCfg forward.BadgerCursorConfig, sinkRoot string, want uint64) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cursor, err := forward.NewBadgerCursor(ctx, cursorCfg)
	if err != nil {
		t.Fatalf("Failed to open cursor: %v", err)
	}
	defer func() { _ = cursor.Close() }()

	sink, err := forward.NewFilesystemSink(sinkRoot)
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}

	f := forward.New(s, sink, cursor, forward.Config{})
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	deadline := time.Now().Add(10 * time.Second)
	for {
		last, err := cursor.Load(context.Background())
		if err != nil {
			t.Fatalf("Failed to load cursor: %v", err)
		}
		if last == want {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Cursor stuck at %d, want %d", last, want)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Forwarder failed: %v", err)
	}
}
