// Package testing provides a conformance suite for forward.Sink
// implementations.
package testing

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/seqstore/pkg/forward"
	"github.com/marmos91/seqstore/pkg/store"
)

// SinkTestSuite tests the Sink contract, not implementation details, so it
// can run against every sink (memory, filesystem, S3 with a fake client, ...).
//
// Usage:
//
//	func TestMySink(t *testing.T) {
//	    suite := &sinktesting.SinkTestSuite{
//	        NewSink: func(t *testing.T) forward.Sink { return mysink.New() },
//	        Fetch:   fetchFromMySink,
//	    }
//	    suite.Run(t)
//	}
type SinkTestSuite struct {
	// NewSink creates a fresh sink for each test.
	NewSink func(t *testing.T) forward.Sink

	// Fetch returns the payload and attributes the sink holds for id.
	// Optional: read-back assertions are skipped when nil.
	Fetch func(t *testing.T, sink forward.Sink, id uint64) (payload []byte, attrs map[string]string, ok bool)
}

// Run executes all tests in the suite.
func (suite *SinkTestSuite) Run(t *testing.T) {
	t.Run("Put", suite.testPut)
	t.Run("PutIsIdempotent", suite.testIdempotent)
	t.Run("ManyUnits", suite.testManyUnits)
	t.Run("MissingPayload", suite.testMissingPayload)
	t.Run("CancelledContext", suite.testCancelled)
}

func (suite *SinkTestSuite) testPut(t *testing.T) {
	sink := suite.NewSink(t)
	defer func() { _ = sink.Close() }()

	s := NewTestStore(t)
	unit := CommitUnit(t, s, map[string]string{"data.dat": "hello"}, "Feed", "TEST")

	require.NoError(t, sink.Put(context.Background(), unit))
	assert.NotEmpty(t, sink.Name())

	suite.assertStored(t, sink, unit.ID, map[string]string{"data.dat": "hello"}, map[string]string{"Feed": "TEST"})
}

func (suite *SinkTestSuite) testIdempotent(t *testing.T) {
	sink := suite.NewSink(t)
	defer func() { _ = sink.Close() }()

	s := NewTestStore(t)
	unit := CommitUnit(t, s, map[string]string{"a": "1"}, "Feed", "TEST")

	require.NoError(t, sink.Put(context.Background(), unit))
	require.NoError(t, sink.Put(context.Background(), unit))

	suite.assertStored(t, sink, unit.ID, map[string]string{"a": "1"}, map[string]string{"Feed": "TEST"})
}

func (suite *SinkTestSuite) testManyUnits(t *testing.T) {
	sink := suite.NewSink(t)
	defer func() { _ = sink.Close() }()

	s := NewTestStore(t)
	units := make([]forward.Unit, 0, 5)
	for i := 0; i < 5; i++ {
		units = append(units, CommitUnit(t, s, map[string]string{"n": string(rune('a' + i))}))
	}
	for _, u := range units {
		require.NoError(t, sink.Put(context.Background(), u))
	}
	for i, u := range units {
		suite.assertStored(t, sink, u.ID, map[string]string{"n": string(rune('a' + i))}, map[string]string{})
	}
}

func (suite *SinkTestSuite) testMissingPayload(t *testing.T) {
	sink := suite.NewSink(t)
	defer func() { _ = sink.Close() }()

	unit := forward.Unit{
		ID:         1,
		Attributes: store.NewAttributeMap(),
		ZipPath:    filepath.Join(t.TempDir(), "missing.zip"),
		MetaPath:   filepath.Join(t.TempDir(), "missing.meta"),
	}
	assert.Error(t, sink.Put(context.Background(), unit))
}

func (suite *SinkTestSuite) testCancelled(t *testing.T) {
	sink := suite.NewSink(t)
	defer func() { _ = sink.Close() }()

	s := NewTestStore(t)
	unit := CommitUnit(t, s, map[string]string{"x": "y"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, sink.Put(ctx, unit))
}

func (suite *SinkTestSuite) assertStored(t *testing.T, sink forward.Sink, id uint64, entries, attrs map[string]string) {
	t.Helper()
	if suite.Fetch == nil {
		return
	}

	payload, gotAttrs, ok := suite.Fetch(t, sink, id)
	require.True(t, ok, "unit %d not found in sink", id)
	assert.Equal(t, attrs, gotAttrs)
	assert.Equal(t, entries, ReadEntries(t, payload))
}

// ============================================================================
// Helpers
// ============================================================================

// NewTestStore opens a store under t.TempDir().
func NewTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(context.Background(), store.Config{
		TempRoot:  filepath.Join(dir, "temp"),
		StoreRoot: filepath.Join(dir, "store"),
	})
	require.NoError(t, err, "store.Open should succeed")
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// CommitUnit commits one unit and returns it as the forwarder would see it.
func CommitUnit(t *testing.T, s *store.Store, entries map[string]string, attrPairs ...string) forward.Unit {
	t.Helper()
	sess, err := s.NewSession(store.NewAttributeMap(attrPairs...))
	require.NoError(t, err)

	for name, content := range entries {
		w, err := sess.AddEntry(name)
		require.NoError(t, err)
		_, err = io.WriteString(w, content)
		require.NoError(t, err)
		require.NoError(t, w.Close())
	}

	id, err := sess.Commit()
	require.NoError(t, err, "Commit should succeed")

	info, err := s.Stat(id)
	require.NoError(t, err)
	attrs, err := s.ReadAttributes(id)
	require.NoError(t, err)

	return forward.Unit{
		ID:         id,
		Attributes: attrs,
		ZipPath:    info.ZipPath,
		MetaPath:   info.MetaPath,
		Size:       info.Size,
	}
}

// ReadEntries decodes a zip payload into name -> content.
func ReadEntries(t *testing.T, payload []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	require.NoError(t, err, "payload should be a valid zip")

	out := make(map[string]string, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		require.NoError(t, err)
		out[f.Name] = string(data)
	}
	return out
}
