package forward_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/seqstore/pkg/forward"
)

func testCursor(t *testing.T, c forward.Cursor) {
	t.Helper()
	ctx := context.Background()

	id, err := c.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), id)

	require.NoError(t, c.Save(ctx, 42))
	id, err = c.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.Error(t, c.Save(cancelled, 43))
}

func TestMemoryCursor(t *testing.T) {
	c := forward.NewMemoryCursor(0)
	defer func() { _ = c.Close() }()
	testCursor(t, c)
}

func TestBadgerCursor_InMemory(t *testing.T) {
	c, err := forward.NewBadgerCursor(context.Background(), forward.BadgerCursorConfig{InMemory: true})
	require.NoError(t, err)
	defer func() { _ = c.Close() }()
	testCursor(t, c)
}

func TestBadgerCursor_Persists(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	c, err := forward.NewBadgerCursor(ctx, forward.BadgerCursorConfig{DBPath: dir, Name: "s3"})
	require.NoError(t, err)
	require.NoError(t, c.Save(ctx, 7))
	require.NoError(t, c.Close())

	c, err = forward.NewBadgerCursor(ctx, forward.BadgerCursorConfig{DBPath: dir, Name: "s3"})
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	id, err := c.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), id)
}

func TestBadgerCursor_RequiresPath(t *testing.T) {
	_, err := forward.NewBadgerCursor(context.Background(), forward.BadgerCursorConfig{})
	assert.Error(t, err)
}
