package store

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttributeMap_Order(t *testing.T) {
	m := NewAttributeMap("Feed", "TEST", "Type", "EVENTS")
	m.Set("Origin", "edge-1")
	m.Set("Feed", "PROD")

	assert.Equal(t, []string{"Feed", "Type", "Origin"}, m.Keys())
	v, ok := m.Get("Feed")
	assert.True(t, ok)
	assert.Equal(t, "PROD", v)

	m.Delete("Type")
	assert.Equal(t, []string{"Feed", "Origin"}, m.Keys())
	assert.Equal(t, 2, m.Len())
}

func TestAttributeMap_CloneIsIndependent(t *testing.T) {
	m := NewAttributeMap("a", "1")
	c := m.Clone()
	c.Set("b", "2")

	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 2, c.Len())

	var nilMap *AttributeMap
	assert.Equal(t, 0, nilMap.Clone().Len())
}

func TestWriteAttributes_PreservesOrder(t *testing.T) {
	m := NewAttributeMap("z", "last-key-first", "a", "second", "Feed", "TEST")

	var buf bytes.Buffer
	require.NoError(t, WriteAttributes(&buf, m))
	assert.Equal(t, "z: last-key-first\na: second\nFeed: TEST\n", buf.String())

	got, err := ReadAttributes(&buf)
	require.NoError(t, err)
	assert.Equal(t, m.Keys(), got.Keys())
	assert.Equal(t, m.ToMap(), got.ToMap())
}

func TestWriteAttributes_StringsStayStrings(t *testing.T) {
	m := NewAttributeMap("count", "007", "flag", "true", "empty", "")

	var buf bytes.Buffer
	require.NoError(t, WriteAttributes(&buf, m))

	got, err := ReadAttributes(&buf)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"count": "007", "flag": "true", "empty": ""}, got.ToMap())
}

func TestReadAttributes_Empty(t *testing.T) {
	got, err := ReadAttributes(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())

	var buf bytes.Buffer
	require.NoError(t, WriteAttributes(&buf, NewAttributeMap()))
	got, err = ReadAttributes(&buf)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())
}

func TestReadAttributes_RejectsNested(t *testing.T) {
	_, err := ReadAttributes(strings.NewReader("a:\n  b: c\n"))
	require.Error(t, err)

	_, err = ReadAttributes(strings.NewReader("- a\n- b\n"))
	require.Error(t, err)
}

func TestAttributesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "1.meta")
	require.NoError(t, writeAttributesFile(path, NewAttributeMap("Feed", "TEST")))

	got, err := readAttributesFile(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Feed": "TEST"}, got.ToMap())
}
