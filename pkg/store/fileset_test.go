package store

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPadID(t *testing.T) {
	tests := []struct {
		id   uint64
		want string
	}{
		{0, "000"},
		{1, "001"},
		{999, "999"},
		{1000, "001000"},
		{123456, "123456"},
		{1234567, "001234567"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, PadID(tt.id), "PadID(%d)", tt.id)
		assert.Equal(t, len(tt.want)/3-1, Depth(tt.id), "Depth(%d)", tt.id)
	}
}

func TestResolve_Nested(t *testing.T) {
	root := "/data/store"

	tests := []struct {
		name    string
		id      uint64
		dir     string
		zip     string
		subDirs []string
	}{
		{
			name:    "depth 0",
			id:      1,
			dir:     "/data/store/0",
			zip:     "/data/store/0/001.zip",
			subDirs: []string{"/data/store/0"},
		},
		{
			name:    "depth 1",
			id:      1000,
			dir:     "/data/store/1/001",
			zip:     "/data/store/1/001/001000.zip",
			subDirs: []string{"/data/store/1", "/data/store/1/001"},
		},
		{
			name:    "depth 2",
			id:      1234567,
			dir:     "/data/store/2/001/234",
			zip:     "/data/store/2/001/234/001234567.zip",
			subDirs: []string{"/data/store/2", "/data/store/2/001", "/data/store/2/001/234"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := Resolve(root, tt.id, true)
			assert.Equal(t, tt.id, fs.ID)
			assert.Equal(t, filepath.FromSlash(tt.dir), fs.Dir)
			assert.Equal(t, filepath.FromSlash(tt.zip), fs.Zip)
			assert.Equal(t, fs.Zip[:len(fs.Zip)-len(ZipExt)]+MetaExt, fs.Meta)
			assert.Equal(t, fs.Zip[:len(fs.Zip)-len(ZipExt)]+EntriesExt, fs.Entries)

			want := make([]string, len(tt.subDirs))
			for i, d := range tt.subDirs {
				want[i] = filepath.FromSlash(d)
			}
			assert.Equal(t, want, fs.SubDirs)
		})
	}
}

func TestResolve_Flat(t *testing.T) {
	fs := Resolve("/data/temp", 42, false)
	assert.Equal(t, filepath.FromSlash("/data/temp"), fs.Dir)
	assert.Equal(t, filepath.FromSlash("/data/temp/42.zip"), fs.Zip)
	assert.Equal(t, filepath.FromSlash("/data/temp/42.meta"), fs.Meta)
	assert.Empty(t, fs.SubDirs)
}

func TestResolve_Deterministic(t *testing.T) {
	assert.Equal(t, Resolve("root", 98765, true), Resolve("root", 98765, true))
}

func TestParseID(t *testing.T) {
	tests := []struct {
		name string
		want uint64
		ok   bool
	}{
		{"001000.zip", 1000, true},
		{"001.meta", 1, true},
		{"042", 42, true},
		{"0", 0, true},
		{"7.zip.tmp", 7, true},
		{"abc", 0, false},
		{".zip", 0, false},
		{"", 0, false},
		{"12a.zip", 0, false},
		{"-1", 0, false},
		{".volume-probe", 0, false},
	}

	for _, tt := range tests {
		got, ok := ParseID(tt.name)
		assert.Equal(t, tt.ok, ok, "ParseID(%q) ok", tt.name)
		assert.Equal(t, tt.want, got, "ParseID(%q)", tt.name)
	}
}

// Every id in the first four depths maps to a path that parses back to it.
func TestIDFromPath_RoundTrip(t *testing.T) {
	root := filepath.FromSlash("/store")
	for id := uint64(0); id < 10000; id++ {
		fs := Resolve(root, id, true)

		got, ok := IDFromPath(root, fs.Zip)
		require.True(t, ok, "id %d: %s rejected", id, fs.Zip)
		require.Equal(t, id, got)

		got, ok = IDFromPath(root, fs.Meta)
		require.True(t, ok)
		require.Equal(t, id, got)
	}
}

func TestIDFromPath_RejectsMisplacedFiles(t *testing.T) {
	root := filepath.FromSlash("/store")

	_, ok := IDFromPath(root, filepath.FromSlash("/store/1/001/001.zip"))
	assert.False(t, ok, "depth-0 stem in a depth-1 directory")

	_, ok = IDFromPath(root, filepath.FromSlash("/store/1/002/001000.zip"))
	assert.False(t, ok, "wrong chunk directory")

	_, ok = IDFromPath(root, filepath.FromSlash("/store/001.zip"))
	assert.False(t, ok, "file directly in root")
}

func TestResolve_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 1000
	properties := gopter.NewProperties(parameters)

	root := filepath.FromSlash("/store")

	properties.Property("nested paths round-trip", prop.ForAll(
		func(id uint64) bool {
			got, ok := IDFromPath(root, Resolve(root, id, true).Zip)
			return ok && got == id
		},
		gen.UInt64(),
	))

	properties.Property("padded length is a multiple of three", prop.ForAll(
		func(id uint64) bool {
			return len(PadID(id))%3 == 0
		},
		gen.UInt64(),
	))

	properties.Property("every path component is at most three digits below the depth dir", prop.ForAll(
		func(id uint64) bool {
			fs := Resolve(root, id, true)
			rel, err := filepath.Rel(root, fs.Dir)
			if err != nil {
				return false
			}
			parts := strings.Split(filepath.ToSlash(rel), "/")
			for _, p := range parts[1:] {
				if len(p) != 3 {
					return false
				}
			}
			return len(fs.SubDirs) == Depth(id)+1
		},
		gen.UInt64(),
	))

	properties.TestingRun(t)
}
