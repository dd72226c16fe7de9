package store

import (
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// ZipExt is the extension of the packaged payload file.
	ZipExt = ".zip"

	// MetaExt is the extension of the serialized attribute map.
	MetaExt = ".meta"

	// EntriesExt is reserved for an entry index. It is never written but is
	// removed alongside the other files of a unit.
	EntriesExt = ".entries"

	// chunkWidth is the number of digits per shard directory level, which
	// bounds every directory to 1000 children.
	chunkWidth = 3
)

// FileSet describes where a single unit lives on disk.
//
// A FileSet is a pure function of (root, id, nested) and is recomputed on
// demand; only the paths it describes are persisted.
type FileSet struct {
	// ID is the sequence id the paths were derived from.
	ID uint64

	// Dir is the directory holding the unit's files.
	Dir string

	// SubDirs lists the directories from the outermost (depth directory) to
	// Dir itself that must exist before the files can be written. Empty for
	// flat file sets.
	SubDirs []string

	// Zip, Meta and Entries are sibling paths sharing the same stem.
	Zip     string
	Meta    string
	Entries string
}

// PadID renders id as a decimal string zero-padded to a multiple of three
// digits. All ids sharing a depth have the same padded length.
func PadID(id uint64) string {
	s := strconv.FormatUint(id, 10)
	if rem := len(s) % chunkWidth; rem != 0 {
		s = strings.Repeat("0", chunkWidth-rem) + s
	}
	return s
}

// Depth returns the shard depth of id: (padded length / 3) - 1.
func Depth(id uint64) int {
	return len(PadID(id))/chunkWidth - 1
}

// Resolve maps a sequence id to its file set inside root.
//
// Flat file sets (nested=false) place "<id>.zip" directly in root and are used
// for the temp area. Nested file sets shard by padded id:
//
//	id 1       -> <root>/0/001.zip
//	id 1000    -> <root>/1/001/001000.zip
//	id 1234567 -> <root>/2/001/234/001234567.zip
//
// The depth directory comes first so recovery can always descend by picking
// the greatest child at every level. Id 0 is a valid slot; callers use 0 as
// "nothing committed" only at the publisher level, never here.
//
// No I/O is performed.
func Resolve(root string, id uint64, nested bool) FileSet {
	if !nested {
		stem := strconv.FormatUint(id, 10)
		return newFileSet(id, root, nil, stem)
	}

	padded := PadID(id)
	depth := len(padded)/chunkWidth - 1

	subDirs := make([]string, 0, depth+1)
	dir := filepath.Join(root, strconv.Itoa(depth))
	subDirs = append(subDirs, dir)
	for i := 0; i < depth; i++ {
		dir = filepath.Join(dir, padded[i*chunkWidth:(i+1)*chunkWidth])
		subDirs = append(subDirs, dir)
	}

	return newFileSet(id, dir, subDirs, padded)
}

func newFileSet(id uint64, dir string, subDirs []string, stem string) FileSet {
	base := filepath.Join(dir, stem)
	return FileSet{
		ID:      id,
		Dir:     dir,
		SubDirs: subDirs,
		Zip:     base + ZipExt,
		Meta:    base + MetaExt,
		Entries: base + EntriesExt,
	}
}

// ParseID parses a file or directory name as a (possibly zero-padded)
// non-negative integer after stripping any extensions.
//
// "001000.zip" -> 1000, "042" -> 42, "abc" -> false, ".zip" -> false.
func ParseID(name string) (uint64, bool) {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return 0, false
	}
	for i := 0; i < len(name); i++ {
		if name[i] < '0' || name[i] > '9' {
			return 0, false
		}
	}
	id, err := strconv.ParseUint(name, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// IDFromPath reconstructs the id from a nested file path produced by Resolve
// relative to root. It checks that the depth and chunk directories agree with
// the stem, so a misplaced file is rejected.
func IDFromPath(root, path string) (uint64, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return 0, false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 2 {
		return 0, false
	}

	id, ok := ParseID(parts[len(parts)-1])
	if !ok {
		return 0, false
	}

	expected := Resolve(root, id, true)
	if filepath.Clean(expected.Dir) != filepath.Clean(filepath.Dir(path)) {
		return 0, false
	}
	return id, true
}
