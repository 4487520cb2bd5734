package fsx

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// EntryType identifies the kind of directory child.
type EntryType int

const (
	EntryUnknown EntryType = iota
	EntryFile
	EntryDirectory
	EntrySymlink
)

var entryTypeNames = [...]string{
	EntryUnknown:   "unknown",
	EntryFile:      "file",
	EntryDirectory: "directory",
	EntrySymlink:   "symlink",
}

func (t EntryType) String() string {
	if int(t) < len(entryTypeNames) {
		return entryTypeNames[t]
	}
	return "unknown"
}

// Dirent is one immediate child of a directory, classified without
// following symlinks. Special files classify as EntryUnknown.
type Dirent struct {
	Name string
	Type EntryType
}

func entryTypeFromStatus(status *FileStatus) EntryType {
	switch {
	case status == nil || status.IsSpecial:
		return EntryUnknown
	case status.IsFile:
		return EntryFile
	case status.IsDir:
		return EntryDirectory
	case status.IsSymlink:
		return EntrySymlink
	default:
		return EntryUnknown
	}
}

// ReadDirSorted lists the immediate children of path, classified via
// lstat and sorted bytewise by name. The sort is what makes directory
// digests deterministic: the filesystem guarantees no ordering, so two
// listings of identical content must be forced into the identical
// sequence. Children that vanish between the listing and the
// classifying lstat are dropped.
func ReadDirSorted(path string) ([]Dirent, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("readdir %s: %w", path, err)
	}

	dirents := make([]Dirent, 0, len(entries))
	for _, entry := range entries {
		status := statNullable(filepath.Join(path, entry.Name()), false)
		if status == nil {
			continue
		}
		dirents = append(dirents, Dirent{
			Name: entry.Name(),
			Type: entryTypeFromStatus(status),
		})
	}

	sort.Slice(dirents, func(i, j int) bool {
		return dirents[i].Name < dirents[j].Name
	})
	return dirents, nil
}
