// Package fsx probes and enumerates filesystem entries for manifest
// building. All classification is lstat-based unless the caller asks
// to follow symlinks, so a symlink output is seen as a symlink rather
// than silently resolved to its target's type.
package fsx

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

// FileStatus classifies a single path. It is derived fresh on every
// probe and never cached: output paths change under us between the
// action finishing and the manifest walking them.
type FileStatus struct {
	IsFile    bool // regular file
	IsDir     bool
	IsSymlink bool
	IsSpecial bool // device, fifo, socket, or other non-regular entry
	Size      int64
	ModTime   time.Time
}

// Kind returns a human-readable name for the entry's type, used in
// policy error messages.
func (s FileStatus) Kind() string {
	switch {
	case s.IsSymlink:
		return "symbolic link"
	case s.IsDir:
		return "directory"
	case s.IsSpecial:
		return "special file"
	default:
		return "file"
	}
}

// specialModeMask covers every non-regular, non-directory,
// non-symlink mode bit.
const specialModeMask = os.ModeDevice | os.ModeCharDevice |
	os.ModeNamedPipe | os.ModeSocket | os.ModeIrregular

func statusFromInfo(info os.FileInfo) FileStatus {
	mode := info.Mode()
	return FileStatus{
		IsFile:    mode.IsRegular(),
		IsDir:     mode.IsDir(),
		IsSymlink: mode&os.ModeSymlink != 0,
		IsSpecial: mode&specialModeMask != 0,
		Size:      info.Size(),
		ModTime:   info.ModTime(),
	}
}

// Stat probes path. With followSymlinks false (the default for all
// manifest probing) it behaves like lstat. A missing path surfaces as
// an error satisfying errors.Is(err, fs.ErrNotExist); any other
// failure wraps the underlying cause.
func Stat(path string, followSymlinks bool) (FileStatus, error) {
	var info os.FileInfo
	var err error
	if followSymlinks {
		info, err = os.Stat(path)
	} else {
		info, err = os.Lstat(path)
	}
	if err != nil {
		return FileStatus{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return statusFromInfo(info), nil
}

// StatIfFound probes path, returning nil (and no error) when the path
// does not exist. Any failure other than not-found is returned as-is:
// the probe cannot safely distinguish causes, so callers treat it as
// fatal.
func StatIfFound(path string, followSymlinks bool) (*FileStatus, error) {
	status, err := Stat(path, followSymlinks)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return &status, nil
}

// statNullable probes path, returning nil on any failure. Used only
// by the enumerator, where a child that vanished mid-listing is not
// worth an error.
func statNullable(path string, followSymlinks bool) *FileStatus {
	status, err := Stat(path, followSymlinks)
	if err != nil {
		return nil
	}
	return &status
}
