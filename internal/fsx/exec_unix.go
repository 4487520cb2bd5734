//go:build linux || darwin

package fsx

import "golang.org/x/sys/unix"

// IsExecutable reports whether the calling process may execute the
// file at path, via access(2). Matches what the remote execution API
// means by the executable bit on an output file.
func IsExecutable(path string) bool {
	return unix.Access(path, unix.X_OK) == nil
}
