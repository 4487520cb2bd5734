//go:build !linux && !darwin

package fsx

import "os"

// IsExecutable reports whether any execute permission bit is set on
// the file at path.
func IsExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().Perm()&0111 != 0
}
