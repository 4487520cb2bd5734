//go:build linux || darwin

package manifest

import "golang.org/x/sys/unix"

func mkfifo(path string) error {
	return unix.Mkfifo(path, 0644)
}
