//go:build !linux && !darwin

package manifest

import "errors"

func mkfifo(string) error {
	return errors.New("fifos not supported on this platform")
}
