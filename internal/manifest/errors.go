package manifest

import "fmt"

// MismatchedOutputError reports an output path that exists but has
// the wrong kind: a directory where a file was declared, or a file or
// symlink where a directory was declared. Fatal; the in-progress add
// call is aborted.
type MismatchedOutputError struct {
	Path     string // exec-root-relative
	Actual   string
	Expected string
}

func (e *MismatchedOutputError) Error() string {
	return fmt.Sprintf("output %s is a %s, expected a %s", e.Path, e.Actual, e.Expected)
}

// IllegalOutputError reports an output entry that may never be
// uploaded: a special file, or a symbolic link when symlink outputs
// are disabled. Fatal; the in-progress add call is aborted.
type IllegalOutputError struct {
	Path string // exec-root-relative
	Kind string
}

func (e *IllegalOutputError) Error() string {
	return fmt.Sprintf(
		"output %s is a %s; only regular files and directories may be uploaded to a remote cache (enable symlink outputs to allow symbolic links)",
		e.Path, e.Kind)
}
