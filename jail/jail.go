package jail

import (
	"errors"
	"fmt"
	"strings"
)

// RootPath is the filesystem root marker; it is never accepted as a jail.
const RootPath = "/"

// Reasons reported by Validate.
const (
	ReasonEmpty = "Path cannot be empty"
	ReasonRoot  = "Using / as jail is forbidden"
)

// ErrInvalidPath is the sentinel behind every InvalidPathError.
var ErrInvalidPath = errors.New("jail: invalid path")

// InvalidPathError is returned by Validate when a path breaks policy.
type InvalidPathError struct {
	Path   string
	Reason string
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidPath.Error(), e.Reason)
}

func (e *InvalidPathError) Unwrap() error {
	return ErrInvalidPath
}

// Config describes the restriction root a command should run under.
type Config struct {
	Path             string
	EnforceRequested bool
}

// Validate checks path against the jail policy. It returns nil when the
// path is acceptable and an *InvalidPathError otherwise.
func Validate(path string) error {
	trimmed := strings.TrimSpace(path)
	switch {
	case trimmed == "":
		return &InvalidPathError{Path: path, Reason: ReasonEmpty}
	case trimmed == RootPath:
		return &InvalidPathError{Path: path, Reason: ReasonRoot}
	}
	return nil
}

// Reason extracts the policy reason from a Validate error, or "" for nil.
func Reason(err error) string {
	var invalid *InvalidPathError
	if errors.As(err, &invalid) {
		return invalid.Reason
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
