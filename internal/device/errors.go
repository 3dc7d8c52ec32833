package device

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformed is returned when markup or a spec lacks a required value
	// that has no default.
	ErrMalformed = errors.New("malformed device")

	// ErrUnsupported is returned for device classes or display types no
	// codec handles.
	ErrUnsupported = errors.New("unsupported device")

	// ErrNotFound is returned by collaborators when there is nothing to
	// release. Teardown treats it as success.
	ErrNotFound = errors.New("not found")

	// ErrNoCollaborator is returned when an operation needs a collaborator
	// the Env does not carry.
	ErrNoCollaborator = errors.New("collaborator not configured")
)

// RemoteError is a failure reported by an out-of-process collaborator
// (virtual switch, HWRNG, network manager, console channels). It is never
// retried here.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

func remote(op string, err error) error {
	if err == nil {
		return nil
	}
	return &RemoteError{Op: op, Err: err}
}

func malformed(tag Tag, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s: %s", ErrMalformed, tag, fmt.Sprintf(format, args...))
}
