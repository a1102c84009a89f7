package memutils

import "github.com/pkg/errors"

var (
	// ErrInvalidRequest is the error returned when an admission request can never be satisfied as
	// written: a zero-byte request, or a process ID that is already known to the controller
	ErrInvalidRequest error = errors.New("invalid admission request")
	// ErrInvalidConfiguration is the error returned when a controller or simulation is created
	// with settings that cannot describe a memory region
	ErrInvalidConfiguration error = errors.New("invalid configuration")
)
