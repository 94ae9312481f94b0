package runloop

import (
	"errors"
	"fmt"
)

var (
	// ErrCanceled reports that a future settled with the cancelled
	// status rather than a value or an error.
	ErrCanceled = errors.New("runloop: canceled")

	// ErrAlreadyRunning is returned by Run when the scheduler is
	// already being driven by another call to Run.
	ErrAlreadyRunning = errors.New("runloop: scheduler is already running")

	// ErrPoolClosed is the rejection reason for jobs submitted after
	// the offload pool has shut down.
	ErrPoolClosed = errors.New("runloop: offload pool is closed")
)

// FatalError wraps a value recovered from a scheduled closure that no
// local guard observed. It is delivered to the scheduler's fatal sink
// before the process terminates.
type FatalError struct {
	Origin string // which phase or component the closure ran in
	Value  any    // the recovered panic value or unobserved error
}

// FatalHandler receives unrecoverable errors. Installing one replaces
// the default sink, which logs the error and re-panics.
type FatalHandler func(*FatalError)

func (e *FatalError) Error() string {
	return fmt.Sprintf("runloop: fatal error in %s: %v", e.Origin, e.Value)
}

// Unwrap exposes a wrapped error value, if the recovered value was one.
func (e *FatalError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
