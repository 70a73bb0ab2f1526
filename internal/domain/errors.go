package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for precondition failures. These are recovered locally:
// the operation is rejected and controller state is left unchanged.
var (
	// ErrQueueLocked is returned by queue mutations while a run is active.
	ErrQueueLocked = errors.New("queue is locked while a run is active")

	// ErrJobNotFound is returned when a queue operation references an
	// unknown job id.
	ErrJobNotFound = errors.New("job not found")

	// ErrEmptyQueue is returned by start() on an empty queue.
	ErrEmptyQueue = errors.New("queue is empty")

	// ErrAlreadyRunning is returned by start() when the controller is not idle.
	ErrAlreadyRunning = errors.New("a run is already active")

	// ErrNotRunning is returned by pause/resume when the controller is not
	// in the running state.
	ErrNotRunning = errors.New("no run is active")

	// ErrPollingExhausted is raised when consecutive progress-poll failures
	// exceed the configured threshold. The controller settles to idle and
	// the operator must retry start() manually.
	ErrPollingExhausted = errors.New("progress polling exhausted")
)

// RejectionError is returned when the backend declines a submitted queue.
// Detail carries the backend-provided reason verbatim.
type RejectionError struct {
	Detail string
}

func (e *RejectionError) Error() string {
	if e.Detail == "" {
		return "backend rejected the submitted queue"
	}
	return "backend rejected the submitted queue: " + e.Detail
}

// TransportError wraps a network or timeout failure on a backend request.
// Op names the request that failed (submit, stop, pause, resume, poll,
// history).
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("backend %s request failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsRejection reports whether err is a backend rejection.
func IsRejection(err error) bool {
	var re *RejectionError
	return errors.As(err, &re)
}

// IsTransport reports whether err is a transport-layer failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
