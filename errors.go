package zephyr

import (
	"errors"
	"fmt"
)

var (
	// ErrUnreachable is matched by invariant violations raised as
	// panics, such as a Slab.InsertAt with a key the slab did not hand
	// out. These are programming errors and must not be recovered and
	// continued from.
	ErrUnreachable = errors.New("zephyr: unreachable")

	// ErrClosed is returned by a completion service after Close.
	ErrClosed = errors.New("zephyr: completion service closed")

	// ErrQueueFull is returned when a completion service cannot accept
	// another submission without blocking.
	ErrQueueFull = errors.New("zephyr: submission queue full")

	// ErrUnsupportedOp is returned when a completion service does not
	// know how to perform an operation.
	ErrUnsupportedOp = errors.New("zephyr: unsupported operation")

	// ErrRuntimeRunning is returned by Run when the runtime is already
	// running.
	ErrRuntimeRunning = errors.New("zephyr: runtime already running")

	// ErrInvalidOption is returned by New for out-of-range options.
	ErrInvalidOption = errors.New("zephyr: invalid option")
)

// UnreachableError describes a Slab invariant violation.
type UnreachableError struct {
	Op   string // Slab method that detected the violation
	Key  int    // Key supplied by the caller
	Next int    // Free-list head at the time of the call
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("zephyr: unreachable: %s key=%d next=%d", e.Op, e.Key, e.Next)
}

// Is makes errors.Is(err, ErrUnreachable) hold.
func (e *UnreachableError) Is(target error) bool {
	return target == ErrUnreachable
}

// TaskFailure is a panic recovered from a detached task body. There is
// no caller to return it to, so it is handled according to the
// runtime's FailurePolicy.
type TaskFailure struct {
	Value any    // Value passed to panic
	Stack []byte // Stack of the task goroutine at the point of panic
}

func (f *TaskFailure) Error() string {
	return fmt.Sprintf("zephyr: unhandled task failure: %v", f.Value)
}

// Unwrap returns the panic value when it is an error.
func (f *TaskFailure) Unwrap() error {
	if err, ok := f.Value.(error); ok {
		return err
	}
	return nil
}

// FailurePolicy selects what happens to a TaskFailure.
type FailurePolicy int

const (
	// FailureAbort logs the failure and re-panics with the
	// *TaskFailure on the goroutine that resumed the task, taking the
	// process down.
	FailureAbort FailurePolicy = iota

	// FailureReport logs the failure, passes it to the OnFailure
	// callback if one is set, and keeps the runtime running.
	FailureReport
)

func (p FailurePolicy) String() string {
	switch p {
	case FailureAbort:
		return "abort"
	case FailureReport:
		return "report"
	default:
		return fmt.Sprintf("FailurePolicy(%d)", int(p))
	}
}
