package zephyr

import (
	"context"
	"iter"
	"time"
)

// Key correlates a submitted operation with its completion. It is the
// index of the continuation's slot in the runtime's table.
type Key uint64

// Completion is one (key, result) pair reported by a completion
// service. Res follows kernel conventions: non-negative on success,
// a negated errno on failure.
type Completion struct {
	Key Key
	Res int32
}

// CompletionService accepts tagged operations and later reports their
// results.
type CompletionService interface {
	// Submit hands op to the service tagged with key. It must accept
	// or reject immediately without blocking; the runtime calls it
	// while holding its spin lock.
	Submit(op Op, key Key) error

	// Poll returns a sequence of completions. The sequence blocks up
	// to wait for the first completion (a negative wait blocks until
	// one is available or ctx is done, zero does not block) and then
	// yields whatever is already available. Each call starts a fresh
	// sequence.
	Poll(ctx context.Context, wait time.Duration) iter.Seq[Completion]

	// Close releases the service. Operations still in flight may never
	// complete.
	Close() error
}

// PollChannel implements the CompletionService.Poll contract over a
// channel of completions.
func PollChannel(ctx context.Context, ch <-chan Completion, wait time.Duration) iter.Seq[Completion] {
	return func(yield func(Completion) bool) {
		var c Completion

		switch {
		case wait == 0:
			select {
			case c = <-ch:
			default:
				return
			}
		case wait < 0:
			select {
			case c = <-ch:
			case <-ctx.Done():
				return
			}
		default:
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case c = <-ch:
			case <-timer.C:
				return
			case <-ctx.Done():
				return
			}
		}

		if !yield(c) {
			return
		}

		for {
			select {
			case c = <-ch:
				if !yield(c) {
					return
				}
			default:
				return
			}
		}
	}
}
