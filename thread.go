package zephyr

import (
	"cmp"
	"math"
	"strconv"
)

// Thread identifies the worker that should resume a continuation.
// Workers are numbered from zero; AnyThread leaves the choice to
// whichever worker observes the completion.
type Thread uint16

// AnyThread means no worker is preferred. It is distinct from every
// real worker index.
const AnyThread Thread = math.MaxUint16 - 1

// In returns the Thread for worker n.
func In(n uint16) Thread {
	return Thread(n)
}

// Any returns AnyThread.
func Any() Thread {
	return AnyThread
}

// IsAny reports whether t is AnyThread.
func (t Thread) IsAny() bool {
	return t == AnyThread
}

// Compare returns -1, 0 or +1 depending on whether t is less than,
// equal to or greater than u.
func (t Thread) Compare(u Thread) int {
	return cmp.Compare(t, u)
}

func (t Thread) String() string {
	if t.IsAny() {
		return "thread[any]"
	}
	return "thread[" + strconv.FormatUint(uint64(t), 10) + "]"
}
