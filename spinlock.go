package zephyr

import (
	"runtime"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// spinProbes is the number of failed load probes Lock performs before
// yielding the processor once.
const spinProbes = 128

// SpinLock is a test-and-test-and-set lock padded to the cache line on
// both sides, so that the lock word never shares a line with unrelated
// data. It is meant for very short critical sections on the
// completion path; holders must not block.
//
// SpinLock is not reentrant. The zero value is unlocked.
type SpinLock struct {
	_      cpu.CacheLinePad
	noCopy noCopy
	held   atomic.Bool
	_      cpu.CacheLinePad
}

// Lock acquires the lock, spinning until it is available.
func (l *SpinLock) Lock() {
	for {
		if !l.held.Swap(true) {
			return
		}

		// Wait on a plain load so waiters do not keep stealing the
		// line from the holder.
		for n := 1; l.held.Load(); n++ {
			if n%spinProbes == 0 {
				runtime.Gosched()
			}
		}
	}
}

// TryLock acquires the lock if it is free and reports whether it did.
// It never spins.
func (l *SpinLock) TryLock() bool {
	return !l.held.Load() && !l.held.Swap(true)
}

// Unlock releases the lock.
func (l *SpinLock) Unlock() {
	l.held.Store(false)
}
