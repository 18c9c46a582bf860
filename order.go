package zephyr

import (
	"cmp"
	"time"
)

// Order is a logical point in time or a duration, in nanoseconds.
// The Runtime reads it as "resume no earlier than Order nanoseconds
// after the runtime was created"; whether a given value is a point or
// a span is up to the caller. Arithmetic wraps at 2^64, roughly 584
// years, and nothing past that boundary is meaningful.
type Order uint64

// Now returns the zero Order, which is always due.
func Now() Order {
	return 0
}

// Nanos returns an Order of n nanoseconds.
func Nanos(n uint64) Order {
	return Order(n)
}

// Milli returns an Order of n milliseconds.
func Milli(n uint64) Order {
	return Order(n * uint64(time.Millisecond))
}

// InMilli is Milli, for call sites that read as a delay.
func InMilli(n uint64) Order {
	return Milli(n)
}

// Seconds returns an Order of n seconds.
func Seconds(n uint64) Order {
	return Order(n * uint64(time.Second))
}

// InSeconds is Seconds, for call sites that read as a delay.
func InSeconds(n uint64) Order {
	return Seconds(n)
}

// Add returns o+p.
func (o Order) Add(p Order) Order {
	return o + p
}

// Sub returns o-p.
func (o Order) Sub(p Order) Order {
	return o - p
}

// Compare returns -1, 0 or +1 depending on whether o is before, equal
// to or after p.
func (o Order) Compare(p Order) int {
	return cmp.Compare(o, p)
}

// Duration converts o to a time.Duration, saturating at the largest
// representable duration.
func (o Order) Duration() time.Duration {
	if o > Order(1<<63-1) {
		return time.Duration(1<<63 - 1)
	}
	return time.Duration(o)
}

func (o Order) String() string {
	return "order[" + o.Duration().String() + "]"
}
