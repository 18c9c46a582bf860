// Package uring provides completion services for zephyr backed by the
// operating system: Ring submits operations to a Linux io_uring, and
// Exec performs them synchronously with system calls for use with
// zephyr.Loopback where io_uring is unavailable.
package uring

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// ErrUnsupported is returned by New on platforms without io_uring.
var ErrUnsupported = fmt.Errorf("uring: io_uring requires linux: %w", errors.ErrUnsupported)

// wakeKey tags the NOP that Close submits to wake the reaper. The
// runtime's keys are slab indices and never get this large.
const wakeKey = ^uint64(0)

// Config contains configuration for creating a Ring.
type Config struct {
	Entries uint32         // Submission queue entries
	Logger  zerolog.Logger // Reaper diagnostics
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		Entries: 256,
		Logger:  zerolog.Nop(),
	}
}
