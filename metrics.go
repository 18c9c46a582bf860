package zephyr

import (
	"sync/atomic"
	"time"
)

// Metrics counts runtime activity. All fields are safe for concurrent
// use; read them with Snapshot for a consistent-enough copy.
type Metrics struct {
	// Task lifecycle
	TasksSpawned   atomic.Uint64 // Tasks started with Spawn or Task.Go
	TasksCompleted atomic.Uint64 // Task bodies that returned
	TasksFailed    atomic.Uint64 // Task bodies that panicked

	// Submission path
	Submitted atomic.Uint64 // Operations accepted by the service
	Rejected  atomic.Uint64 // Operations the service refused

	// Completion path
	Completions atomic.Uint64 // Completions observed by workers
	Strays      atomic.Uint64 // Completions with no matching continuation
	Resumes     atomic.Uint64 // Continuations resumed
	Handoffs    atomic.Uint64 // Continuations routed to another worker
	Misrouted   atomic.Uint64 // Continuations naming a worker that does not exist
	Delayed     atomic.Uint64 // Continuations parked until their Order was due

	StartTime atomic.Int64 // Runtime creation (UnixNano)
}

// NewMetrics creates a Metrics stamped with the current time.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// MetricsSnapshot is a plain copy of Metrics.
type MetricsSnapshot struct {
	TasksSpawned   uint64
	TasksCompleted uint64
	TasksFailed    uint64
	Submitted      uint64
	Rejected       uint64
	Completions    uint64
	Strays         uint64
	Resumes        uint64
	Handoffs       uint64
	Misrouted      uint64
	Delayed        uint64
	Uptime         time.Duration
}

// Snapshot copies the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		TasksSpawned:   m.TasksSpawned.Load(),
		TasksCompleted: m.TasksCompleted.Load(),
		TasksFailed:    m.TasksFailed.Load(),
		Submitted:      m.Submitted.Load(),
		Rejected:       m.Rejected.Load(),
		Completions:    m.Completions.Load(),
		Strays:         m.Strays.Load(),
		Resumes:        m.Resumes.Load(),
		Handoffs:       m.Handoffs.Load(),
		Misrouted:      m.Misrouted.Load(),
		Delayed:        m.Delayed.Load(),
		Uptime:         time.Duration(time.Now().UnixNano() - m.StartTime.Load()),
	}
}

// Live returns the number of tasks spawned and not yet finished.
func (s MetricsSnapshot) Live() uint64 {
	return s.TasksSpawned - s.TasksCompleted - s.TasksFailed
}
