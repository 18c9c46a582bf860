// Package zephyr is a small coroutine-based asynchronous I/O runtime.
// Task bodies are written as sequential code that awaits operations;
// each await suspends the body, hands the operation to a completion
// service tagged with a correlation key, and resumes the body when
// the service reports that key complete.
//
// Key components:
//
//   - Task: a detached, eagerly started computation. Spawn runs the
//     body immediately; the runtime drops it as soon as it returns.
//
//   - Runtime: owns the table of suspended tasks and runs the
//     completion dispatch loop on a fixed set of workers.
//
//   - Slab: the free-list table mapping correlation keys to
//     suspended tasks.
//
//   - SpinLock: a cache-line padded lock guarding the table and the
//     submission path shared by all workers.
//
//   - Thread and Order: hints naming the worker that should resume a
//     task and the earliest time it may resume.
//
//   - CompletionService: the boundary with the kernel. Loopback is an
//     in-process implementation; package uring provides io_uring.
package zephyr
