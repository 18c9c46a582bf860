//go:build linux

package uring

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/pawelgaczynski/giouring"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/webriots/zephyr"
)

// inflight keeps the memory an operation hands to the kernel pinned
// until its completion has been reaped.
type inflight struct {
	op     zephyr.Op
	pinner runtime.Pinner
	iovecs []unix.Iovec
	path   *byte
	ts     *unix.Timespec
}

// Ring is a zephyr.CompletionService over a Linux io_uring. Submit is
// safe for concurrent use; completions are reaped by a dedicated
// goroutine and handed to Poll through a channel.
type Ring struct {
	ring     *giouring.Ring
	log      zerolog.Logger
	mu       sync.Mutex // guards the submission queue and inflight
	inflight map[uint64]*inflight
	done     chan zephyr.Completion
	stop     chan struct{}
	reaped   chan struct{}
	closed   atomic.Bool
}

var _ zephyr.CompletionService = (*Ring)(nil)

// New creates a Ring. A nil config means DefaultConfig.
func New(config *Config) (*Ring, error) {
	if config == nil {
		config = DefaultConfig()
	}

	ring, err := giouring.CreateRing(config.Entries)
	if err != nil {
		return nil, fmt.Errorf("uring: create ring with %d entries: %w", config.Entries, err)
	}

	r := &Ring{
		ring:     ring,
		log:      config.Logger.With().Str("component", "uring").Logger(),
		inflight: make(map[uint64]*inflight),
		done:     make(chan zephyr.Completion, 2*int(config.Entries)),
		stop:     make(chan struct{}),
		reaped:   make(chan struct{}),
	}

	r.log.Debug().Uint32("entries", config.Entries).Msg("created io_uring")
	go r.reap()
	return r, nil
}

// Submit queues op on the ring tagged with key. It fails only when
// the ring is closed, the submission queue is full, or op cannot be
// expressed as an SQE. Once an SQE is queued the kernel owns it: a
// failing io_uring_enter leaves it queued for the next Submit, so the
// operation is still reported as accepted.
func (r *Ring) Submit(op zephyr.Op, key zephyr.Key) error {
	if r.closed.Load() {
		return zephyr.ErrClosed
	}
	if uint64(key) == wakeKey {
		return fmt.Errorf("uring: key %d is reserved", key)
	}

	in, prep, err := prepare(op)
	if err != nil {
		in.pinner.Unpin()
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed.Load() {
		in.pinner.Unpin()
		return zephyr.ErrClosed
	}

	sqe := r.ring.GetSQE()
	if sqe == nil {
		in.pinner.Unpin()
		return zephyr.ErrQueueFull
	}

	prep(sqe)
	sqe.UserData = uint64(key)
	r.inflight[uint64(key)] = in

	if _, err := r.ring.Submit(); err != nil {
		r.log.Warn().Err(err).Uint64("key", uint64(key)).Msg("io_uring_enter failed, sqe left queued")
	}
	return nil
}

// Poll yields reaped completions.
func (r *Ring) Poll(ctx context.Context, wait time.Duration) iter.Seq[zephyr.Completion] {
	return zephyr.PollChannel(ctx, r.done, wait)
}

// Close wakes and stops the reaper and tears the ring down.
// Operations still in flight are abandoned.
func (r *Ring) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}

	close(r.stop)

	r.mu.Lock()
	sqe := r.ring.GetSQE()
	if sqe == nil {
		_, _ = r.ring.Submit()
		sqe = r.ring.GetSQE()
	}
	if sqe != nil {
		sqe.PrepareRW(uint8(zephyr.OpNop), -1, 0, 0, 0)
		sqe.UserData = wakeKey
		_, _ = r.ring.Submit()
	} else {
		r.log.Warn().Msg("no sqe available to wake reaper")
	}
	r.mu.Unlock()

	<-r.reaped

	r.mu.Lock()
	r.ring.QueueExit()
	for key, in := range r.inflight {
		in.pinner.Unpin()
		delete(r.inflight, key)
	}
	r.mu.Unlock()

	return nil
}

func (r *Ring) reap() {
	defer close(r.reaped)

	for {
		cqe, err := r.ring.WaitCQE()
		if err != nil {
			if errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN) {
				continue
			}
			if !r.closed.Load() {
				r.log.Error().Err(err).Msg("waiting for completion failed, reaper exiting")
			}
			return
		}

		key, res := cqe.UserData, cqe.Res
		r.ring.CQESeen(cqe)

		if key == wakeKey {
			if r.closed.Load() {
				return
			}
			continue
		}

		r.mu.Lock()
		in := r.inflight[key]
		delete(r.inflight, key)
		r.mu.Unlock()

		if in != nil {
			in.pinner.Unpin()
			if in.op.Opcode() == zephyr.OpTimeout && res == -int32(unix.ETIME) {
				res = 0
			}
		}

		select {
		case r.done <- zephyr.Completion{Key: zephyr.Key(key), Res: res}:
		case <-r.stop:
			return
		}
	}
}

// prepare pins the memory op refers to and returns a function filling
// an SQE for it.
func prepare(op zephyr.Op) (*inflight, func(*giouring.SubmissionQueueEntry), error) {
	in := &inflight{op: op}
	code := uint8(op.Opcode())

	switch op := op.(type) {
	case zephyr.Nop:
		return in, func(sqe *giouring.SubmissionQueueEntry) {
			sqe.PrepareRW(code, -1, 0, 0, 0)
		}, nil

	case zephyr.Read:
		addr := in.buffer(op.Buf)
		return in, func(sqe *giouring.SubmissionQueueEntry) {
			sqe.PrepareRW(code, op.FD, addr, uint32(len(op.Buf)), op.Offset)
		}, nil

	case zephyr.Write:
		addr := in.buffer(op.Buf)
		return in, func(sqe *giouring.SubmissionQueueEntry) {
			sqe.PrepareRW(code, op.FD, addr, uint32(len(op.Buf)), op.Offset)
		}, nil

	case zephyr.Readv:
		addr := in.vector(op.Bufs)
		return in, func(sqe *giouring.SubmissionQueueEntry) {
			sqe.PrepareRW(code, op.FD, addr, uint32(len(in.iovecs)), op.Offset)
		}, nil

	case zephyr.Writev:
		addr := in.vector(op.Bufs)
		return in, func(sqe *giouring.SubmissionQueueEntry) {
			sqe.PrepareRW(code, op.FD, addr, uint32(len(in.iovecs)), op.Offset)
		}, nil

	case zephyr.Openat:
		path, err := unix.BytePtrFromString(op.Path)
		if err != nil {
			return in, nil, fmt.Errorf("uring: openat %q: %w", op.Path, err)
		}
		in.path = path
		in.pinner.Pin(path)
		return in, func(sqe *giouring.SubmissionQueueEntry) {
			sqe.PrepareRW(code, op.Dir, uintptr(unsafe.Pointer(path)), op.Mode, 0)
			sqe.OpcodeFlags = uint32(op.Flags)
		}, nil

	case zephyr.Close:
		return in, func(sqe *giouring.SubmissionQueueEntry) {
			sqe.PrepareRW(code, op.FD, 0, 0, 0)
		}, nil

	case zephyr.Fsync:
		return in, func(sqe *giouring.SubmissionQueueEntry) {
			sqe.PrepareRW(code, op.FD, 0, 0, 0)
		}, nil

	case zephyr.Timeout:
		ts := unix.NsecToTimespec(op.D.Nanoseconds())
		in.ts = &ts
		in.pinner.Pin(in.ts)
		return in, func(sqe *giouring.SubmissionQueueEntry) {
			sqe.PrepareRW(code, -1, uintptr(unsafe.Pointer(in.ts)), 1, 0)
		}, nil

	default:
		return in, nil, fmt.Errorf("%w: %v", zephyr.ErrUnsupportedOp, op.Opcode())
	}
}

func (in *inflight) buffer(buf []byte) uintptr {
	if len(buf) == 0 {
		return 0
	}
	in.pinner.Pin(&buf[0])
	return uintptr(unsafe.Pointer(&buf[0]))
}

func (in *inflight) vector(bufs [][]byte) uintptr {
	if len(bufs) == 0 {
		return 0
	}
	in.iovecs = make([]unix.Iovec, len(bufs))
	for i, b := range bufs {
		if len(b) > 0 {
			in.pinner.Pin(&b[0])
			in.iovecs[i].Base = &b[0]
		}
		in.iovecs[i].SetLen(len(b))
	}
	in.pinner.Pin(&in.iovecs[0])
	return uintptr(unsafe.Pointer(&in.iovecs[0]))
}
