package zephyr

import (
	"context"
	"iter"
	"sync"
	"syscall"
	"time"
)

// Executor performs one operation synchronously and returns its result
// in kernel convention (negated errno on failure).
type Executor func(ctx context.Context, op Op) int32

// NopExecutor completes Nop and Timeout and reports ENOSYS for
// everything else.
func NopExecutor(ctx context.Context, op Op) int32 {
	switch op := op.(type) {
	case Nop:
		return 0
	case Timeout:
		timer := time.NewTimer(op.D)
		defer timer.Stop()
		select {
		case <-timer.C:
			return 0
		case <-ctx.Done():
			return -int32(syscall.ECANCELED)
		}
	default:
		return -int32(syscall.ENOSYS)
	}
}

// LoopbackConfig configures a Loopback.
type LoopbackConfig struct {
	Depth     int // Submissions and completions buffered
	Executors int // Goroutines running the Executor
}

// DefaultLoopbackConfig returns a sensible default configuration.
func DefaultLoopbackConfig() *LoopbackConfig {
	return &LoopbackConfig{
		Depth:     1024,
		Executors: 4,
	}
}

type submission struct {
	op  Op
	key Key
}

// Loopback is an in-process CompletionService. Submitted operations
// are queued to a fixed set of goroutines that run them through an
// Executor and report the results as completions, standing in for a
// kernel ring.
type Loopback struct {
	exec   Executor
	queue  chan submission
	done   chan Completion
	closed chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	wg     sync.WaitGroup
}

// NewLoopback starts a Loopback running exec. A nil exec means
// NopExecutor and a nil config means DefaultLoopbackConfig.
func NewLoopback(exec Executor, config *LoopbackConfig) *Loopback {
	if exec == nil {
		exec = NopExecutor
	}
	if config == nil {
		config = DefaultLoopbackConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &Loopback{
		exec:   exec,
		queue:  make(chan submission, max(config.Depth, 1)),
		done:   make(chan Completion, max(config.Depth, 1)),
		closed: make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}

	for range max(config.Executors, 1) {
		l.wg.Add(1)
		go l.execute()
	}

	return l
}

func (l *Loopback) execute() {
	defer l.wg.Done()
	for {
		select {
		case s := <-l.queue:
			c := Completion{Key: s.key, Res: l.exec(l.ctx, s.op)}
			select {
			case l.done <- c:
			case <-l.closed:
				return
			}
		case <-l.closed:
			return
		}
	}
}

// Submit queues op without blocking.
func (l *Loopback) Submit(op Op, key Key) error {
	select {
	case <-l.closed:
		return ErrClosed
	default:
	}

	select {
	case l.queue <- submission{op: op, key: key}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Poll yields completed operations.
func (l *Loopback) Poll(ctx context.Context, wait time.Duration) iter.Seq[Completion] {
	return PollChannel(ctx, l.done, wait)
}

// Close stops the executors. Queued operations are dropped and never
// complete.
func (l *Loopback) Close() error {
	l.once.Do(func() {
		close(l.closed)
		l.cancel()
	})
	l.wg.Wait()
	return nil
}
