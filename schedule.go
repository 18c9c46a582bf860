package zephyr

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// pending is a suspended task waiting on one in-flight operation,
// together with the hints for resuming it.
type pending struct {
	task   *Task
	thread Thread
	order  Order
	res    int32
	seq    uint64
}

// Runtime drives tasks against a completion service. It owns the
// table correlating in-flight operations with suspended tasks and the
// spin lock guarding that table and the submission path.
type Runtime struct {
	svc     CompletionService
	opts    *runtimeOptions
	log     zerolog.Logger
	metrics *Metrics
	epoch   time.Time

	lock  SpinLock
	table *Slab[pending]

	seq     atomic.Uint64
	live    atomic.Int64
	running atomic.Bool
	workers []*worker
}

// New creates a Runtime over svc. The runtime does not take ownership
// of svc; the caller closes it after Run returns.
func New(svc CompletionService, opts ...Option) (*Runtime, error) {
	if svc == nil {
		return nil, fmt.Errorf("%w: nil completion service", ErrInvalidOption)
	}

	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		svc:     svc,
		opts:    cfg,
		log:     cfg.logger.With().Str("component", "zephyr").Logger(),
		metrics: cfg.metrics,
		epoch:   time.Now(),
		table:   NewSlab[pending](cfg.slabCapacity),
	}

	rt.workers = make([]*worker, cfg.workers)
	for i := range rt.workers {
		rt.workers[i] = newWorker(rt, Thread(i))
	}

	return rt, nil
}

// Spawn starts fn as a detached task. The body runs on the calling
// goroutine until it first awaits an operation or returns, and only
// then does Spawn return. Spawn may be called before or during Run.
func (rt *Runtime) Spawn(ctx context.Context, fn func(context.Context, *Task)) {
	rt.spawn(ctx, fn, nil)
}

func (rt *Runtime) spawn(ctx context.Context, fn func(context.Context, *Task), parent *Task) {
	task := newTask(ctx, rt, fn, parent)
	rt.live.Add(1)
	rt.metrics.TasksSpawned.Add(1)
	task.Log("SPAWN")
	rt.drive(task, outcome{})
}

// Run starts the workers and blocks until ctx is done. Continuations
// still waiting on operations when Run returns stay parked; they are
// resumed if Run is called again and their completions arrive.
func (rt *Runtime) Run(ctx context.Context) error {
	return rt.run(ctx, false)
}

// RunUntilIdle is Run, except that it also returns once no task is
// alive.
func (rt *Runtime) RunUntilIdle(ctx context.Context) error {
	return rt.run(ctx, true)
}

func (rt *Runtime) run(ctx context.Context, untilIdle bool) error {
	if !rt.running.CompareAndSwap(false, true) {
		return ErrRuntimeRunning
	}
	defer rt.running.Store(false)

	rt.log.Info().
		Int("workers", len(rt.workers)).
		Dur("poll_wait", rt.opts.pollWait).
		Bool("until_idle", untilIdle).
		Msg("runtime started")

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range rt.workers {
		g.Go(func() error {
			return w.run(gctx, untilIdle)
		})
	}
	err := g.Wait()

	if n := rt.Pending(); n > 0 {
		rt.log.Warn().Int("pending", n).Msg("continuations still waiting on completions")
	}
	rt.log.Info().Int64("live", rt.live.Load()).Err(err).Msg("runtime stopped")

	return err
}

// Elapsed returns the runtime clock: the time since New, as an Order.
// NotBefore hints are measured against it.
func (rt *Runtime) Elapsed() Order {
	return Order(time.Since(rt.epoch))
}

// Pending returns the number of continuations waiting on an operation.
func (rt *Runtime) Pending() int {
	rt.lock.Lock()
	defer rt.lock.Unlock()
	return rt.table.Len()
}

// Live returns the number of tasks that have not finished.
func (rt *Runtime) Live() int {
	return int(rt.live.Load())
}

// Workers returns the number of workers Run starts.
func (rt *Runtime) Workers() int {
	return len(rt.workers)
}

// Metrics returns the runtime's counters.
func (rt *Runtime) Metrics() *Metrics {
	return rt.metrics
}

// drive resumes task with in and keeps going until the body either
// suspends on an accepted operation or returns.
func (rt *Runtime) drive(task *Task, in outcome) {
	for {
		req, ok := task.step(in)
		if !ok {
			rt.finish(task)
			return
		}

		err := rt.park(task, req)
		if err == nil {
			return
		}

		in = outcome{err: err}
	}
}

// park stores the suspended task in the table and submits its
// operation tagged with the slot's key. The body is already suspended
// here, so a worker that sees the completion can resume it at once.
func (rt *Runtime) park(task *Task, req *request) error {
	p := pending{task: task, thread: req.thread, order: req.order}

	rt.lock.Lock()
	key := rt.table.Insert(p)
	err := rt.svc.Submit(req.op, Key(key))
	if err != nil {
		rt.table.Remove(key)
	}
	rt.lock.Unlock()

	if err != nil {
		rt.metrics.Rejected.Add(1)
		task.Logf("REJECTED %v", err)
		return fmt.Errorf("submit %v: %w", req.op.Opcode(), err)
	}

	rt.metrics.Submitted.Add(1)
	return nil
}

// finish tears down a task whose body has returned.
func (rt *Runtime) finish(task *Task) {
	task.Log("DONE")
	failure := task.failure
	task.release()
	rt.live.Add(-1)

	if failure == nil {
		rt.metrics.TasksCompleted.Add(1)
		return
	}

	rt.metrics.TasksFailed.Add(1)
	rt.log.Error().
		Err(failure).
		Stringer("policy", rt.opts.policy).
		Bytes("stack", failure.Stack).
		Msg("unhandled task failure")

	switch rt.opts.policy {
	case FailureReport:
		if rt.opts.onFailure != nil {
			rt.opts.onFailure(failure)
		}
	default:
		panic(failure)
	}
}
