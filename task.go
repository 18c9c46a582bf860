package zephyr

import (
	"context"
	"fmt"
	"runtime/debug"
	"runtime/trace"
	"strings"
	"syscall"

	"github.com/webriots/coro"
)

const (
	taskTraceTaskType   = "zephyr-task"
	taskTraceRegionType = "zephyr-region"
	taskTraceCategory   = "zephyr"
)

// request is what a suspended task body hands to its driver: the
// operation to submit and the hints for resuming afterwards.
type request struct {
	op     Op
	thread Thread
	order  Order
}

// outcome is what a driver hands back to a task body on resumption.
type outcome struct {
	res int32
	err error
}

// Hint constrains where and when an awaiting task is resumed.
type Hint func(*request)

// On asks for the continuation to be resumed by worker t.
func On(t Thread) Hint {
	return func(r *request) { r.thread = t }
}

// NotBefore asks for the continuation to be resumed no earlier than o,
// measured on the runtime's clock (see Runtime.Elapsed).
func NotBefore(o Order) Hint {
	return func(r *request) { r.order = o }
}

// Task is a detached, eagerly started computation. A task body runs
// on the goroutine that spawned it until its first Await, and
// afterwards on whichever worker observes the completion it waits on.
// Once the body returns the runtime forgets the task; nothing can wait
// on it or inspect it.
type Task struct {
	ctx     context.Context
	rt      *Runtime
	yield   func(*request) outcome
	resume  func(outcome) (*request, bool)
	parent  *Task
	thread  Thread
	tracer  *trace.Task
	failure *TaskFailure
}

func newTask(
	ctx context.Context,
	rt *Runtime,
	fn func(context.Context, *Task),
	parent *Task,
) *Task {
	task := &Task{
		rt:     rt,
		parent: parent,
		thread: AnyThread,
	}

	if parent != nil {
		task.thread = parent.thread
	}

	if parent == nil {
		ctx, task.tracer = trace.NewTask(ctx, taskTraceTaskType)
	}

	task.ctx = withTaskContext(ctx, task)

	resume, _ := coro.New(
		func(yield func(*request) outcome, _ func() outcome) (z *request) {
			region := trace.StartRegion(task.ctx, taskTraceRegionType)
			defer region.End()

			defer func() {
				if p := recover(); p != nil {
					task.failure = &TaskFailure{Value: p, Stack: debug.Stack()}
				}
			}()

			task.yield = yield

			fn(task.ctx, task)

			return
		},
	)

	task.resume = resume
	return task
}

// Await submits op and suspends the task until it completes, then
// returns the operation's result. A negative kernel result is
// reported as a syscall.Errno; a submission the service refuses is
// reported without suspending.
func (t *Task) Await(op Op, hints ...Hint) (int32, error) {
	t.Logf("AWAIT %v", op.Opcode())

	req := &request{op: op, thread: AnyThread}
	for _, h := range hints {
		h(req)
	}

	out := t.yield(req)

	t.Logf("RESUME %v %d", op.Opcode(), out.res)

	if out.err != nil {
		return out.res, out.err
	}
	if out.res < 0 {
		return out.res, syscall.Errno(-out.res)
	}
	return out.res, nil
}

// Sleep suspends the task for at least d.
func (t *Task) Sleep(d Order) error {
	_, err := t.Await(Nop{}, NotBefore(t.rt.Elapsed()+d))
	return err
}

// Migrate suspends the task and resumes it on worker th.
func (t *Task) Migrate(th Thread) error {
	_, err := t.Await(Nop{}, On(th))
	return err
}

// Go spawns fn as a new detached task. Like Runtime.Spawn it starts
// running before Go returns.
func (t *Task) Go(fn func(context.Context, *Task)) {
	t.rt.spawn(t.ctx, fn, t)
}

// Thread returns the worker currently running the task, or AnyThread
// while it runs on the goroutine that spawned it.
func (t *Task) Thread() Thread {
	return t.thread
}

// Runtime returns the runtime the task belongs to.
func (t *Task) Runtime() *Runtime {
	return t.rt
}

// Context returns the task's context.
func (t *Task) Context() context.Context {
	return t.ctx
}

// step resumes the body with in. It reports the body's next request,
// or false once the body has returned.
func (t *Task) step(in outcome) (*request, bool) {
	t.Log("STEP")
	return t.resume(in)
}

// release drops everything the finished task references.
func (t *Task) release() {
	t.yield = nil
	t.resume = nil
	if t.tracer != nil {
		t.tracer.End()
		t.tracer = nil
	}
}

func (t *Task) Log(msg string) {
	if trace.IsEnabled() {
		var sb strings.Builder
		taskpath(&sb, t)
		sb.WriteRune(' ')
		sb.WriteString(msg)
		trace.Log(t.ctx, taskTraceCategory, sb.String())
	}
}

func (t *Task) Logf(format string, args ...any) {
	if trace.IsEnabled() {
		var sb strings.Builder
		taskpath(&sb, t)
		sb.WriteRune(' ')
		fmt.Fprintf(&sb, format, args...)
		trace.Log(t.ctx, taskTraceCategory, sb.String())
	}
}

func taskpath(sb *strings.Builder, t *Task) {
	if t == nil {
		return
	}
	taskpath(sb, t.parent)
	fmt.Fprintf(sb, "%p|", t)
}
