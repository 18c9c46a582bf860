package zephyr

import (
	"container/heap"
	"context"
	"time"

	"github.com/gammazero/deque"
	"github.com/rs/zerolog"
)

// worker is one completion dispatch loop. Continuations that are due
// run from ready in arrival order; those with a future Order wait in
// timed. Other workers hand continuations over through inbox.
type worker struct {
	id  Thread
	rt  *Runtime
	log zerolog.Logger

	ready deque.Deque[pending]
	timed timedHeap

	inbox struct {
		lock SpinLock
		q    deque.Deque[pending]
	}
	scratch []pending
}

func newWorker(rt *Runtime, id Thread) *worker {
	return &worker{
		id:  id,
		rt:  rt,
		log: rt.log.With().Stringer("worker", id).Logger(),
	}
}

func (w *worker) run(ctx context.Context, untilIdle bool) error {
	w.log.Debug().Msg("worker started")
	defer w.log.Debug().Msg("worker stopped")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		w.drainInbox()
		w.promote()

		for w.ready.Len() > 0 {
			w.resume(w.ready.PopFront())
		}

		if untilIdle && w.rt.live.Load() == 0 {
			return nil
		}

		for c := range w.rt.svc.Poll(ctx, w.pollWait()) {
			w.complete(c)
		}
	}
}

// pollWait is how long the next Poll may block: the configured wait,
// cut short by the earliest timed continuation, and zero when another
// worker has handed something over.
func (w *worker) pollWait() time.Duration {
	wait := w.rt.opts.pollWait

	if w.timed.Len() > 0 {
		now := w.rt.Elapsed()
		next := w.timed[0].order
		if next <= now {
			return 0
		}
		wait = min(wait, (next - now).Duration())
	}

	w.inbox.lock.Lock()
	handed := w.inbox.q.Len()
	w.inbox.lock.Unlock()
	if handed > 0 {
		return 0
	}

	return wait
}

// complete removes the continuation keyed by c from the table and
// routes it to the worker that should resume it.
func (w *worker) complete(c Completion) {
	w.rt.metrics.Completions.Add(1)

	w.rt.lock.Lock()
	p, ok := w.rt.table.Remove(int(c.Key))
	w.rt.lock.Unlock()

	if !ok {
		w.rt.metrics.Strays.Add(1)
		w.log.Warn().Uint64("key", uint64(c.Key)).Int32("res", c.Res).Msg("stray completion")
		return
	}

	p.res = c.Res
	w.route(p)
}

func (w *worker) route(p pending) {
	switch {
	case p.thread.IsAny() || p.thread == w.id:
		w.enqueue(p)
	case int(p.thread) < len(w.rt.workers):
		w.rt.metrics.Handoffs.Add(1)
		w.rt.workers[p.thread].handOver(p)
	default:
		w.rt.metrics.Misrouted.Add(1)
		w.log.Warn().Stringer("affinity", p.thread).Int("workers", len(w.rt.workers)).Msg("affinity names no worker, resuming here")
		w.enqueue(p)
	}
}

// enqueue queues p on this worker, holding it back until its Order is
// due.
func (w *worker) enqueue(p pending) {
	p.seq = w.rt.seq.Add(1)
	if p.order <= w.rt.Elapsed() {
		w.ready.PushBack(p)
		return
	}
	w.rt.metrics.Delayed.Add(1)
	heap.Push(&w.timed, p)
}

// handOver is called by other workers.
func (w *worker) handOver(p pending) {
	w.inbox.lock.Lock()
	w.inbox.q.PushBack(p)
	w.inbox.lock.Unlock()
}

func (w *worker) drainInbox() {
	w.inbox.lock.Lock()
	for w.inbox.q.Len() > 0 {
		w.scratch = append(w.scratch, w.inbox.q.PopFront())
	}
	w.inbox.lock.Unlock()

	for i, p := range w.scratch {
		w.enqueue(p)
		w.scratch[i] = pending{}
	}
	w.scratch = w.scratch[:0]
}

// promote moves due timed continuations to the ready queue.
func (w *worker) promote() {
	if w.timed.Len() == 0 {
		return
	}
	now := w.rt.Elapsed()
	for w.timed.Len() > 0 && w.timed[0].order <= now {
		w.ready.PushBack(heap.Pop(&w.timed).(pending))
	}
}

func (w *worker) resume(p pending) {
	w.rt.metrics.Resumes.Add(1)
	p.task.thread = w.id
	w.rt.drive(p.task, outcome{res: p.res})
}

// timedHeap orders continuations by Order, then by arrival.
type timedHeap []pending

func (h timedHeap) Len() int { return len(h) }

func (h timedHeap) Less(i, j int) bool {
	if h[i].order != h[j].order {
		return h[i].order < h[j].order
	}
	return h[i].seq < h[j].seq
}

func (h timedHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timedHeap) Push(x any) { *h = append(*h, x.(pending)) }

func (h *timedHeap) Pop() any {
	old := *h
	n := len(old)
	p := old[n-1]
	old[n-1] = pending{}
	*h = old[:n-1]
	return p
}
