package zephyr

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func collect(ctx context.Context, svc CompletionService, want int) []Completion {
	var got []Completion
	for len(got) < want && ctx.Err() == nil {
		for c := range svc.Poll(ctx, 10*time.Millisecond) {
			got = append(got, c)
		}
	}
	return got
}

func TestLoopbackCompletes(t *testing.T) {
	r := require.New(t)
	ctx := testContext(t)

	l := newLoopback(t, nil)

	r.NoError(l.Submit(Nop{}, 1))
	r.NoError(l.Submit(Write{FD: 1}, 2))
	r.NoError(l.Submit(Timeout{D: time.Millisecond}, 3))

	got := collect(ctx, l, 3)
	r.ElementsMatch([]Completion{
		{Key: 1, Res: 0},
		{Key: 2, Res: -int32(syscall.ENOSYS)},
		{Key: 3, Res: 0},
	}, got)
}

func TestLoopbackPollEmpty(t *testing.T) {
	r := require.New(t)

	l := newLoopback(t, nil)

	start := time.Now()
	for range l.Poll(context.Background(), 0) {
		r.Fail("no completion expected")
	}
	r.Less(time.Since(start), 100*time.Millisecond)

	start = time.Now()
	for range l.Poll(context.Background(), 20*time.Millisecond) {
		r.Fail("no completion expected")
	}
	r.GreaterOrEqual(time.Since(start), 20*time.Millisecond)
}

func TestLoopbackPollCanceled(t *testing.T) {
	r := require.New(t)

	l := newLoopback(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	n := 0
	for range l.Poll(ctx, -1) {
		n++
	}
	r.Zero(n)
	r.ErrorIs(ctx.Err(), context.DeadlineExceeded)
}

func TestLoopbackQueueFull(t *testing.T) {
	r := require.New(t)

	gate := make(chan struct{})
	exec := func(ctx context.Context, op Op) int32 {
		select {
		case <-gate:
		case <-ctx.Done():
		}
		return 0
	}
	l := NewLoopback(exec, &LoopbackConfig{Depth: 1, Executors: 1})
	defer l.Close()

	full := 0
	for i := range 3 {
		err := l.Submit(Nop{}, Key(i))
		if err != nil {
			r.ErrorIs(err, ErrQueueFull)
			full++
		}
	}
	r.Positive(full)

	close(gate)
}

func TestLoopbackClosed(t *testing.T) {
	r := require.New(t)

	l := NewLoopback(nil, nil)
	r.NoError(l.Close())
	r.NoError(l.Close())

	r.ErrorIs(l.Submit(Nop{}, 0), ErrClosed)
}

func TestLoopbackCloseCancelsExecutor(t *testing.T) {
	r := require.New(t)

	l := NewLoopback(nil, &LoopbackConfig{Depth: 4, Executors: 1})
	r.NoError(l.Submit(Timeout{D: time.Hour}, 0))

	done := make(chan struct{})
	go func() {
		_ = l.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		r.Fail("Close did not interrupt a running Timeout")
	}
}

func TestPollChannelDrains(t *testing.T) {
	r := require.New(t)

	ch := make(chan Completion, 4)
	for i := range 4 {
		ch <- Completion{Key: Key(i)}
	}

	var keys []Key
	for c := range PollChannel(context.Background(), ch, -1) {
		keys = append(keys, c.Key)
	}
	r.Equal([]Key{0, 1, 2, 3}, keys)

	n := 0
	for range PollChannel(context.Background(), ch, 0) {
		n++
	}
	r.Zero(n)
}

func TestPollChannelStopsEarly(t *testing.T) {
	r := require.New(t)

	ch := make(chan Completion, 4)
	for i := range 4 {
		ch <- Completion{Key: Key(i)}
	}

	for c := range PollChannel(context.Background(), ch, 0) {
		r.Equal(Key(0), c.Key)
		break
	}
	r.Len(ch, 3)
}
