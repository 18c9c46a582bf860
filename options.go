package zephyr

import (
	"fmt"
	"runtime"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultPollWait bounds how long an idle worker blocks in Poll
	// before looking at its inbox and timed continuations again.
	DefaultPollWait = time.Millisecond

	// DefaultSlabCapacity is the number of in-flight operations the
	// table holds before it first grows.
	DefaultSlabCapacity = 256

	// maxWorkers keeps every worker index below AnyThread.
	maxWorkers = int(AnyThread)
)

// runtimeOptions holds configuration for New.
type runtimeOptions struct {
	workers      int
	pollWait     time.Duration
	slabCapacity int
	logger       zerolog.Logger
	policy       FailurePolicy
	onFailure    func(*TaskFailure)
	metrics      *Metrics
}

// Option configures a Runtime.
type Option interface {
	applyRuntime(*runtimeOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyRuntimeFunc func(*runtimeOptions) error
}

func (o *optionImpl) applyRuntime(opts *runtimeOptions) error {
	return o.applyRuntimeFunc(opts)
}

// WithWorkers sets the number of worker goroutines Run starts. The
// default is runtime.GOMAXPROCS(0).
func WithWorkers(n int) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		if n < 1 || n > maxWorkers {
			return fmt.Errorf("%w: workers %d out of range [1, %d]", ErrInvalidOption, n, maxWorkers)
		}
		opts.workers = n
		return nil
	}}
}

// WithPollWait sets the longest time an idle worker blocks waiting
// for completions. Continuations handed over from other workers wait
// at most this long to be noticed.
func WithPollWait(d time.Duration) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		if d <= 0 {
			return fmt.Errorf("%w: poll wait %v must be positive", ErrInvalidOption, d)
		}
		opts.pollWait = d
		return nil
	}}
}

// WithSlabCapacity presizes the in-flight table.
func WithSlabCapacity(n int) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		if n < 0 {
			return fmt.Errorf("%w: slab capacity %d", ErrInvalidOption, n)
		}
		opts.slabCapacity = n
		return nil
	}}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		opts.logger = l
		return nil
	}}
}

// WithFailurePolicy selects how panics escaping task bodies are
// handled. The default is FailureAbort.
func WithFailurePolicy(p FailurePolicy) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		switch p {
		case FailureAbort, FailureReport:
		default:
			return fmt.Errorf("%w: failure policy %v", ErrInvalidOption, p)
		}
		opts.policy = p
		return nil
	}}
}

// WithOnFailure registers a callback receiving task failures under
// FailureReport. It runs on the goroutine that resumed the task.
func WithOnFailure(fn func(*TaskFailure)) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		opts.onFailure = fn
		return nil
	}}
}

// WithMetrics makes the runtime record into m instead of a private
// Metrics value.
func WithMetrics(m *Metrics) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		if m == nil {
			return fmt.Errorf("%w: nil metrics", ErrInvalidOption)
		}
		opts.metrics = m
		return nil
	}}
}

// resolveOptions applies Option values over the defaults.
func resolveOptions(opts []Option) (*runtimeOptions, error) {
	cfg := &runtimeOptions{
		workers:      min(runtime.GOMAXPROCS(0), maxWorkers),
		pollWait:     DefaultPollWait,
		slabCapacity: DefaultSlabCapacity,
		logger:       zerolog.Nop(),
		policy:       FailureAbort,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyRuntime(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.metrics == nil {
		cfg.metrics = NewMetrics()
	}
	return cfg, nil
}
