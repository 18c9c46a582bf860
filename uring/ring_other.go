//go:build !linux

package uring

import (
	"context"
	"iter"
	"time"

	"github.com/webriots/zephyr"
)

// Ring is unavailable off Linux; New always fails with ErrUnsupported.
type Ring struct{}

var _ zephyr.CompletionService = (*Ring)(nil)

// New returns ErrUnsupported.
func New(config *Config) (*Ring, error) {
	return nil, ErrUnsupported
}

func (r *Ring) Submit(op zephyr.Op, key zephyr.Key) error {
	return ErrUnsupported
}

func (r *Ring) Poll(ctx context.Context, wait time.Duration) iter.Seq[zephyr.Completion] {
	return func(func(zephyr.Completion) bool) {}
}

func (r *Ring) Close() error {
	return nil
}
