//go:build !unix

package uring

import (
	"context"

	"github.com/webriots/zephyr"
)

// Exec completes Nop and Timeout; other operations need a unix system.
func Exec(ctx context.Context, op zephyr.Op) int32 {
	return zephyr.NopExecutor(ctx, op)
}
