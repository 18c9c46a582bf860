//go:build unix

package uring

import (
	"context"
	"errors"

	"golang.org/x/sys/unix"

	"github.com/webriots/zephyr"
)

// Exec performs op synchronously with system calls. It is a
// zephyr.Executor: plugged into zephyr.NewLoopback it gives a portable
// completion service doing real file I/O.
func Exec(ctx context.Context, op zephyr.Op) int32 {
	switch op := op.(type) {
	case zephyr.Nop, zephyr.Timeout:
		return zephyr.NopExecutor(ctx, op)

	case zephyr.Read:
		return result(unix.Pread(op.FD, op.Buf, int64(op.Offset)))

	case zephyr.Write:
		return result(unix.Pwrite(op.FD, op.Buf, int64(op.Offset)))

	case zephyr.Readv:
		return vectored(op.Bufs, op.Offset, func(b []byte, off int64) (int, error) {
			return unix.Pread(op.FD, b, off)
		})

	case zephyr.Writev:
		return vectored(op.Bufs, op.Offset, func(b []byte, off int64) (int, error) {
			return unix.Pwrite(op.FD, b, off)
		})

	case zephyr.Openat:
		dir := op.Dir
		if dir == zephyr.AtFDCWD {
			dir = unix.AT_FDCWD
		}
		return result(unix.Openat(dir, op.Path, op.Flags, op.Mode))

	case zephyr.Close:
		return result(0, unix.Close(op.FD))

	case zephyr.Fsync:
		return result(0, unix.Fsync(op.FD))

	default:
		return -int32(unix.ENOSYS)
	}
}

// vectored runs io over bufs back to back, stopping at the first short
// transfer. An error after some bytes moved reports the bytes moved.
func vectored(bufs [][]byte, offset uint64, io func([]byte, int64) (int, error)) int32 {
	var total int
	for _, b := range bufs {
		n, err := io(b, int64(offset)+int64(total))
		if err != nil {
			if total > 0 {
				return int32(total)
			}
			return result(0, err)
		}
		total += n
		if n < len(b) {
			break
		}
	}
	return int32(total)
}

func result(n int, err error) int32 {
	if err == nil {
		return int32(n)
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		return -int32(errno)
	}
	return -int32(unix.EIO)
}
