// Command zephyr-read reads the head of a file twice through a zephyr
// runtime, once with read and once with readv, from two concurrently
// running tasks.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/webriots/zephyr"
	"github.com/webriots/zephyr/uring"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		path     = flag.String("file", "README.md", "File to read")
		size     = flag.Int("size", 1024, "Bytes to read")
		workers  = flag.Int("workers", 1, "Dispatch workers")
		entries  = flag.Uint("entries", 4, "io_uring submission queue entries")
		loopback = flag.Bool("loopback", false, "Use synchronous system calls instead of io_uring")
		verbose  = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger().Level(level)

	svc, err := newService(*loopback, uint32(*entries), logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to create completion service")
		return 1
	}
	defer svc.Close()

	rt, err := zephyr.New(svc,
		zephyr.WithWorkers(*workers),
		zephyr.WithLogger(logger),
		zephyr.WithFailurePolicy(zephyr.FailureReport),
	)
	if err != nil {
		logger.Error().Err(err).Msg("failed to create runtime")
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var status atomic.Int32
	report := func(name string, data []byte, err error) {
		if err != nil {
			logger.Error().Err(err).Str("task", name).Msg("read failed")
			status.Store(1)
			return
		}
		fmt.Printf("%s:\n%s\n", name, data)
	}

	rt.Spawn(ctx, func(ctx context.Context, task *zephyr.Task) {
		data, err := readFile(task, *path, *size, true)
		report("readv", data, err)
	})
	rt.Spawn(ctx, func(ctx context.Context, task *zephyr.Task) {
		data, err := readFile(task, *path, *size, false)
		report("read", data, err)
	})

	runCtx, stop := context.WithTimeout(ctx, 30*time.Second)
	defer stop()
	if err := rt.RunUntilIdle(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("runtime stopped")
		status.Store(1)
	}

	logger.Debug().Interface("metrics", rt.Metrics().Snapshot()).Msg("done")
	return int(status.Load())
}

func newService(loopback bool, entries uint32, logger zerolog.Logger) (zephyr.CompletionService, error) {
	if !loopback {
		config := uring.DefaultConfig()
		config.Entries = entries
		config.Logger = logger
		ring, err := uring.New(config)
		if err == nil {
			return ring, nil
		}
		if !errors.Is(err, uring.ErrUnsupported) {
			return nil, err
		}
		logger.Warn().Err(err).Msg("falling back to loopback")
	}
	return zephyr.NewLoopback(uring.Exec, nil), nil
}

// readFile opens path and reads up to size bytes from its start.
func readFile(task *zephyr.Task, path string, size int, vectored bool) ([]byte, error) {
	fd, err := task.Await(zephyr.OpenFile(path, os.O_RDONLY, 0))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer task.Await(zephyr.Close{FD: int(fd)})

	buf := make([]byte, size)
	var n int32
	if vectored {
		half := size / 2
		n, err = task.Await(zephyr.Readv{FD: int(fd), Bufs: [][]byte{buf[:half], buf[half:]}})
	} else {
		n, err = task.Await(zephyr.Read{FD: int(fd), Buf: buf})
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return buf[:n], nil
}
