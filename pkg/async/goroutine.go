package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SafeGo executes a function in a goroutine with:
// - Context cancellation support
// - Panic recovery
// - Timeout enforcement
// - Error logging
//
// Use this instead of bare `go func()` to prevent goroutine leaks and crashes.
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, log *logrus.Logger, fn func(context.Context) error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	go func() {
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				log.WithField("stack", string(debug.Stack())).Errorf("[SafeGo] PANIC in %s: %v", taskName, r)
			}
		}()

		if err := fn(ctx); err != nil {
			// Caller decides whether this is critical, we only report it
			log.WithError(err).Warnf("[SafeGo] Error in %s", taskName)
		}
	}()
}

// Batch processes items concurrently with at most workers in flight.
// Each call gets its own timeout. Returns all errors encountered, panics included.
func Batch[T any](ctx context.Context, items []T, workers int, timeout time.Duration,
	fn func(context.Context, T) error) []error {

	if workers <= 0 {
		workers = 1
	}

	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	sem := make(chan struct{}, workers)

	record := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	for _, item := range items {
		select {
		case <-ctx.Done():
			record(ctx.Err())
			wg.Wait()
			return errs
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(item T) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					record(fmt.Errorf("panic: %v", r))
				}
			}()

			taskCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			if err := fn(taskCtx, item); err != nil {
				record(err)
			}
		}(item)
	}

	wg.Wait()
	return errs
}
