package observability

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ShutdownFunc is a function to call during shutdown
type ShutdownFunc func(context.Context) error

type namedShutdown struct {
	name string
	fn   ShutdownFunc
}

// ShutdownManager runs registered cleanup functions in reverse registration
// order, so that resources opened first are released last
type ShutdownManager struct {
	logger  *logrus.Logger
	timeout time.Duration

	mu    sync.Mutex
	funcs []namedShutdown
	done  bool
}

// NewShutdownManager creates a new shutdown manager
func NewShutdownManager(logger *logrus.Logger, timeout time.Duration) *ShutdownManager {
	if logger == nil {
		logger = logrus.New()
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{
		logger:  logger,
		timeout: timeout,
	}
}

// Register adds a function to call during shutdown
func (sm *ShutdownManager) Register(name string, fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.funcs = append(sm.funcs, namedShutdown{name: name, fn: fn})
}

// Shutdown calls every registered function once, bounded by the manager
// timeout. Later calls are no-ops.
func (sm *ShutdownManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	if sm.done {
		sm.mu.Unlock()
		return nil
	}
	sm.done = true
	funcs := sm.funcs
	sm.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, sm.timeout)
	defer cancel()

	var errs []error
	for i := len(funcs) - 1; i >= 0; i-- {
		f := funcs[i]
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("%s: shutdown timeout reached", f.name))
			continue
		}

		sm.logger.Infof("Shutting down %s", f.name)
		if err := f.fn(ctx); err != nil {
			sm.logger.WithError(err).Errorf("Shutdown of %s failed", f.name)
			errs = append(errs, fmt.Errorf("%s: %w", f.name, err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	sm.logger.Info("Graceful shutdown complete")
	return nil
}
