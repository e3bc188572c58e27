// Package goroutine runs bounded background work, such as audit delivery,
// that must never hold up the request that scheduled it.
package goroutine

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/shandysiswandi/otpgate/internal/pkg/stacktrace"
	"go.uber.org/atomic"
)

// DefaultMaxGoroutine is used per CPU when NewManager receives a non-positive limit.
const DefaultMaxGoroutine int = 100

// ErrPanic wraps a value recovered from a task.
var ErrPanic = errors.New("goroutine: task panicked")

// Manager runs tasks with a concurrency limit. A task scheduled while the
// limit is reached, or after Wait, is dropped rather than queued.
type Manager struct {
	wg   sync.WaitGroup
	sema chan struct{}

	mu   sync.Mutex
	errs []error

	stateMu sync.RWMutex
	closed  bool

	dropped *atomic.Int64
}

// NewManager creates a Manager running at most maxGoroutine tasks at once.
func NewManager(maxGoroutine int) *Manager {
	if maxGoroutine < 1 {
		maxGoroutine = runtime.NumCPU() * DefaultMaxGoroutine
	}

	return &Manager{
		sema:    make(chan struct{}, maxGoroutine),
		dropped: atomic.NewInt64(0),
	}
}

// Go schedules f and reports whether it was accepted. The task is skipped
// when ctx is already done by the time it starts.
func (g *Manager) Go(ctx context.Context, f func(ctx context.Context) error) bool {
	if g == nil {
		return false
	}

	g.stateMu.RLock()
	defer g.stateMu.RUnlock()

	if g.closed {
		g.dropped.Inc()
		slog.WarnContext(ctx, "goroutine manager is closed, task dropped")
		return false
	}

	select {
	case g.sema <- struct{}{}:
	default:
		g.dropped.Inc()
		slog.WarnContext(ctx, "goroutine limit reached, task dropped", "limit", cap(g.sema))
		return false
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer func() { <-g.sema }()
		defer func() {
			if rvr := recover(); rvr != nil {
				slog.ErrorContext(ctx, "panic occurred in goroutine", "because", rvr, "stack", g.stack())
				g.collect(ErrPanic)
			}
		}()

		if err := ctx.Err(); err != nil {
			slog.WarnContext(ctx, "goroutine canceled", "because", err)
			return
		}
		if err := f(ctx); err != nil {
			g.collect(err)
		}
	}()

	return true
}

func (*Manager) stack() any {
	if paths := stacktrace.Frames(2); len(paths) > 0 {
		return paths
	}
	return string(debug.Stack())
}

func (g *Manager) collect(err error) {
	g.mu.Lock()
	g.errs = append(g.errs, err)
	g.mu.Unlock()
}

// Dropped returns how many tasks were rejected so far.
func (g *Manager) Dropped() int64 {
	if g == nil {
		return 0
	}
	return g.dropped.Load()
}

// Wait stops accepting tasks, blocks until running ones finish and returns
// their joined errors.
func (g *Manager) Wait() error {
	return g.WaitContext(context.Background())
}

// WaitContext is Wait bounded by ctx. Tasks still running when ctx ends are
// abandoned and ctx's error is joined to the result.
func (g *Manager) WaitContext(ctx context.Context) error {
	if g == nil {
		return nil
	}

	g.stateMu.Lock()
	g.closed = true
	g.stateMu.Unlock()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	var ctxErr error
	select {
	case <-done:
	case <-ctx.Done():
		ctxErr = ctx.Err()
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return errors.Join(append(g.errs, ctxErr)...)
}
