package concurrency

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Executor is the "externally supplied executor" an interruptible scope needs
// in order to race an effectful evaluation against an interrupt signal. It is
// a thin wrapper over errgroup.Group, the same primitive the package manager's
// concurrent fetch/resolve pipeline uses for bounded parallel I/O.
type Executor struct {
	g   *errgroup.Group
	ctx context.Context
}

// NewExecutor derives a cancellable Executor from ctx. The returned context is
// cancelled the moment any scheduled task returns a non-nil error, or when
// Wait is called and every task has finished.
func NewExecutor(ctx context.Context) (*Executor, context.Context) {
	g, gctx := errgroup.WithContext(ctx)

	return &Executor{g: g, ctx: gctx}, gctx
}

// Go schedules fn to run on its own goroutine.
func (e *Executor) Go(fn func() error) {
	e.g.Go(fn)
}

// Wait blocks until every scheduled task has returned, and reports the first
// non-nil error, if any.
func (e *Executor) Wait() error {
	return e.g.Wait()
}

// Context returns the context tasks scheduled on this executor should honor.
func (e *Executor) Context() context.Context {
	return e.ctx
}
