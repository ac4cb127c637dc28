package scope

import (
	"sync"
	"sync/atomic"

	"github.com/orizon-lang/scopeflow/internal/runtime/concurrency"
)

// ExecArgs carries the executor a newly-opened interruptible scope will use
// to race effect evaluation against its interrupt signal, plus the
// configured interrupt-depth cap (config.Options.MaxInterruptDepth); zero
// leaves defaultMaxInterruptDepth in effect.
type ExecArgs struct {
	Executor          *concurrency.Executor
	MaxInterruptDepth int
}

// InterruptContext is the shared signalling record for one interruptible
// sub-tree of the scope graph. It is created when an interruptible scope is
// opened and inherited by reference into every descendant scope, until a
// descendant opens its own interruptible scope and shadows it.
type InterruptContext struct {
	executor *concurrency.Executor
	promise  *concurrency.Promise

	mu    sync.Mutex
	cause error

	signalled atomic.Bool

	interruptScopeID Token
	maxInterruptDepth int
}

const defaultMaxInterruptDepth = 256

// NewInterruptContext creates a fresh InterruptContext rooted at scopeID.
func NewInterruptContext(exec *concurrency.Executor, scopeID Token) *InterruptContext {
	return &InterruptContext{
		executor:          exec,
		promise:           concurrency.NewPromise(),
		interruptScopeID:  scopeID,
		maxInterruptDepth: defaultMaxInterruptDepth,
	}
}

// newInterruptContextFrom is NewInterruptContext plus the depth override
// carried on args, used by CompileScope.Open/NewRoot so a configured
// MaxInterruptDepth actually reaches the InterruptContext it governs.
func newInterruptContextFrom(args *ExecArgs, scopeID Token) *InterruptContext {
	ic := NewInterruptContext(args.Executor, scopeID)

	if args.MaxInterruptDepth > 0 {
		ic.SetMaxInterruptDepth(args.MaxInterruptDepth)
	}

	return ic
}

// Signal completes the context's promise with cause, exactly once. Repeated
// signals after the first are no-ops.
func (ic *InterruptContext) Signal(cause error) {
	ic.mu.Lock()
	if ic.cause == nil {
		ic.cause = cause
	}
	ic.mu.Unlock()

	ic.promise.Complete(cause)
}

// Cause returns the signalled cause, if any has been set.
func (ic *InterruptContext) Cause() (error, bool) {
	ic.mu.Lock()
	defer ic.mu.Unlock()

	if ic.cause == nil {
		return nil, false
	}

	return ic.cause, true
}

// Consume atomically reads the cause and flips signalled true the first time
// it is called after a Signal; subsequent calls return (nil, false). This is
// the pre-step probe the interpreter uses between algebra steps.
func (ic *InterruptContext) Consume() (error, bool) {
	cause, ok := ic.Cause()
	if !ok {
		return nil, false
	}

	if ic.signalled.CompareAndSwap(false, true) {
		return cause, true
	}

	return nil, false
}

// TrySetSignalled is used by InterruptibleEval's race loser path: it wins the
// race to be the one to report the interrupt iff signalled still reads
// false, preventing shallInterrupt and interruptibleEval from both
// delivering the same cause.
func (ic *InterruptContext) TrySetSignalled() bool {
	return ic.signalled.CompareAndSwap(false, true)
}

// IsSignalled reports whether the interrupt cause has already been consumed
// (by Consume or by the losing side of InterruptibleEval's race). Once true,
// InterruptibleEval no longer needs to race fx against the promise: the
// cause has already been, or is being, delivered elsewhere.
func (ic *InterruptContext) IsSignalled() bool {
	return ic.signalled.Load()
}

// IsRaised reports whether Signal has been called at all, regardless of
// whether the cause has been consumed yet.
func (ic *InterruptContext) IsRaised() bool {
	return ic.promise.IsCompleted()
}

// ScopeID returns the id of the scope this context originates at.
func (ic *InterruptContext) ScopeID() Token { return ic.interruptScopeID }

// MaxInterruptDepth returns the loop-counter cap guarding self-re-entrant
// error handlers from looping forever within one scope.
func (ic *InterruptContext) MaxInterruptDepth() int { return ic.maxInterruptDepth }

// SetMaxInterruptDepth overrides the default cap (config wiring).
func (ic *InterruptContext) SetMaxInterruptDepth(n int) {
	if n > 0 {
		ic.maxInterruptDepth = n
	}
}
