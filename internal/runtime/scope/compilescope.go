package scope

import (
	"sync"

	"github.com/orizon-lang/scopeflow/internal/exception"
)

// CompileScope is one node of the scope tree: it owns a set of registered
// resources and child scopes, plus an optional InterruptContext shared with
// (or shadowed by) its descendants. Every field under mu transitions exactly
// once from open to closed; nothing transitions back.
type CompileScope struct {
	id        Token
	parent    *CompileScope
	interrupt *InterruptContext

	mu        sync.Mutex
	open      bool
	resources []*Resource
	children  []*CompileScope
}

// NewRoot creates the root of a new scope tree. Pass non-nil interruptible to
// make the root itself interruptible.
func NewRoot(interruptible *ExecArgs) *CompileScope {
	id := NewToken()

	s := &CompileScope{id: id, open: true}

	if interruptible != nil {
		s.interrupt = newInterruptContextFrom(interruptible, id)
	}

	return s
}

// ID returns this scope's token.
func (s *CompileScope) ID() Token { return s.id }

// IsOpen reports whether this scope has not yet been closed.
func (s *CompileScope) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.open
}

// Parent returns the parent scope, or nil for the root.
func (s *CompileScope) Parent() *CompileScope { return s.parent }

// InterruptCtx returns this scope's InterruptContext, or nil if the scope
// was never opened interruptible and inherited none from an ancestor.
func (s *CompileScope) InterruptCtx() *InterruptContext { return s.interrupt }

// Register atomically prepends r to this scope's resources so that
// iteration order equals reverse-acquisition order. Returns false without
// registering if the scope is already closed.
func (s *CompileScope) Register(r *Resource) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return false
	}

	s.resources = append([]*Resource{r}, s.resources...)

	return true
}

// AcquireResource registers a fresh pending Resource (failing with
// AcquireAfterScopeClosed if this scope is closed), runs acquire, installs a
// finalizer that runs release(value), and returns the value and the
// resource's token. Acquisition failure unregisters and releases the
// partially-created resource, composing the acquire error with any cleanup
// error.
func (s *CompileScope) AcquireResource(acquire func() (any, error), release func(any) error) (any, Token, error) {
	r := NewResource()

	if !s.Register(r) {
		return nil, Token{}, errAcquireAfterClosed(s.id)
	}

	v, err := exception.Guard(acquire)
	if err != nil {
		s.unregisterResource(r.ID())

		if relErr := r.Release(); relErr != nil {
			return nil, Token{}, compositeOrNil([]error{err, relErr})
		}

		return nil, Token{}, err
	}

	finalizer := func() error {
		return exception.GuardVoid(func() error { return release(v) })
	}

	if acqErr := r.Acquired(finalizer); acqErr != nil {
		return nil, Token{}, acqErr
	}

	return v, r.ID(), nil
}

// ReleaseResource removes the resource with id from this scope (if still
// present) and runs its release path. A resource already released or leased
// away elsewhere is simply absent, and that is success.
func (s *CompileScope) ReleaseResource(id Token) error {
	r := s.unregisterResource(id)
	if r == nil {
		return nil
	}

	return r.Release()
}

func (s *CompileScope) unregisterResource(id Token) *Resource {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, r := range s.resources {
		if r.ID() == id {
			s.resources = append(s.resources[:i:i], s.resources[i+1:]...)
			return r
		}
	}

	return nil
}

// Open creates a child of this scope. If this scope is itself already
// closed, Open delegates to the nearest open ancestor; if none exists (the
// root closed with nothing above it), it fails with IllegalState.
func (s *CompileScope) Open(interruptible *ExecArgs) (*CompileScope, error) {
	s.mu.Lock()

	if s.open {
		id := NewToken()

		ic := s.interrupt
		if interruptible != nil {
			ic = newInterruptContextFrom(interruptible, id)
		}

		child := &CompileScope{id: id, parent: s, interrupt: ic, open: true}
		s.children = append([]*CompileScope{child}, s.children...)

		s.mu.Unlock()

		return child, nil
	}

	parent := s.parent
	s.mu.Unlock()

	if parent == nil {
		return nil, errIllegalState("open: root scope already closed")
	}

	return parent.OpenAncestor().Open(interruptible)
}

// ReleaseChildScope unregisters the child with id from this scope's
// children. It performs no finalization: the child is expected to have
// already closed itself.
func (s *CompileScope) ReleaseChildScope(id Token) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, c := range s.children {
		if c.id == id {
			s.children = append(s.children[:i:i], s.children[i+1:]...)
			return
		}
	}
}

// Close idempotently tears down this scope: every child is closed first
// (most-recently-opened first, since children are prepended), then every
// resource is released in reverse-acquisition order, and finally this scope
// unregisters from its parent. All collected errors are aggregated into a
// single CompositeFailure (or returned bare if there is exactly one, or nil).
func (s *CompileScope) Close() error {
	s.mu.Lock()

	if !s.open {
		s.mu.Unlock()
		return nil
	}

	s.open = false
	children := s.children
	resources := s.resources
	s.children = nil
	s.resources = nil

	s.mu.Unlock()

	var errs []error

	for _, c := range children {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	for _, r := range resources {
		if err := r.Release(); err != nil {
			errs = append(errs, err)
		}
	}

	if s.parent != nil {
		s.parent.ReleaseChildScope(s.id)
	}

	return compositeOrNil(errs)
}

// OpenAncestor walks parent pointers until it finds an open scope, returning
// self if this scope has no parent.
func (s *CompileScope) OpenAncestor() *CompileScope {
	cur := s

	for {
		if cur.IsOpen() || cur.parent == nil {
			return cur
		}

		cur = cur.parent
	}
}

// HasAncestor reports whether any strict ancestor of this scope has id.
func (s *CompileScope) HasAncestor(id Token) bool {
	for cur := s.parent; cur != nil; cur = cur.parent {
		if cur.id == id {
			return true
		}
	}

	return false
}

// Lease snapshots, at the moment of the call, the resources of this scope,
// its direct children, and all of its ancestors, and leases every one of
// them. The returned handle's Cancel cancels every underlying lease and
// aggregates any errors. Lease returns false if this scope is already
// closed; resources acquired after the snapshot are not covered.
func (s *CompileScope) Lease() (Lease, bool) {
	s.mu.Lock()

	if !s.open {
		s.mu.Unlock()
		return nil, false
	}

	resources := append([]*Resource(nil), s.resources...)

	for _, c := range s.children {
		c.mu.Lock()
		resources = append(resources, c.resources...)
		c.mu.Unlock()
	}

	s.mu.Unlock()

	for anc := s.parent; anc != nil; anc = anc.parent {
		anc.mu.Lock()
		resources = append(resources, anc.resources...)
		anc.mu.Unlock()
	}

	leases := make([]Lease, 0, len(resources))

	for _, r := range resources {
		if l, ok := r.Lease(); ok {
			leases = append(leases, l)
		}
	}

	return &compositeLease{leases: leases}, true
}

// Interrupt signals this scope's InterruptContext exactly once. It fails
// with IllegalState if the scope is not interruptible. A nil cause is
// replaced with a synthesized Interrupted marker at loop 0.
func (s *CompileScope) Interrupt(cause error) error {
	if s.interrupt == nil {
		return errIllegalState("interrupt: scope is not interruptible")
	}

	if cause == nil {
		cause = errInterrupted(s.interrupt.ScopeID(), 0)
	}

	s.interrupt.Signal(cause)

	return nil
}

// IsInterrupted reports whether this scope is interruptible and its context
// has a cause set (consumed or not).
func (s *CompileScope) IsInterrupted() bool {
	if s.interrupt == nil {
		return false
	}

	_, ok := s.interrupt.Cause()

	return ok
}

// ShallInterrupt is the consume-at-most-once probe the interpreter runs
// between algebra steps: it returns the cause the first time after Interrupt
// has been called, and (nil, false) afterwards and whenever the scope is not
// interruptible.
func (s *CompileScope) ShallInterrupt() (error, bool) {
	if s.interrupt == nil {
		return nil, false
	}

	return s.interrupt.Consume()
}

// InterruptibleEval runs fx, racing it against this scope's interrupt
// promise on the executor when the scope is interruptible and the interrupt
// has not already been signalled/consumed. If fx wins, its result is
// returned. If the interrupt wins the race, InterruptibleEval attempts to
// claim delivery of the cause via the shared signalled flag; if shallInterrupt
// has already claimed it concurrently, InterruptibleEval falls back to
// waiting for fx instead of delivering the cause twice.
func (s *CompileScope) InterruptibleEval(fx func() (any, error)) (any, error) {
	ic := s.interrupt
	if ic == nil || ic.IsSignalled() {
		return exception.Guard(fx)
	}

	type outcome struct {
		v   any
		err error
	}

	resultCh := make(chan outcome, 1)

	ic.executor.Go(func() error {
		v, err := exception.Guard(fx)
		resultCh <- outcome{v, err}

		return nil
	})

	done, cancelGet := ic.promise.CancellableGet()

	select {
	case r := <-resultCh:
		cancelGet()
		return r.v, r.err
	case <-done:
		if ic.TrySetSignalled() {
			cause, _ := ic.Cause()
			return nil, cause
		}

		r := <-resultCh

		return r.v, r.err
	}
}
