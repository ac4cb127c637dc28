package scope

import (
	"sync"
	"sync/atomic"

	"github.com/orizon-lang/scopeflow/internal/exception"
)

// Finalizer releases whatever a Resource's acquisition allocated.
type Finalizer func() error

type resourceState int32

const (
	resourcePending resourceState = iota
	resourceOpen
	resourceClosed
)

// Resource represents one acquired resource: a finalizer paired with a lease
// count, transitioning Pending -> Open -> Closed and never backwards. The
// finalizer runs exactly once, only once leases has dropped to zero and a
// release has been requested.
type Resource struct {
	id Token

	mu        sync.Mutex
	state     resourceState
	finalizer Finalizer
	pending   bool // a release has been requested

	leases atomic.Int64
}

// NewResource allocates a Resource in Pending state with no finalizer and
// zero leases.
func NewResource() *Resource {
	return &Resource{id: NewToken(), state: resourcePending}
}

// ID returns the resource's token.
func (r *Resource) ID() Token { return r.id }

// Acquired installs finalizer, completing the Pending -> Open transition. If
// the resource has already been closed (the scope it belongs to closed while
// acquisition was still in flight), the finalizer is run immediately instead
// and any error it raises is returned.
func (r *Resource) Acquired(finalizer Finalizer) error {
	r.mu.Lock()

	if r.state == resourceClosed {
		r.mu.Unlock()

		return exception.GuardVoid(finalizer)
	}

	r.finalizer = finalizer
	r.state = resourceOpen

	r.mu.Unlock()

	return nil
}

// Lease increments the lease count and returns a handle whose Cancel
// decrements it, running the finalizer if the count reaches zero and release
// was already requested. Lease returns false if the resource is not Open.
func (r *Resource) Lease() (Lease, bool) {
	r.mu.Lock()

	if r.state != resourceOpen {
		r.mu.Unlock()

		return nil, false
	}

	r.leases.Add(1)
	r.mu.Unlock()

	cancelled := new(atomic.Bool)

	return leaseFunc(func() error {
		if !cancelled.CompareAndSwap(false, true) {
			return nil
		}

		return r.cancelLease()
	}), true
}

func (r *Resource) cancelLease() error {
	remaining := r.leases.Add(-1)

	r.mu.Lock()
	shouldFinalize := remaining == 0 && r.pending && r.state == resourceOpen
	if shouldFinalize {
		r.state = resourceClosed
	}
	finalizer := r.finalizer
	r.mu.Unlock()

	if !shouldFinalize {
		return nil
	}

	return exception.GuardVoid(finalizer)
}

// Release marks the resource for release. If no leases are outstanding the
// finalizer runs synchronously now and the resource transitions to Closed;
// otherwise the release is recorded and the finalizer runs when the last
// lease is cancelled. Release on an already-Closed or still-Pending resource
// is a no-op success.
func (r *Resource) Release() error {
	r.mu.Lock()

	switch r.state {
	case resourceClosed:
		r.mu.Unlock()
		return nil
	case resourcePending:
		// acquisition never completed; nothing to finalize, but mark it so
		// a late Acquired call finalizes immediately instead of opening.
		r.state = resourceClosed
		r.mu.Unlock()

		return nil
	}

	r.pending = true

	if r.leases.Load() != 0 {
		r.mu.Unlock()
		return nil
	}

	r.state = resourceClosed
	finalizer := r.finalizer

	r.mu.Unlock()

	return exception.GuardVoid(finalizer)
}
