package scope

import (
	scopeerrors "github.com/orizon-lang/scopeflow/internal/errors"
)

// compositeOrNil aggregates errs the same way scopeerrors.Composite does;
// kept as a package-local alias so call sites in this package read naturally.
func compositeOrNil(errs []error) error {
	return scopeerrors.Composite(errs...)
}

func errAcquireAfterClosed(id Token) error {
	return &scopeerrors.AcquireAfterScopeClosed{ScopeID: id}
}

func errIllegalState(reason string) error {
	return &scopeerrors.IllegalState{Reason: reason}
}

func errInterrupted(id Token, loop int) error {
	return &scopeerrors.Interrupted{ScopeID: id, Loop: loop}
}
