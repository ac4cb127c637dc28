// Package errors provides the named error kinds the scope tree and step
// interpreter raise, plus CompositeFailure, the flattening aggregate used
// whenever more than one finalizer or close path fails at once.
package errors

import (
	"fmt"
	"strings"
)

// Category groups related error kinds the same way the teacher's
// StandardError taxonomy does, so a caller can triage on Category without
// needing to switch on the concrete type.
type Category string

const (
	CategoryLifecycle  Category = "LIFECYCLE"
	CategoryInterrupt  Category = "INTERRUPT"
	CategoryUser       Category = "USER"
	CategoryAggregated Category = "AGGREGATED"
)

// AcquireAfterScopeClosed is raised when acquireResource is attempted on a
// scope whose open flag has already flipped false.
type AcquireAfterScopeClosed struct {
	ScopeID fmt.Stringer
}

func (e *AcquireAfterScopeClosed) Error() string {
	return fmt.Sprintf("[%s] acquire after scope closed: %s", CategoryLifecycle, e.ScopeID)
}

// IllegalState covers the two invalid transitions the spec calls out:
// interrupting a non-interruptible scope, and re-opening a closed root with
// no open ancestor to delegate to.
type IllegalState struct {
	Reason string
}

func (e *IllegalState) Error() string {
	return fmt.Sprintf("[%s] illegal state: %s", CategoryLifecycle, e.Reason)
}

// Interrupted is the marker error used to unwind a stream when a scope (or
// an ancestor of it) has been interrupted. Loop counts re-entries of the
// stream's own error handler within the same scope, guarding against a
// handler that re-raises forever.
type Interrupted struct {
	ScopeID fmt.Stringer
	Loop    int
}

func (e *Interrupted) Error() string {
	return fmt.Sprintf("[%s] interrupted at %s (loop=%d)", CategoryInterrupt, e.ScopeID, e.Loop)
}

// UserError wraps a failure surfaced by user-supplied code: an `acquire`,
// `release`, effectful `Eval`, or fold combiner that returned an error or
// panicked.
type UserError struct {
	Cause error
}

func (e *UserError) Error() string {
	return fmt.Sprintf("[%s] %s", CategoryUser, e.Cause)
}

func (e *UserError) Unwrap() error { return e.Cause }

// CompositeFailure aggregates two or more errors collected along a single
// finalization or close path. It never nests: Flatten collapses any
// CompositeFailure found among the inputs into the parent list, and a list
// that reduces to a single error is returned unwrapped by Composite.
type CompositeFailure struct {
	Errors []error
}

func (e *CompositeFailure) Error() string {
	parts := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		parts[i] = err.Error()
	}

	return fmt.Sprintf("[%s] %d errors: %s", CategoryAggregated, len(e.Errors), strings.Join(parts, "; "))
}

func (e *CompositeFailure) Unwrap() []error { return e.Errors }

// Flatten expands any CompositeFailure in errs into its members, dropping
// nils, so the result never contains a nested CompositeFailure.
func Flatten(errs []error) []error {
	out := make([]error, 0, len(errs))

	for _, err := range errs {
		if err == nil {
			continue
		}

		if cf, ok := err.(*CompositeFailure); ok {
			out = append(out, Flatten(cf.Errors)...)
			continue
		}

		out = append(out, err)
	}

	return out
}

// Composite builds the aggregate error for errs: nil if empty, the bare
// error if exactly one remains after flattening, else a CompositeFailure.
// This is testable property 8 from the spec: a single failure is never
// wrapped, and a flattened list never contains a nested composite.
func Composite(errs ...error) error {
	flat := Flatten(errs)

	switch len(flat) {
	case 0:
		return nil
	case 1:
		return flat[0]
	default:
		return &CompositeFailure{Errors: flat}
	}
}
