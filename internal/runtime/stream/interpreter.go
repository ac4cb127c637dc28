package stream

import (
	scopeerrors "github.com/orizon-lang/scopeflow/internal/errors"
	"github.com/orizon-lang/scopeflow/internal/exception"
	"github.com/orizon-lang/scopeflow/internal/runtime/scope"
)

// ErrorHandler is the stream's installed cleanup continuation: given a bumped
// interrupt loop count, it produces the term that should run in its place.
type ErrorHandler func(loop int) Term

// interp carries the mutable state the fold and uncons loops thread through:
// the current scope (which OpenScope/CloseScope steps mutate) and the
// error handler passed to Compile (consulted only on Interrupted unwinding).
type interp struct {
	current *scope.CompileScope
	handler ErrorHandler
	loop    int
}

// fold repeatedly steps t, feeding each Output/Run segment through g into
// acc, until the term completes (Pure) or fails (Fail). It mirrors the
// coroutine-style loop the design calls for: no native recursion on the
// term's own spine, only on Uncons's bounded inner walk.
func fold(it *interp, t Term, acc any, g func(any, any) any) (any, error) {
	for {
		if cause, ok := it.current.ShallInterrupt(); ok {
			if interrupted, ok := cause.(*scopeerrors.Interrupted); ok {
				term, terminal, err := it.applyInterrupt(interrupted, t)
				if terminal {
					return acc, err
				}

				t = term

				continue
			}

			return acc, cause
		}

		view := ViewL(t)

		switch {
		case view.IsPure:
			return acc, nil
		case view.IsFail:
			if interrupted, ok := view.Err.(*scopeerrors.Interrupted); ok {
				term, terminal, err := it.applyInterrupt(interrupted, nil)
				if terminal {
					return acc, err
				}

				if term != nil {
					t = term

					continue
				}
			}

			return acc, view.Err
		}

		next, result := it.stepEffectful(view.Step, acc, g)
		acc = next
		t = view.K(result)
	}
}

// stepEffectful dispatches one effectful or pure-segment step, returning the
// (possibly updated) accumulator and the Result the continuation should be
// fed. Output and Run are the only steps that touch acc; every other step
// passes it through unchanged.
func (it *interp) stepEffectful(step Term, acc any, g func(any, any) any) (newAcc any, result Result) {
	switch n := step.(type) {
	case Output:
		v, err := foldSegment(acc, n.Seg, g)
		if err != nil {
			return acc, ErrResult(err)
		}

		return v, Ok(nil)

	case Run:
		var res any

		v, err := exception.Guard(func() (any, error) {
			folded, r := n.Seg.Fold(acc, g)
			res = r

			return folded, nil
		})
		if err != nil {
			return acc, ErrResult(err)
		}

		return v, Ok(res)

	case Uncons:
		v, err := it.uncons(n.Inner, n.ChunkSize, n.MaxSteps)
		if err != nil {
			return acc, ErrResult(err)
		}

		return acc, Ok(v)

	case Eval:
		v, err := it.current.InterruptibleEval(n.FX)
		if err != nil {
			return acc, ErrResult(err)
		}

		return acc, Ok(v)

	case Acquire:
		v, _, err := it.current.AcquireResource(n.Acquire, n.Release)
		if err != nil {
			return acc, ErrResult(err)
		}

		return acc, Ok(v)

	case Release:
		return acc, ErrResult(it.current.ReleaseResource(n.Tok))

	case OpenScope:
		child, err := it.current.Open(n.Interruptible)
		if err != nil {
			return acc, ErrResult(err)
		}

		it.current = child

		return acc, Ok(child)

	case CloseScope:
		err := n.Inner.Close()
		it.current = n.Inner.OpenAncestor()

		return acc, ErrResult(err)

	case GetScope:
		return acc, Ok(it.current)

	default:
		return acc, ErrResult(&scopeerrors.IllegalState{Reason: "unrecognized algebra step"})
	}
}

// foldSegment runs g over seg's elements, recovering a panicking combiner
// into a UserError rather than letting it escape the interpreter.
func foldSegment(acc any, seg Segment, g func(any, any) any) (any, error) {
	return exception.Guard(func() (any, error) {
		v, _ := seg.Fold(acc, g)
		return v, nil
	})
}

// UnconsResult is fed back to a stream's continuation as the value of an
// Uncons step: either the inner term was exhausted (Done), or one chunk
// together with the algebra remainder is available.
type UnconsResult struct {
	Done      bool
	Chunk     []any
	Remainder Term
}

// uncons walks inner identically to fold, except that instead of folding
// Output/Run segments into an accumulator it accumulates raw elements until
// chunkSize have been produced or maxSteps work units are spent, then
// returns the chunk paired with whatever remains of inner as a Term.
func (it *interp) uncons(inner Term, chunkSize, maxSteps int) (UnconsResult, error) {
	var collected []any

	steps := 0
	t := inner

	for {
		if maxSteps > 0 && steps >= maxSteps {
			return UnconsResult{Chunk: collected, Remainder: t}, nil
		}

		if cause, ok := it.current.ShallInterrupt(); ok {
			if interrupted, ok := cause.(*scopeerrors.Interrupted); ok {
				term, terminal, err := it.applyInterrupt(interrupted, t)
				if terminal {
					return UnconsResult{}, err
				}

				t = term

				continue
			}

			return UnconsResult{}, cause
		}

		view := ViewL(t)

		switch {
		case view.IsPure:
			if len(collected) > 0 {
				return UnconsResult{Chunk: collected, Remainder: Pure(view.Value)}, nil
			}

			return UnconsResult{Done: true}, nil
		case view.IsFail:
			if interrupted, ok := view.Err.(*scopeerrors.Interrupted); ok {
				term, terminal, err := it.applyInterrupt(interrupted, nil)
				if terminal {
					return UnconsResult{}, err
				}

				if term != nil {
					t = term

					continue
				}
			}

			if len(collected) > 0 {
				return UnconsResult{Chunk: collected, Remainder: Fail(view.Err)}, nil
			}

			return UnconsResult{}, view.Err
		}

		steps++

		switch n := view.Step.(type) {
		case Output:
			split := n.Seg.SplitAt(chunkSize-len(collected), 1)
			for _, c := range split.Emitted {
				collected = append(collected, c...)
			}

			if split.Done {
				t = view.K(Ok(nil))
			} else {
				t = Bind(Output{Seg: split.Tail}, view.K)
			}

			if len(collected) >= chunkSize {
				return UnconsResult{Chunk: collected, Remainder: t}, nil
			}

		case Run:
			split := n.Seg.SplitAt(chunkSize-len(collected), 1)
			for _, c := range split.Emitted {
				collected = append(collected, c...)
			}

			if split.Done {
				t = view.K(Ok(split.Result))
			} else {
				t = Bind(Run{Seg: split.Tail}, view.K)
			}

			if len(collected) >= chunkSize {
				return UnconsResult{Chunk: collected, Remainder: t}, nil
			}

		default:
			_, result := it.stepEffectful(view.Step, nil, nil)
			t = view.K(result)
		}
	}
}

// applyInterrupt implements the interrupt-unwinding rule from the design: if
// the current scope is the one named by cause, or a strict descendant of it,
// the installed handler runs with a bumped loop counter — unless that counter
// has reached maxInterruptDepth, in which case this fails terminally with a
// fresh Interrupted carrying the final count rather than invoking the
// handler again, bounding streams whose handler itself keeps re-raising.
// Otherwise the interrupt does not belong to this sub-tree and resume
// continues unchanged with fallback (the term that was about to run); callers
// on a Fail path pass a nil fallback and propagate the failure themselves.
//
// The per-interp loop counter, not the scope's one-shot signalled flag,
// is what allows a handler to be re-entered many times: ShallInterrupt
// only ever fires once per InterruptContext, but a handler's own returned
// Term can fail with a fresh Interrupted node of its own, routing back
// through this same function on the next loop iteration.
func (it *interp) applyInterrupt(cause *scopeerrors.Interrupted, fallback Term) (term Term, terminal bool, err error) {
	tok := scopeIDAsToken(cause.ScopeID)
	curr := it.current

	mine := curr.ID() == tok || curr.HasAncestor(tok)
	if !mine {
		return fallback, false, nil
	}

	if it.handler == nil {
		return nil, true, cause
	}

	it.loop++

	maxDepth := 256
	if mic := curr.InterruptCtx(); mic != nil {
		maxDepth = mic.MaxInterruptDepth()
	}

	if it.loop >= maxDepth {
		return nil, true, &scopeerrors.Interrupted{ScopeID: tok, Loop: it.loop}
	}

	return it.handler(it.loop), false, nil
}

// scopeIDAsToken narrows a fmt.Stringer-typed ScopeID back to a scope.Token
// for HasAncestor comparisons; Interrupted always carries a genuine Token in
// this implementation (see scope.errInterrupted).
func scopeIDAsToken(s interface{ String() string }) scope.Token {
	if tok, ok := s.(scope.Token); ok {
		return tok
	}

	return scope.Token{}
}

// Compile constructs a fresh root scope (interruptible iff exec is non-nil),
// runs the fold to completion with init and g, and closes the root
// regardless of outcome, compositing any close error with the fold's error.
func Compile(t Term, init any, g func(any, any) any, exec *scope.ExecArgs, handler ErrorHandler) (any, error) {
	root := scope.NewRoot(exec)

	it := &interp{current: root, handler: handler}

	acc, foldErr := fold(it, t, init, g)
	closeErr := root.Close()

	if foldErr != nil && closeErr != nil {
		return acc, scopeErrComposite(foldErr, closeErr)
	}

	if foldErr != nil {
		return acc, foldErr
	}

	return acc, closeErr
}

func scopeErrComposite(a, b error) error {
	return scopeerrors.Composite(a, b)
}
