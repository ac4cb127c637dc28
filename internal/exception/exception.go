// Package exception converts a panic raised inside user-supplied callbacks
// (acquire, release, Eval, the fold combiner) into an ordinary error, so the
// scope tree can keep running its finalization and aggregation logic instead
// of the process terminating mid-close. It is adapted from the teacher's
// abort-on-panic exception handler into a recover-and-return one: a
// resource-lifecycle runtime must survive a user panic, not crash on it.
package exception

import (
	"fmt"
	"runtime"
	"strings"

	scopeerrors "github.com/orizon-lang/scopeflow/internal/errors"
)

// StackFrame is one frame of a captured stack trace.
type StackFrame struct {
	Function string
	File     string
	Line     int
	PC       uintptr
}

// Recovered describes a panic that Guard caught.
type Recovered struct {
	Value interface{}
	Stack []StackFrame
}

func (r *Recovered) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "recovered panic: %v", r.Value)

	for _, f := range r.Stack {
		fmt.Fprintf(&b, "\n  at %s (%s:%d)", f.Function, f.File, f.Line)
	}

	return b.String()
}

// Guard runs fn, recovering any panic it raises and turning it into a
// *scopeerrors.UserError wrapping a *Recovered. A returned (non-panic) error
// from fn is wrapped the same way, so every caller of Guard has one uniform
// failure shape regardless of whether fn panicked or simply returned an
// error.
func Guard(fn func() (any, error)) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &scopeerrors.UserError{Cause: &Recovered{Value: r, Stack: captureStackTrace()}}
		}
	}()

	v, ferr := fn()
	if ferr != nil {
		return nil, &scopeerrors.UserError{Cause: ferr}
	}

	return v, nil
}

// GuardVoid is Guard for side-effecting callbacks that only return an error,
// such as a resource finalizer or Release.
func GuardVoid(fn func() error) (err error) {
	_, err = Guard(func() (any, error) {
		return nil, fn()
	})

	return err
}

// captureStackTrace walks the call stack above Guard's deferred recover,
// skipping the recover/capture frames themselves.
func captureStackTrace() []StackFrame {
	const maxFrames = 32

	pcs := make([]uintptr, maxFrames)
	n := runtime.Callers(4, pcs)

	frames := make([]StackFrame, 0, n)

	for i := 0; i < n; i++ {
		pc := pcs[i]

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		file, line := fn.FileLine(pc)

		name := fn.Name()
		if lastDot := strings.LastIndex(name, "."); lastDot >= 0 {
			name = name[lastDot+1:]
		}

		if lastSlash := strings.LastIndex(file, "/"); lastSlash >= 0 {
			file = file[lastSlash+1:]
		}

		frames = append(frames, StackFrame{Function: name, File: file, Line: line, PC: pc})
	}

	return frames
}
