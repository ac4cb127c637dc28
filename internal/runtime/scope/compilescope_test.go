package scope

import (
	"errors"
	"sync"
	"testing"

	scopeerrors "github.com/orizon-lang/scopeflow/internal/errors"
)

func acquireOK(root *CompileScope, order *[]string, name string) (Token, error) {
	_, id, err := root.AcquireResource(
		func() (any, error) { return name, nil },
		func(any) error { *order = append(*order, name); return nil },
	)

	return id, err
}

// S1: ordered release across three resources acquired in one scope.
func TestCompileScope_OrderedRelease(t *testing.T) {
	root := NewRoot(nil)

	var order []string

	if _, err := acquireOK(root, &order, "A"); err != nil {
		t.Fatal(err)
	}

	if _, err := acquireOK(root, &order, "B"); err != nil {
		t.Fatal(err)
	}

	if _, err := acquireOK(root, &order, "C"); err != nil {
		t.Fatal(err)
	}

	if err := root.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	want := []string{"C", "B", "A"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}

	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

// S2: a failing acquire surfaces its error, and closing the scope still
// finalizes what succeeded before it.
func TestCompileScope_FailingAcquire(t *testing.T) {
	root := NewRoot(nil)

	var order []string

	if _, err := acquireOK(root, &order, "A"); err != nil {
		t.Fatal(err)
	}

	wantErr := errors.New("boom")

	_, _, err := root.AcquireResource(
		func() (any, error) { return nil, wantErr },
		func(any) error { return nil },
	)

	var ue *scopeerrors.UserError
	if !errors.As(err, &ue) || !errors.Is(ue, wantErr) {
		t.Fatalf("expected UserError wrapping %v, got %v", wantErr, err)
	}

	if err := root.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if len(order) != 1 || order[0] != "A" {
		t.Fatalf("expected A finalized on close after the failed sibling acquire, got %v", order)
	}
}

// S3: failing finalizers during close are all run and composited.
func TestCompileScope_FailingFinalizersComposite(t *testing.T) {
	root := NewRoot(nil)

	errA := errors.New("EA")
	errB := errors.New("EB")

	ranA, ranB := false, false

	if _, _, err := root.AcquireResource(
		func() (any, error) { return "A", nil },
		func(any) error { ranA = true; return errA },
	); err != nil {
		t.Fatal(err)
	}

	if _, _, err := root.AcquireResource(
		func() (any, error) { return "B", nil },
		func(any) error { ranB = true; return errB },
	); err != nil {
		t.Fatal(err)
	}

	err := root.Close()
	if !ranA || !ranB {
		t.Fatalf("expected both finalizers to run: ranA=%v ranB=%v", ranA, ranB)
	}

	cf, ok := err.(*scopeerrors.CompositeFailure)
	if !ok {
		t.Fatalf("expected *CompositeFailure, got %T: %v", err, err)
	}

	if len(cf.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %v", cf.Errors)
	}

	// Reverse-acquisition order: B before A.
	if !errors.Is(cf.Errors[0], errB) || !errors.Is(cf.Errors[1], errA) {
		t.Fatalf("expected [EB, EA], got %v", cf.Errors)
	}
}

// S4: a lease keeps a resource alive across a scope close.
func TestCompileScope_LeaseSurvivesScopeClose(t *testing.T) {
	root := NewRoot(nil)

	finalized := false

	if _, _, err := root.AcquireResource(
		func() (any, error) { return "R", nil },
		func(any) error { finalized = true; return nil },
	); err != nil {
		t.Fatal(err)
	}

	lease, ok := root.Lease()
	if !ok {
		t.Fatal("expected a lease on an open scope")
	}

	if err := root.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if finalized {
		t.Fatal("resource must not finalize while leased, even after scope close")
	}

	if err := lease.Cancel(); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if !finalized {
		t.Fatal("resource should finalize once the lease is cancelled")
	}
}

func TestCompileScope_IdempotentClose(t *testing.T) {
	root := NewRoot(nil)

	ranCount := 0

	if _, _, err := root.AcquireResource(
		func() (any, error) { return "R", nil },
		func(any) error { ranCount++; return nil },
	); err != nil {
		t.Fatal(err)
	}

	if err := root.Close(); err != nil {
		t.Fatal(err)
	}

	if err := root.Close(); err != nil {
		t.Fatalf("second close should be Ok, got %v", err)
	}

	if ranCount != 1 {
		t.Fatalf("finalizer ran %d times, want 1", ranCount)
	}
}

func TestCompileScope_AcquireAfterClose(t *testing.T) {
	root := NewRoot(nil)
	if err := root.Close(); err != nil {
		t.Fatal(err)
	}

	_, _, err := root.AcquireResource(func() (any, error) { return nil, nil }, func(any) error { return nil })

	var target *scopeerrors.AcquireAfterScopeClosed
	if !errors.As(err, &target) {
		t.Fatalf("expected AcquireAfterScopeClosed, got %T: %v", err, err)
	}
}

func TestCompileScope_TreeAcyclicity(t *testing.T) {
	root := NewRoot(nil)

	child, err := root.Open(nil)
	if err != nil {
		t.Fatal(err)
	}

	grandchild, err := child.Open(nil)
	if err != nil {
		t.Fatal(err)
	}

	cur := grandchild
	depth := 0

	for cur.Parent() != nil {
		cur = cur.Parent()
		depth++

		if depth > 1000 {
			t.Fatal("parent chain did not terminate at the root")
		}
	}

	if cur.ID() != root.ID() {
		t.Fatal("parent chain did not terminate at the root")
	}
}

func TestCompileScope_ChildrenClosedBeforeResources(t *testing.T) {
	root := NewRoot(nil)

	var order []string

	if _, err := acquireOK(root, &order, "root-res"); err != nil {
		t.Fatal(err)
	}

	child, err := root.Open(nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := acquireOK(child, &order, "child-res"); err != nil {
		t.Fatal(err)
	}

	if err := root.Close(); err != nil {
		t.Fatal(err)
	}

	if len(order) != 2 || order[0] != "child-res" || order[1] != "root-res" {
		t.Fatalf("expected child resources released before parent's own, got %v", order)
	}

	if len(root.children) != 0 {
		t.Fatal("root should have unregistered its closed child")
	}
}

func TestCompileScope_OpenDelegatesToOpenAncestorAfterClose(t *testing.T) {
	root := NewRoot(nil)

	child, err := root.Open(nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := child.Close(); err != nil {
		t.Fatal(err)
	}

	grandchild, err := child.Open(nil)
	if err != nil {
		t.Fatalf("open on a closed scope should delegate, got error: %v", err)
	}

	if grandchild.Parent().ID() != root.ID() {
		t.Fatal("expected the delegated open to attach to the root")
	}
}

func TestCompileScope_OpenOnClosedRootFails(t *testing.T) {
	root := NewRoot(nil)
	if err := root.Close(); err != nil {
		t.Fatal(err)
	}

	_, err := root.Open(nil)

	var target *scopeerrors.IllegalState
	if !errors.As(err, &target) {
		t.Fatalf("expected IllegalState, got %T: %v", err, err)
	}
}

func TestCompileScope_InterruptUniqueness(t *testing.T) {
	exec, cancel := newTestExecutor(t)
	defer cancel()

	root := NewRoot(&ExecArgs{Executor: exec})

	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)

		go func(n int) {
			defer wg.Done()

			_ = root.Interrupt(errors.New("cause"))
		}(i)
	}

	wg.Wait()

	cause, ok := root.ShallInterrupt()
	if !ok || cause == nil {
		t.Fatal("expected exactly one cause to be observable")
	}

	if _, ok := root.ShallInterrupt(); ok {
		t.Fatal("expected the cause to be consumed at most once")
	}
}

func TestCompileScope_ExecArgsMaxInterruptDepthPropagates(t *testing.T) {
	exec, cancel := newTestExecutor(t)
	defer cancel()

	root := NewRoot(&ExecArgs{Executor: exec, MaxInterruptDepth: 4})

	if got := root.InterruptCtx().MaxInterruptDepth(); got != 4 {
		t.Fatalf("MaxInterruptDepth() = %d, want 4 (configured)", got)
	}

	child, err := root.Open(&ExecArgs{Executor: exec, MaxInterruptDepth: 7})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if got := child.InterruptCtx().MaxInterruptDepth(); got != 7 {
		t.Fatalf("child MaxInterruptDepth() = %d, want 7", got)
	}
}

func TestCompileScope_ExecArgsZeroDepthKeepsDefault(t *testing.T) {
	exec, cancel := newTestExecutor(t)
	defer cancel()

	root := NewRoot(&ExecArgs{Executor: exec})

	if got := root.InterruptCtx().MaxInterruptDepth(); got != 256 {
		t.Fatalf("MaxInterruptDepth() = %d, want the default 256", got)
	}
}

func TestCompileScope_InterruptOnNonInterruptibleFails(t *testing.T) {
	root := NewRoot(nil)

	var target *scopeerrors.IllegalState
	if err := root.Interrupt(nil); !errors.As(err, &target) {
		t.Fatalf("expected IllegalState, got %v", err)
	}
}

func TestCompileScope_InterruptScoping(t *testing.T) {
	exec, cancel := newTestExecutor(t)
	defer cancel()

	root := NewRoot(&ExecArgs{Executor: exec})

	branchA, err := root.Open(&ExecArgs{Executor: exec})
	if err != nil {
		t.Fatal(err)
	}

	branchB, err := root.Open(&ExecArgs{Executor: exec})
	if err != nil {
		t.Fatal(err)
	}

	descendantOfA, err := branchA.Open(nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := branchA.Interrupt(errors.New("cut")); err != nil {
		t.Fatal(err)
	}

	if !descendantOfA.IsInterrupted() {
		t.Fatal("descendant of the interrupted branch should observe the interrupt")
	}

	if branchB.IsInterrupted() {
		t.Fatal("sibling branch must not observe the interrupt")
	}
}
