package stream

import (
	"errors"
	"testing"
)

func TestViewL_Pure(t *testing.T) {
	v := ViewL(Pure(42))
	if !v.IsPure || v.Value.(int) != 42 {
		t.Fatalf("got %+v", v)
	}
}

func TestViewL_Fail(t *testing.T) {
	want := errors.New("boom")

	v := ViewL(Fail(want))
	if !v.IsFail || v.Err != want {
		t.Fatalf("got %+v", v)
	}
}

func TestViewL_ReassociatesNestedBind(t *testing.T) {
	// Bind(Bind(Eval, k1), k2) must normalize to a single Step/K pair whose K,
	// when fed a result, replays k1 then k2 in order.
	var trace []string

	leaf := Eval{FX: func() (any, error) { return 1, nil }}

	inner := Bind(leaf, func(r Result) Term {
		trace = append(trace, "k1")
		return Pure(r.Value.(int) + 1)
	})

	outer := Bind(inner, func(r Result) Term {
		trace = append(trace, "k2")
		return Pure(r.Value.(int) + 1)
	})

	view := ViewL(outer)
	if view.Step == nil {
		t.Fatalf("expected a Step, got %+v", view)
	}

	if _, ok := view.Step.(Eval); !ok {
		t.Fatalf("expected the innermost Eval as the step, got %T", view.Step)
	}

	next := view.K(Ok(1))

	final := ViewL(next)
	if !final.IsPure {
		t.Fatalf("expected normalization to complete after replay, got %+v", final)
	}

	if final.Value.(int) != 3 {
		t.Fatalf("value = %v, want 3", final.Value)
	}

	if len(trace) != 2 || trace[0] != "k1" || trace[1] != "k2" {
		t.Fatalf("trace = %v, want [k1 k2]", trace)
	}
}

func TestViewL_DeeplyNestedBindDoesNotRecurseNatively(t *testing.T) {
	// A chain of 10000 nested Binds should normalize without a native stack
	// overflow; ViewL's explicit stack is what makes this safe.
	t1 := Term(Pure(0))

	const depth = 10000
	for i := 0; i < depth; i++ {
		prev := t1
		t1 = Bind(prev, func(r Result) Term {
			return Pure(r.Value.(int) + 1)
		})
	}

	v := ViewL(t1)
	if !v.IsPure {
		t.Fatalf("expected Pure, got %+v", v)
	}

	if v.Value.(int) != depth {
		t.Fatalf("value = %v, want %d", v.Value, depth)
	}
}

func TestFlatMap_ShortCircuitsOnFailure(t *testing.T) {
	want := errors.New("nope")

	t1 := FlatMap(Fail(want), func(any) Term {
		t.Fatal("continuation must not run after a failure")
		return Pure(nil)
	})

	v := ViewL(t1)
	if !v.IsFail || v.Err != want {
		t.Fatalf("got %+v", v)
	}
}

func TestAsHandler_RunsOnlyOnFailure(t *testing.T) {
	ran := false

	t1 := AsHandler(Pure(7), func(error) Term {
		ran = true
		return Pure(nil)
	})

	v := ViewL(t1)
	if !v.IsPure || v.Value.(int) != 7 {
		t.Fatalf("got %+v", v)
	}

	if ran {
		t.Fatal("handler must not run on the success path")
	}
}
