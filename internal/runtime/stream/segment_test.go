package stream

import "testing"

func toInts(t *testing.T, vals []any) []int {
	t.Helper()

	out := make([]int, len(vals))
	for i, v := range vals {
		out[i] = v.(int)
	}

	return out
}

func TestSegment_Fold(t *testing.T) {
	seg := NewSegment([]any{1, 2, 3}, "done")

	acc, res := seg.Fold(0, func(acc, elem any) any { return acc.(int) + elem.(int) })
	if acc.(int) != 6 {
		t.Fatalf("acc = %v, want 6", acc)
	}

	if res.(string) != "done" {
		t.Fatalf("result = %v, want done", res)
	}
}

func TestSegment_SplitAt_WithinChunk(t *testing.T) {
	seg := NewSegment([]any{1, 2, 3, 4, 5}, "R")

	split := seg.SplitAt(3, 0)
	if split.Done {
		t.Fatal("expected a tail, not exhaustion")
	}

	var got []any
	for _, c := range split.Emitted {
		got = append(got, c...)
	}

	if len(got) != 3 {
		t.Fatalf("emitted %v, want 3 elements", got)
	}

	tailAcc, tailRes := split.Tail.Fold(0, func(acc, e any) any { return acc.(int) + e.(int) })
	if tailAcc.(int) != 9 {
		t.Fatalf("tail sum = %v, want 9 (4+5)", tailAcc)
	}

	if tailRes.(string) != "R" {
		t.Fatalf("tail result = %v, want R", tailRes)
	}
}

func TestSegment_SplitAt_Exhausted(t *testing.T) {
	seg := NewSegment([]any{1, 2}, "R")

	split := seg.SplitAt(10, 0)
	if !split.Done {
		t.Fatal("expected the segment to be exhausted")
	}

	if split.Result.(string) != "R" {
		t.Fatalf("result = %v, want R", split.Result)
	}
}

func TestSegment_SplitAt_MaxSteps(t *testing.T) {
	seg := Empty("R0")
	seg = seg.Cons([]any{3})
	seg = seg.Cons([]any{2})
	seg = seg.Cons([]any{1})

	split := seg.SplitAt(100, 2)
	if split.Done {
		t.Fatal("expected maxSteps to cut the walk short of exhaustion")
	}

	var got []any
	for _, c := range split.Emitted {
		got = append(got, c...)
	}

	if len(got) != 2 {
		t.Fatalf("emitted %v, want exactly 2 elements (2 chunks of size 1)", got)
	}
}
