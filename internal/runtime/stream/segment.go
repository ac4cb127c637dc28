// Package stream implements the algebra term, left-view normalization, and
// step interpreter that fold a program over a scope tree: the pull side of a
// streaming runtime, as distinct from the scope package's push/lifetime side.
package stream

// Segment is an immutable sequence of chunks terminating in a result value.
// It is the chunk-producing lazy sequence the interpreter's Output and Run
// algebra steps operate on; a Segment never mutates once built, so sharing
// one across Uncons calls is safe.
type Segment struct {
	chunks [][]any
	result any
}

// NewSegment builds a segment from a single chunk and a terminal result.
func NewSegment(chunk []any, result any) Segment {
	if len(chunk) == 0 {
		return Segment{result: result}
	}

	return Segment{chunks: [][]any{chunk}, result: result}
}

// Empty returns a segment with no elements and the given terminal result.
func Empty(result any) Segment { return Segment{result: result} }

// Cons prepends chunk as a new leading chunk of s.
func (s Segment) Cons(chunk []any) Segment {
	if len(chunk) == 0 {
		return s
	}

	chunks := make([][]any, 0, len(s.chunks)+1)
	chunks = append(chunks, chunk)
	chunks = append(chunks, s.chunks...)

	return Segment{chunks: chunks, result: s.result}
}

// Append concatenates two segments, keeping the second's terminal result.
func (s Segment) Append(other Segment) Segment {
	chunks := make([][]any, 0, len(s.chunks)+len(other.chunks))
	chunks = append(chunks, s.chunks...)
	chunks = append(chunks, other.chunks...)

	return Segment{chunks: chunks, result: other.result}
}

// Result returns the segment's terminal value.
func (s Segment) Result() any { return s.result }

// SplitResult is the outcome of SplitAt: either every chunk was consumed
// with at most n elements produced (Done, carrying the terminal result and
// every chunk seen), or the walk stopped at the n boundary or at the chunk
// budget with chunks left over (carrying the emitted chunks and the
// remaining tail as a new Segment).
type SplitResult struct {
	Done    bool
	Result  any
	Emitted [][]any
	Tail    Segment
}

// SplitAt consumes chunks until n elements have been produced or the chunk
// budget maxSteps is exhausted, splitting the chunk straddling the n
// boundary if needed. maxSteps <= 0 means unbounded.
func (s Segment) SplitAt(n int, maxSteps int) SplitResult {
	var emitted [][]any

	remaining := n
	steps := 0

	for i, chunk := range s.chunks {
		if maxSteps > 0 && steps >= maxSteps {
			return SplitResult{Emitted: emitted, Tail: Segment{chunks: s.chunks[i:], result: s.result}}
		}

		steps++

		if remaining <= 0 {
			return SplitResult{Emitted: emitted, Tail: Segment{chunks: s.chunks[i:], result: s.result}}
		}

		if len(chunk) <= remaining {
			emitted = append(emitted, chunk)
			remaining -= len(chunk)

			continue
		}

		emitted = append(emitted, chunk[:remaining])
		rest := chunk[remaining:]
		tailChunks := make([][]any, 0, len(s.chunks)-i)
		tailChunks = append(tailChunks, rest)
		tailChunks = append(tailChunks, s.chunks[i+1:]...)

		return SplitResult{Emitted: emitted, Tail: Segment{chunks: tailChunks, result: s.result}}
	}

	return SplitResult{Done: true, Result: s.result, Emitted: emitted}
}

// Fold applies g left-to-right across every element, seeded with init, and
// returns the accumulated value paired with the segment's terminal result.
func (s Segment) Fold(init any, g func(acc, elem any) any) (any, any) {
	acc := init

	for _, chunk := range s.chunks {
		for _, elem := range chunk {
			acc = g(acc, elem)
		}
	}

	return acc, s.result
}

// IsEmpty reports whether the segment carries no elements at all.
func (s Segment) IsEmpty() bool {
	for _, c := range s.chunks {
		if len(c) > 0 {
			return false
		}
	}

	return true
}
