package concurrency

import "sync/atomic"

// tokenCounter backs NextToken; every scope and resource identity in the
// package draws from this single process-wide sequence.
var tokenCounter uint64

// NextToken returns a fresh, process-unique, monotonically increasing id.
// It never returns 0, so the zero value of a token type can mean "unset".
func NextToken() uint64 {
	return atomic.AddUint64(&tokenCounter, 1)
}
