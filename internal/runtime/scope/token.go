// Package scope implements the scope tree and resource-lifecycle primitives
// that back a pull-based streaming runtime: Token identities, leasable
// Resources, InterruptContexts, and the CompileScope tree that owns them.
package scope

import (
	"fmt"

	"github.com/orizon-lang/scopeflow/internal/runtime/concurrency"
)

// Token is an opaque, process-unique identity for a scope or a resource.
// Equality is identity: two tokens are equal iff they were produced by the
// same NewToken call.
type Token struct {
	id uint64
}

// NewToken returns a fresh Token, distinct from every other Token ever
// produced by this process.
func NewToken() Token {
	return Token{id: concurrency.NextToken()}
}

// String renders the token for debugging/log output.
func (t Token) String() string {
	return fmt.Sprintf("token#%d", t.id)
}
