package scope

import (
	"context"
	"testing"

	"github.com/orizon-lang/scopeflow/internal/runtime/concurrency"
)

// newTestExecutor builds an Executor bound to a context cancelled when the
// test finishes, sparing every interrupt-related test from hand-rolling one.
func newTestExecutor(t *testing.T) (*concurrency.Executor, func()) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	exec, _ := concurrency.NewExecutor(ctx)

	return exec, cancel
}
