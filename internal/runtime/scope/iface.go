package scope

// Scope is the minimal surface exposed to collaborators outside this
// package (concurrent stream combinators such as merge/join): obtain a
// lease over everything currently visible from a point in the tree, and
// request that a sub-tree be interrupted.
type Scope interface {
	Lease() (Lease, bool)
	Interrupt(cause error) error
}

var _ Scope = (*CompileScope)(nil)
