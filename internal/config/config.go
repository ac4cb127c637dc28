// Package config carries the handful of knobs the scope tree and step
// interpreter need at construction time: how deep a self-reentrant interrupt
// handler may unwind before the runtime gives up on it, how much parallelism
// an Executor should be built with, and the minimum engine version a given
// build of the ambient resources (fsnotify, http3) is known to work against.
package config

import (
	"fmt"
	"runtime"

	"github.com/Masterminds/semver/v3"
)

// Options bundles the runtime-wide settings. Zero-value Options is not
// usable directly; callers should start from Default and override fields.
type Options struct {
	// MaxInterruptDepth caps how many times the step interpreter will
	// re-invoke an error handler that keeps re-raising Interrupted against
	// the same scope. See internal/runtime/stream's applyInterrupt.
	MaxInterruptDepth int

	// ExecutorParallelism is advisory: it is not enforced by
	// concurrency.Executor (errgroup.Group has no cap of its own); the demo
	// CLI only validates and reports it.
	ExecutorParallelism int

	// MinCompatVersion is the lowest engine (host) version this build's
	// resources and interpreter are known to be compatible with, expressed
	// as a plain semver version, e.g. "1.0.0"; Validate requires the engine
	// version to be >= it.
	MinCompatVersion string
}

// Default returns the baseline Options: a 256-deep interrupt cap (matching
// the teacher's default retry/backoff ceilings elsewhere in the runtime), one
// executor goroutine per available CPU, and a 1.0.0 floor on the engine
// version.
func Default() Options {
	return Options{
		MaxInterruptDepth:   256,
		ExecutorParallelism: runtime.GOMAXPROCS(0),
		MinCompatVersion:    "1.0.0",
	}
}

// Validate checks that v is internally well-formed and that engineVersion
// satisfies v.MinCompatVersion, so a host can refuse to open interruptible
// scopes against a runtime build it is known to be incompatible with.
func Validate(v Options, engineVersion string) error {
	if v.MaxInterruptDepth <= 0 {
		return fmt.Errorf("config: MaxInterruptDepth must be positive, got %d", v.MaxInterruptDepth)
	}

	if v.ExecutorParallelism <= 0 {
		return fmt.Errorf("config: ExecutorParallelism must be positive, got %d", v.ExecutorParallelism)
	}

	constraint, err := semver.NewConstraint(">=" + v.MinCompatVersion)
	if err != nil {
		return fmt.Errorf("config: invalid MinCompatVersion %q: %w", v.MinCompatVersion, err)
	}

	engine, err := semver.NewVersion(engineVersion)
	if err != nil {
		return fmt.Errorf("config: invalid engine version %q: %w", engineVersion, err)
	}

	if !constraint.Check(engine) {
		return fmt.Errorf("config: engine version %s does not satisfy minimum %s", engine, v.MinCompatVersion)
	}

	return nil
}
