// Package main runs the scope tree and step interpreter against six example
// programs, one per testable scenario the package is built against: ordered
// release, a failing acquire, failing finalizers, a lease surviving scope
// close, a mid-stream interrupt, and a self-reentrant interrupt handler
// capped by MaxInterruptDepth. It also exercises the ambient configuration
// gate and the two concrete example resources so every dependency in go.mod
// is reached by a runnable path, not just by tests.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/orizon-lang/scopeflow/internal/config"
	scopeerrors "github.com/orizon-lang/scopeflow/internal/errors"
	"github.com/orizon-lang/scopeflow/internal/resources"
	"github.com/orizon-lang/scopeflow/internal/runtime/concurrency"
	"github.com/orizon-lang/scopeflow/internal/runtime/scope"
	"github.com/orizon-lang/scopeflow/internal/runtime/stream"
)

const engineVersion = "1.3.0"

func main() {
	opts := config.Default()
	if err := config.Validate(opts, engineVersion); err != nil {
		fmt.Fprintf(os.Stderr, "configuration rejected: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("scopeflow demo: engine %s, max interrupt depth %d, executor parallelism %d\n",
		engineVersion, opts.MaxInterruptDepth, opts.ExecutorParallelism)

	runOrderedRelease()
	runFailingAcquire()
	runFailingFinalizers()
	runLeaseSurvivesClose()
	runMidStreamInterrupt()
	runInterruptDepthCap(opts)
	runWatchedFileResource()
	runHTTP3EndpointResource()
}

func sumCombiner(acc, elem any) any {
	a, _ := acc.(int)
	return a + elem.(int)
}

func acquireStep(order *[]string, name string, next stream.Term) stream.Term {
	return stream.Bind(stream.Acquire{
		Acquire: func() (any, error) { return name, nil },
		Release: func(any) error { *order = append(*order, name); return nil },
	}, func(stream.Result) stream.Term { return next })
}

// S1: three nested acquires, finalized in reverse order once the program
// completes.
func runOrderedRelease() {
	fmt.Println("\n--- S1: ordered release ---")

	var order []string

	prog := acquireStep(&order, "A", acquireStep(&order, "B", acquireStep(&order, "C", stream.Pure(nil))))

	if _, err := stream.Compile(prog, 0, sumCombiner, nil, nil); err != nil {
		fmt.Printf("unexpected error: %v\n", err)
		return
	}

	fmt.Printf("finalized in order: %v\n", order)
}

// S2: acquiring B fails; A is still finalized and the error surfaces wrapped
// as a UserError.
func runFailingAcquire() {
	fmt.Println("\n--- S2: failing acquire ---")

	var order []string

	boom := errors.New("B unavailable")

	prog := acquireStep(&order, "A", stream.Bind(stream.Acquire{
		Acquire: func() (any, error) { return nil, boom },
		Release: func(any) error { return nil },
	}, func(r stream.Result) stream.Term {
		if r.Err != nil {
			return stream.Fail(r.Err)
		}

		return stream.Pure(nil)
	}))

	_, err := stream.Compile(prog, 0, sumCombiner, nil, nil)

	var ue *scopeerrors.UserError
	fmt.Printf("error: %v (is UserError: %v)\n", err, errors.As(err, &ue))
	fmt.Printf("finalized before failing: %v\n", order)
}

// S3: both A and B's finalizers fail; Compile reports a CompositeFailure.
func runFailingFinalizers() {
	fmt.Println("\n--- S3: failing finalizers ---")

	prog := stream.Bind(stream.Acquire{
		Acquire: func() (any, error) { return "A", nil },
		Release: func(any) error { return errors.New("A cleanup failed") },
	}, func(stream.Result) stream.Term {
		return stream.Bind(stream.Acquire{
			Acquire: func() (any, error) { return "B", nil },
			Release: func(any) error { return errors.New("B cleanup failed") },
		}, func(stream.Result) stream.Term { return stream.Pure(nil) })
	})

	_, err := stream.Compile(prog, 0, sumCombiner, nil, nil)

	var cf *scopeerrors.CompositeFailure
	if errors.As(err, &cf) {
		fmt.Printf("composite of %d errors: %v\n", len(cf.Errors), cf.Errors)
		return
	}

	fmt.Printf("unexpected error shape: %v\n", err)
}

// S4: a resource acquired inside a child scope survives that scope's close
// because something leased it first; only cancelling the lease finalizes it.
func runLeaseSurvivesClose() {
	fmt.Println("\n--- S4: lease survives scope close ---")

	finalized := false

	prog := stream.Bind(stream.OpenScope{}, func(r stream.Result) stream.Term {
		inner := r.Value.(*scope.CompileScope)

		return stream.Bind(stream.Acquire{
			Acquire: func() (any, error) { return "R", nil },
			Release: func(any) error { finalized = true; return nil },
		}, func(stream.Result) stream.Term {
			lease, _ := inner.Lease()

			return stream.Bind(stream.CloseScope{Inner: inner}, func(stream.Result) stream.Term {
				fmt.Printf("finalized immediately after close: %v\n", finalized)

				_ = lease.Cancel()

				fmt.Printf("finalized after lease cancel: %v\n", finalized)

				return stream.Pure(nil)
			})
		})
	})

	if _, err := stream.Compile(prog, 0, sumCombiner, nil, nil); err != nil {
		fmt.Printf("unexpected error: %v\n", err)
	}
}

func emitRange(n int) stream.Term {
	var build func(i int) stream.Term
	build = func(i int) stream.Term {
		if i >= n {
			return stream.Pure(nil)
		}

		return stream.Bind(stream.Output{Seg: stream.NewSegment([]any{i}, nil)}, func(stream.Result) stream.Term {
			return build(i + 1)
		})
	}

	return build(0)
}

// S5: a program interrupts its own scope partway through; the fold stops
// with a partial accumulator instead of running the rest of the range.
func runMidStreamInterrupt() {
	fmt.Println("\n--- S5: mid-stream interrupt ---")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exec, _ := concurrency.NewExecutor(ctx)

	prog := stream.Bind(stream.GetScope{}, func(r stream.Result) stream.Term {
		self := r.Value.(*scope.CompileScope)

		return stream.Bind(stream.Output{Seg: stream.NewSegment([]any{0}, nil)}, func(stream.Result) stream.Term {
			return stream.Bind(stream.Output{Seg: stream.NewSegment([]any{1}, nil)}, func(stream.Result) stream.Term {
				return stream.Bind(stream.Eval{FX: func() (any, error) {
					return nil, self.Interrupt(nil)
				}}, func(r stream.Result) stream.Term {
					if r.Err != nil {
						return stream.Fail(r.Err)
					}

					return emitRange(100)
				})
			})
		})
	})

	acc, err := stream.Compile(prog, 0, sumCombiner, &scope.ExecArgs{Executor: exec}, nil)

	fmt.Printf("partial sum: %v, error: %v\n", acc, err)
}

// S6: an error handler that keeps re-raising its own interrupt is cut off at
// MaxInterruptDepth rather than looping forever.
func runInterruptDepthCap(opts config.Options) {
	fmt.Println("\n--- S6: interrupt depth cap ---")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exec, _ := concurrency.NewExecutor(ctx)

	var self *scope.CompileScope

	prog := stream.Bind(stream.GetScope{}, func(r stream.Result) stream.Term {
		self = r.Value.(*scope.CompileScope)

		return stream.Bind(stream.Eval{FX: func() (any, error) {
			return nil, self.Interrupt(nil)
		}}, func(r stream.Result) stream.Term {
			if r.Err != nil {
				return stream.Fail(r.Err)
			}

			return stream.Pure(nil)
		})
	})

	reentrant := func(loop int) stream.Term {
		return stream.Fail(&scopeerrors.Interrupted{ScopeID: self.ID(), Loop: loop})
	}

	start := time.Now()

	_, err := stream.Compile(prog, 0, sumCombiner,
		&scope.ExecArgs{Executor: exec, MaxInterruptDepth: opts.MaxInterruptDepth}, reentrant)

	var interrupted *scopeerrors.Interrupted

	fmt.Printf("stopped after %s with loop=%d (cap %d): %v\n",
		time.Since(start), interruptedLoop(err, &interrupted), opts.MaxInterruptDepth, err)
}

func interruptedLoop(err error, into **scopeerrors.Interrupted) int {
	if errors.As(err, into) {
		return (*into).Loop
	}

	return -1
}

// runWatchedFileResource acquires a WatchedFile resource inside a fresh
// root scope, writes the watched file, observes the event, and releases the
// resource, exercising the fsnotify-backed example resource end to end.
func runWatchedFileResource() {
	fmt.Println("\n--- resources: watched file ---")

	dir, err := os.MkdirTemp("", "scopeflow-demo")
	if err != nil {
		fmt.Printf("mkdtemp: %v\n", err)
		return
	}

	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "watched.txt")
	if err := os.WriteFile(path, []byte("initial"), 0o644); err != nil {
		fmt.Printf("seed file: %v\n", err)
		return
	}

	root := scope.NewRoot(nil)

	acquire, release := resources.AcquireWatchedFile(path)

	v, tok, err := root.AcquireResource(acquire, release)
	if err != nil {
		fmt.Printf("acquire watcher: %v\n", err)
		return
	}

	wf := v.(*resources.WatchedFile)

	// Fan the watcher's two native channels into a single context-aware
	// concurrency.Channel, the shape the fold loop would consume events
	// through if a stream program awaited them via Eval.
	reports := concurrency.NewChannel[string](4)

	go func() {
		for {
			select {
			case ev, ok := <-wf.Events():
				if !ok {
					reports.Close()
					return
				}

				reports.TrySend(fmt.Sprintf("event: %s %s", ev.Name, ev.Op))
			case err, ok := <-wf.Errors():
				if !ok {
					continue
				}

				reports.TrySend(fmt.Sprintf("watch error: %v", err))
			}
		}
	}()

	if err := os.WriteFile(path, []byte("updated"), 0o644); err != nil {
		fmt.Printf("write file: %v\n", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	msg, ok, err := reports.Recv(ctx)
	switch {
	case err != nil:
		fmt.Println("timed out waiting for a filesystem event")
	case !ok:
		fmt.Println("watcher closed before reporting an event")
	default:
		fmt.Println("observed", msg)
	}

	if err := root.ReleaseResource(tok); err != nil {
		fmt.Printf("release watcher: %v\n", err)
	}
}

// runHTTP3EndpointResource starts an HTTP/3 endpoint as a scoped resource,
// makes one request against it, and releases it.
func runHTTP3EndpointResource() {
	fmt.Println("\n--- resources: http3 endpoint ---")

	tlsCfg, err := resources.SelfSignedTLS([]string{"127.0.0.1"}, 0)
	if err != nil {
		fmt.Printf("self-signed cert: %v\n", err)
		return
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("pong"))
	})

	root := scope.NewRoot(nil)

	acquire, release := resources.AcquireHTTP3Endpoint("127.0.0.1:0", tlsCfg, mux)

	v, tok, err := root.AcquireResource(acquire, release)
	if err != nil {
		fmt.Printf("http3 not available here: %v\n", err)
		return
	}

	ep := v.(*resources.HTTP3Endpoint)

	cli := resources.Client(resources.InsecureClientTLS(), 2*time.Second)
	defer func() { _ = resources.ShutdownClient(cli) }()

	resp, err := cli.Get("https://" + ep.Addr + "/ping")
	if err != nil {
		fmt.Printf("request failed: %v\n", err)
	} else {
		defer resp.Body.Close()
		fmt.Printf("got response status: %s (requests served: %d)\n", resp.Status, ep.RequestCount())
	}

	if err := root.ReleaseResource(tok); err != nil {
		fmt.Printf("release endpoint: %v\n", err)
	}
}
