// Package resources supplies the concrete, leasable resources the demo
// programs acquire through scope.CompileScope.AcquireResource: a filesystem
// watcher and an HTTP/3 endpoint. Neither is referenced by the interpreter or
// the scope tree themselves — the algebra only ever sees an opaque acquire/
// release pair — but a module claiming to run real streams needs at least
// one I/O-backed resource whose lifetime is actually worth scoping.
package resources

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// WatchedFile watches the directory containing a single path and republishes
// fsnotify events for that path alone, filtering out sibling noise. Its
// finalizer closes the underlying OS watcher.
type WatchedFile struct {
	path string
	w    *fsnotify.Watcher
	evC  chan fsnotify.Event
	erC  chan error
	done chan struct{}
	once sync.Once
}

// AcquireWatchedFile opens a watcher on path's parent directory (fsnotify
// watches directories, not individual files reliably across platforms) and
// returns a handle plus a release function suitable for
// scope.CompileScope.AcquireResource(acquire, release).
func AcquireWatchedFile(path string) (func() (any, error), func(any) error) {
	acquire := func() (any, error) {
		dir := filepath.Dir(path)

		w, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("resources: watch %s: %w", path, err)
		}

		if err := w.Add(dir); err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("resources: watch %s: %w", path, err)
		}

		wf := &WatchedFile{
			path: path,
			w:    w,
			evC:  make(chan fsnotify.Event, 32),
			erC:  make(chan error, 1),
			done: make(chan struct{}),
		}

		go wf.loop()

		return wf, nil
	}

	release := func(v any) error {
		wf := v.(*WatchedFile)
		return wf.Close()
	}

	return acquire, release
}

func (wf *WatchedFile) loop() {
	defer close(wf.evC)

	for {
		select {
		case ev, ok := <-wf.w.Events:
			if !ok {
				return
			}

			if filepath.Clean(ev.Name) != filepath.Clean(wf.path) {
				continue
			}

			select {
			case wf.evC <- ev:
			case <-wf.done:
				return
			}
		case err, ok := <-wf.w.Errors:
			if !ok {
				return
			}

			select {
			case wf.erC <- err:
			case <-wf.done:
				return
			}
		case <-wf.done:
			return
		}
	}
}

// Events returns the channel of events concerning the watched path.
func (wf *WatchedFile) Events() <-chan fsnotify.Event { return wf.evC }

// Errors returns the channel of watcher errors.
func (wf *WatchedFile) Errors() <-chan error { return wf.erC }

// Close stops the watch loop and releases the OS watcher. It is idempotent.
func (wf *WatchedFile) Close() error {
	var err error

	wf.once.Do(func() {
		close(wf.done)
		err = wf.w.Close()
	})

	return err
}
