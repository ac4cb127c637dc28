package concurrency

import (
	"context"
	"errors"
	"time"

	"sync/atomic"
)

// Channel is a thin, type-safe wrapper around a native Go channel adding
// context-aware Send/Recv and non-blocking TrySend/TryRecv. The demonstration
// CLI uses it to fan a watched file's event and error channels into one
// channel that it then reads from.
type Channel[T any] struct {
	ch     chan T
	closed atomic.Bool
}

// NewChannel creates a channel with the given buffer capacity (0 for unbuffered).
func NewChannel[T any](capacity int) *Channel[T] {
	if capacity < 0 {
		capacity = 0
	}

	return &Channel[T]{ch: make(chan T, capacity)}
}

// ErrChannelClosed is returned when sending on a closed channel.
var ErrChannelClosed = errors.New("concurrency: channel closed")

// Send blocks until v is delivered or ctx is done.
func (c *Channel[T]) Send(ctx context.Context, v T) error {
	if c.closed.Load() {
		return ErrChannelClosed
	}

	select {
	case c.ch <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySend attempts a non-blocking send; false if full or closed.
func (c *Channel[T]) TrySend(v T) bool {
	if c.closed.Load() {
		return false
	}

	select {
	case c.ch <- v:
		return true
	default:
		return false
	}
}

// Recv blocks until a value is available, ctx is done, or the channel closes.
// ok is false when the channel is closed and drained, or when ctx is done (in
// which case err is ctx.Err()).
func (c *Channel[T]) Recv(ctx context.Context) (val T, ok bool, err error) {
	select {
	case v, open := <-c.ch:
		return v, open, nil
	case <-ctx.Done():
		var zero T
		return zero, false, ctx.Err()
	}
}

// TryRecv attempts a non-blocking receive.
func (c *Channel[T]) TryRecv() (val T, ok bool) {
	select {
	case v, open := <-c.ch:
		return v, open
	default:
		var zero T
		return zero, false
	}
}

// Close closes the channel for sending. Safe to call more than once.
func (c *Channel[T]) Close() {
	if c.closed.CompareAndSwap(false, true) {
		close(c.ch)
	}
}

func (c *Channel[T]) Len() int { return len(c.ch) }
func (c *Channel[T]) Cap() int { return cap(c.ch) }

// SelectRecv waits on the first of several channels to yield a value. It
// polls with a short exponential backoff rather than a reflect-based select,
// which keeps it adequate for fan-in over a handful of event sources without
// pulling in reflection.
func SelectRecv[T any](ctx context.Context, chans ...*Channel[T]) (T, int, bool, error) {
	var zero T

	if len(chans) == 0 {
		return zero, -1, false, errors.New("concurrency: no channels given")
	}

	backoff := 50 * time.Microsecond

	for {
		for i, ch := range chans {
			select {
			case v, open := <-ch.ch:
				return v, i, open, nil
			default:
			}
		}

		select {
		case <-ctx.Done():
			return zero, -1, false, ctx.Err()
		case <-time.After(backoff):
		}

		if backoff < 5*time.Millisecond {
			backoff *= 2
		}
	}
}
