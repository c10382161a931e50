// Package bchan provides a closeable bounded channel with non-blocking and
// deadline-bounded variants of send and receive. Unlike a native channel it
// can be closed from either side without panicking senders, and a capacity
// of zero degenerates to a rendezvous.
package bchan

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

var (
	ErrClosed = errors.New("channel closed")
	ErrFull   = errors.New("channel full")
	ErrEmpty  = errors.New("channel empty")
)

type Chan[T any] struct {
	mu     sync.Mutex
	notify *sync.Cond
	buf    []T
	head   int
	count  int
	// rendezvous bookkeeping, used only when cap(buf) == 0.
	waitingRecv int
	handoff     *T
	closed      bool
}

// New builds a channel holding at most capacity values; capacity 0 makes
// every Send wait for a matching Receive.
func New[T any](capacity int) *Chan[T] {
	if capacity < 0 {
		capacity = 0
	}
	c := &Chan[T]{buf: make([]T, capacity)}
	c.notify = sync.NewCond(&c.mu)

	return c
}

func (c *Chan[T]) Cap() int { return cap(c.buf) }

func (c *Chan[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.count
	if c.handoff != nil {
		n++
	}

	return n
}

func (c *Chan[T]) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

// Close marks the channel closed and wakes all waiters. Buffered values stay
// receivable; it is safe to call more than once.
func (c *Chan[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.notify.Broadcast()
}

// TrySend enqueues value without blocking, or reports ErrFull/ErrClosed.
func (c *Chan[T]) TrySend(value T) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.trySendLocked(value)
}

func (c *Chan[T]) trySendLocked(value T) error {
	if c.closed {
		return ErrClosed
	}
	if cap(c.buf) == 0 {
		if c.waitingRecv == 0 || c.handoff != nil {
			return ErrFull
		}
		c.handoff = &value
		c.notify.Broadcast()

		return nil
	}
	if c.count == cap(c.buf) {
		return ErrFull
	}
	c.buf[(c.head+c.count)%cap(c.buf)] = value
	c.count++
	c.notify.Broadcast()

	return nil
}

// Send blocks until the value is accepted, the channel closes, or ctx ends.
func (c *Chan[T]) Send(ctx context.Context, value T) error {
	stop := c.wakeOnDone(ctx)
	defer stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "send cancelled")
		}
		if err := c.trySendLocked(value); !errors.Is(err, ErrFull) {
			return err
		}
		c.notify.Wait()
	}
}

// TryReceive dequeues without blocking. ErrEmpty means nothing is buffered;
// ErrClosed means the channel is closed and drained.
func (c *Chan[T]) TryReceive() (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.tryReceiveLocked()
}

func (c *Chan[T]) tryReceiveLocked() (T, error) {
	var zero T
	if c.handoff != nil {
		value := *c.handoff
		c.handoff = nil
		c.notify.Broadcast()

		return value, nil
	}
	if c.count > 0 {
		value := c.buf[c.head]
		c.buf[c.head] = zero
		c.head = (c.head + 1) % cap(c.buf)
		c.count--
		c.notify.Broadcast()

		return value, nil
	}
	if c.closed {
		return zero, ErrClosed
	}

	return zero, ErrEmpty
}

// Receive blocks until a value arrives, the channel closes and drains, or
// ctx ends.
func (c *Chan[T]) Receive(ctx context.Context) (T, error) {
	stop := c.wakeOnDone(ctx)
	defer stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.waitingRecv++
	defer func() { c.waitingRecv-- }()
	if cap(c.buf) == 0 {
		c.notify.Broadcast() // let a blocked sender see the new receiver
	}
	for {
		if err := ctx.Err(); err != nil {
			var zero T

			return zero, errors.Wrap(err, "receive cancelled")
		}
		if value, err := c.tryReceiveLocked(); !errors.Is(err, ErrEmpty) {
			return value, err
		}
		c.notify.Wait()
	}
}

// ReceiveTimeout is Receive bounded by a deadline; it returns ErrEmpty when
// the deadline passes with nothing delivered.
func (c *Chan[T]) ReceiveTimeout(timeout time.Duration) (T, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	value, err := c.Receive(ctx)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrClosed) {
		return value, ErrEmpty
	}

	return value, err
}

// wakeOnDone broadcasts once ctx is cancelled so Wait loops can observe it.
func (c *Chan[T]) wakeOnDone(ctx context.Context) func() {
	if ctx.Done() == nil {
		return func() {}
	}

	stop := context.AfterFunc(ctx, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.notify.Broadcast()
	})

	return func() { stop() }
}
