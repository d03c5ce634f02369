// Package queue provides the bounded blocking FIFO between the input sampler and
// the event collector.
package queue

import (
	"errors"
	"sync"
)

// DefaultCapacity is the channel size used when none is configured.
const DefaultCapacity = 128

// ErrClosed is returned once the channel has been closed.
var ErrClosed = errors.New("queue: closed")

// Channel is a fixed-capacity ring buffer guarded by one mutex and two condition
// variables. Push blocks while full and Pop blocks while empty; nothing is dropped.
// Safe for concurrent use by any number of producers and consumers.
type Channel[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	buf    []T
	head   int // next read position
	tail   int // next write position
	count  int
	closed bool
}

// New creates a channel holding at most capacity entries.
// A capacity below 1 falls back to DefaultCapacity.
func New[T any](capacity int) *Channel[T] {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	c := &Channel[T]{buf: make([]T, capacity)}
	c.notEmpty = sync.NewCond(&c.mu)
	c.notFull = sync.NewCond(&c.mu)
	return c
}

// Push appends v, waiting for a free slot if the channel is full.
func (c *Channel[T]) Push(v T) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.count == len(c.buf) && !c.closed {
		c.notFull.Wait()
	}
	if c.closed {
		return ErrClosed
	}

	c.buf[c.tail] = v
	c.tail = (c.tail + 1) % len(c.buf)
	c.count++
	c.notEmpty.Signal()
	return nil
}

// Pop removes and returns the oldest entry, waiting for one if the channel is empty.
// After Close, remaining entries are still returned before ErrClosed.
func (c *Channel[T]) Pop() (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.count == 0 && !c.closed {
		c.notEmpty.Wait()
	}
	if c.count == 0 {
		var zero T
		return zero, ErrClosed
	}
	return c.take(), nil
}

// TryPop removes the oldest entry if there is one. It never blocks.
func (c *Channel[T]) TryPop() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.count == 0 {
		var zero T
		return zero, false
	}
	return c.take(), true
}

// take assumes c.mu is held and count > 0.
func (c *Channel[T]) take() T {
	var zero T
	v := c.buf[c.head]
	c.buf[c.head] = zero
	c.head = (c.head + 1) % len(c.buf)
	c.count--
	c.notFull.Signal()
	return v
}

// Close wakes every waiter. Blocked and future pushes fail with ErrClosed.
func (c *Channel[T]) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.notEmpty.Broadcast()
	c.notFull.Broadcast()
}

// IsEmpty reports whether the channel holds no entries.
func (c *Channel[T]) IsEmpty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count == 0
}

// IsFull reports whether a Push would block.
func (c *Channel[T]) IsFull() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count == len(c.buf)
}

// Len returns the number of queued entries.
func (c *Channel[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Cap returns the fixed capacity.
func (c *Channel[T]) Cap() int {
	return len(c.buf)
}
