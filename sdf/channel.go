package sdf

import (
	"context"
	"sync"

	"go.lepak.sg/mare/internal/futex"
)

// Chan is the type-erased view of a Channel[T] the graph and node-context
// plumbing operate on. Only *Channel[T] implements it - the unexported
// methods seal the interface against outside implementations, the same way
// a node body never constructs its own NodeContext.
type Chan interface {
	readAny(ctx context.Context) (any, error)
	writeAny(ctx context.Context, v any) error
	hasDelay() bool
	lockLaunched()
}

// Channel is a bounded, single-producer/single-consumer FIFO of T. Reads
// block while empty and writes block while full, each parking on the
// channel's own futex rather than spinning, exactly as the channel buffer
// this is grounded on describes.
type Channel[T any] struct {
	capacity int

	mu       sync.Mutex
	buf      []T
	head     int
	count    int
	launched bool
	preload  int // number of elements written by Preload, for diagnostics only

	fx *futex.Futex
}

// NewChannel returns a Channel with room for capacity elements. A
// non-positive capacity is rejected as a misuse error, matching "zero-size
// buffer" in the error-kinds table.
func NewChannel[T any](capacity int) (*Channel[T], error) {
	if capacity <= 0 {
		return nil, &UsageError{Op: "NewChannel", Msg: "capacity must be positive"}
	}
	return &Channel[T]{
		capacity: capacity,
		buf:      make([]T, capacity),
		fx:       futex.New(),
	}, nil
}

// Preload fills the channel with initial values before the graph is
// launched, for use as a feedback delay. It fails if called after the
// graph has launched, or if vals would overflow the channel's capacity.
func (c *Channel[T]) Preload(vals []T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.launched {
		return &UsageError{Op: "Preload", Msg: "channel already launched"}
	}
	if len(vals)+c.count > c.capacity {
		return &UsageError{Op: "Preload", Msg: "preload exceeds channel capacity"}
	}
	for _, v := range vals {
		c.buf[(c.head+c.count)%c.capacity] = v
		c.count++
	}
	c.preload += len(vals)
	return nil
}

func (c *Channel[T]) hasDelay() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.preload > 0
}

func (c *Channel[T]) lockLaunched() {
	c.mu.Lock()
	c.launched = true
	c.mu.Unlock()
}

// Read removes and returns the oldest element, blocking until one is
// available or ctx is done.
func (c *Channel[T]) Read(ctx context.Context) (T, error) {
	var zero T
	err := c.fx.WaitUntil(ctx, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.count > 0
	})
	if err != nil {
		return zero, err
	}
	c.mu.Lock()
	v := c.buf[c.head]
	var z T
	c.buf[c.head] = z
	c.head = (c.head + 1) % c.capacity
	c.count--
	c.mu.Unlock()
	// A slot just freed up; a writer parked on "not full" may now proceed.
	c.fx.Wake(0)
	return v, nil
}

// Write adds v as the newest element, blocking until there is room or ctx
// is done.
func (c *Channel[T]) Write(ctx context.Context, v T) error {
	err := c.fx.WaitUntil(ctx, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.count < c.capacity
	})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.buf[(c.head+c.count)%c.capacity] = v
	c.count++
	c.mu.Unlock()
	// A new element is available; a reader parked on "not empty" may now
	// proceed.
	c.fx.Wake(0)
	return nil
}

func (c *Channel[T]) readAny(ctx context.Context) (any, error) {
	return c.Read(ctx)
}

func (c *Channel[T]) writeAny(ctx context.Context, v any) error {
	return c.Write(ctx, v.(T))
}
