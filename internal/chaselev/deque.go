// Package chaselev implements the per-worker work-stealing double-ended
// queue: the owning worker pushes and pops from the bottom (LIFO, cache
// friendly), while any other worker may steal from the top (FIFO). The
// backing array doubles when a push finds it full, copying only the
// currently-live range into the replacement, mirroring the source's
// resize-on-full behaviour rather than a circular generational scheme.
//
// The source implements the classic Chase-Lev/Lê-Pop algorithm with
// fine-grained atomics and an explicit compile-time escape hatch
// (MARE_CLD_SERIALIZE) that falls back to a single mutex for debugging.
// Go has no portable lock-free CAS over an arbitrary-element array without
// `unsafe`, so this port always takes the source's debug path: a mutex
// guards the top/bottom cursors and the backing slice. This is the same
// trade-off another lock-free-flavoured Go work-stealing pool in the
// pack makes outright (a plain sync.Mutex-guarded deque). Throughput is
// lower than a true lock-free deque, but the contract - each pushed value
// is yielded exactly once, steals never fabricate a value - is identical
// and trivially correct.
package chaselev

import "sync"

// Deque is a resizable work-stealing double-ended queue of T.
type Deque[T any] struct {
	mu     sync.Mutex
	buf    []T
	top    int64
	bottom int64
}

const defaultLogSize = 8 // 256 slots

// New returns an empty Deque. logSize, if non-zero, is the log2 of the
// initial backing array size.
func New[T any](logSize uint) *Deque[T] {
	if logSize == 0 {
		logSize = defaultLogSize
	}
	return &Deque[T]{buf: make([]T, 1<<logSize)}
}

func (d *Deque[T]) index(i int64) int64 { return i & (int64(len(d.buf)) - 1) }

// grow doubles the backing array, preserving only the live [top, bottom)
// range, exactly as the source's chase_lev_array::resize does.
func (d *Deque[T]) grow() {
	next := make([]T, len(d.buf)*2)
	mask := int64(len(next)) - 1
	for i := d.top; i < d.bottom; i++ {
		next[i&mask] = d.buf[d.index(i)]
	}
	d.buf = next
}

// Push adds x to the bottom. Only the owning worker may call Push.
func (d *Deque[T]) Push(x T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bottom-d.top >= int64(len(d.buf)) {
		d.grow()
	}
	d.buf[d.index(d.bottom)] = x
	d.bottom++
}

// Pop removes and returns a value from the bottom (LIFO order). Only the
// owning worker may call Pop. ok is false if the deque was empty.
func (d *Deque[T]) Pop() (x T, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bottom == d.top {
		var zero T
		return zero, false
	}
	d.bottom--
	x = d.buf[d.index(d.bottom)]
	return x, true
}

// Steal removes and returns a value from the top (FIFO order, relative to
// Push). Any worker, including the owner, may call Steal concurrently.
func (d *Deque[T]) Steal() (x T, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.top >= d.bottom {
		var zero T
		return zero, false
	}
	x = d.buf[d.index(d.top)]
	d.top++
	return x, true
}

// Len returns the number of elements currently queued.
func (d *Deque[T]) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.bottom - d.top
	if n < 0 {
		return 0
	}
	return int(n)
}

// Empty reports whether the deque currently holds no elements.
func (d *Deque[T]) Empty() bool {
	return d.Len() == 0
}
