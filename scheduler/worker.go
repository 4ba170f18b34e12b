package scheduler

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff"

	"go.lepak.sg/mare/internal/chaselev"
	"go.lepak.sg/mare/task"
)

// worker owns one Chase-Lev deque and runs the steal-policy loop described
// for the scheduler: local pop, then the global queue, then a random
// victim steal, then exponential backoff followed by a park on the
// runtime's shared futex.
type worker struct {
	id    int
	rt    *Runtime
	deque *chaselev.Deque[*task.Task]
	rng   *rand.Rand

	storageMu sync.Mutex
	storage   map[uint64]any
}

// StorageGet reads id's value out of this worker's own scheduler-storage
// slot. Every worker keeps an independent copy, so a body running on this
// worker never observes a value another worker stored under the same id -
// the per-execution-context contract scheduler-scoped storage is meant to
// have.
func (w *worker) StorageGet(id uint64) (any, bool) {
	w.storageMu.Lock()
	defer w.storageMu.Unlock()
	v, ok := w.storage[id]
	return v, ok
}

// StorageSet writes id's value into this worker's own scheduler-storage
// slot.
func (w *worker) StorageSet(id uint64, v any) {
	w.storageMu.Lock()
	defer w.storageMu.Unlock()
	if w.storage == nil {
		w.storage = make(map[uint64]any)
	}
	w.storage[id] = v
}

// Enqueue implements task.Enqueuer: a task readied by a body running on
// this worker goes onto this worker's own deque (the cache-friendly,
// single-writer path the worker loop's first pop checks), unless the
// deque has already hit its soft limit, in which case it overflows to the
// global queue exactly as the overflow-handling rule requires.
func (w *worker) Enqueue(t *task.Task) {
	if w.deque.Len() >= w.rt.softLimit {
		w.rt.global.push(t)
	} else {
		w.deque.Push(t)
	}
	w.rt.parkFx.Wake(1)
}

const maxSpinAttempts = 4

func (w *worker) loop(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0 // never permanently gives up; shutdown is via ctx
	attempts := 0

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if t, ok := w.deque.Pop(); ok {
			w.run(t)
			attempts = 0
			bo.Reset()
			continue
		}
		if t, ok := w.rt.global.pop(); ok {
			w.run(t)
			attempts = 0
			bo.Reset()
			continue
		}
		if t, ok := w.steal(); ok {
			w.run(t)
			attempts = 0
			bo.Reset()
			continue
		}

		attempts++
		if attempts < maxSpinAttempts {
			select {
			case <-time.After(bo.NextBackOff()):
			case <-ctx.Done():
				return nil
			}
			continue
		}

		if err := w.rt.parkFx.Wait(ctx); err != nil {
			return nil
		}
		attempts = 0
		bo.Reset()
	}
}

// steal picks a random peer (never itself) and attempts one steal from it.
// A single failed attempt is treated the same as "that victim is empty" -
// the caller's loop will simply try a different victim or back off on the
// next iteration, matching the original's ABORT-token handling.
func (w *worker) steal() (*task.Task, bool) {
	n := len(w.rt.workers)
	if n <= 1 {
		return nil, false
	}
	victim := w.rt.workers[w.rng.Intn(n)]
	if victim == w {
		return nil, false
	}
	t, ok := victim.deque.Steal()
	if ok {
		w.rt.log.Event("worker_steal", strconv.Itoa(w.id), nil)
	}
	return t, ok
}

// run executes t, offloading blocking and GPU-flagged tasks onto a
// dedicated on-demand goroutine so that a long or indefinitely-suspended
// body never occupies this worker's slot in the pool. A task run on a
// dedicated goroutine has no deque of its own, so its readied successors
// go through the runtime's default Enqueuer (the global queue) instead.
func (w *worker) run(t *task.Task) {
	attrs := t.Attrs()
	if attrs.Blocking || attrs.GPU {
		w.rt.spawnOffloaded(t)
		return
	}
	t.Run(w)
}
