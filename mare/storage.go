package mare

import (
	"context"
	"sync/atomic"
)

// storageKeySeq allocates process-wide-unique storage key identities, the
// same role the original's per-process key-registration call plays -
// allocating a key is the "fallible allocation" step the StorageError
// kind models, even though in Go it can never actually run out.
var storageKeySeq atomic.Uint64

// StorageKey identifies one typed slot in a TaskStorage, SchedulerStorage,
// or ThreadStorage map. Keys are created once (typically package-level
// vars) and shared by every Get/Set call for that slot.
type StorageKey[V any] struct {
	id uint64
}

// NewStorageKey allocates a new, distinct storage key for values of type
// V.
func NewStorageKey[V any]() StorageKey[V] {
	return StorageKey[V]{id: storageKeySeq.Add(1)}
}

// Get reads key's value from t's task-local storage. The slot map lives
// on the mare.Task wrapper rather than on task.Task itself so the task
// package stays free of any mare-layer concern.
func TaskStorageGet[V any](t *Task, key StorageKey[V]) (V, bool) {
	var zero V
	t.storageMu.Lock()
	defer t.storageMu.Unlock()
	if t.storage == nil {
		return zero, false
	}
	v, ok := t.storage[key.id]
	if !ok {
		return zero, false
	}
	return v.(V), true
}

// Set writes key's value into t's task-local storage. It always returns
// nil; the error result is kept for parity with the original's fallible
// tls_exception-returning API.
func TaskStorageSet[V any](t *Task, key StorageKey[V], v V) error {
	t.storageMu.Lock()
	defer t.storageMu.Unlock()
	if t.storage == nil {
		t.storage = make(map[uint64]any)
	}
	t.storage[key.id] = v
	return nil
}

// workerStorage is implemented by an Enqueuer that owns its own
// per-execution-context scheduler-storage slot - a pool worker. An
// Enqueuer with no such slot of its own - the runtime's default Enqueuer,
// handed to Blocking/GPU tasks running on an offloaded goroutine - falls
// back to the single Runtime-wide slot below instead, since those bodies
// have no fixed worker to call their own.
type workerStorage interface {
	StorageGet(id uint64) (any, bool)
	StorageSet(id uint64, v any)
}

// SchedulerStorageGet reads key's value from the execution context ctx's
// task is currently running on. Each worker in the pool keeps an
// independent copy of every scheduler-storage slot, so a body running on
// one worker never observes the value another worker stored under the
// same key - the per-scheduler-thread contract scheduler_storage_ptr
// describes. ctx must be the *Context the calling task's body received.
func SchedulerStorageGet[V any](rt *Runtime, ctx *Context, key StorageKey[V]) (V, bool) {
	var zero V
	if w, ok := ctx.Enqueuer().(workerStorage); ok {
		v, ok := w.StorageGet(key.id)
		if !ok {
			return zero, false
		}
		return v.(V), true
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	v, ok := rt.storage[key.id]
	if !ok {
		return zero, false
	}
	return v.(V), true
}

// SchedulerStorageSet writes key's value into the execution context ctx's
// task is currently running on, per the same per-worker-copy rule
// SchedulerStorageGet documents.
func SchedulerStorageSet[V any](rt *Runtime, ctx *Context, key StorageKey[V], v V) error {
	if w, ok := ctx.Enqueuer().(workerStorage); ok {
		w.StorageSet(key.id, v)
		return nil
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.storage[key.id] = v
	return nil
}

// SchedulerStorageSnapshot returns every worker's own copy of key, in
// worker-index order, omitting workers that never set it. It is the way
// to observe all per-execution-context copies of a scheduler-storage slot
// at once - for example, summing them once every task that touched key
// has finished.
func SchedulerStorageSnapshot[V any](rt *Runtime, key StorageKey[V]) []V {
	raw := rt.sched.StorageSnapshot(key.id)
	out := make([]V, len(raw))
	for i, v := range raw {
		out[i] = v.(V)
	}
	return out
}

// ThreadStorage is the Go substitute for the original's thread-local
// storage: Go has no stable goroutine-identity API, and a task's body may
// hop goroutines (a Blocking/GPU task runs on a dedicated one), so the
// "current thread" slot is instead carried explicitly on a
// context.Context - the same context a Body's *Context already threads
// through for cancellation. A ThreadStorage value is stateless; it is
// just a typed key plus the With/Get pair that read and write through it.
type ThreadStorage[V any] struct {
	key StorageKey[V]
}

// NewThreadStorage allocates a new thread-scoped storage slot for values
// of type V.
func NewThreadStorage[V any]() ThreadStorage[V] {
	return ThreadStorage[V]{key: NewStorageKey[V]()}
}

// With returns a copy of ctx carrying v in this slot.
func (s ThreadStorage[V]) With(ctx context.Context, v V) context.Context {
	return context.WithValue(ctx, s.key, v)
}

// Get reads this slot's value out of ctx, if any ancestor call to With set
// one.
func (s ThreadStorage[V]) Get(ctx context.Context) (V, bool) {
	var zero V
	v, ok := ctx.Value(s.key).(V)
	if !ok {
		return zero, false
	}
	return v, true
}
