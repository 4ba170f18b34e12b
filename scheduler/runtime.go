// Package scheduler implements the work-stealing worker pool that drives a
// task.Engine: one Chase-Lev deque per worker, a process-wide overflow
// queue, and a shared park point workers back off onto when there is
// nothing to steal. It implements task.Enqueuer so the task package never
// imports it directly.
package scheduler

import (
	"context"
	"math/rand"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"go.lepak.sg/mare/internal/chaselev"
	"go.lepak.sg/mare/internal/eventlog"
	"go.lepak.sg/mare/internal/futex"
	"go.lepak.sg/mare/task"
)

// defaultSoftLimit bounds how many ready tasks a single worker's deque will
// hold before new arrivals overflow to the global queue, keeping one
// producer from starving every other worker's steal attempts.
const defaultSoftLimit = 4096

// Config controls Runtime construction. A zero Config is valid and picks
// GOMAXPROCS workers with the package defaults.
type Config struct {
	// Workers is the pool size. Zero selects runtime.GOMAXPROCS(0).
	Workers int
	// SoftLimit is the per-worker deque overflow threshold. Zero selects
	// defaultSoftLimit.
	SoftLimit int
	// Log receives lifecycle events (worker park/wake/steal). Nil discards
	// them.
	Log *eventlog.Log
	// Seed seeds the per-worker victim-selection PRNGs deterministically.
	// Zero derives a seed from each worker's index, which is enough entropy
	// for steal-target diversity without needing a true random source.
	Seed int64
}

// Runtime is the engine-facing scheduler: a fixed pool of workers plus the
// global overflow queue and shared park futex they share. It implements
// task.Enqueuer as the default path for tasks readied from outside any
// worker's own loop (a fresh Launch call, a cross-goroutine Cancel, a
// blocking-task or GPU-task completion).
type Runtime struct {
	workers   []*worker
	global    globalQueue
	parkFx    *futex.Futex
	softLimit int
	log       *eventlog.Log

	eg     *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc

	offloadWG sync.WaitGroup
}

// New constructs a Runtime and starts its worker pool. The returned Runtime
// should be wired into a task.Engine via engine.SetEnqueuer before any task
// is launched, and stopped with Shutdown once the engine is no longer
// needed.
func New(cfg Config) *Runtime {
	n := cfg.Workers
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	softLimit := cfg.SoftLimit
	if softLimit <= 0 {
		softLimit = defaultSoftLimit
	}
	log := cfg.Log
	if log == nil {
		log = eventlog.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	eg, egCtx := errgroup.WithContext(ctx)

	rt := &Runtime{
		parkFx:    futex.New(),
		softLimit: softLimit,
		log:       log,
		eg:        eg,
		ctx:       egCtx,
		cancel:    cancel,
	}

	rt.workers = make([]*worker, n)
	for i := 0; i < n; i++ {
		seed := cfg.Seed
		if seed == 0 {
			seed = int64(i) + 1
		} else {
			seed = seed + int64(i)
		}
		rt.workers[i] = &worker{
			id:    i,
			rt:    rt,
			deque: chaselev.New[*task.Task](0),
			rng:   rand.New(rand.NewSource(seed)),
		}
	}
	for _, w := range rt.workers {
		w := w
		rt.eg.Go(func() error { return w.loop(rt.ctx) })
	}
	return rt
}

// Enqueue implements task.Enqueuer for callers with no worker-owned deque
// of their own: push onto the global queue and wake one parked worker.
func (rt *Runtime) Enqueue(t *task.Task) {
	rt.global.push(t)
	rt.parkFx.Wake(1)
}

// spawnOffloaded runs t on a dedicated, on-demand goroutine rather than on
// a pool worker, for tasks flagged Blocking or GPU: the pool's fixed
// workers must keep finding other work while t's body is parked on I/O or
// a device completion, exactly as the worker loop's "replaced by another
// pool thread while suspended" contract requires. The offloaded goroutine
// has no deque of its own, so any successor it readies is handed to the
// runtime's default Enqueuer.
func (rt *Runtime) spawnOffloaded(t *task.Task) {
	rt.offloadWG.Add(1)
	go func() {
		defer rt.offloadWG.Done()
		t.Run(rt)
	}()
}

// Shutdown stops accepting new work from the worker loops and blocks until
// every worker goroutine and every in-flight offloaded (blocking/GPU) task
// goroutine has returned. It does not cancel tasks already queued or
// running; callers that want that should Cancel the relevant groups first.
func (rt *Runtime) Shutdown() error {
	rt.cancel()
	rt.parkFx.Wake(0)
	err := rt.eg.Wait()
	rt.offloadWG.Wait()
	return err
}

// PendingLen reports the current length of the global overflow queue,
// exposed for tests and diagnostics.
func (rt *Runtime) PendingLen() int { return rt.global.len() }

// StorageSnapshot returns every worker's own copy of the scheduler-storage
// slot id, in worker-index order, omitting workers that never set it. This
// is how a caller observes all per-execution-context copies of a slot at
// once - e.g. to sum them after every task has finished.
func (rt *Runtime) StorageSnapshot(id uint64) []any {
	out := make([]any, 0, len(rt.workers))
	for _, w := range rt.workers {
		if v, ok := w.StorageGet(id); ok {
			out = append(out, v)
		}
	}
	return out
}
