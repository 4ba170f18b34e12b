// Package task implements the task and group model: task objects with a
// packed lifecycle state word, groups identified by a signature and
// tracking a count of outstanding members, the unlaunched-task cache wiring, and the cross-group join
// algebra. It depends only on the primitive packages below it
// (internal/tstate, internal/gsig, internal/utcache, internal/graph,
// internal/eventlog) and is itself depended on by the scheduler and SDF
// layers above it.
package task

import (
	"sync/atomic"

	"github.com/google/uuid"

	"go.lepak.sg/mare/internal/eventlog"
	"go.lepak.sg/mare/internal/gsig"
	"go.lepak.sg/mare/internal/utcache"
)

// Enqueuer hands a ready task to the scheduler layer. The task engine never
// imports the scheduler package directly - the scheduler implements this
// interface and is wired in by the mare facade - so that the dependency
// between the two layers points only one way at compile time even though
// control flows both ways at runtime.
type Enqueuer interface {
	// Enqueue is called exactly once per task, the moment it becomes ready
	// to run (zero predecessors, launched, not canceled). The task has
	// already transitioned its state word; Enqueue only needs to place it
	// somewhere a worker will find it.
	Enqueue(t *Task)
}

// Engine is the shared state every Task and Group in a runtime instance is
// created through. A *mare.Runtime owns exactly one Engine.
type Engine struct {
	groupAlloc *gsig.Allocator
	utc        *utcache.Cache
	log        *eventlog.Log
	enq        Enqueuer

	nextTaskID atomic.Uint64
}

// NewEngine returns an Engine with no Enqueuer; one is wired in later via
// SetEnqueuer, since the scheduler that implements Enqueuer is typically
// constructed after the engine it will drive. A nil log discards events.
func NewEngine(log *eventlog.Log) *Engine {
	if log == nil {
		log = eventlog.Nop()
	}
	return &Engine{
		groupAlloc: gsig.NewAllocator(),
		utc:        utcache.New(0),
		log:        log,
	}
}

// SetEnqueuer wires the scheduler into the engine. It must be called once,
// before any task is launched.
func (e *Engine) SetEnqueuer(enq Enqueuer) { e.enq = enq }

func (e *Engine) nextID() uint64 { return e.nextTaskID.Add(1) }

// NewSourceID returns an opaque tag distinguishing a task body's type for
// loggers, matching the original's source_id field. Callers that don't
// care pass an empty string when creating a task, in which case a random
// id is generated here so every logged task event still has a non-empty
// source_id.
func NewSourceID() string {
	return uuid.NewString()
}
