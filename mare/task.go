package mare

import (
	"sync"

	"go.lepak.sg/mare/task"
)

// Body is a task's callable; it receives a *Context exposing
// AbortOnCancel and returns an error that WaitFor later surfaces.
type Body = task.Body

// Context is handed to a running task's Body.
type Context = task.Context

// Task is a unit of scheduled work.
type Task struct {
	rt    *Runtime
	inner *task.Task

	storageMu sync.Mutex
	storage   map[uint64]any
}

// CreateTask creates a task that runs body with the given attrs and
// optional cancel handler, ungrouped. The cancel handler, if non-nil, is
// invoked only if Cancel races against a RUNNING body.
func (rt *Runtime) CreateTask(body Body, attrs Attrs, cancelHandler func()) *Task {
	return &Task{rt: rt, inner: rt.engine.CreateTask(body, attrs, cancelHandler, nil, "")}
}

// CreateGroupedTask is CreateTask plus immediate membership in g. Per the
// unlaunched-task cache contract, if g is already canceled the task is
// created already CANCELED.
func (rt *Runtime) CreateGroupedTask(body Body, attrs Attrs, cancelHandler func(), g *Group) *Task {
	return &Task{rt: rt, inner: rt.engine.CreateTask(body, attrs, cancelHandler, g.inner, "")}
}

// Launch transitions the task out of UNLAUNCHED, enqueueing it once it
// has zero outstanding predecessors.
func (t *Task) Launch() error {
	return wrapUsage(t.inner.Launch())
}

// After registers pred as a dependency of succ: succ will not become
// ready until pred reaches a terminal state. It fails if succ has already
// launched or if the edge would close a cycle.
func After(pred, succ *Task) error {
	return wrapUsage(task.After(pred.inner, succ.inner))
}

// WaitFor blocks until the task reaches a terminal state and returns the
// error its body produced, if any.
func (t *Task) WaitFor() error { return t.inner.WaitFor() }

// Cancel requests cancellation of the task.
func (t *Task) Cancel() { t.inner.Cancel() }

// LaunchAndWait launches the task and blocks for its result.
func (t *Task) LaunchAndWait() error {
	if err := t.Launch(); err != nil {
		return err
	}
	return t.WaitFor()
}
