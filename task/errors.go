package task

import "errors"

// Sentinel errors returned by the task/group engine. The mare facade
// package wraps these in *mare.UsageError (with caller file/line/function
// attached) at the public API boundary; the engine itself stays free of
// that presentation concern.
var (
	// ErrAlreadyLaunched is returned by After and by Launch when a task has
	// already left the Unlaunched stage.
	ErrAlreadyLaunched = errors.New("task: already launched")

	// ErrCircularDependency is returned by After when adding the edge would
	// close a predecessor cycle.
	ErrCircularDependency = errors.New("task: circular dependency")

	// ErrTooManyPredecessors mirrors tstate.ErrTooManyPredecessors at the
	// task-engine boundary.
	ErrTooManyPredecessors = errors.New("task: too many predecessors")
)
