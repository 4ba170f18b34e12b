package mare

import "go.lepak.sg/mare/task"

// Attrs configures task creation: execution hints consulted by the
// scheduler (Blocking, GPU), the cooperative Stub/Yield markers, and an
// optional cost hint. Only Blocking and GPU are read by this runtime;
// Stub, Yield, LongRunning and Cost are stored on the task and not read
// (SDF nodes carry their own cost, set with SDFNode.AssignCost).
type Attrs = task.Attrs

// DefaultAttrs returns the zero-hint Attrs with Cost 1.0.
func DefaultAttrs() Attrs { return task.DefaultAttrs() }

// WithBlocking returns a copy of a with Blocking set, for task bodies that
// call out to blocking I/O and must run on a dedicated goroutine rather
// than occupy a pool worker.
func WithBlocking(a Attrs) Attrs { a.Blocking = true; return a }

// WithGPU returns a copy of a with GPU set, for task bodies that submit
// work to an external device queue and must not tie up a pool worker while
// awaiting the device's completion event.
func WithGPU(a Attrs) Attrs { a.GPU = true; return a }

// AssignCost returns a copy of a with Cost set. Neither the scheduler nor
// the SDF static partitioner reads a task's Cost.
func AssignCost(a Attrs, cost float64) Attrs { a.Cost = cost; return a }
