package task

import (
	"errors"
	"sync"

	"go.lepak.sg/mare/internal/graph"
	"go.lepak.sg/mare/internal/tstate"
	"go.lepak.sg/mare/internal/utcache"
)

// Body is a task's callable. It receives a *Context exposing cooperative
// cancellation checks, and may return an error, which the engine stores on
// the task and propagates to any WaitFor caller - equivalent to the
// original's "any other exception from a task body" handling.
type Body func(ctx *Context) error

// Context is passed to a running task's Body. It is the idiomatic
// substitute for the original's thread-local abort_on_cancel(): instead of
// a global lookup keyed by the calling thread, the engine hands the
// currently-running task's own context to its body directly.
type Context struct {
	t   *Task
	enq Enqueuer
}

// AbortOnCancel returns ErrCanceled if cancellation has been requested on
// the running task or on any group it was created into. A cooperative body
// should check this at safe points and return promptly, propagating the
// error up through Body's return.
func (c *Context) AbortOnCancel() error {
	if c.t.state.IsCancelRequested() {
		return ErrCanceled
	}
	for _, g := range c.t.groups {
		if g.IsCanceled() {
			return ErrCanceled
		}
	}
	return nil
}

// Enqueuer returns the Enqueuer the running task was handed to for
// successor placement - a pool worker for a task running on its loop, or
// the engine's default Enqueuer for a Blocking/GPU task's offloaded
// goroutine. Scheduler-storage is keyed off this value so that each
// worker's copy of a slot is genuinely its own, the way the currently
// executing context's storage is meant to work.
func (c *Context) Enqueuer() Enqueuer {
	return c.enq
}

// ErrCanceled is the sentinel a cooperative Body returns (or that AbortOnCancel
// itself returns) to signal voluntary cancellation. The mare facade surfaces
// this as mare.ErrCanceled via errors.Is.
var ErrCanceled = taskCanceledError{}

type taskCanceledError struct{}

func (taskCanceledError) Error() string { return "task: canceled" }

// Task is a unit of work: a body, a predecessor count packed into its
// state word, group membership, and a lifecycle state machine running
// Unlaunched -> Ready -> Running -> {Completed, Canceled}.
type Task struct {
	engine *Engine
	id     uint64

	state *tstate.Word

	body          Body
	cancelHandler func()
	attrs         Attrs
	sourceID      string

	mu         sync.Mutex
	successors []*Task
	groups     []*Group
	launched   bool // Launch has been called
	finished   bool // finish has run

	err  error
	done chan struct{}
}

// CreateTask creates a task with the given body, attrs, optional cancel
// handler (invoked only if the task is RUNNING when cancellation lands,
// matching request_cancel's "racing against a running body" contract) and
// optional group. A nil group leaves the task ungrouped. sourceID
// identifies the body's type for loggers; an empty sourceID is replaced
// with a generated one.
func (e *Engine) CreateTask(body Body, attrs Attrs, cancelHandler func(), group *Group, sourceID string) *Task {
	if sourceID == "" {
		sourceID = NewSourceID()
	}
	t := &Task{
		engine:        e,
		id:            e.nextID(),
		state:         tstate.New(),
		body:          body,
		cancelHandler: cancelHandler,
		attrs:         attrs,
		sourceID:      sourceID,
		done:          make(chan struct{}),
	}

	if group != nil {
		if group.IsCanceled() {
			t.state.MarkCanceled()
			close(t.done)
			e.log.Event("task_canceled", e.taskLogID(t), map[string]any{"reason": "group_already_canceled"})
			return t
		}
		t.groups = append(t.groups, group)
		group.addMember()
		t.state.SetInCache(true)
		e.utc.Insert(utcache.Handle{ID: t.id, Sig: group.sig, Cancel: func() { e.cacheCancel(t) }})

		// Close the race against a concurrent Cancel whose sweep may have
		// already run before this Insert became visible: if the group is
		// (now) canceled, drive the same cancellation path the sweep would
		// have taken.
		if group.IsCanceled() {
			e.cacheCancel(t)
		}
	}

	e.log.Event("task_created", e.taskLogID(t), map[string]any{"source_id": sourceID})
	return t
}

func (e *Engine) taskLogID(t *Task) string {
	return e.idLabel(t.id)
}

func (e *Engine) idLabel(id uint64) string {
	// Cheap, allocation-light decimal rendering; avoids pulling in
	// strconv at call sites that already import this package.
	if id == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for id > 0 {
		i--
		buf[i] = byte('0' + id%10)
		id /= 10
	}
	return string(buf[i:])
}

// cacheCancel is the callback the unlaunched-task cache invokes on t when a
// group containing t is canceled while t is still unlaunched.
func (e *Engine) cacheCancel(t *Task) {
	if !t.state.SetInCache(false) {
		// already terminal; nothing to do.
		return
	}
	if t.state.RequestCancel() == tstate.CancelTransitioned {
		t.finish(nil, e.enq)
	}
}

// After registers pred as a predecessor of succ: succ does not become
// READY until pred reaches a terminal state. It fails with
// ErrAlreadyLaunched if succ has already left Unlaunched, and with
// ErrCircularDependency if the edge would close a cycle among not-yet-
// launched tasks.
func After(pred, succ *Task) error {
	if pred == succ {
		return ErrCircularDependency
	}

	first, second := pred, succ
	if first.id > second.id {
		first, second = second, first
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	if succ.state.IsLaunched() {
		return ErrAlreadyLaunched
	}
	if pred.state.IsDone() {
		// the predecessor has already resolved; nothing further to wait on.
		return nil
	}

	if reaches(succ, pred) {
		return ErrCircularDependency
	}

	if err := succ.state.AddPredecessor(); err != nil {
		return ErrTooManyPredecessors
	}
	pred.successors = append(pred.successors, succ)
	return nil
}

// reaches reports whether to is reachable from from by following existing
// successor edges. After calls reaches(succ, pred) to detect that succ
// already (transitively) precedes pred, in which case adding pred->succ
// would close a cycle. The caller already holds from.mu and to.mu (After
// locks both endpoints before calling in), so the walk must not re-lock
// either of those two - but every other task it visits is locked while
// its successors slice is read, the same copy-then-iterate-unlocked
// pattern finish uses, since a concurrent After or finish on one of those
// tasks would otherwise race this read.
//
// Built on internal/graph: the reachable subgraph rooted at from is
// collected into a Digraph and then tested for membership, the same
// adjacency-list structure used for SDF partition cycle validation.
func reaches(from, to *Task) bool {
	g := graph.New[uint64]()
	g.AddNode(from.id)

	successorsOf := func(n *Task) []*Task {
		if n == from || n == to {
			return n.successors
		}
		n.mu.Lock()
		defer n.mu.Unlock()
		return n.successors
	}

	seen := map[uint64]bool{from.id: true}
	stack := []*Task{from}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, s := range successorsOf(n) {
			g.AddEdge(n.id, s.id)
			if !seen[s.id] {
				seen[s.id] = true
				stack = append(stack, s)
			}
		}
	}
	return g.Has(to.id) && seen[to.id]
}

// Launch transitions t out of Unlaunched. If t was already canceled before
// its first Launch (its group was canceled, or it was created into a
// canceled group), Launch returns nil, enqueues nothing and t stays
// CANCELED; the cancellation bookkeeping has already run. Otherwise, if t
// has zero outstanding predecessors, it is handed to the engine's
// Enqueuer; if it still has predecessors, it simply becomes eligible to be
// enqueued later by the last NotifyPredecessorDone call. A second Launch
// returns ErrAlreadyLaunched.
func (t *Task) Launch() error {
	t.mu.Lock()
	if t.launched {
		t.mu.Unlock()
		return ErrAlreadyLaunched
	}
	t.launched = true
	if t.state.IsDone() {
		t.engine.utc.Remove(t.id)
		t.mu.Unlock()
		return nil
	}
	t.engine.utc.Remove(t.id)
	t.state.SetInCache(false)
	canceled := t.state.Launch()
	t.mu.Unlock()

	if canceled {
		t.finish(nil, t.engine.enq)
		return nil
	}

	t.engine.log.Event("task_launched", t.engine.taskLogID(t), nil)
	if t.state.IsReady() {
		t.enqueueOn(t.engine.enq)
	}
	return nil
}

func (t *Task) enqueueOn(enq Enqueuer) {
	t.engine.log.Event("task_ready", t.engine.taskLogID(t), nil)
	if enq != nil {
		enq.Enqueue(t)
	}
}

// NotifyPredecessorDone is called once per predecessor edge, when that
// predecessor reaches a terminal state. enq is the Enqueuer the readied
// task should be handed to: the worker running the predecessor's body
// passes itself, so a readied successor goes onto that worker's own deque
// exactly as the worker loop describes, rather than onto a process-wide
// queue every goroutine contends on.
func (t *Task) NotifyPredecessorDone(enq Enqueuer) {
	if t.state.NotifyPredecessorDone() {
		t.enqueueOn(enq)
	}
}

// Run executes the task's body on the calling goroutine (a worker, a
// blocking-task goroutine, or a GPU-completion callback). It performs the
// full try_begin_run -> body -> successor-notification -> group-bookkeeping
// sequence described by the worker loop. enq receives any successor this
// call readies; a caller with no natural deque of its own (a blocking-task
// goroutine, a GPU completion callback) passes the engine's default
// Enqueuer instead.
func (t *Task) Run(enq Enqueuer) {
	if !t.state.TryBeginRun() {
		// CancelReq landed between Ready and this call; the state word
		// already moved straight to Canceled.
		t.finish(nil, enq)
		return
	}
	t.engine.log.Event("task_running", t.engine.taskLogID(t), nil)

	err := t.body(&Context{t: t, enq: enq})
	if err != nil && isCanceledErr(err) {
		t.state.MarkCanceled()
	} else {
		t.state.MarkCompleted()
	}
	t.finish(err, enq)
}

func isCanceledErr(err error) bool {
	return errors.Is(err, ErrCanceled)
}

// Cancel requests cancellation. If the task is Unlaunched or Ready it is
// transitioned straight to Canceled by this call; if it is Running, the
// cancel handler (if any) is invoked since the body is racing the flag.
func (t *Task) Cancel() {
	res := t.state.RequestCancel()
	switch res {
	case tstate.CancelRunning:
		if t.cancelHandler != nil {
			t.cancelHandler()
		}
	case tstate.CancelTransitioned:
		t.finish(nil, t.engine.enq)
	}
}

// finish runs the bookkeeping shared by a task completing its body, being
// canceled before ever running, or being swept out of the unlaunched-task
// cache: notify successors, decrement every group's outstanding count, and
// unblock any WaitFor(t) caller. Only the first call for a task does this
// work; a later call (Run on a task that Cancel already finished, for
// instance) returns at once.
func (t *Task) finish(err error, enq Enqueuer) {
	t.mu.Lock()
	if t.finished {
		t.mu.Unlock()
		return
	}
	t.finished = true
	t.err = err
	successors := t.successors
	groups := t.groups
	t.successors = nil
	t.mu.Unlock()

	event := "task_completed"
	if t.state.IsCanceled() {
		event = "task_canceled"
	}
	t.engine.log.Event(event, t.engine.taskLogID(t), nil)

	for _, s := range successors {
		s.NotifyPredecessorDone(enq)
	}
	for _, g := range groups {
		g.memberDone(err)
	}
	close(t.done)
}

// WaitFor blocks until t reaches a terminal state, then returns the error
// its body produced, if any.
func (t *Task) WaitFor() error {
	<-t.done
	return t.err
}

// State exposes the packed lifecycle word for callers (the scheduler, the
// SDF launcher) that need fine-grained status.
func (t *Task) State() *tstate.Word { return t.state }

// ID returns the task's engine-local identifier.
func (t *Task) ID() uint64 { return t.id }

// Attrs returns the attrs the task was created with.
func (t *Task) Attrs() Attrs { return t.attrs }

// SourceID returns the opaque body-type tag used by loggers.
func (t *Task) SourceID() string { return t.sourceID }
