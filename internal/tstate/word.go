// Package tstate implements the packed atomic task state word described by
// the task lifecycle state machine: a single machine word holding the
// lifecycle stage flags and the outstanding-predecessor count, so that a
// stage transition and a predecessor decrement can both be expressed as one
// compare-and-swap.
package tstate

import "sync/atomic"

// Raw is the packed representation: six flag bits above a 26-bit
// predecessor count. The count field can hold 2^26-1, but AddPredecessor
// stops at MaxPredecessors (2^26-2).
type Raw = uint32

// Flag bits, ordered high-to-low the same way the source task_state does:
// a task that is "done" (Completed or Canceled) always compares numerically
// above a task that merely has CancelReq set, which is what lets IsDone and
// IsCanceled be expressed as a single unsigned comparison instead of a mask
// test.
const (
	Canceled   Raw = 1 << 31
	Completed  Raw = 1 << 30
	Running    Raw = 1 << 29
	Unlaunched Raw = 1 << 28
	CancelReq  Raw = 1 << 27
	InCache    Raw = 1 << 26

	predMask Raw = InCache - 1

	// MaxPredecessors is the largest predecessor count a Word can hold.
	MaxPredecessors = predMask - 1
)

// Word is the lock-free packed state of a task.
type Word struct {
	v atomic.Uint32
}

// New returns a Word in the UNLAUNCHED stage with zero predecessors.
func New() *Word {
	w := &Word{}
	w.v.Store(Unlaunched)
	return w
}

// Raw returns the current packed value.
func (w *Word) Raw() Raw { return w.v.Load() }

// IsDone reports whether the task reached a terminal stage (Completed or
// Canceled), regardless of which.
func (w *Word) IsDone() bool { return w.Raw() >= Completed }

// IsCompleted reports whether the task's terminal stage was Completed.
func (w *Word) IsCompleted() bool { return w.Raw()&Completed != 0 }

// IsCanceled reports whether the task's terminal stage was Canceled.
func (w *Word) IsCanceled() bool { return w.Raw() >= Canceled }

// IsRunning reports whether the task is currently executing its body.
func (w *Word) IsRunning() bool { return w.Raw()&Running != 0 }

// IsLaunched reports whether the task has left the UNLAUNCHED stage.
func (w *Word) IsLaunched() bool { return w.Raw()&Unlaunched == 0 }

// IsCancelRequested reports whether cancellation has been requested,
// irrespective of the current stage.
func (w *Word) IsCancelRequested() bool { return w.Raw()&CancelReq != 0 }

// InCache reports whether the task is currently referenced by the
// unlaunched-task cache.
func (w *Word) InCache() bool { return w.Raw()&InCache != 0 }

// PredecessorCount returns the number of predecessors still outstanding.
func (w *Word) PredecessorCount() uint32 { return w.Raw() & predMask }

// IsReady reports whether the task can be placed in a worker's deque right
// now: launched, zero predecessors outstanding, and not canceled.
func (w *Word) IsReady() bool {
	r := w.Raw()
	return r == 0 || r == InCache
}

func (w *Word) cas(old, new Raw) bool { return w.v.CompareAndSwap(old, new) }

// sentinel errors for AddPredecessor.
type stateError string

func (e stateError) Error() string { return string(e) }

// ErrAlreadyLaunched is returned by AddPredecessor once the task has left
// the UNLAUNCHED stage and can therefore no longer accept new
// predecessors.
const ErrAlreadyLaunched = stateError("tstate: task already launched")

// ErrTooManyPredecessors is returned by AddPredecessor on overflow of
// MaxPredecessors.
const ErrTooManyPredecessors = stateError("tstate: too many predecessors")

// AddPredecessor increments the predecessor count. It fails if the task has
// already left the UNLAUNCHED stage (i.e. is READY or later).
func (w *Word) AddPredecessor() error {
	for {
		raw := w.Raw()
		if raw&Unlaunched == 0 {
			return ErrAlreadyLaunched
		}
		cur := raw & predMask
		if cur >= predMask-1 {
			return ErrTooManyPredecessors
		}
		next := (raw &^ predMask) | (cur + 1)
		if w.cas(raw, next) {
			return nil
		}
	}
}

// Launch clears the UNLAUNCHED bit, moving the task to the READY stage. If
// cancellation was requested while the task was still unlaunched (e.g. its
// group was canceled while it sat in the unlaunched-task cache), Launch
// instead transitions the task straight to CANCELED and reports canceled
// = true, matching request_cancel's handling of a not-yet-running task.
func (w *Word) Launch() (canceled bool) {
	for {
		raw := w.Raw()
		if raw&CancelReq != 0 {
			next := Canceled | CancelReq
			if w.cas(raw, next) {
				return true
			}
			continue
		}
		next := raw &^ Unlaunched
		if w.cas(raw, next) {
			return false
		}
	}
}

// NotifyPredecessorDone decrements the predecessor count by one. ready is
// true iff the result is zero and the task is launched and not canceled,
// obligating the caller to enqueue the task onto a worker.
func (w *Word) NotifyPredecessorDone() (ready bool) {
	for {
		raw := w.Raw()
		if raw >= Completed {
			// terminal already; nothing to do, no token issued.
			return false
		}
		cur := raw & predMask
		if cur == 0 {
			// already zero; this can happen if the task was launched with
			// zero predecessors and a stray notification arrives. No-op.
			return false
		}
		next := (raw &^ predMask) | (cur - 1)
		if w.cas(raw, next) {
			return next&Unlaunched == 0 && next&CancelReq == 0 && next&predMask == 0
		}
	}
}

// RequestCancelResult describes what RequestCancel obligates the caller to
// do next.
type RequestCancelResult int

const (
	// CancelNoop means the task was already terminal; nothing to do.
	CancelNoop RequestCancelResult = iota
	// CancelRunning means the task was RUNNING when the request landed;
	// the caller must invoke any cancel handler, since the body is racing
	// against the flag.
	CancelRunning
	// CancelTransitioned means the task was UNLAUNCHED or READY and has
	// been moved directly to CANCELED by this call; the caller must run
	// the same bookkeeping it would for a body that finished (notify
	// successors, decrement group counters) without ever running the body.
	CancelTransitioned
)

// RequestCancel sets CancelReq. If the task is UNLAUNCHED or READY, it is
// transitioned directly to CANCELED as part of this call.
func (w *Word) RequestCancel() RequestCancelResult {
	for {
		raw := w.Raw()
		if raw >= Completed {
			return CancelNoop
		}
		if raw&Running != 0 {
			next := raw | CancelReq
			if next == raw {
				return CancelRunning
			}
			if w.cas(raw, next) {
				return CancelRunning
			}
			continue
		}
		next := Canceled | CancelReq
		if w.cas(raw, next) {
			return CancelTransitioned
		}
	}
}

// TryBeginRun attempts the READY -> RUNNING transition. If CancelReq landed
// between READY and this call, the task is moved straight to CANCELED
// instead and ran is false.
func (w *Word) TryBeginRun() (ran bool) {
	for {
		raw := w.Raw()
		if raw&CancelReq != 0 {
			next := Canceled | CancelReq
			if w.cas(raw, next) {
				return false
			}
			continue
		}
		if raw&(Running|Completed|Canceled) != 0 {
			return false
		}
		next := raw | Running
		if w.cas(raw, next) {
			return true
		}
	}
}

// MarkCompleted transitions a RUNNING task to COMPLETED.
func (w *Word) MarkCompleted() {
	for {
		raw := w.Raw()
		if raw >= Completed {
			return
		}
		if w.cas(raw, Completed) {
			return
		}
	}
}

// MarkCanceled transitions a RUNNING task to CANCELED, e.g. after
// AbortOnCancel unwinds the body.
func (w *Word) MarkCanceled() {
	for {
		raw := w.Raw()
		if raw >= Completed {
			return
		}
		if w.cas(raw, Canceled|CancelReq) {
			return
		}
	}
}

// SetInCache atomically sets or clears the IN_UTCACHE bit. It returns false
// when setting the bit on a task that is already terminal, since the
// unlaunched-task cache must not retain a reference to a finished task.
func (w *Word) SetInCache(in bool) bool {
	for {
		raw := w.Raw()
		if in && raw >= Completed {
			return false
		}
		var next Raw
		if in {
			next = raw | InCache
		} else {
			next = raw &^ InCache
		}
		if next == raw {
			return true
		}
		if w.cas(raw, next) {
			return true
		}
	}
}
