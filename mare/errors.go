package mare

import (
	"errors"
	"fmt"
	"runtime"

	"go.lepak.sg/mare/task"
)

// ErrCanceled is the sentinel a cooperative task body or AbortOnCancel
// returns for voluntary cancellation, surfaced through errors.Is.
var ErrCanceled = task.ErrCanceled

// UsageError is returned for a misuse of the public API: an invalid
// handle, launching an already-launched task, a circular dependency, a
// zero-size SDF buffer, an SDF cycle with no delay. It carries the
// caller's file/line/function the way the root error type this is
// grounded on does, captured via runtime.Caller at construction time.
type UsageError struct {
	File string
	Line int
	Func string
	Err  error
}

func newUsageError(err error) *UsageError {
	e := &UsageError{Err: err}
	if pc, file, line, ok := runtime.Caller(2); ok {
		e.File, e.Line = file, line
		if fn := runtime.FuncForPC(pc); fn != nil {
			e.Func = fn.Name()
		}
	}
	return e
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("mare: usage error in %s (%s:%d): %v", e.Func, e.File, e.Line, e.Err)
}

func (e *UsageError) Unwrap() error { return e.Err }

// StorageError reports a failed task/scheduler/thread storage allocation.
type StorageError struct {
	Msg string
}

func (e *StorageError) Error() string { return "mare: storage: " + e.Msg }

// wrapUsage translates a task-package sentinel into a *UsageError the
// caller of a mare function, not task.After/task.Launch, should see.
func wrapUsage(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, task.ErrCanceled) {
		return err
	}
	return newUsageError(err)
}
