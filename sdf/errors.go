package sdf

import "fmt"

// UsageError reports a misuse of the sdf API: a malformed channel, a cycle
// with no delay, operating on a graph that has already launched. It
// mirrors the task package's plain-sentinel approach but carries a short
// operation tag since sdf errors are typically surfaced straight to an
// application author rather than retried programmatically.
type UsageError struct {
	Op  string
	Msg string
}

func (e *UsageError) Error() string { return fmt.Sprintf("sdf: %s: %s", e.Op, e.Msg) }

// ErrCycleNoDelay is returned by Launch/LaunchAndWait when the graph
// contains a cycle with no delay on any edge, making static partitioning
// invalid.
var ErrCycleNoDelay = &UsageError{Op: "Launch", Msg: "cycle with no delay"}
