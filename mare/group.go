package mare

import (
	"context"

	"go.lepak.sg/mare/task"
)

// Group is a named, cancellable, waitable collection of tasks.
type Group struct {
	rt    *Runtime
	inner *task.Group
}

// CreateGroup returns a new, empty group. An empty name gets a generated
// one.
func (rt *Runtime) CreateGroup(name string) *Group {
	return &Group{rt: rt, inner: rt.engine.CreateGroup(name)}
}

// Join returns the virtual group "a and b": a task belongs to it iff it
// belongs to both a and b.
func (a *Group) Join(b *Group) *Group {
	return &Group{rt: a.rt, inner: a.inner.Join(b.inner)}
}

// Cancel marks the group canceled: every current and future member not
// yet terminal is canceled.
func (g *Group) Cancel() { g.inner.Cancel() }

// IsCanceled reports whether Cancel has been called.
func (g *Group) IsCanceled() bool { return g.inner.IsCanceled() }

// WaitFor blocks until every member task launched into the group has
// reached a terminal state, or ctx is done, returning the first member
// error observed, if any. That error is a member task's own body error,
// not a misuse error, so it is returned unwrapped - the same contract
// Task.WaitFor has.
func (g *Group) WaitFor(ctx context.Context) error {
	return g.inner.WaitFor(ctx)
}

// Name returns the group's display name.
func (g *Group) Name() string { return g.inner.Name() }
