package task

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"go.lepak.sg/mare/internal/futex"
	"go.lepak.sg/mare/internal/gsig"
)

// Group is a named, cancellable, waitable collection of tasks identified by
// a sparse-bitmap signature. Per the design's cycle-avoidance choice, a
// Group never holds pointers to its member tasks - only a count and a
// signature; the ownership edge runs task -> group, never the reverse.
type Group struct {
	engine *Engine
	id     uint64
	name   string
	sig    gsig.Signature

	// virtual is true for the result of a Join (A & B): it owns no bit of
	// its own, only the union of its constituents', and WaitFor delegates
	// to waiting on each constituent in turn rather than tracking its own
	// outstanding count.
	virtual      bool
	constituents []*Group

	outstanding atomic.Int64
	canceled    atomic.Bool

	mu       sync.Mutex
	firstErr error

	fx *futex.Futex
}

// CreateGroup returns a new, empty, concrete group. name is used only for
// logging/debugging; an empty name gets a generated one.
func (e *Engine) CreateGroup(name string) *Group {
	if name == "" {
		name = uuid.NewString()
	}
	return &Group{
		engine: e,
		id:     e.nextID(),
		name:   name,
		sig:    gsig.Signature{}.Set(e.groupAlloc.Alloc()),
		fx:     futex.New(),
	}
}

// Join returns the virtual group A & B: a handle whose membership test is
// "belongs to A and to B". Join never allocates a new concrete bit; the
// virtual group's signature is simply the union of its constituents'.
func (a *Group) Join(b *Group) *Group {
	return &Group{
		engine:       a.engine,
		id:           a.engine.nextID(),
		name:         a.name + "&" + b.name,
		sig:          a.sig.Union(b.sig),
		virtual:      true,
		constituents: []*Group{a, b},
		fx:           futex.New(),
	}
}

// Signature returns the group's bitmap, exported for the unlaunched-task
// cache and for tests asserting join algebra.
func (g *Group) Signature() gsig.Signature { return g.sig }

// Name returns the group's display name.
func (g *Group) Name() string { return g.name }

// IsCanceled reports whether Cancel has been called on this group.
func (g *Group) IsCanceled() bool { return g.canceled.Load() }

// Cancel marks the group canceled (a one-shot transition: once true, never
// clears) and sweeps the unlaunched-task cache for every currently-cached
// task whose signature is a superset of this group's, canceling each one.
// Tasks already RUNNING are not retroactively interrupted - only a
// cooperative AbortOnCancel check or the scheduler's own CancelReq
// observation does that - and every subsequent Launch into this group
// short-circuits to an immediate CANCELED instead of enqueueing.
func (g *Group) Cancel() {
	if !g.canceled.CompareAndSwap(false, true) {
		return
	}
	g.engine.utc.CancelAll(g.sig)
	if g.outstanding.Load() == 0 {
		g.fx.Wake(0)
	}
}

// WaitFor blocks until every task launched into the group has reached a
// terminal state, or ctx is done. If any member task's body returned an
// error, the first one observed is returned once the count reaches zero.
func (g *Group) WaitFor(ctx context.Context) error {
	if g.virtual {
		if err := g.constituents[0].WaitFor(ctx); err != nil {
			return err
		}
		return g.constituents[1].WaitFor(ctx)
	}
	if err := g.fx.WaitUntil(ctx, func() bool { return g.outstanding.Load() == 0 }); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.firstErr
}

// addMember is called when a task is created into this group (membership
// is fixed at creation, while the task is still unlaunched). It counts the task
// against tasks_outstanding immediately, since a canceled-while-unlaunched
// task still needs to be observed as "belonging, now terminal" by WaitFor.
func (g *Group) addMember() {
	g.outstanding.Add(1)
}

// memberDone is called exactly once per member task, when it reaches a
// terminal state. If the count reaches zero, every WaitFor caller is woken.
func (g *Group) memberDone(taskErr error) {
	if taskErr != nil {
		g.mu.Lock()
		if g.firstErr == nil {
			g.firstErr = taskErr
		}
		g.mu.Unlock()
	}
	if g.outstanding.Add(-1) == 0 {
		g.fx.Wake(0)
	}
}
