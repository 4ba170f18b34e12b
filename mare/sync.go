package mare

import (
	"context"
	"time"

	"go.lepak.sg/mare/internal/futex"
)

// Mutex is a futex-backed exclusive lock. Unlike sync.Mutex it parks
// waiters on a Futex rather than spinning, which is the same park/wake
// path a worker uses while idle - so a task body that blocks on a
// contended Mutex looks, from the scheduler's perspective, exactly like
// one waiting on any other futex-backed condition.
type Mutex struct {
	fx     *futex.Futex
	locked bool
}

// NewMutex returns an unlocked Mutex.
func NewMutex() *Mutex {
	return &Mutex{fx: futex.New()}
}

// Lock blocks until the mutex is free and acquires it.
func (m *Mutex) Lock() {
	_ = m.LockContext(nil)
}

// LockContext is Lock with cancellation. On ctx being done before
// acquisition it returns ctx.Err() and does not hold the lock.
func (m *Mutex) LockContext(ctx context.Context) error {
	for {
		acquired := false
		err := m.fx.WaitUntil(ctx, func() bool {
			if m.locked {
				return false
			}
			m.locked = true
			acquired = true
			return true
		})
		if err != nil {
			return err
		}
		if acquired {
			return nil
		}
	}
}

// TryLock acquires the mutex without blocking, reporting whether it
// succeeded.
func (m *Mutex) TryLock() bool {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := m.LockContext(ctx)
	return err == nil
}

// Unlock releases the mutex and wakes one waiter, if any.
func (m *Mutex) Unlock() {
	m.fx.WaitUntil(nil, func() bool { m.locked = false; return true })
	m.fx.Wake(1)
}

// RecursiveMutex is a Mutex that the same owner may lock more than once.
// The original identifies the owning thread implicitly via the OS thread
// ID; Go has no equivalent stable identity for a goroutine, so the owner
// is instead an explicit token the caller supplies - typically a small
// integer handed out per logical owner, or a pointer unique to the
// calling task.
type RecursiveMutex struct {
	fx    *futex.Futex
	owner any
	depth int
}

// NewRecursiveMutex returns an unlocked RecursiveMutex.
func NewRecursiveMutex() *RecursiveMutex {
	return &RecursiveMutex{fx: futex.New()}
}

// Lock acquires the mutex for owner, blocking if it is held by a
// different owner. Calling it again for the same owner nests the lock;
// Unlock must be called the same number of times to release it.
func (m *RecursiveMutex) Lock(owner any) {
	for {
		acquired := false
		m.fx.WaitUntil(nil, func() bool {
			if m.depth > 0 && m.owner != owner {
				return false
			}
			m.owner = owner
			m.depth++
			acquired = true
			return true
		})
		if acquired {
			return
		}
	}
}

// Unlock releases one nesting level held by owner. It panics if owner
// does not currently hold the mutex, the same contract a misused
// recursive_mutex has (undefined behaviour there, a loud failure here).
// The misuse check only sets a flag inside the futex callback - it must
// not panic there, since that would leave the futex's internal lock held
// forever - and panics afterwards instead.
func (m *RecursiveMutex) Unlock(owner any) {
	woke := false
	misused := false
	m.fx.WaitUntil(nil, func() bool {
		if m.depth == 0 || m.owner != owner {
			misused = true
			return true
		}
		m.depth--
		if m.depth == 0 {
			m.owner = nil
			woke = true
		}
		return true
	})
	if misused {
		panic("mare: RecursiveMutex unlocked by non-owner")
	}
	if woke {
		m.fx.Wake(1)
	}
}

// TimedMutex is a Mutex whose acquisition can time out, the Go analogue
// of std::timed_mutex::try_lock_for.
type TimedMutex struct {
	inner Mutex
}

// NewTimedMutex returns an unlocked TimedMutex.
func NewTimedMutex() *TimedMutex {
	return &TimedMutex{inner: Mutex{fx: futex.New()}}
}

// Lock blocks until the mutex is free.
func (m *TimedMutex) Lock() { m.inner.Lock() }

// Unlock releases the mutex.
func (m *TimedMutex) Unlock() { m.inner.Unlock() }

// TryLockFor attempts to acquire the mutex within d, reporting whether it
// succeeded.
func (m *TimedMutex) TryLockFor(d time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return m.inner.LockContext(ctx) == nil
}

// CondVar is a condition variable paired with an external *Mutex, mirroring
// std::condition_variable: Wait atomically releases the mutex while parked
// and reacquires it before returning.
type CondVar struct {
	fx *futex.Futex
}

// NewCondVar returns a ready-to-use CondVar.
func NewCondVar() *CondVar {
	return &CondVar{fx: futex.New()}
}

// Wait releases m, blocks until Signal or Broadcast wakes this waiter (or
// a spurious wake occurs - callers must recheck their predicate, per the
// condition_variable contract), then reacquires m before returning. The
// waiter registers on the futex before releasing m, so a Signal that
// lands in the gap between releasing m and parking is never missed.
func (c *CondVar) Wait(m *Mutex) {
	ch := c.fx.Prepare()
	m.Unlock()
	c.fx.WaitPrepared(nil, ch)
	m.Lock()
}

// WaitContext is Wait with cancellation; on ctx being done it still
// reacquires m before returning, matching condition_variable's "always
// returns holding the lock" contract.
func (c *CondVar) WaitContext(ctx context.Context, m *Mutex) error {
	ch := c.fx.Prepare()
	m.Unlock()
	err := c.fx.WaitPrepared(ctx, ch)
	m.Lock()
	return err
}

// Signal wakes one waiter.
func (c *CondVar) Signal() { c.fx.Wake(1) }

// Broadcast wakes every current waiter.
func (c *CondVar) Broadcast() { c.fx.Wake(0) }

// CondVarAny is CondVar generalized to any caller-supplied lock/unlock
// pair, the analogue of std::condition_variable_any.
type CondVarAny struct {
	fx *futex.Futex
}

// NewCondVarAny returns a ready-to-use CondVarAny.
func NewCondVarAny() *CondVarAny {
	return &CondVarAny{fx: futex.New()}
}

// Wait calls unlock, blocks until woken, then calls lock before
// returning. As with CondVar, registration happens before unlock is
// called so a concurrent Signal cannot be missed.
func (c *CondVarAny) Wait(lock, unlock func()) {
	ch := c.fx.Prepare()
	unlock()
	c.fx.WaitPrepared(nil, ch)
	lock()
}

// Signal wakes one waiter.
func (c *CondVarAny) Signal() { c.fx.Wake(1) }

// Broadcast wakes every current waiter.
func (c *CondVarAny) Broadcast() { c.fx.Wake(0) }

// Barrier is a reusable sense-reversing barrier for a fixed party count,
// the sense_barrier primitive: each Arrive blocks until every party for
// the current generation has arrived, then all are released together and
// the barrier resets for the next generation without any party having to
// re-register.
type Barrier struct {
	fx      *futex.Futex
	parties int
	arrived int
	sense   bool
}

// NewBarrier returns a Barrier for the given party count. parties must be
// positive.
func NewBarrier(parties int) *Barrier {
	if parties <= 0 {
		panic("mare: NewBarrier requires parties > 0")
	}
	return &Barrier{fx: futex.New(), parties: parties}
}

// Arrive blocks until all parties have called Arrive for the current
// generation, then returns for every caller at once.
func (b *Barrier) Arrive() {
	b.ArriveContext(nil)
}

// ArriveContext is Arrive with cancellation.
func (b *Barrier) ArriveContext(ctx context.Context) error {
	var mySense bool
	last := false
	b.fx.WaitUntil(nil, func() bool {
		mySense = !b.sense
		b.arrived++
		if b.arrived == b.parties {
			b.arrived = 0
			b.sense = mySense
			last = true
		}
		return true
	})
	if last {
		b.fx.Wake(0)
		return nil
	}
	return b.fx.WaitUntil(ctx, func() bool { return b.sense == mySense })
}
