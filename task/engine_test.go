package task

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// inlineEnqueuer runs a task's body synchronously on the goroutine that
// calls Enqueue, which is enough to exercise the engine's state machine
// without a real scheduler.
type inlineEnqueuer struct{}

func (e inlineEnqueuer) Enqueue(t *Task) { t.Run(e) }

// recordingEnqueuer defers execution so tests can control ordering.
type recordingEnqueuer struct {
	mu    sync.Mutex
	ready []*Task
}

func (r *recordingEnqueuer) Enqueue(t *Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ready = append(r.ready, t)
}

func (r *recordingEnqueuer) drain() {
	r.mu.Lock()
	pending := r.ready
	r.ready = nil
	r.mu.Unlock()
	for _, t := range pending {
		t.Run(r)
	}
}

func newTestEngine() *Engine {
	e := NewEngine(nil)
	e.SetEnqueuer(inlineEnqueuer{})
	return e
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestCreateTaskLaunchAndWaitFor(t *testing.T) {
	e := newTestEngine()
	var ran int32
	tk := e.CreateTask(func(ctx *Context) error {
		atomic.AddInt32(&ran, 1)
		return nil
	}, DefaultAttrs(), nil, nil, "")

	require.NoError(t, tk.Launch())
	require.NoError(t, tk.WaitFor())
	assert.Equal(t, int32(1), ran)
	assert.True(t, tk.State().IsCompleted())
}

func TestAfterOrdersExecution(t *testing.T) {
	e := NewEngine(nil)
	rec := &recordingEnqueuer{}
	e.SetEnqueuer(rec)

	var order []string
	var mu sync.Mutex
	mk := func(name string) *Task {
		return e.CreateTask(func(ctx *Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}, DefaultAttrs(), nil, nil, name)
	}

	a := mk("a")
	b := mk("b")
	require.NoError(t, After(a, b))

	require.NoError(t, a.Launch())
	require.NoError(t, b.Launch())

	// b must not run until a completes; draining repeatedly simulates the
	// scheduler picking up newly-readied successors.
	for i := 0; i < 5 && (len(rec.ready) > 0); i++ {
		rec.drain()
	}

	require.NoError(t, a.WaitFor())
	require.NoError(t, b.WaitFor())
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestAfterRejectsCycle(t *testing.T) {
	e := newTestEngine()
	a := e.CreateTask(func(ctx *Context) error { return nil }, DefaultAttrs(), nil, nil, "a")
	b := e.CreateTask(func(ctx *Context) error { return nil }, DefaultAttrs(), nil, nil, "b")

	require.NoError(t, After(a, b))
	assert.ErrorIs(t, After(b, a), ErrCircularDependency)
}

func TestAfterRejectsAlreadyLaunchedSuccessor(t *testing.T) {
	e := newTestEngine()
	a := e.CreateTask(func(ctx *Context) error { return nil }, DefaultAttrs(), nil, nil, "a")
	b := e.CreateTask(func(ctx *Context) error { return nil }, DefaultAttrs(), nil, nil, "b")
	require.NoError(t, b.Launch())
	require.NoError(t, b.WaitFor())

	assert.ErrorIs(t, After(a, b), ErrAlreadyLaunched)
}

func TestGroupWaitForReturnsFirstError(t *testing.T) {
	e := newTestEngine()
	g := e.CreateGroup("g")

	boom := assertErr("boom")
	e.CreateTask(func(ctx *Context) error { return boom }, DefaultAttrs(), nil, g, "").Launch()
	e.CreateTask(func(ctx *Context) error { return nil }, DefaultAttrs(), nil, g, "").Launch()

	err := g.WaitFor(context.Background())
	assert.ErrorIs(t, err, boom)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

func TestGroupCancelCancelsUnlaunchedMembers(t *testing.T) {
	e := newTestEngine()
	g := e.CreateGroup("g")

	var ranA int32
	a := e.CreateTask(func(ctx *Context) error {
		atomic.AddInt32(&ranA, 1)
		return nil
	}, DefaultAttrs(), nil, g, "a")

	g.Cancel()
	require.NoError(t, a.Launch())
	require.NoError(t, a.WaitFor())

	assert.True(t, a.State().IsCanceled())
	assert.Equal(t, int32(0), ranA)
}

func TestLaunchIntoCanceledGroupIsImmediatelyCanceled(t *testing.T) {
	e := newTestEngine()
	g := e.CreateGroup("g")
	g.Cancel()

	var ran int32
	tk := e.CreateTask(func(ctx *Context) error {
		atomic.AddInt32(&ran, 1)
		return nil
	}, DefaultAttrs(), nil, g, "")

	require.NoError(t, tk.Launch())
	require.NoError(t, tk.WaitFor())
	assert.True(t, tk.State().IsCanceled())
	assert.Equal(t, int32(0), ran)
}

func TestJoinMembershipRequiresBothGroups(t *testing.T) {
	e := newTestEngine()
	a := e.CreateGroup("a")
	b := e.CreateGroup("b")
	join := a.Join(b)

	both := join.Signature()
	onlyA := a.Signature()
	assert.True(t, onlyA.Union(b.Signature()).IsSupersetOf(both))
	assert.False(t, onlyA.IsSupersetOf(both))
}

func TestGroupCancel2000TasksNeverRunsMoreThanLaunched(t *testing.T) {
	e := NewEngine(nil)
	rec := &recordingEnqueuer{}
	e.SetEnqueuer(rec)
	g := e.CreateGroup("stress")

	var counter int64
	const n = 2000
	tasks := make([]*Task, n)
	for i := 0; i < n; i++ {
		tasks[i] = e.CreateTask(func(ctx *Context) error {
			atomic.AddInt64(&counter, 1)
			return nil
		}, DefaultAttrs(), nil, g, "")
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, tk := range tasks {
			_ = tk.Launch()
		}
	}()
	g.Cancel()
	wg.Wait()

	for i := 0; i < 20 && len(rec.ready) > 0; i++ {
		rec.drain()
	}

	require.NoError(t, g.WaitFor(context.Background()))
	assert.LessOrEqual(t, atomic.LoadInt64(&counter), int64(n))
	for _, tk := range tasks {
		assert.True(t, tk.State().IsDone())
	}
}
