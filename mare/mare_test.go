package mare

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	rt, err := Init(Config{Workers: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Shutdown() })
	return rt
}

func TestTaskLaunchAndWaitForRunsBody(t *testing.T) {
	rt := newTestRuntime(t)

	var ran atomic.Bool
	task := rt.CreateTask(func(ctx *Context) error {
		ran.Store(true)
		return nil
	}, DefaultAttrs(), nil)

	require.NoError(t, task.LaunchAndWait())
	assert.True(t, ran.Load())
}

func TestAfterOrdersTwoTasks(t *testing.T) {
	rt := newTestRuntime(t)

	var order []int
	var mu sync.Mutex
	record := func(i int) func(ctx *Context) error {
		return func(ctx *Context) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		}
	}

	a := rt.CreateTask(record(1), DefaultAttrs(), nil)
	b := rt.CreateTask(record(2), DefaultAttrs(), nil)
	require.NoError(t, After(a, b))

	require.NoError(t, b.Launch())
	require.NoError(t, a.Launch())
	require.NoError(t, b.WaitFor())

	assert.Equal(t, []int{1, 2}, order)
}

func TestGroupCancelStopsCooperativeTasks(t *testing.T) {
	rt := newTestRuntime(t)
	g := rt.CreateGroup("g")

	started := make(chan struct{}, 4)
	task := rt.CreateGroupedTask(func(ctx *Context) error {
		started <- struct{}{}
		for {
			if err := ctx.AbortOnCancel(); err != nil {
				return err
			}
			time.Sleep(time.Millisecond)
		}
	}, DefaultAttrs(), nil, g)

	require.NoError(t, task.Launch())
	<-started
	g.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := g.WaitFor(ctx)
	assert.True(t, errors.Is(err, ErrCanceled))
}

func TestTaskStorageRoundTrips(t *testing.T) {
	rt := newTestRuntime(t)
	key := NewStorageKey[int]()

	task := rt.CreateTask(func(ctx *Context) error { return nil }, DefaultAttrs(), nil)

	_, ok := TaskStorageGet(task, key)
	assert.False(t, ok)

	require.NoError(t, TaskStorageSet(task, key, 42))
	v, ok := TaskStorageGet(task, key)
	require.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestSchedulerStorageRoundTrips(t *testing.T) {
	rt := newTestRuntime(t)
	key := NewStorageKey[string]()

	done := make(chan struct{})
	task := rt.CreateTask(func(ctx *Context) error {
		defer close(done)
		_, ok := SchedulerStorageGet(rt, ctx, key)
		assert.False(t, ok)

		require.NoError(t, SchedulerStorageSet(rt, ctx, key, "hello"))
		v, ok := SchedulerStorageGet(rt, ctx, key)
		require.True(t, ok)
		assert.Equal(t, "hello", v)
		return nil
	}, DefaultAttrs(), nil)

	require.NoError(t, task.LaunchAndWait())
	<-done
}

// TestSchedulerStorageSumsAcrossPerWorkerCopies exercises the named
// scheduler-storage scenario: 1000 bodies each increment their own
// worker's copy of a slot, and the copies summed after every task
// finishes equal 1000 - which only holds if each worker's copy really is
// independent rather than one map shared process-wide.
func TestSchedulerStorageSumsAcrossPerWorkerCopies(t *testing.T) {
	rt := newTestRuntime(t)
	key := NewStorageKey[int]()

	const n = 1000
	g := rt.CreateGroup("increment")
	for i := 0; i < n; i++ {
		tsk := rt.CreateGroupedTask(func(ctx *Context) error {
			v, _ := SchedulerStorageGet(rt, ctx, key)
			return SchedulerStorageSet(rt, ctx, key, v+1)
		}, DefaultAttrs(), nil, g)
		require.NoError(t, tsk.Launch())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, g.WaitFor(ctx))

	sum := 0
	for _, v := range SchedulerStorageSnapshot(rt, key) {
		sum += v
	}
	assert.Equal(t, n, sum)
}

func TestThreadStorageRoundTripsThroughContext(t *testing.T) {
	ts := NewThreadStorage[int]()

	ctx := context.Background()
	_, ok := ts.Get(ctx)
	assert.False(t, ok)

	ctx = ts.With(ctx, 7)
	v, ok := ts.Get(ctx)
	require.True(t, ok)
	assert.Equal(t, 7, v)
}

func TestMutexExcludesConcurrentCriticalSections(t *testing.T) {
	m := NewMutex()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Lock()
			counter++
			m.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, counter)
}

func TestMutexTryLockFailsWhenHeld(t *testing.T) {
	m := NewMutex()
	m.Lock()
	assert.False(t, m.TryLock())
	m.Unlock()
	assert.True(t, m.TryLock())
}

func TestRecursiveMutexAllowsSameOwnerReentry(t *testing.T) {
	m := NewRecursiveMutex()
	owner := "a"
	m.Lock(owner)
	m.Lock(owner)
	m.Unlock(owner)
	m.Unlock(owner)
}

func TestRecursiveMutexBlocksDifferentOwner(t *testing.T) {
	m := NewRecursiveMutex()
	m.Lock("a")

	acquired := make(chan struct{})
	go func() {
		m.Lock("b")
		close(acquired)
		m.Unlock("b")
	}()

	select {
	case <-acquired:
		t.Fatal("owner b acquired mutex still held by a")
	case <-time.After(50 * time.Millisecond):
	}

	m.Unlock("a")
	<-acquired
}

func TestCondVarSignalWakesOneWaiter(t *testing.T) {
	m := NewMutex()
	cv := NewCondVar()
	ready := false
	woken := make(chan struct{})

	go func() {
		m.Lock()
		for !ready {
			cv.Wait(m)
		}
		m.Unlock()
		close(woken)
	}()

	time.Sleep(20 * time.Millisecond)
	m.Lock()
	ready = true
	m.Unlock()
	cv.Signal()

	select {
	case <-woken:
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was never woken")
	}
}

func TestBarrierReleasesAllPartiesTogether(t *testing.T) {
	const parties = 5
	b := NewBarrier(parties)

	var before, after atomic.Int32
	var wg sync.WaitGroup
	wg.Add(parties)
	for i := 0; i < parties; i++ {
		go func() {
			defer wg.Done()
			before.Add(1)
			b.Arrive()
			after.Add(1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(parties), before.Load())
	assert.Equal(t, int32(parties), after.Load())
}

func TestSDFBasicPipeDoublesThenIncrements(t *testing.T) {
	rt := newTestRuntime(t)

	in, err := NewSDFChannel[int](1)
	require.NoError(t, err)
	out, err := NewSDFChannel[int](1)
	require.NoError(t, err)

	node := NewSDFNode("double-plus-one", SDFUnary(func(x int) (int, error) {
		return x*2 + 1, nil
	}), []SDFChan{in.Chan()}, []SDFChan{out.Chan()})

	g := rt.CreateSDFGraph()
	require.NoError(t, g.AddNode(node))

	ctx := context.Background()
	const n = 5
	go func() {
		for i := 0; i < n; i++ {
			_ = in.Write(ctx, i)
		}
	}()

	var got []int
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < n; i++ {
			v, err := out.Read(ctx)
			if err != nil {
				return
			}
			got = append(got, v)
		}
	}()

	require.NoError(t, g.LaunchAndWait(ctx, n))
	<-done
	assert.Equal(t, []int{1, 3, 5, 7, 9}, got)
}
