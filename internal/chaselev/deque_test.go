package chaselev

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushPopLIFO(t *testing.T) {
	d := New[int](0)
	d.Push(1)
	d.Push(2)
	d.Push(3)

	v, ok := d.Pop()
	require.True(t, ok)
	assert.Equal(t, 3, v)

	v, ok = d.Pop()
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestStealFIFO(t *testing.T) {
	d := New[int](0)
	d.Push(1)
	d.Push(2)
	d.Push(3)

	v, ok := d.Steal()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok = d.Steal()
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestPopEmpty(t *testing.T) {
	d := New[int](0)
	_, ok := d.Pop()
	assert.False(t, ok)
	_, ok = d.Steal()
	assert.False(t, ok)
}

func TestGrowsPastInitialCapacity(t *testing.T) {
	d := New[int](2) // capacity 4
	for i := 0; i < 100; i++ {
		d.Push(i)
	}
	assert.Equal(t, 100, d.Len())

	for i := 99; i >= 0; i-- {
		v, ok := d.Pop()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	assert.True(t, d.Empty())
}

// TestConcurrentStealersYieldEachValueExactlyOnce is the generic-deque
// analogue of spec invariant 5: under concurrent single-owner push/pop and
// multi-stealer steal, each pushed value is produced exactly once and no
// value is fabricated.
func TestConcurrentStealersYieldEachValueExactlyOnce(t *testing.T) {
	const n = 20000
	const stealers = 8

	d := New[int](4)

	var seen sync.Map
	var count int32 // atomic via mutex below for simplicity
	var mu sync.Mutex

	record := func(v int) {
		if _, loaded := seen.LoadOrStore(v, true); loaded {
			t.Errorf("value %d produced more than once", v)
		}
		mu.Lock()
		count++
		mu.Unlock()
	}

	var wg sync.WaitGroup
	done := make(chan struct{})

	for i := 0; i < stealers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					// drain remaining
					for {
						v, ok := d.Steal()
						if !ok {
							return
						}
						record(v)
					}
				default:
					v, ok := d.Steal()
					if ok {
						record(v)
					}
				}
			}
		}()
	}

	owner := func() {
		for i := 0; i < n; i++ {
			d.Push(i)
			if i%3 == 0 {
				if v, ok := d.Pop(); ok {
					record(v)
				}
			}
		}
		close(done)
	}
	owner()

	wg.Wait()

	for {
		v, ok := d.Pop()
		if !ok {
			break
		}
		record(v)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int32(n), count)
}
