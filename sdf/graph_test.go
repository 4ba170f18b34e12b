package sdf

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestBasicPipeProducesExpectedSequence(t *testing.T) {
	c12, err := NewChannel[int](1)
	require.NoError(t, err)
	c23, err := NewChannel[int](1)
	require.NoError(t, err)

	var next int
	f1 := NewNode("f1", func(ctx context.Context, nc NodeContext) error {
		if err := nc.Out(0, next); err != nil {
			return err
		}
		next++
		return nil
	}, nil, []Chan{c12})

	f2 := NewNode("f2", Unary(func(v int) (int, error) { return v * 2, nil }), []Chan{c12}, []Chan{c23})

	var mu sync.Mutex
	var out []int
	f3 := NewNode("f3", func(ctx context.Context, nc NodeContext) error {
		v, err := nc.In(0)
		if err != nil {
			return err
		}
		mu.Lock()
		out = append(out, v.(int))
		mu.Unlock()
		return nil
	}, []Chan{c23}, nil)

	g := NewGraph()
	require.NoError(t, g.AddNode(f1))
	require.NoError(t, g.AddNode(f2))
	require.NoError(t, g.AddNode(f3))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, g.LaunchAndWait(ctx, 10))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 2, 4, 6, 8, 10, 12, 14, 16, 18}, out)
}

func TestFeedbackWithDelayMatchesRecurrence(t *testing.T) {
	// x -> add1(+, fed back y delayed by 2) -> mult(0.3) -> add2(+, fed back
	// mult output delayed by 1) -> y
	cx, err := NewChannel[float64](1)
	require.NoError(t, err)
	cYToAdd1, err := NewChannel[float64](2)
	require.NoError(t, err)
	require.NoError(t, cYToAdd1.Preload([]float64{0, 0}))
	cAdd1ToMult, err := NewChannel[float64](1)
	require.NoError(t, err)
	cMultToAdd2, err := NewChannel[float64](1)
	require.NoError(t, err)
	cMultToDelay, err := NewChannel[float64](1)
	require.NoError(t, err)
	require.NoError(t, cMultToDelay.Preload([]float64{0}))
	cOut, err := NewChannel[float64](1)
	require.NoError(t, err)
	cY, err := NewChannel[float64](1)
	require.NoError(t, err)

	var i int
	xs := []float64{1, 1, 1, 1, 1, 1, 1, 1, 1, 1}
	src := NewNode("x", func(ctx context.Context, nc NodeContext) error {
		v := xs[i]
		i++
		return nc.Out(0, v)
	}, nil, []Chan{cx})

	add1 := NewNode("add1", Binary(func(x, y float64) (float64, error) { return x + y, nil }),
		[]Chan{cx, cYToAdd1}, []Chan{cAdd1ToMult})

	mult := NewNode("mult", Unary(func(v float64) (float64, error) { return v * 0.3, nil }),
		[]Chan{cAdd1ToMult}, []Chan{cMultToAdd2, cMultToDelay})

	add2 := NewNode("add2", Binary(func(a, b float64) (float64, error) { return a + b, nil }),
		[]Chan{cMultToAdd2, cMultToDelay}, []Chan{cOut})

	// fan cOut out: a channel has a single consumer, so a pass-through node
	// reads the graph's y output once and republishes it both on the
	// feedback channel (cYToAdd1's delay) and on the sink's channel.
	feedback := NewNode("feedback", func(ctx context.Context, nc NodeContext) error {
		v, err := nc.In(0)
		if err != nil {
			return err
		}
		if err := nc.Out(0, v); err != nil {
			return err
		}
		return nc.Out(1, v)
	}, []Chan{cOut}, []Chan{cYToAdd1, cY})

	var mu sync.Mutex
	var ys []float64
	sink := NewNode("sink", func(ctx context.Context, nc NodeContext) error {
		v, err := nc.In(0)
		if err != nil {
			return err
		}
		mu.Lock()
		ys = append(ys, v.(float64))
		mu.Unlock()
		return nil
	}, []Chan{cY}, nil)

	g := NewGraph()
	for _, n := range []*Node{src, add1, mult, add2, feedback, sink} {
		require.NoError(t, g.AddNode(n))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, g.LaunchAndWait(ctx, 10))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, ys, 10)
	// Deterministic linear recurrence: y[n] = 0.3*(x[n] + y[n-2]) + z[n-1],
	// z[n] = 0.3*(x[n] + y[n-2]); both histories start at zero via preload.
	var yHist [2]float64
	var zPrev float64
	for n := 0; n < 10; n++ {
		z := 0.3 * (xs[n] + yHist[0])
		y := z + zPrev
		assert.InDelta(t, y, ys[n], 1e-9)
		yHist[0] = yHist[1]
		yHist[1] = y
		zPrev = z
	}
}

func TestPauseResumeCancelStopsAtExactIterationCounts(t *testing.T) {
	c, err := NewChannel[int](1)
	require.NoError(t, err)
	require.NoError(t, c.Preload([]int{0}))

	// A small per-iteration delay paces the driver to roughly one
	// iteration per millisecond, giving the test's Pause/Cancel calls -
	// issued within microseconds of Launch returning - ample room to
	// register their targets before the driver would otherwise race past
	// them.
	src := NewNode("src", func(ctx context.Context, nc NodeContext) error {
		v, err := nc.In(0)
		if err != nil {
			return err
		}
		time.Sleep(time.Millisecond)
		return nc.Out(0, v.(int)+1)
	}, []Chan{c}, []Chan{c})

	g := NewGraph()
	require.NoError(t, g.AddNode(src))
	require.NoError(t, g.Launch(Infinite))

	ctx := context.Background()
	synced, err := g.Pause(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(30), synced)
	for _, q := range g.Query() {
		assert.GreaterOrEqual(t, q.Iterations, int64(30))
	}

	g.Resume()
	synced, err = g.Pause(ctx, 60)
	require.NoError(t, err)
	assert.Equal(t, int64(60), synced)
	for _, q := range g.Query() {
		assert.GreaterOrEqual(t, q.Iterations, int64(60))
	}

	g.Cancel(90)
	require.NoError(t, g.Wait(ctx))
	for _, q := range g.Query() {
		assert.Equal(t, int64(90), q.Iterations)
	}
}
