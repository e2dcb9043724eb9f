package segmentation

import (
	"context"
	"math"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/eventseg/internal/testutil"
)

// uniformGraph connects every state to every destination with the same
// prior, so every comparison is a tie.
func uniformGraph(n int) transitionGraph {
	g := transitionGraph{preds: make([][]edge, n)}
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			g.preds[j] = append(g.preds[j], edge{from: int32(i), logPrior: -1})
			g.edges++
		}
	}
	return g
}

func noObservations(int, []float64) {}

func TestDecoderTiesPickLowestIndex(t *testing.T) {
	t.Parallel()

	space, err := NewStateSpace(0, 0)
	require.NoError(t, err)

	d := newDecoder(space, uniformGraph(space.Count()), space.modeMatrix(), nil, 4, 2)
	path, cost, err := d.run(context.Background(), noObservations)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0, 0}, path)
	assert.Equal(t, 4.0, cost)
	for _, p := range d.psi {
		assert.Equal(t, int32(0), p)
	}
}

func TestDecoderSkipsUnreachableStates(t *testing.T) {
	t.Parallel()

	space, err := NewStateSpace(0, 0)
	require.NoError(t, err)

	// State 0 has no predecessors; states 1 and 2 tie.
	g := uniformGraph(space.Count())
	g.edges -= len(g.preds[0])
	g.preds[0] = nil

	d := newDecoder(space, g, space.modeMatrix(), nil, 3, 1)
	path, _, err := d.run(context.Background(), noObservations)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 1}, path)
}

func TestDecoderBacktracksThroughPredecessors(t *testing.T) {
	t.Parallel()

	space, err := NewStateSpace(0, 0)
	require.NoError(t, err)

	// A forced cycle 0 → 1 → 2 → 0.
	g := transitionGraph{preds: [][]edge{
		{{from: 2, logPrior: 0}},
		{{from: 0, logPrior: 0}},
		{{from: 1, logPrior: 0}},
	}, edges: 3}

	d := newDecoder(space, g, space.modeMatrix(), nil, 5, 1)
	path, cost, err := d.run(context.Background(), noObservations)
	require.NoError(t, err)
	// Only state 0 is live before frame 0, so exactly one state is
	// reachable per frame and the backtrace walks the cycle from 1.
	assert.Equal(t, []int{1, 2, 0, 1, 2}, path)
	assert.Zero(t, cost)
	for j, c := range d.cost {
		if j != 2 {
			assert.True(t, math.IsInf(c, 1), "state %d cost %v", j, c)
		}
	}
}

func TestDecoderStartsInAllOffState(t *testing.T) {
	t.Parallel()

	space, err := NewStateSpace(0, 0)
	require.NoError(t, err)
	d := newDecoder(space, uniformGraph(space.Count()), space.modeMatrix(), nil, 1, 1)
	assert.Equal(t, 0.0, d.cost[0])
	assert.True(t, math.IsInf(d.cost[1], 1))
	assert.True(t, math.IsInf(d.cost[2], 1))

	// State 0 has no predecessors: nothing is reachable after frame 0.
	g := uniformGraph(space.Count())
	for j := range g.preds {
		g.preds[j] = g.preds[j][1:]
	}
	d = newDecoder(space, g, space.modeMatrix(), nil, 1, 1)
	_, _, err = d.run(context.Background(), noObservations)
	assert.ErrorIs(t, err, ErrNoPath)
}

func TestDecoderRejectsNonFiniteBeliefs(t *testing.T) {
	t.Parallel()

	space, err := NewStateSpace(1, 0)
	require.NoError(t, err)

	// With alpha 1 the innovation ignores p00, so the cost stays finite
	// while p00 + q overflows.
	p := DefaultParameters()
	p.Alpha = 1
	p.CStayOff = 1e308
	p.PInit = [2][2]float64{{1e308, 0}, {0, 1}}
	p.Initialize()
	params := []*Parameters{p}

	modes := space.modeMatrix()
	g, err := buildTransitionGraph(space, modes, ModeTransitions(0.01, 0.1), params)
	require.NoError(t, err)

	d := newDecoder(space, g, modes, params, 3, 1)
	_, _, err = d.run(context.Background(), func(_ int, y []float64) { y[0] = 0 })
	require.ErrorIs(t, err, ErrNumeric)
	assert.Contains(t, err.Error(), "belief")
}

func TestDecoderSixFeaturesStayFinite(t *testing.T) {
	if testing.Short() {
		t.Skip("six-feature decode is slow; skipped in -short mode")
	}
	t.Parallel()

	const frames = 100
	space, err := NewStateSpace(DefaultMaxFeatures, 0)
	require.NoError(t, err)

	params := make([]*Parameters, DefaultMaxFeatures)
	columns := make([][]float64, DefaultMaxFeatures)
	for f := range params {
		params[f] = DefaultParameters()
		params[f].Initialize()
		columns[f] = testutil.Uniform(frames, 0, 1, uint64(f+11))
	}
	modes := space.modeMatrix()
	g, err := buildTransitionGraph(space, modes, ModeTransitions(0.01, 0.05), params)
	require.NoError(t, err)

	d := newDecoder(space, g, modes, params, frames, runtime.GOMAXPROCS(0))
	path, cost, err := d.run(context.Background(), func(t int, y []float64) {
		for f := range y {
			y[f] = columns[f][t]
		}
	})
	require.NoError(t, err)
	require.Len(t, path, frames)
	assert.False(t, math.IsNaN(cost) || math.IsInf(cost, 0), "path cost %v", cost)

	for j, c := range d.cost {
		if math.IsNaN(c) || math.IsInf(c, -1) {
			t.Fatalf("state %d has cost %v", j+1, c)
		}
	}
	for i := range d.cur {
		if !d.cur[i].Finite() {
			t.Fatalf("state %d feature %d belief %+v is not finite",
				i/DefaultMaxFeatures+1, i%DefaultMaxFeatures, d.cur[i])
		}
	}
	for _, psi := range d.psi {
		if psi < 0 || int(psi) >= space.Count() {
			t.Fatalf("predecessor %d out of range", psi)
		}
	}
}

func TestDecoderNoPath(t *testing.T) {
	t.Parallel()

	space, err := NewStateSpace(0, 0)
	require.NoError(t, err)

	g := transitionGraph{preds: make([][]edge, space.Count())}
	d := newDecoder(space, g, space.modeMatrix(), nil, 2, 1)
	_, _, err = d.run(context.Background(), noObservations)
	assert.ErrorIs(t, err, ErrNoPath)
}

func TestDecoderZeroFrames(t *testing.T) {
	t.Parallel()

	space, err := NewStateSpace(0, 0)
	require.NoError(t, err)

	d := newDecoder(space, uniformGraph(space.Count()), space.modeMatrix(), nil, 0, 1)
	path, cost, err := d.run(context.Background(), noObservations)
	require.NoError(t, err)
	assert.Nil(t, path)
	assert.Zero(t, cost)
}
