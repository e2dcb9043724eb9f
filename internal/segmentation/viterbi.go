package segmentation

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
)

// chunksPerWorker controls how finely destination states are split per
// frame so uneven predecessor counts still balance across workers.
const chunksPerWorker = 4

// decoder runs the joint Kalman/Viterbi forward pass and backtrace for one
// Segment call. All buffers are sized once from the state and frame counts.
type decoder struct {
	space  StateSpace
	modes  []Mode // cached mode matrix, Count rows of M+1
	graph  transitionGraph
	params []*Parameters

	workers int

	// Double-buffered survivors: cost per state and belief per
	// (state, feature) at index state*M+feature. cur is generation t-1,
	// next is generation t; they swap after each frame.
	cost, nextCost []float64
	cur, next      []Belief

	// psi[t*Count+j] is the 0-based predecessor of state j at frame t.
	psi    []int32
	frames int
}

func newDecoder(space StateSpace, graph transitionGraph, modes []Mode, params []*Parameters, frames, workers int) *decoder {
	n := space.Count()
	m := space.Features()
	d := &decoder{
		space:    space,
		modes:    modes,
		graph:    graph,
		params:   params,
		workers:  workers,
		cost:     make([]float64, n),
		nextCost: make([]float64, n),
		cur:      make([]Belief, n*m),
		next:     make([]Belief, n*m),
		psi:      make([]int32, frames*n),
		frames:   frames,
	}

	// Fixed start: the all-OFF state (index 0) costs 0 and every other
	// state is unreachable before the first frame. All states carry the
	// seed beliefs.
	for j := 0; j < n; j++ {
		if j > 0 {
			d.cost[j] = math.Inf(1)
		}
		for f, p := range params {
			d.cur[j*m+f] = NewBelief(p.XInit, p.PInit)
		}
	}
	return d
}

func (d *decoder) modeRow(state int) []Mode {
	w := d.space.Features() + 1
	return d.modes[state*w : (state+1)*w]
}

// step relaxes every destination state for frame t given observations y.
func (d *decoder) step(t int, y []float64) error {
	n := d.space.Count()
	chunk := (n + d.workers*chunksPerWorker - 1) / (d.workers * chunksPerWorker)
	if chunk < 1 {
		chunk = 1
	}

	var g errgroup.Group
	g.SetLimit(d.workers)
	psiRow := d.psi[t*n : (t+1)*n]
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error {
			return d.relax(t, y, psiRow, lo, hi)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	d.cost, d.nextCost = d.nextCost, d.cost
	d.cur, d.next = d.next, d.cur
	return nil
}

// relax computes the best predecessor for destination states [lo, hi).
// It only writes the destination-owned slots of nextCost, next and psiRow.
func (d *decoder) relax(t int, y []float64, psiRow []int32, lo, hi int) error {
	m := d.space.Features()
	scratch := make([]Belief, m)

	for j := lo; j < hi; j++ {
		dstModes := d.modeRow(j)
		dst := d.next[j*m : (j+1)*m]
		best := math.Inf(1)
		bestFrom := int32(-1)

		for _, e := range d.graph.preds[j] {
			i := int(e.from)
			prev := d.cost[i]
			if math.IsInf(prev, 1) {
				// Unreachable predecessor; it only matters when nothing
				// finite reaches j.
				if bestFrom < 0 {
					bestFrom = e.from
				}
				continue
			}

			copy(scratch, d.cur[i*m:(i+1)*m])
			srcModes := d.modeRow(i)
			total := prev - e.logPrior
			for f, p := range d.params {
				c := KalmanLPF(y[f], p.ProcessNoise(srcModes[f+1], dstModes[f+1]), p.R, p.Alpha, &scratch[f])
				if math.IsNaN(c) || math.IsInf(c, 0) {
					return fmt.Errorf("%w: feature %d cost %v at frame %d (state %d from %d)",
						ErrNumeric, f, c, t, j+1, i+1)
				}
				total += c
			}

			// Strict comparison keeps the lowest predecessor index on ties.
			if total < best {
				best = total
				bestFrom = e.from
				copy(dst, scratch)
			}
		}

		switch {
		case bestFrom < 0:
			// No legal predecessor at all.
			bestFrom = 0
			copy(dst, d.cur[j*m:(j+1)*m])
		case math.IsInf(best, 1):
			// Every predecessor unreachable; carry its beliefs unchanged.
			i := int(bestFrom)
			copy(dst, d.cur[i*m:(i+1)*m])
		default:
			// The survivor's beliefs seed every later frame.
			for f := range dst {
				if !dst[f].Finite() {
					return fmt.Errorf("%w: feature %d belief %+v at frame %d (state %d from %d)",
						ErrNumeric, f, dst[f], t, j+1, bestFrom+1)
				}
			}
		}
		d.nextCost[j] = best
		psiRow[j] = bestFrom
	}
	return nil
}

// run performs the forward pass over frames, pulling observations from
// obs(frame, dst), then backtracks the minimum-cost path. It returns the
// 0-based state per frame and the path cost.
func (d *decoder) run(ctx context.Context, obs func(frame int, dst []float64)) ([]int, float64, error) {
	if d.frames == 0 {
		return nil, 0, nil
	}

	y := make([]float64, d.space.Features())
	for t := 0; t < d.frames; t++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		obs(t, y)
		if err := d.step(t, y); err != nil {
			return nil, 0, err
		}
	}

	// Terminal state: minimum cost, lowest index on ties.
	last := 0
	for j, c := range d.cost {
		if c < d.cost[last] {
			last = j
		}
	}
	if math.IsInf(d.cost[last], 1) {
		return nil, 0, fmt.Errorf("%w after %d frames", ErrNoPath, d.frames)
	}

	n := d.space.Count()
	states := make([]int, d.frames)
	states[d.frames-1] = last
	for t := d.frames - 1; t > 0; t-- {
		states[t-1] = int(d.psi[t*n+states[t]])
	}
	return states, d.cost[last], nil
}
