package segmentation

import (
	"fmt"
	"math"
)

// ModeTransitions returns the global mode transition probabilities indexed
// by [old][new] (0-based). pNew is the probability of a new event starting
// and pOff the probability of a running event ending.
//
//	OFF   → OFF 1-pNew, ONSET pNew
//	ONSET → ON always
//	ON    → OFF pOff(1-pNew), ONSET pNew, ON (1-pNew)(1-pOff)
func ModeTransitions(pNew, pOff float64) [modeCount][modeCount]float64 {
	var t [modeCount][modeCount]float64

	t[ModeOff.index()][ModeOff.index()] = 1 - pNew
	t[ModeOff.index()][ModeOnset.index()] = pNew

	t[ModeOnset.index()][ModeOn.index()] = 1

	t[ModeOn.index()][ModeOff.index()] = pOff - pOff*pNew
	t[ModeOn.index()][ModeOnset.index()] = pNew
	t[ModeOn.index()][ModeOn.index()] = 1 - pNew - pOff + pOff*pNew

	return t
}

// edge is a legal transition into some destination state.
type edge struct {
	from     int32   // 0-based predecessor state
	logPrior float64 // ln P(from → destination), finite
}

// transitionGraph holds, for each destination state (0-based), its
// predecessors with non-zero prior probability in ascending index order.
// Every transition not listed has probability 0 and infinite cost.
type transitionGraph struct {
	preds [][]edge
	edges int
}

// buildTransitionGraph enumerates legal predecessors per destination
// directly from the factored priors. A transition's prior is the global
// mode probability times each feature's fusion probability; any zero (or
// negative, from out-of-range tunables) factor prunes the whole subtree.
func buildTransitionGraph(space StateSpace, modes []Mode, global [modeCount][modeCount]float64, params []*Parameters) (transitionGraph, error) {
	m := space.Features()
	width := m + 1
	g := transitionGraph{preds: make([][]edge, space.Count())}

	// Per destination scratch: old modes chosen so far.
	var walk func(dst []Mode, gOld Mode, f, index int, prob float64, out []edge) ([]edge, error)
	walk = func(dst []Mode, gOld Mode, f, index int, prob float64, out []edge) ([]edge, error) {
		if f == m {
			lp := math.Log(prob)
			if math.IsNaN(lp) {
				return out, fmt.Errorf("%w: prior probability %g is not a number", ErrNumeric, prob)
			}
			if math.IsInf(lp, -1) {
				return out, nil // underflowed to zero
			}
			return append(out, edge{from: int32(index), logPrior: lp}), nil
		}
		for _, fOld := range allModes {
			pf := params[f].Fusion(gOld, dst[0], fOld, dst[f+1])
			if !(pf > 0) {
				continue
			}
			var err error
			out, err = walk(dst, gOld, f+1, index+fOld.index()*space.pow[f+1], prob*pf, out)
			if err != nil {
				return out, err
			}
		}
		return out, nil
	}

	for j := 0; j < space.Count(); j++ {
		dst := modes[j*width : (j+1)*width]
		var out []edge
		for _, gOld := range allModes {
			pg := global[gOld.index()][dst[0].index()]
			if !(pg > 0) {
				continue
			}
			var err error
			out, err = walk(dst, gOld, 0, gOld.index()*space.pow[0], pg, out)
			if err != nil {
				return transitionGraph{}, err
			}
		}
		g.preds[j] = out
		g.edges += len(out)
	}
	return g, nil
}
