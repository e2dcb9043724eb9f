package segmentation

import (
	"fmt"
	"math"
)

// UnconstrainedVariance is the process noise used for the ONSET→ON
// transition. That transition always happens and the feature value is
// free to move anywhere, so the variance is effectively infinite. A finite
// value keeps the filter arithmetic free of Inf/Inf.
const UnconstrainedVariance = 99999999999.0

// Parameters holds the segmentation tunables for one feature.
//
// Prior probabilities:
//   - PLagPlus: geometric probability that the feature's onset trails the
//     global onset by another frame. Onsets lag by ~1/PLagPlus frames.
//   - PLagMinus: the same for ON→OFF transitions.
//
// Low-pass filter:
//   - Alpha: coefficient of the LPF applied to the observed trajectory.
//
// Variances:
//   - R: measurement noise. Must be > 0.
//   - CStayOff, CStayOn: process noise when the feature mode does not change.
//     Usually small (1e-4).
//   - CTurnOn, CTurnOff, CNewSegment: process noise for OFF→ONSET, ON→OFF
//     and ON→ONSET. Several orders of magnitude larger than the "stay"
//     variances.
//   - CTurningOn: ONSET→ON variance. Kept for configuration symmetry; the
//     table uses UnconstrainedVariance for that transition.
//
// MinValue and MaxValue are the expected extents of the raw feature and are
// used to normalise the trajectory before decoding (see featureio.Normalize).
type Parameters struct {
	PLagPlus  float64
	PLagMinus float64
	Alpha     float64
	R         float64

	CStayOff    float64
	CStayOn     float64
	CTurnOn     float64
	CTurningOn  float64
	CTurnOff    float64
	CNewSegment float64

	XInit [2]float64
	PInit [2][2]float64

	MinValue float64
	MaxValue float64

	initialized bool
	q           [modeCount][modeCount]float64
	fusion      [modeCount][modeCount][modeCount][modeCount]float64
}

// DefaultParameters returns a parameter set with typical values for a
// normalised loudness-like feature.
func DefaultParameters() *Parameters {
	return &Parameters{
		PLagPlus:    0.075,
		PLagMinus:   0.075,
		Alpha:       0.05,
		R:           0.005,
		CStayOff:    0.0001,
		CStayOn:     0.0001,
		CTurnOn:     0.9,
		CTurningOn:  0.9,
		CTurnOff:    0.9,
		CNewSegment: 0.9,
		PInit:       [2][2]float64{{1, 0}, {0, 1}},
		MinValue:    0,
		MaxValue:    1,
	}
}

// Validate rejects parameter sets the decoder cannot use: a non-positive
// measurement noise or any non-finite tunable. Finite values outside their
// documented ranges are accepted and produce degenerate tables.
func (p *Parameters) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"p_lag_plus", p.PLagPlus},
		{"p_lag_minus", p.PLagMinus},
		{"alpha", p.Alpha},
		{"r", p.R},
		{"c_stay_off", p.CStayOff},
		{"c_stay_on", p.CStayOn},
		{"c_turn_on", p.CTurnOn},
		{"c_turning_on", p.CTurningOn},
		{"c_turn_off", p.CTurnOff},
		{"c_new_segment", p.CNewSegment},
		{"x_init[0]", p.XInit[0]},
		{"x_init[1]", p.XInit[1]},
		{"p_init[0][0]", p.PInit[0][0]},
		{"p_init[0][1]", p.PInit[0][1]},
		{"p_init[1][0]", p.PInit[1][0]},
		{"p_init[1][1]", p.PInit[1][1]},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidParameters, f.name)
		}
	}
	if p.R <= 0 {
		return fmt.Errorf("%w: r must be > 0, got %g", ErrInvalidParameters, p.R)
	}
	return nil
}

// Initialize computes the process-noise and fusion tables. It is a no-op
// once the tables exist; call Invalidate after changing a tunable.
func (p *Parameters) Initialize() {
	if p.initialized {
		return
	}
	p.createFusionLogic()
	p.createQTable()
	p.initialized = true
}

// Invalidate discards the derived tables so the next Initialize rebuilds
// them from the current tunables.
func (p *Parameters) Invalidate() {
	p.initialized = false
}

// Initialized reports whether the derived tables are current.
func (p *Parameters) Initialized() bool {
	return p.initialized
}

// ProcessNoise returns the process variance for a feature moving from
// mode from to mode to.
func (p *Parameters) ProcessNoise(from, to Mode) float64 {
	return p.q[from.index()][to.index()]
}

// Fusion returns P(feature transition fOld→fNew | global transition gOld→gNew).
func (p *Parameters) Fusion(gOld, gNew, fOld, fNew Mode) float64 {
	return p.fusion[gOld.index()][gNew.index()][fOld.index()][fNew.index()]
}

func (p *Parameters) setQ(from, to Mode, v float64) {
	p.q[from.index()][to.index()] = v
}

func (p *Parameters) setFusion(gOld, gNew, fOld, fNew Mode, v float64) {
	p.fusion[gOld.index()][gNew.index()][fOld.index()][fNew.index()] = v
}

// createQTable fills q(old, new). Entries for transitions the priors never
// allow are left at 0; their value is irrelevant.
func (p *Parameters) createQTable() {
	p.q = [modeCount][modeCount]float64{}

	p.setQ(ModeOff, ModeOff, p.CStayOff)
	p.setQ(ModeOff, ModeOnset, p.CTurnOn)
	p.setQ(ModeOnset, ModeOn, UnconstrainedVariance)
	p.setQ(ModeOn, ModeOff, p.CTurnOff)
	p.setQ(ModeOn, ModeOnset, p.CNewSegment)
	p.setQ(ModeOn, ModeOn, p.CStayOn)
}

// createFusionLogic fills the feature-given-global transition table.
//
// A feature may trail the global mode: after a global onset the feature
// stays OFF with probability PLagPlus per frame, and after a global offset
// it stays ON with probability PLagMinus per frame. A feature ONSET is only
// ever followed by feature ON while the global mode is turning on or on.
func (p *Parameters) createFusionLogic() {
	p.fusion = [modeCount][modeCount][modeCount][modeCount]float64{}

	plus, minus := p.PLagPlus, p.PLagMinus
	lagBoth := plus - plus*minus

	// Global transitions whose feature rows share a shape.
	for _, g := range [][2]Mode{{ModeOff, ModeOff}, {ModeOn, ModeOff}} {
		p.setFusion(g[0], g[1], ModeOff, ModeOff, 1)
		p.setFusion(g[0], g[1], ModeOnset, ModeOff, 1-minus)
		p.setFusion(g[0], g[1], ModeOnset, ModeOn, minus)
		p.setFusion(g[0], g[1], ModeOn, ModeOff, 1-minus)
		p.setFusion(g[0], g[1], ModeOn, ModeOn, minus)
	}

	for _, g := range [][2]Mode{{ModeOff, ModeOnset}, {ModeOn, ModeOnset}} {
		p.setFusion(g[0], g[1], ModeOff, ModeOff, plus)
		p.setFusion(g[0], g[1], ModeOff, ModeOnset, 1-plus)
		for _, from := range []Mode{ModeOnset, ModeOn} {
			p.setFusion(g[0], g[1], from, ModeOff, lagBoth)
			p.setFusion(g[0], g[1], from, ModeOnset, 1-plus)
			p.setFusion(g[0], g[1], from, ModeOn, plus*minus)
		}
	}

	// ONSET→ON.
	p.setFusion(ModeOnset, ModeOn, ModeOff, ModeOff, plus)
	p.setFusion(ModeOnset, ModeOn, ModeOff, ModeOnset, 1-plus)
	p.setFusion(ModeOnset, ModeOn, ModeOnset, ModeOn, 1)
	p.setFusion(ModeOnset, ModeOn, ModeOn, ModeOff, lagBoth)
	p.setFusion(ModeOnset, ModeOn, ModeOn, ModeOnset, 1-plus)
	p.setFusion(ModeOnset, ModeOn, ModeOn, ModeOn, plus*minus)

	// ON→ON.
	p.setFusion(ModeOn, ModeOn, ModeOff, ModeOff, plus)
	p.setFusion(ModeOn, ModeOn, ModeOff, ModeOnset, 1-plus)
	p.setFusion(ModeOn, ModeOn, ModeOnset, ModeOn, 1)
	p.setFusion(ModeOn, ModeOn, ModeOn, ModeOn, 1)
}
