package segmentation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func identityBelief() Belief {
	return NewBelief([2]float64{}, [2][2]float64{{1, 0}, {0, 1}})
}

func TestKalmanLPFZeroInnovation(t *testing.T) {
	t.Parallel()

	const q, r, alpha = 0.3, 0.01, 0.05
	beta := 1 - alpha

	b := identityBelief()
	cost := KalmanLPF(0, q, r, alpha, &b)

	// With a zero prior mean the innovation is zero and only the
	// variance term remains.
	s := beta*beta + alpha*alpha + q*beta*beta + r
	assert.InDelta(t, 0.5*math.Log(s), cost, 1e-12)
	assert.Equal(t, [2]float64{}, b.Mean)
}

func TestKalmanLPFMovesTowardObservation(t *testing.T) {
	t.Parallel()

	b := identityBelief()
	KalmanLPF(1, 0.1, 0.01, 0.05, &b)

	assert.Greater(t, b.Mean[1], 0.5)
	assert.LessOrEqual(t, b.Mean[1], 1.0)
	assert.Equal(t, b.Cov[1], b.Cov[2], "covariance must stay symmetric")
	assert.True(t, b.Finite())
}

func TestKalmanLPFPenalisesInnovation(t *testing.T) {
	t.Parallel()

	small, large := identityBelief(), identityBelief()
	c0 := KalmanLPF(0, 1e-4, 0.01, 0.05, &small)
	c1 := KalmanLPF(1, 1e-4, 0.01, 0.05, &large)
	assert.Greater(t, c1, c0)
}

func TestKalmanLPFLargeVarianceIgnoresInnovation(t *testing.T) {
	t.Parallel()

	// As q grows the err²/s term vanishes, so the cost stops depending on
	// the observation. The ln s term grows, so the cost itself does not
	// vanish.
	var prevGap float64
	for i, q := range []float64{1, 1e3, 1e6, UnconstrainedVariance} {
		a, b := identityBelief(), identityBelief()
		gap := KalmanLPF(10, q, 0.01, 0.05, &a) - KalmanLPF(0, q, 0.01, 0.05, &b)
		assert.GreaterOrEqual(t, gap, 0.0)
		if i > 0 {
			assert.Less(t, gap, prevGap)
		}
		prevGap = gap
	}
	assert.Less(t, prevGap, 1e-8)
}

func TestKalmanLPFNaNObservation(t *testing.T) {
	t.Parallel()

	b := identityBelief()
	cost := KalmanLPF(math.NaN(), 0.1, 0.01, 0.05, &b)
	assert.True(t, math.IsNaN(cost))
	assert.False(t, b.Finite())
}
