package segmentation

import "math"

// Belief is the Gaussian state of one feature's Kalman low-pass filter under
// one transition hypothesis. Mean[0] is the previous filtered estimate and
// Mean[1] the low-pass output. Cov is the 2x2 covariance, row-major.
type Belief struct {
	Mean [2]float64
	Cov  [4]float64
}

// NewBelief builds a belief from an initial mean and covariance.
func NewBelief(x [2]float64, p [2][2]float64) Belief {
	return Belief{
		Mean: x,
		Cov:  [4]float64{p[0][0], p[0][1], p[1][0], p[1][1]},
	}
}

// Finite reports whether every mean and covariance entry is finite.
func (b *Belief) Finite() bool {
	for _, v := range b.Mean {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	for _, v := range b.Cov {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// KalmanLPF advances b by one frame given observation y, process noise q,
// measurement noise r and low-pass coefficient alpha. It returns the
// negative log-likelihood of y (up to a constant): 0.5*(ln s + err²/s),
// where err is the innovation and s its variance.
func KalmanLPF(y, q, r, alpha float64, b *Belief) float64 {
	x := &b.Mean
	p := &b.Cov // p[0]=p00 p[1]=p01 p[2]=p10 p[3]=p11
	beta := 1 - alpha

	// Prediction.
	x[1] = beta*x[0] + alpha*x[1]

	// Prediction covariance.
	p[3] = p[0]*beta*beta + 2*p[1]*alpha*beta + p[3]*alpha*alpha + q*beta*beta
	p[2] = p[0]*beta + p[2]*alpha + q*beta
	p[1] = p[2]
	p[0] += q

	// Innovation and residual variance.
	err := y - x[1]
	s := p[3] + r

	// Kalman gain.
	k0 := p[1] / s
	k1 := p[3] / s

	// Posterior covariance.
	p[0] -= k0 * p[1]
	p[2] -= k0 * p[3]
	p[1] = p[2]
	p[3] -= k1 * p[3]

	// Posterior mean.
	x[0] += k0 * err
	x[1] += k1 * err

	return 0.5 * (math.Log(s) + err*err/s)
}
