// Package testutil provides shared test helpers and synthetic feature
// trajectories.
package testutil

import (
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/stat/distuv"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// Step returns n frames that sit at lo before frame jump and at hi from
// frame jump onwards.
func Step(n, jump int, lo, hi float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		if i < jump {
			out[i] = lo
		} else {
			out[i] = hi
		}
	}
	return out
}

// Pulse returns n frames at lo with the half-open frame ranges in spans
// raised to hi. Each span is {start, end}.
func Pulse(n int, lo, hi float64, spans ...[2]int) []float64 {
	out := Step(n, n, lo, lo)
	for _, s := range spans {
		for i := max(s[0], 0); i < min(s[1], n); i++ {
			out[i] = hi
		}
	}
	return out
}

// Noisy returns a copy of values with zero-mean Gaussian noise of the given
// standard deviation added. The same seed always yields the same noise.
func Noisy(values []float64, sigma float64, seed uint64) []float64 {
	noise := distuv.Normal{Mu: 0, Sigma: sigma, Src: rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)}
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v + noise.Rand()
	}
	return out
}

// Uniform returns n values drawn uniformly from [lo, hi).
func Uniform(n int, lo, hi float64, seed uint64) []float64 {
	u := distuv.Uniform{Min: lo, Max: hi, Src: rand.NewPCG(seed, seed+1)}
	out := make([]float64, n)
	for i := range out {
		out[i] = u.Rand()
	}
	return out
}
