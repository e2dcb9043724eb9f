package segmentation

import "fmt"

// DefaultMaxFeatures bounds the number of features a StateSpace accepts when
// the caller does not configure a ceiling. Six features give 2187 joint
// states and about 6e5 legal transitions per frame.
const DefaultMaxFeatures = 6

// JointState is a 1-based index in [1, Count()] identifying one assignment of
// the global mode and every feature mode.
type JointState int

// StateSpace is the bijection between joint states and mode vectors for a
// fixed number of features. The global mode is the most significant base-3
// digit and the last feature the least significant.
type StateSpace struct {
	features int
	count    int
	// pow[i] = 3^(features-i) is the weight of digit i.
	pow []int
}

// StateCount returns 3^(features+1).
func StateCount(features int) int {
	n := 1
	for i := 0; i <= features; i++ {
		n *= modeCount
	}
	return n
}

// NewStateSpace builds the state space for the given feature count. It
// rejects negative counts and counts above maxFeatures; maxFeatures <= 0
// selects DefaultMaxFeatures.
func NewStateSpace(features, maxFeatures int) (StateSpace, error) {
	if maxFeatures <= 0 {
		maxFeatures = DefaultMaxFeatures
	}
	if features < 0 {
		return StateSpace{}, fmt.Errorf("%w: negative feature count %d", ErrStateSpaceTooLarge, features)
	}
	if features > maxFeatures {
		return StateSpace{}, fmt.Errorf("%w: %d features (%d joint states) exceeds limit of %d features",
			ErrStateSpaceTooLarge, features, StateCount(features), maxFeatures)
	}

	pow := make([]int, features+1)
	w := 1
	for i := features; i >= 0; i-- {
		pow[i] = w
		w *= modeCount
	}
	return StateSpace{features: features, count: w, pow: pow}, nil
}

// Features returns the number of features M.
func (s StateSpace) Features() int { return s.features }

// Count returns the number of joint states, 3^(M+1).
func (s StateSpace) Count() int { return s.count }

// Contains reports whether js is a valid index for this space.
func (s StateSpace) Contains(js JointState) bool {
	return js >= 1 && int(js) <= s.count
}

// Decode returns the M+1 mode labels of js, global mode first.
// It panics if js is out of range.
func (s StateSpace) Decode(js JointState) []Mode {
	modes := make([]Mode, s.features+1)
	s.DecodeInto(js, modes)
	return modes
}

// DecodeInto writes the mode labels of js into dst, which must have length
// M+1. It panics if js is out of range.
func (s StateSpace) DecodeInto(js JointState, dst []Mode) {
	if !s.Contains(js) {
		panic(fmt.Sprintf("segmentation: joint state %d out of range [1, %d]", js, s.count))
	}
	rest := int(js) - 1
	for i, w := range s.pow {
		dst[i] = allModes[rest/w]
		rest %= w
	}
}

// Encode is the inverse of Decode. It panics if modes has the wrong length
// or holds an invalid mode.
func (s StateSpace) Encode(modes []Mode) JointState {
	if len(modes) != s.features+1 {
		panic(fmt.Sprintf("segmentation: encode needs %d modes, got %d", s.features+1, len(modes)))
	}
	idx := 0
	for i, m := range modes {
		if !m.Valid() {
			panic(fmt.Sprintf("segmentation: invalid mode %d at position %d", m, i))
		}
		idx += m.index() * s.pow[i]
	}
	return JointState(idx + 1)
}

// modeMatrix decodes every joint state once. Row k (0-based, state k+1)
// occupies [k*(M+1), (k+1)*(M+1)).
func (s StateSpace) modeMatrix() []Mode {
	width := s.features + 1
	out := make([]Mode, s.count*width)
	for k := 0; k < s.count; k++ {
		s.DecodeInto(JointState(k+1), out[k*width:(k+1)*width])
	}
	return out
}
