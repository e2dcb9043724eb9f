// Package segmentation owns the multi-feature event segmentation engine.
//
// Responsibilities: deciding, for every analysis frame, whether a sound
// event is absent (OFF), starting (ONSET) or present (ON), and turning the
// decoded mode sequence into event intervals.
//
// The model is a switching state-space model. A joint state couples one
// global mode with one lagged mode per feature, giving 3^(M+1) states for M
// features. Each feature trajectory is scored by a two-state Kalman
// low-pass filter whose process noise depends on the feature's mode
// transition. A Viterbi pass over the joint states, with prior transition
// probabilities from the global mode logic and each feature's fusion table,
// yields the minimum-cost path. Only the surviving belief per destination
// state is carried to the next frame (Gaussian collapse).
//
// Key types: Mode, Parameters, StateSpace, Belief, Segmenter, Segment.
//
// Dependency rule: this package performs no I/O. Feature trajectories are
// supplied through the History interface; see internal/featureio.
package segmentation
