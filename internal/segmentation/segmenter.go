package segmentation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/banshee-data/eventseg/internal/monitoring"
)

// DefaultMaxTrellisCells caps joint states × frames, the size of the
// backpointer table (4 bytes per cell).
const DefaultMaxTrellisCells int64 = 1 << 25

var (
	// ErrInvalidParameters reports a feature parameter set the decoder
	// cannot use, such as r <= 0.
	ErrInvalidParameters = errors.New("invalid segmentation parameters")
	// ErrHistoryMismatch reports features with different history lengths
	// or a missing history.
	ErrHistoryMismatch = errors.New("feature history mismatch")
	// ErrStateSpaceTooLarge reports a feature count above the configured
	// ceiling.
	ErrStateSpaceTooLarge = errors.New("joint state space too large")
	// ErrTrellisTooLarge reports states × frames above the configured
	// ceiling.
	ErrTrellisTooLarge = errors.New("viterbi trellis too large")
	// ErrNumeric reports a NaN or overflowing cost during decoding.
	ErrNumeric = errors.New("numeric failure in segmentation")
	// ErrNoPath reports that every joint state ended with infinite cost.
	ErrNoPath = errors.New("no finite-cost mode sequence")
)

// History supplies one feature's pre-computed per-frame values.
type History interface {
	Len() int
	At(frame int) float64
}

// Feature pairs a feature's tunables with its trajectory.
type Feature struct {
	Name    string
	Params  *Parameters
	History History
}

// SegmenterConfig holds the global segmentation settings.
type SegmenterConfig struct {
	PNew            float64 // Probability of a new event starting per frame
	POff            float64 // Probability of a running event ending per frame
	MaxFeatures     int     // Feature ceiling; 0 selects DefaultMaxFeatures
	MaxTrellisCells int64   // States × frames ceiling; 0 selects DefaultMaxTrellisCells
	Workers         int     // Parallel workers per frame; 0 selects GOMAXPROCS

	// Metrics receives decode measurements; nil selects
	// monitoring.DefaultMetrics.
	Metrics *monitoring.Metrics
}

// Segmenter runs batch segmentation over a complete set of feature
// histories. The zero value uses the NewSegmenter defaults with PNew and
// POff of 0. It is not safe for concurrent use.
type Segmenter struct {
	cfg      SegmenterConfig
	features []Feature

	modes    []Mode
	states   []JointState
	segments []Segment
	cost     float64
}

// NewSegmenter creates a Segmenter with the given configuration.
func NewSegmenter(cfg SegmenterConfig) *Segmenter {
	return &Segmenter{cfg: cfg.withDefaults()}
}

func (cfg SegmenterConfig) withDefaults() SegmenterConfig {
	if cfg.MaxFeatures <= 0 {
		cfg.MaxFeatures = DefaultMaxFeatures
	}
	if cfg.MaxTrellisCells <= 0 {
		cfg.MaxTrellisCells = DefaultMaxTrellisCells
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = monitoring.DefaultMetrics()
	}
	return cfg
}

// Config returns the effective configuration.
func (s *Segmenter) Config() SegmenterConfig { return s.cfg }

// SetFeatures replaces the feature set used by the next Segment call.
// Feature order defines the joint state digit order.
func (s *Segmenter) SetFeatures(features []Feature) {
	s.features = append([]Feature(nil), features...)
}

// Features returns the configured features.
func (s *Segmenter) Features() []Feature {
	return append([]Feature(nil), s.features...)
}

// Segment validates the configuration and runs the full decode. On error
// no partial result is kept: Modes and Segments return nil.
func (s *Segmenter) Segment() error {
	return s.SegmentContext(context.Background())
}

// SegmentContext is Segment with cancellation. The context is checked
// between frames.
func (s *Segmenter) SegmentContext(ctx context.Context) error {
	s.modes, s.states, s.segments, s.cost = nil, nil, nil, 0
	s.cfg = s.cfg.withDefaults()
	start := time.Now()

	stats, err := s.segment(ctx)
	s.cfg.Metrics.RecordDecode(ctx, time.Since(start), stats.transitions, stats.frames, len(s.segments), err)
	return err
}

// decodeStats describes the size of one decode for metrics.
type decodeStats struct {
	transitions int
	frames      int
}

func (s *Segmenter) segment(ctx context.Context) (decodeStats, error) {
	var stats decodeStats
	space, frames, err := s.validate()
	if err != nil {
		return stats, err
	}

	// Tunables may have changed since the last call.
	params := make([]*Parameters, len(s.features))
	for i, f := range s.features {
		f.Params.Invalidate()
		f.Params.Initialize()
		params[i] = f.Params
	}

	modes := space.modeMatrix()
	graph, err := buildTransitionGraph(space, modes, ModeTransitions(s.cfg.PNew, s.cfg.POff), params)
	if err != nil {
		return stats, err
	}
	stats.transitions = graph.edges
	monitoring.Logf("segmentation: %d features, %d joint states, %d legal transitions, %d frames, %d workers",
		len(s.features), space.Count(), graph.edges, frames, s.cfg.Workers)

	stop := monitoring.Timed("viterbi")
	d := newDecoder(space, graph, modes, params, frames, s.cfg.Workers)
	path, cost, err := d.run(ctx, func(t int, y []float64) {
		for f, feat := range s.features {
			y[f] = feat.History.At(t)
		}
	})
	stop()
	if err != nil {
		return stats, fmt.Errorf("segment: %w", err)
	}

	width := space.Features() + 1
	s.modes = make([]Mode, len(path))
	s.states = make([]JointState, len(path))
	for t, k := range path {
		s.modes[t] = modes[k*width]
		s.states[t] = JointState(k + 1)
	}
	s.segments = ExtractSegments(s.modes)
	s.cost = cost
	stats.frames = frames

	monitoring.Logf("segmentation: %d segments, path cost %.4f", len(s.segments), cost)
	return stats, nil
}

// validate checks everything that can be rejected before decoding and
// returns the state space and frame count.
func (s *Segmenter) validate() (StateSpace, int, error) {
	if math.IsNaN(s.cfg.PNew) || math.IsInf(s.cfg.PNew, 0) || math.IsNaN(s.cfg.POff) || math.IsInf(s.cfg.POff, 0) {
		return StateSpace{}, 0, fmt.Errorf("%w: p_new and p_off must be finite", ErrInvalidParameters)
	}

	space, err := NewStateSpace(len(s.features), s.cfg.MaxFeatures)
	if err != nil {
		return StateSpace{}, 0, err
	}

	frames := -1
	for i, f := range s.features {
		if f.Params == nil {
			return StateSpace{}, 0, fmt.Errorf("%w: feature %d (%s) has no parameters", ErrInvalidParameters, i, f.Name)
		}
		if err := f.Params.Validate(); err != nil {
			return StateSpace{}, 0, fmt.Errorf("feature %d (%s): %w", i, f.Name, err)
		}
		if f.History == nil {
			return StateSpace{}, 0, fmt.Errorf("%w: feature %d (%s) has no history", ErrHistoryMismatch, i, f.Name)
		}
		n := f.History.Len()
		if frames >= 0 && n != frames {
			return StateSpace{}, 0, fmt.Errorf("%w: feature %d (%s) has %d frames, expected %d",
				ErrHistoryMismatch, i, f.Name, n, frames)
		}
		frames = n
	}
	if frames < 0 {
		// No features: nothing defines a timeline.
		frames = 0
	}

	if cells := int64(space.Count()) * int64(frames); cells > s.cfg.MaxTrellisCells {
		return StateSpace{}, 0, fmt.Errorf("%w: %d states × %d frames = %d cells exceeds %d",
			ErrTrellisTooLarge, space.Count(), frames, cells, s.cfg.MaxTrellisCells)
	}
	return space, frames, nil
}

// Modes returns the decoded global mode per frame.
func (s *Segmenter) Modes() []Mode {
	return append([]Mode(nil), s.modes...)
}

// JointStates returns the decoded joint state per frame.
func (s *Segmenter) JointStates() []JointState {
	return append([]JointState(nil), s.states...)
}

// Segments returns the detected events in frame order.
func (s *Segmenter) Segments() []Segment {
	return append([]Segment(nil), s.segments...)
}

// PathCost returns the total cost of the decoded path.
func (s *Segmenter) PathCost() float64 { return s.cost }
