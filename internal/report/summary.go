// Package report summarises and renders segmentation results: per-segment
// feature statistics, a PNG overview plot and an interactive HTML chart.
package report

import (
	"encoding/json"
	"fmt"
	"io"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/eventseg/internal/featureio"
	"github.com/banshee-data/eventseg/internal/segmentation"
)

// FeatureStats describes one feature over one segment.
type FeatureStats struct {
	Name   string  `json:"name"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// SegmentSummary holds the statistics of every feature over the frames a
// segment covers.
type SegmentSummary struct {
	segmentation.Segment
	Frames   int            `json:"frames"`
	Features []FeatureStats `json:"features"`
}

// segmentSpan returns the half-open frame range of seg. A segment ends at
// its terminating OFF frame, which is excluded, unless the event runs to
// the end of the recording, in which case the last frame is still ON and is
// included.
func segmentSpan(seg segmentation.Segment, modes []segmentation.Mode) (lo, hi int) {
	lo, hi = seg.Start, seg.End
	if last := len(modes) - 1; seg.End == last && modes[last] != segmentation.ModeOff {
		hi = last + 1
	}
	return lo, hi
}

// Summarize computes per-segment statistics for every column of t. modes
// is the decoded global mode sequence the segments came from. Segments are
// clipped to the table length.
func Summarize(t *featureio.Table, modes []segmentation.Mode, segments []segmentation.Segment) []SegmentSummary {
	out := make([]SegmentSummary, 0, len(segments))
	n := t.Frames()
	for _, seg := range segments {
		lo, hi := segmentSpan(seg, modes)
		lo, hi = max(lo, 0), min(hi, n)
		sum := SegmentSummary{Segment: seg, Frames: max(hi-lo, 0)}
		if sum.Frames > 0 {
			for i, col := range t.Columns {
				x := col[lo:hi]
				mean, std := stat.MeanStdDev(x, nil)
				if len(x) < 2 {
					std = 0
				}
				sum.Features = append(sum.Features, FeatureStats{
					Name:   t.Names[i],
					Mean:   mean,
					StdDev: std,
					Min:    floats.Min(x),
					Max:    floats.Max(x),
				})
			}
		}
		out = append(out, sum)
	}
	return out
}

// Result is the exported form of one segmentation run.
type Result struct {
	Source    string                 `json:"source"`
	Features  []string               `json:"features"`
	Frames    int                    `json:"frames"`
	PathCost  float64                `json:"path_cost"`
	Modes     []segmentation.Mode    `json:"modes"`
	Segments  []segmentation.Segment `json:"segments"`
	Summaries []SegmentSummary       `json:"summaries"`
}

// WriteJSON writes r as indented JSON.
func WriteJSON(w io.Writer, r *Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}

// WriteText writes one line per segment in a human-readable form.
func WriteText(w io.Writer, summaries []SegmentSummary) error {
	for i, s := range summaries {
		if _, err := fmt.Fprintf(w, "segment %d: frames %d-%d (%d frames)", i+1, s.Start, s.End, s.Frames); err != nil {
			return err
		}
		for _, f := range s.Features {
			if _, err := fmt.Fprintf(w, " %s=%.3f±%.3f", f.Name, f.Mean, f.StdDev); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}
