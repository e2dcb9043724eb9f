package segmentation

// Segment is a detected event: Start is the ONSET frame (or 0 when the
// recording begins mid-event) and End is the first following OFF frame, or
// the last frame when the event runs to the end of the recording.
type Segment struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns End-Start.
func (s Segment) Len() int { return s.End - s.Start }

// ExtractSegments converts a global mode sequence into event intervals.
// An ONSET on the final frame is ignored. A re-onset inside a running
// event is folded into it, so segments never overlap.
func ExtractSegments(modes []Mode) []Segment {
	var segments []Segment
	n := len(modes)

	for i := 0; i < n-1; i++ {
		if modes[i] != ModeOnset && !(i == 0 && modes[i] == ModeOn) {
			continue
		}

		end := n - 1
		for j := i + 1; j < n; j++ {
			if modes[j] == ModeOff {
				end = j
				break
			}
		}
		segments = append(segments, Segment{Start: i, End: end})

		if end == n-1 {
			break
		}
		// modes[end] is OFF; resume after it.
		i = end
	}
	return segments
}
