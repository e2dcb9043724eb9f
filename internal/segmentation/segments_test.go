package segmentation

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func modesOf(v ...int) []Mode {
	out := make([]Mode, len(v))
	for i, m := range v {
		out[i] = Mode(m)
	}
	return out
}

func TestExtractSegments(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		modes []Mode
		want  []Segment
	}{
		{
			name:  "single event ends at first off",
			modes: modesOf(1, 1, 2, 3, 3, 1),
			want:  []Segment{{Start: 2, End: 5}},
		},
		{
			name:  "already on at recording start",
			modes: modesOf(3, 3, 1, 1),
			want:  []Segment{{Start: 0, End: 2}},
		},
		{
			name:  "onset at frame zero",
			modes: modesOf(2, 3, 1),
			want:  []Segment{{Start: 0, End: 2}},
		},
		{
			name:  "runs to the last frame",
			modes: modesOf(1, 2, 3, 3),
			want:  []Segment{{Start: 1, End: 3}},
		},
		{
			name:  "two events",
			modes: modesOf(2, 3, 1, 1, 2, 3, 1),
			want:  []Segment{{Start: 0, End: 2}, {Start: 4, End: 6}},
		},
		{
			name:  "re-onset folds into running event",
			modes: modesOf(1, 2, 3, 2, 3, 1, 1),
			want:  []Segment{{Start: 1, End: 5}},
		},
		{
			name:  "onset on last frame is ignored",
			modes: modesOf(1, 1, 1, 2),
			want:  nil,
		},
		{
			name:  "on at start with onset on last frame",
			modes: modesOf(3, 1, 2),
			want:  []Segment{{Start: 0, End: 1}},
		},
		{
			name:  "on later without onset is not an event",
			modes: modesOf(1, 3, 3, 1),
			want:  nil,
		},
		{
			name:  "all off",
			modes: modesOf(1, 1, 1),
			want:  nil,
		},
		{
			name:  "single frame on",
			modes: modesOf(3),
			want:  nil,
		},
		{
			name:  "empty",
			modes: nil,
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ExtractSegments(tt.modes)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ExtractSegments mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSegmentLen(t *testing.T) {
	t.Parallel()
	if got := (Segment{Start: 2, End: 5}).Len(); got != 3 {
		t.Errorf("Len() = %d, want 3", got)
	}
}
