package segmentation

import "fmt"

// Mode labels the global mode or a feature's mode for one frame.
// The numeric values are part of the model: OFF=1, ONSET=2, ON=3.
type Mode uint8

const (
	ModeOff   Mode = 1 // No event
	ModeOnset Mode = 2 // Event starts this frame
	ModeOn    Mode = 3 // Event continues
)

// modeCount is the number of distinct modes.
const modeCount = 3

// allModes lists the modes in encoding order.
var allModes = [modeCount]Mode{ModeOff, ModeOnset, ModeOn}

// index maps a mode to its 0-based table position. This is the only place
// the 1-based encoding is converted.
func (m Mode) index() int {
	return int(m) - 1
}

// Valid reports whether m is one of OFF, ONSET or ON.
func (m Mode) Valid() bool {
	return m >= ModeOff && m <= ModeOn
}

func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModeOnset:
		return "onset"
	case ModeOn:
		return "on"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// MarshalText encodes m by name so mode sequences serialise as
// ["off","onset","on"] rather than as bytes.
func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid mode %d", uint8(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText parses a mode name as produced by MarshalText.
func (m *Mode) UnmarshalText(text []byte) error {
	for _, v := range allModes {
		if v.String() == string(text) {
			*m = v
			return nil
		}
	}
	return fmt.Errorf("unknown mode %q", text)
}
