// Package capture implements the capture driver adapter (C3): display-mode
// enumeration, a go4vl-backed video input, a portaudio-backed audio input,
// and go-udev-based device discovery, wired together behind a single
// Driver that feeds an avslot.Slot exactly as spec.md §4.3 describes.
package capture

// Mode describes one entry of the stable, user-visible display-mode table
// (spec.md §4.3). Index is the mode_index selected by the -m CLI flag.
type Mode struct {
	Index     int
	Name      string
	Width     int
	Height    int
	FPSNum    int
	FPSDen    int
	Interlaced bool
}

// Modes is the fixed 16-entry display-mode table, in index order. Index 14
// (720p59.94) is the daemon's default.
var Modes = []Mode{
	{0, "525i59.94 NTSC", 720, 480, 60000, 1001, true},
	{1, "525p23.98 NTSC", 720, 480, 24000, 1001, false},
	{2, "625i50 PAL", 720, 576, 50, 1, true},
	{3, "525p59.94 NTSC", 720, 480, 60000, 1001, false},
	{4, "625p50 PAL", 720, 576, 50, 1, false},
	{5, "1080p23.98", 1920, 1080, 24000, 1001, false},
	{6, "1080p24", 1920, 1080, 24, 1, false},
	{7, "1080p25", 1920, 1080, 25, 1, false},
	{8, "1080p29.97", 1920, 1080, 30000, 1001, false},
	{9, "1080p30", 1920, 1080, 30, 1, false},
	{10, "1080i50", 1920, 1080, 25, 1, true},
	{11, "1080i59.94", 1920, 1080, 30000, 1001, true},
	{12, "1080i60", 1920, 1080, 30, 1, true},
	{13, "720p50", 1280, 720, 50, 1, false},
	{14, "720p59.94", 1280, 720, 60000, 1001, false},
	{15, "720p60", 1280, 720, 60, 1, false},
}

// DefaultModeIndex is the daemon's default capture display mode (-m 14).
const DefaultModeIndex = 14

// ModeByIndex returns the mode at index, and false if index is out of the
// table's range.
func ModeByIndex(index int) (Mode, bool) {
	if index < 0 || index >= len(Modes) {
		return Mode{}, false
	}
	return Modes[index], true
}

// ModeByName returns the mode whose canonical name matches name, and false
// if no mode in the table has that name. Create selects modes by index and
// does not call it.
func ModeByName(name string) (Mode, bool) {
	for _, m := range Modes {
		if m.Name == name {
			return m, true
		}
	}
	return Mode{}, false
}
