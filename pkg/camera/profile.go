package camera

import "time"

// ProfileKind selects the capture strategy for one still shot.
type ProfileKind int

const (
	// Standard takes a single still frame.
	Standard ProfileKind = iota
	// MultiShot takes N frames and keeps the best-scored one.
	MultiShot
	// Bracketed takes one frame per configured exposure and keeps the best.
	Bracketed
)

func (k ProfileKind) String() string {
	switch k {
	case MultiShot:
		return "multishot"
	case Bracketed:
		return "bracketed"
	default:
		return "standard"
	}
}

// Profile describes how one still capture is taken. It is immutable for
// the duration of a capture.
type Profile struct {
	Kind           ProfileKind
	Shots          int           // MultiShot only
	InterShotDelay time.Duration // MultiShot only
	Exposures      []time.Duration

	// Still configuration applied to the device.
	Width  int
	Height int

	// Target encoding quality for the persisted image.
	JPEGQuality int

	// Post-processing flags.
	Denoise  bool
	Contrast bool
	Sharpen  bool
}

// Quality mode names selectable at runtime.
const (
	ModeStandard  = "standard"
	ModeBestOf3   = "best-of-3"
	ModeBracketed = "bracketed"
)

// Profiles returns all selectable capture profiles keyed by quality mode.
func Profiles() map[string]Profile {
	return map[string]Profile{
		ModeStandard:  StandardProfile(),
		ModeBestOf3:   BestOf3Profile(),
		ModeBracketed: BracketedProfile(),
	}
}

// ProfileNames returns the list of selectable quality modes.
func ProfileNames() []string {
	return []string{ModeStandard, ModeBestOf3, ModeBracketed}
}

// GetProfile returns a profile by quality mode name, or nil if unknown.
func GetProfile(name string) *Profile {
	profiles := Profiles()
	if p, ok := profiles[name]; ok {
		return &p
	}
	return nil
}

// StandardProfile is the default single-shot capture.
func StandardProfile() Profile {
	return Profile{
		Kind:        Standard,
		Width:       4624,
		Height:      3472,
		JPEGQuality: 85,
	}
}

// BestOf3Profile takes three shots and keeps the sharpest.
func BestOf3Profile() Profile {
	p := StandardProfile()
	p.Kind = MultiShot
	p.Shots = 3
	p.InterShotDelay = 150 * time.Millisecond
	p.Sharpen = true
	return p
}

// BracketedProfile sweeps three exposures and keeps the best-scored frame.
// Useful under the UV lamp where auto exposure hunts.
func BracketedProfile() Profile {
	p := StandardProfile()
	p.Kind = Bracketed
	p.Exposures = []time.Duration{
		5 * time.Millisecond,
		15 * time.Millisecond,
		40 * time.Millisecond,
	}
	p.Contrast = true
	return p
}

// ShotCount returns how many frames the profile captures.
func (p Profile) ShotCount() int {
	switch p.Kind {
	case MultiShot:
		if p.Shots > 0 {
			return p.Shots
		}
		return 1
	case Bracketed:
		if len(p.Exposures) > 0 {
			return len(p.Exposures)
		}
		return 1
	default:
		return 1
	}
}
