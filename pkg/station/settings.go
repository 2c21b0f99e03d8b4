// Package station exposes the scan station's command surface: the six
// operator intents (capture, focus, zoom to a point, reset zoom, set
// quality mode, set lighting mode) plus the settings they read. Every
// intent produces exactly one terminal report through the caller's
// reporter, success or failure.
package station

import (
	"fmt"
	"sync"

	"github.com/labelscan/go-labelscan/pkg/camera"
)

// ScanMode selects what a capture does with the stored image.
type ScanMode string

const (
	// ScanDataMatrix decodes the label after every capture.
	ScanDataMatrix ScanMode = "datamatrix"
	// ScanBatch stores images only; decoding happens offline.
	ScanBatch ScanMode = "batch"
)

// DetectionMode selects whether decoding runs automatically.
type DetectionMode string

const (
	DetectAuto   DetectionMode = "auto"
	DetectManual DetectionMode = "manual"
)

// Settings is the operator-tunable state read at capture time. A capture
// sees one consistent snapshot; changes apply to the next capture.
type Settings struct {
	ScanMode      ScanMode      `json:"scan_mode"`
	DetectionMode DetectionMode `json:"detection_mode"`
	QualityMode   string        `json:"quality_mode"`
	Identifier    string        `json:"identifier"`
}

// DefaultSettings is the power-on state.
func DefaultSettings() Settings {
	return Settings{
		ScanMode:      ScanDataMatrix,
		DetectionMode: DetectAuto,
		QualityMode:   camera.ModeStandard,
	}
}

// Validate rejects unknown mode names.
func (s Settings) Validate() error {
	switch s.ScanMode {
	case ScanDataMatrix, ScanBatch:
	default:
		return fmt.Errorf("station: unknown scan mode %q", s.ScanMode)
	}
	switch s.DetectionMode {
	case DetectAuto, DetectManual:
	default:
		return fmt.Errorf("station: unknown detection mode %q", s.DetectionMode)
	}
	if camera.GetProfile(s.QualityMode) == nil {
		return fmt.Errorf("station: unknown quality mode %q", s.QualityMode)
	}
	return nil
}

// SettingsStore holds the active settings behind a lock so the command
// channel and captures never see a torn update.
type SettingsStore struct {
	mu sync.RWMutex
	s  Settings
}

// NewSettingsStore starts from the defaults.
func NewSettingsStore() *SettingsStore {
	return &SettingsStore{s: DefaultSettings()}
}

// Get returns a snapshot of the active settings.
func (st *SettingsStore) Get() Settings {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s
}

// Set replaces the active settings after validation.
func (st *SettingsStore) Set(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	st.mu.Lock()
	st.s = s
	st.mu.Unlock()
	return nil
}

// Update applies fn to a copy of the settings and installs the result if
// it validates.
func (st *SettingsStore) Update(fn func(*Settings)) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	next := st.s
	fn(&next)
	if err := next.Validate(); err != nil {
		return err
	}
	st.s = next
	return nil
}
