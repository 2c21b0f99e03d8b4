package camera

import (
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// fakeSource is an in-memory FrameSource for loop and orchestration tests.
type fakeSource struct {
	mu          sync.Mutex
	started     bool
	notReady    int // number of initial CaptureFrame calls answering not-ready
	captures    int
	configured  string // "streaming" or "still"
	reconfigErr error
	captureErr  error
	exposures   []time.Duration
}

func (s *fakeSource) ConfigureStreaming() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reconfigErr != nil {
		return s.reconfigErr
	}
	s.configured = "streaming"
	return nil
}

func (s *fakeSource) ConfigureStill(Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reconfigErr != nil {
		return s.reconfigErr
	}
	s.configured = "still"
	return nil
}

func (s *fakeSource) SetExposure(d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exposures = append(s.exposures, d)
	return nil
}

func (s *fakeSource) CaptureFrame() (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil, ErrDeviceNotReady
	}
	if s.notReady > 0 {
		s.notReady--
		return nil, ErrDeviceNotReady
	}
	if s.captureErr != nil {
		return nil, s.captureErr
	}
	s.captures++
	mat := gocv.NewMatWithSize(8, 8, gocv.MatTypeCV8UC3)
	return NewFrame(mat, time.Now()), nil
}

func (s *fakeSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return nil
}

func (s *fakeSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	return nil
}

func (s *fakeSource) Close() error { return nil }

func (s *fakeSource) Focus(time.Duration) FocusResult {
	return FocusResult{Position: 4.2, Focused: true}
}

func (s *fakeSource) captureCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.captures
}
