package camera

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/labelscan/go-labelscan/internal/clock"
	"github.com/labelscan/go-labelscan/internal/log"
)

var (
	// ErrDeviceNotReady is returned when a frame is requested while the
	// device is stopped or not yet opened.
	ErrDeviceNotReady = errors.New("camera: device not ready")

	// ErrReconfigure is returned when applying a configuration fails or
	// is attempted while the device is running.
	ErrReconfigure = errors.New("camera: reconfigure failed")

	// ErrCaptureFailed is returned when the device fails to deliver a frame.
	ErrCaptureFailed = errors.New("camera: capture failed")
)

// FrameSource owns the physical capture device.
//
// Reconfiguration requires the device to be stopped first, and it
// invalidates any frames dependents still hold from the previous mode, so
// callers must stop and drain consumers before switching.
type FrameSource interface {
	ConfigureStreaming() error
	ConfigureStill(p Profile) error
	CaptureFrame() (*Frame, error)
	SetExposure(d time.Duration) error
	Start() error
	Stop() error
	Close() error

	// Focus runs the autofocus routine: enable continuous autofocus, poll
	// until the lens settles or the timeout elapses, then latch the lens
	// position in manual mode. A timeout is best-effort, not an error.
	Focus(timeout time.Duration) FocusResult
}

// FocusResult reports the outcome of an autofocus routine.
type FocusResult struct {
	Position float64
	Focused  bool
	TimedOut bool
}

// StreamConfig holds the streaming-mode device parameters.
type StreamConfig struct {
	Width     int
	Height    int
	Framerate int
}

const focusPollInterval = 100 * time.Millisecond

// Device is a V4L2 capture device driven through OpenCV.
type Device struct {
	path   string
	stream StreamConfig

	mu      sync.Mutex
	cap     *gocv.VideoCapture
	started bool
	lensPos float64

	clk clock.Clock
}

var _ FrameSource = (*Device)(nil)

// OpenDevice opens the capture device at path (e.g. /dev/video0).
func OpenDevice(path string, stream StreamConfig) (*Device, error) {
	cap, err := gocv.OpenVideoCapture(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if !cap.IsOpened() {
		cap.Close()
		return nil, fmt.Errorf("%w: %s did not open", ErrDeviceNotReady, path)
	}

	d := &Device{
		path:   path,
		stream: stream,
		cap:    cap,
		clk:    clock.Real{},
	}

	// Keep the driver queue shallow so CaptureFrame returns fresh frames.
	cap.Set(gocv.VideoCaptureBufferSize, 1)

	if err := d.ConfigureStreaming(); err != nil {
		cap.Close()
		return nil, err
	}
	return d, nil
}

// SetClock replaces the clock, for tests.
func (d *Device) SetClock(c clock.Clock) { d.clk = c }

// ConfigureStreaming applies the preview resolution and framerate.
func (d *Device) ConfigureStreaming() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return fmt.Errorf("%w: device must be stopped before reconfiguring", ErrReconfigure)
	}
	if d.cap == nil {
		return ErrDeviceNotReady
	}

	d.cap.Set(gocv.VideoCaptureFrameWidth, float64(d.stream.Width))
	d.cap.Set(gocv.VideoCaptureFrameHeight, float64(d.stream.Height))
	d.cap.Set(gocv.VideoCaptureFPS, float64(d.stream.Framerate))
	d.cap.Set(gocv.VideoCaptureAutoExposure, 3) // aperture priority / auto
	log.Debug("camera configured for streaming",
		"width", d.stream.Width, "height", d.stream.Height, "fps", d.stream.Framerate)
	return nil
}

// ConfigureStill applies the still-shot resolution from the profile and
// pins the latched manual focus.
func (d *Device) ConfigureStill(p Profile) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return fmt.Errorf("%w: device must be stopped before reconfiguring", ErrReconfigure)
	}
	if d.cap == nil {
		return ErrDeviceNotReady
	}

	d.cap.Set(gocv.VideoCaptureFrameWidth, float64(p.Width))
	d.cap.Set(gocv.VideoCaptureFrameHeight, float64(p.Height))
	if d.lensPos > 0 {
		d.cap.Set(gocv.VideoCaptureAutoFocus, 0)
		d.cap.Set(gocv.VideoCaptureFocus, d.lensPos)
	}
	log.Debug("camera configured for still",
		"width", p.Width, "height", p.Height, "profile", p.Kind.String())
	return nil
}

// SetExposure applies a manual exposure duration (bracketed captures).
func (d *Device) SetExposure(exp time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cap == nil {
		return ErrDeviceNotReady
	}
	// V4L2 exposure is in 100µs units under manual exposure mode.
	d.cap.Set(gocv.VideoCaptureAutoExposure, 1)
	d.cap.Set(gocv.VideoCaptureExposure, float64(exp.Microseconds())/100.0)
	return nil
}

// Start marks the device as running. The device must be started before
// CaptureFrame is called.
func (d *Device) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cap == nil {
		return ErrDeviceNotReady
	}
	d.started = true
	return nil
}

// Stop halts frame delivery. Configuration changes require a stopped device.
func (d *Device) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started = false
	return nil
}

// CaptureFrame grabs one frame from the device.
func (d *Device) CaptureFrame() (*Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cap == nil || !d.started {
		return nil, ErrDeviceNotReady
	}

	mat := gocv.NewMat()
	if ok := d.cap.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("%w: no frame from %s", ErrCaptureFailed, d.path)
	}
	return NewFrame(mat, time.Now()), nil
}

// Focus enables continuous autofocus, polls the lens position until it
// settles, and then latches it as a fixed manual focus position. If the
// timeout elapses first, the last observed position is latched anyway.
//
// The underlying capture handle is not thread safe and the acquisition
// loop keeps reading frames while the lens hunts, so every device access
// here goes through the lock-holding control helpers, one brief hold per
// poll tick.
func (d *Device) Focus(timeout time.Duration) FocusResult {
	if !d.setControl(gocv.VideoCaptureAutoFocus, 1) {
		return FocusResult{}
	}

	var last float64
	stable := 0
	settled := clock.Poll(d.clk, focusPollInterval, timeout, func() bool {
		pos, ok := d.control(gocv.VideoCaptureFocus)
		if !ok || pos < 0 {
			// Device closed mid-poll, or the driver does not report
			// focus; latch nothing.
			stable = -1
			return true
		}
		if math.Abs(pos-last) < 0.5 {
			stable++
		} else {
			stable = 0
		}
		last = pos
		return stable >= 3
	})

	if stable < 0 {
		log.Warn("autofocus state unavailable, leaving continuous autofocus on", "device", d.path)
		return FocusResult{}
	}

	d.mu.Lock()
	if d.cap == nil {
		d.mu.Unlock()
		return FocusResult{}
	}
	d.lensPos = last
	d.cap.Set(gocv.VideoCaptureAutoFocus, 0)
	d.cap.Set(gocv.VideoCaptureFocus, last)
	d.mu.Unlock()

	res := FocusResult{Position: last, Focused: settled && stable > 0, TimedOut: !settled}
	if res.TimedOut {
		log.Warn("autofocus timed out, latched last lens position", "position", last)
	} else {
		log.Info("autofocus settled", "position", last)
	}
	return res
}

// control reads a capture property under the device lock. ok is false
// when the device has been closed.
func (d *Device) control(prop gocv.VideoCaptureProperties) (value float64, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cap == nil {
		return 0, false
	}
	return d.cap.Get(prop), true
}

// setControl writes a capture property under the device lock.
func (d *Device) setControl(prop gocv.VideoCaptureProperties, v float64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cap == nil {
		return false
	}
	d.cap.Set(prop, v)
	return true
}

// LensPosition returns the latched manual focus position.
func (d *Device) LensPosition() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lensPos
}

// Close stops and releases the device.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started = false
	if d.cap == nil {
		return nil
	}
	err := d.cap.Close()
	d.cap = nil
	return err
}
