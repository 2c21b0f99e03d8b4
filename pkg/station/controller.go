package station

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/labelscan/go-labelscan/internal/history"
	"github.com/labelscan/go-labelscan/internal/log"
	"github.com/labelscan/go-labelscan/pkg/camera"
	"github.com/labelscan/go-labelscan/pkg/capture"
	"github.com/labelscan/go-labelscan/pkg/decode"
	"github.com/labelscan/go-labelscan/pkg/lighting"
	"github.com/labelscan/go-labelscan/pkg/storage"
)

// Report is the single terminal message emitted for one intent.
type Report struct {
	RequestID string `json:"request_id"`
	Intent    string `json:"intent"`
	OK        bool   `json:"ok"`
	Code      string `json:"code,omitempty"`
	Error     string `json:"error,omitempty"`

	Capture  *CaptureReport      `json:"capture,omitempty"`
	Focus    *camera.FocusResult `json:"focus,omitempty"`
	Settings *Settings           `json:"settings,omitempty"`
	Lighting string              `json:"lighting,omitempty"`
}

// CaptureReport details a finished capture, including the decode outcome
// when automatic detection ran.
type CaptureReport struct {
	Filename string        `json:"filename"`
	Path     string        `json:"path"`
	Network  bool          `json:"network"`
	Score    float64       `json:"score"`
	Shots    int           `json:"shots"`
	Elapsed  time.Duration `json:"elapsed"`
	Outcome  string        `json:"outcome"` // stored, decoded, not_found, error
	Payload  string        `json:"payload,omitempty"`
}

// Reporter receives every terminal report. Must not block for long.
type Reporter func(Report)

// The collaborators the controller drives, narrowed for testability.
type (
	captureRunner interface {
		Capture(capture.Request) (capture.Result, error)
	}
	focuser interface {
		Focus(timeout time.Duration) camera.FocusResult
	}
	zoomer interface {
		SetZoomPoint(x, y float64)
		ResetZoom()
	}
	lamp interface {
		SetMode(lighting.Mode) error
		Mode() lighting.Mode
	}
	labelDecoder interface {
		Run(path string) (decode.Outcome, error)
	}
)

// Options wires a Controller. Lamp, Decoder and History may be nil: the
// station still captures without lighting control, offline decode or an
// audit trail.
type Options struct {
	Capture  captureRunner
	Focus    focuser
	Zoom     zoomer
	Lamp     lamp
	Decoder  labelDecoder
	History  *history.Store
	Settings *SettingsStore
	Reporter Reporter

	FocusTimeout time.Duration
}

// Controller executes operator intents one at a time.
type Controller struct {
	opts Options
}

// NewController validates the required collaborators and returns the
// command surface.
func NewController(opts Options) *Controller {
	if opts.Settings == nil {
		opts.Settings = NewSettingsStore()
	}
	if opts.FocusTimeout <= 0 {
		opts.FocusTimeout = 5 * time.Second
	}
	return &Controller{opts: opts}
}

// SettingsStore exposes the active settings for the web layer.
func (c *Controller) SettingsStore() *SettingsStore { return c.opts.Settings }

// Capture takes a still with the active settings snapshot, decodes it
// when scan mode and detection mode call for it, and records the scan.
func (c *Controller) Capture() Report {
	rep := Report{RequestID: uuid.NewString(), Intent: "capture"}
	settings := c.opts.Settings.Get()

	profile := camera.GetProfile(settings.QualityMode)
	if profile == nil {
		// Settings are validated on write, so this is a programming error;
		// fall back rather than dropping the capture.
		log.Error("active quality mode has no profile, using standard", "mode", settings.QualityMode)
		p := camera.StandardProfile()
		profile = &p
	}

	res, err := c.opts.Capture.Capture(capture.Request{
		Profile:    *profile,
		Identifier: settings.Identifier,
	})
	if err != nil {
		rep.Code, rep.Error = errorCode(err), err.Error()
		// A restore failure after a successful save still stored the
		// image; record where it actually landed. With no file there is
		// nothing to audit.
		if res.Filename != "" {
			c.record(history.Scan{
				Filename: res.Filename,
				Outcome:  history.OutcomeError,
				Score:    res.Score,
				Target:   targetName(res.Network),
			})
		}
		return c.emit(rep)
	}

	cr := &CaptureReport{
		Filename: res.Filename,
		Path:     res.Path,
		Network:  res.Network,
		Score:    res.Score,
		Shots:    res.Shots,
		Elapsed:  res.Elapsed,
		Outcome:  "stored",
	}

	if settings.ScanMode == ScanDataMatrix && settings.DetectionMode == DetectAuto && c.opts.Decoder != nil {
		out, derr := c.opts.Decoder.Run(res.Path)
		switch {
		case derr != nil:
			log.Warn("decode pipeline error", "file", res.Filename, "err", derr)
			cr.Outcome = history.OutcomeError
		case out.Found:
			cr.Outcome = history.OutcomeDecoded
			cr.Payload = out.Payload
		default:
			cr.Outcome = history.OutcomeNotFound
		}
	}

	c.record(history.Scan{
		Filename: res.Filename,
		Outcome:  cr.Outcome,
		Payload:  cr.Payload,
		Score:    res.Score,
		Target:   targetName(res.Network),
	})

	rep.OK = true
	rep.Capture = cr
	return c.emit(rep)
}

// Focus runs the autofocus routine and reports the latched position.
func (c *Controller) Focus() Report {
	rep := Report{RequestID: uuid.NewString(), Intent: "focus"}
	res := c.opts.Focus.Focus(c.opts.FocusTimeout)
	rep.OK = true
	rep.Focus = &res
	if res.TimedOut {
		rep.Code = "focus_timeout"
	}
	return c.emit(rep)
}

// SetZoomPoint zooms the preview at the fractional coordinate (x, y).
func (c *Controller) SetZoomPoint(x, y float64) Report {
	rep := Report{RequestID: uuid.NewString(), Intent: "zoom"}
	c.opts.Zoom.SetZoomPoint(x, y)
	rep.OK = true
	return c.emit(rep)
}

// ResetZoom restores the full-frame preview.
func (c *Controller) ResetZoom() Report {
	rep := Report{RequestID: uuid.NewString(), Intent: "reset_zoom"}
	c.opts.Zoom.ResetZoom()
	rep.OK = true
	return c.emit(rep)
}

// SetQualityMode selects the capture profile for subsequent captures.
func (c *Controller) SetQualityMode(mode string) Report {
	rep := Report{RequestID: uuid.NewString(), Intent: "quality_mode"}
	err := c.opts.Settings.Update(func(s *Settings) { s.QualityMode = mode })
	if err != nil {
		rep.Code, rep.Error = "bad_request", err.Error()
		return c.emit(rep)
	}
	rep.OK = true
	s := c.opts.Settings.Get()
	rep.Settings = &s
	return c.emit(rep)
}

// SetLightingMode switches the lamp board.
func (c *Controller) SetLightingMode(mode string) Report {
	rep := Report{RequestID: uuid.NewString(), Intent: "lighting"}
	m, err := lighting.ParseMode(mode)
	if err != nil {
		rep.Code, rep.Error = "bad_request", err.Error()
		return c.emit(rep)
	}
	if c.opts.Lamp == nil {
		rep.Code, rep.Error = "no_lamp", "no lamp board connected"
		return c.emit(rep)
	}
	if err := c.opts.Lamp.SetMode(m); err != nil {
		rep.Code, rep.Error = "lamp_failed", err.Error()
		return c.emit(rep)
	}
	rep.OK = true
	rep.Lighting = string(c.opts.Lamp.Mode())
	return c.emit(rep)
}

// emit delivers the report through the reporter exactly once and returns
// it for synchronous callers.
func (c *Controller) emit(rep Report) Report {
	if !rep.OK {
		log.Warn("intent failed", "intent", rep.Intent, "code", rep.Code, "err", rep.Error)
	}
	if c.opts.Reporter != nil {
		c.opts.Reporter(rep)
	}
	return rep
}

func targetName(network bool) string {
	if network {
		return "network"
	}
	return "local"
}

func (c *Controller) record(scan history.Scan) {
	if c.opts.History == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := c.opts.History.Record(ctx, scan); err != nil {
		log.Warn("could not record scan history", "file", scan.Filename, "err", err)
	}
}

// errorCode maps the error taxonomy onto stable wire codes so callers
// can distinguish device, capture and storage failures.
func errorCode(err error) string {
	switch {
	case errors.Is(err, capture.ErrBusy):
		return "busy"
	case errors.Is(err, camera.ErrDeviceNotReady):
		return "device_not_ready"
	case errors.Is(err, camera.ErrReconfigure):
		return "reconfigure_failed"
	case errors.Is(err, camera.ErrCaptureFailed):
		return "capture_failed"
	case errors.Is(err, storage.ErrUnavailable):
		return "storage_unavailable"
	case errors.Is(err, storage.ErrWriteFailed):
		return "storage_failed"
	default:
		return "internal"
	}
}
