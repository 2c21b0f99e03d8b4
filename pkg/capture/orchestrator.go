package capture

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"github.com/labelscan/go-labelscan/internal/clock"
	"github.com/labelscan/go-labelscan/internal/log"
	"github.com/labelscan/go-labelscan/pkg/camera"
	"github.com/labelscan/go-labelscan/pkg/storage"
)

// ErrBusy is returned when a capture request arrives while another
// capture is still in flight. The device cannot serve two
// configurations at once, so the second request is rejected outright.
var ErrBusy = errors.New("capture: capture already in progress")

// State names the current phase of a capture. Exposed for status
// reporting only; transitions are internal.
type State int

const (
	Streaming State = iota
	Pausing
	Reconfiguring
	Capturing
	Scoring
	PostProcessing
	Persisting
	Restoring
)

func (s State) String() string {
	switch s {
	case Pausing:
		return "pausing"
	case Reconfiguring:
		return "reconfiguring"
	case Capturing:
		return "capturing"
	case Scoring:
		return "scoring"
	case PostProcessing:
		return "postprocessing"
	case Persisting:
		return "persisting"
	case Restoring:
		return "restoring"
	default:
		return "streaming"
	}
}

// Request describes one still capture.
type Request struct {
	Profile camera.Profile

	// Identifier is an optional operator-supplied suffix for the stored
	// file name.
	Identifier string
}

// Result reports a completed capture.
type Result struct {
	Filename string
	Path     string
	Network  bool // stored on the network share rather than local fallback
	Score    float64
	Shots    int
	Elapsed  time.Duration
}

// Orchestrator runs the capture state machine. One capture at a time.
type Orchestrator struct {
	src   camera.FrameSource
	loop  *camera.AcquisitionLoop
	store *storage.Manager
	clk   clock.Clock

	scorer      Scorer
	joinTimeout time.Duration

	busy atomic.Bool

	mu    sync.Mutex
	state State
}

// New builds an orchestrator around an already-streaming pipeline.
func New(src camera.FrameSource, loop *camera.AcquisitionLoop, store *storage.Manager, clk clock.Clock) *Orchestrator {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Orchestrator{
		src:         src,
		loop:        loop,
		store:       store,
		clk:         clk,
		scorer:      QualityScore,
		joinTimeout: camera.DefaultJoinTimeout,
	}
}

// SetScorer replaces the frame quality scorer, for tests.
func (o *Orchestrator) SetScorer(fn Scorer) { o.scorer = fn }

// State returns the current capture phase.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Capture executes one full capture cycle and returns the stored file.
// Whatever fails mid-cycle, the device is restored to streaming before
// the error is surfaced. A second concurrent call fails with ErrBusy.
func (o *Orchestrator) Capture(req Request) (Result, error) {
	if !o.busy.CompareAndSwap(false, true) {
		return Result{}, ErrBusy
	}
	defer o.busy.Store(false)

	start := o.clk.Now()
	log.Info("capture started", "profile", req.Profile.Kind.String(), "shots", req.Profile.ShotCount())

	o.setState(Pausing)
	if !o.loop.Stop(o.joinTimeout) {
		// Best effort: a wedged loop iteration must not block the capture.
		log.Warn("proceeding with capture despite unjoined acquisition loop")
	}

	o.setState(Reconfiguring)
	if err := o.src.Stop(); err != nil {
		return o.fail(fmt.Errorf("stop for reconfigure: %w", err))
	}
	if err := o.src.ConfigureStill(req.Profile); err != nil {
		return o.fail(fmt.Errorf("apply still configuration: %w", err))
	}
	if err := o.src.Start(); err != nil {
		return o.fail(fmt.Errorf("restart for still capture: %w", err))
	}

	best, score, err := o.captureBest(req.Profile)
	if err != nil {
		return o.fail(err)
	}

	o.setState(PostProcessing)
	final := postProcess(best.Mat, req.Profile)
	best.Close()

	o.setState(Persisting)
	name := Filename(o.clk.Now(), req.Identifier)
	data, err := encodeJPEG(final, req.Profile.JPEGQuality)
	final.Close()
	if err != nil {
		return o.fail(fmt.Errorf("encode %s: %w", name, err))
	}
	path, err := o.store.SaveBytes(name, data)
	if err != nil {
		return o.fail(fmt.Errorf("persist %s: %w", name, err))
	}

	o.setState(Restoring)
	restoreErr := o.restoreStreaming()
	o.setState(Streaming)

	res := Result{
		Filename: name,
		Path:     path,
		Network:  o.store.OnNetwork(path),
		Score:    score,
		Shots:    req.Profile.ShotCount(),
		Elapsed:  o.clk.Now().Sub(start),
	}
	if restoreErr != nil {
		// The image is safely stored but the preview is degraded; the
		// caller needs to know both.
		return res, fmt.Errorf("capture stored as %s but streaming restore failed: %w", name, restoreErr)
	}
	log.Info("capture complete", "file", name, "score", score, "elapsed", res.Elapsed)
	return res, nil
}

// fail runs the emergency-restore path and surfaces the original error,
// joined with the restore error if that failed too.
func (o *Orchestrator) fail(err error) (Result, error) {
	log.Error("capture failed, restoring streaming", "err", err)
	if rerr := o.restoreStreaming(); rerr != nil {
		log.Error("emergency streaming restore failed", "err", rerr)
		err = errors.Join(err, rerr)
	}
	o.setState(Streaming)
	return Result{}, err
}

// restoreStreaming puts the device back into preview mode and restarts
// the acquisition loop.
func (o *Orchestrator) restoreStreaming() error {
	var errs []error
	if err := o.src.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop device: %w", err))
	}
	if err := o.src.ConfigureStreaming(); err != nil {
		errs = append(errs, fmt.Errorf("restore streaming configuration: %w", err))
	}
	if err := o.src.Start(); err != nil {
		errs = append(errs, fmt.Errorf("restart device: %w", err))
	}
	o.loop.Start()
	return errors.Join(errs...)
}

// captureBest takes the profile's shots and returns the highest-scored
// frame. The caller owns the returned frame.
func (o *Orchestrator) captureBest(p camera.Profile) (*camera.Frame, float64, error) {
	var best *camera.Frame
	bestScore := 0.0

	keep := func(f *camera.Frame, score float64) {
		if best == nil || score > bestScore {
			if best != nil {
				best.Close()
			}
			best, bestScore = f, score
			return
		}
		f.Close()
	}

	shoot := func() (*camera.Frame, float64, error) {
		o.setState(Capturing)
		f, err := o.src.CaptureFrame()
		if err != nil {
			return nil, 0, fmt.Errorf("still capture: %w", err)
		}
		o.setState(Scoring)
		return f, o.scorer(f.Mat), nil
	}

	switch p.Kind {
	case camera.Bracketed:
		for _, exp := range p.Exposures {
			if err := o.src.SetExposure(exp); err != nil {
				if best != nil {
					best.Close()
				}
				return nil, 0, fmt.Errorf("set exposure %s: %w", exp, err)
			}
			f, score, err := shoot()
			if err != nil {
				if best != nil {
					best.Close()
				}
				return nil, 0, err
			}
			log.Debug("bracketed shot scored", "exposure", exp, "score", score)
			keep(f, score)
		}
	case camera.MultiShot:
		for i := 0; i < p.ShotCount(); i++ {
			f, score, err := shoot()
			if err != nil {
				if best != nil {
					best.Close()
				}
				return nil, 0, err
			}
			log.Debug("multishot frame scored", "shot", i+1, "score", score)
			keep(f, score)
			if i < p.ShotCount()-1 {
				o.clk.Sleep(p.InterShotDelay)
			}
		}
	default:
		f, score, err := shoot()
		if err != nil {
			return nil, 0, err
		}
		keep(f, score)
	}

	if best == nil {
		return nil, 0, camera.ErrCaptureFailed
	}
	return best, bestScore, nil
}

// Filename derives the stored name from a timestamp at second precision
// plus the optional operator identifier.
func Filename(ts time.Time, identifier string) string {
	base := ts.Format("20060102_150405")
	id := sanitizeIdentifier(identifier)
	if id != "" {
		return base + "_" + id + ".jpg"
	}
	return base + ".jpg"
}

// sanitizeIdentifier keeps the operator suffix filesystem-safe.
func sanitizeIdentifier(id string) string {
	id = strings.TrimSpace(id)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_':
			return r
		case r == ' ':
			return '-'
		default:
			return -1
		}
	}, id)
}

// encodeJPEG encodes a frame at the given quality.
func encodeJPEG(mat gocv.Mat, quality int) ([]byte, error) {
	if quality <= 0 {
		quality = 85
	}
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, err
	}
	defer buf.Close()

	data := make([]byte, len(buf.GetBytes()))
	copy(data, buf.GetBytes())
	return data, nil
}
