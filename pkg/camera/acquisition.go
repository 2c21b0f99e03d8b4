package camera

import (
	"errors"
	"sync"
	"time"

	"github.com/labelscan/go-labelscan/internal/log"
)

const (
	// notReadyBackoff is how long the loop waits when the device is
	// stopped or a transient capture error occurs.
	notReadyBackoff = 100 * time.Millisecond

	// DefaultJoinTimeout bounds how long Stop waits for the in-flight
	// iteration before abandoning the goroutine.
	DefaultJoinTimeout = 2 * time.Second
)

// AcquisitionLoop continuously pulls frames from a FrameSource into a
// RingBuffer at a target cadence. It is the sole producer for the live
// preview. Transient errors degrade to retry, never terminate the loop.
type AcquisitionLoop struct {
	src      FrameSource
	buf      *RingBuffer
	interval time.Duration

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running bool
}

// NewAcquisitionLoop creates a loop targeting the given framerate.
func NewAcquisitionLoop(src FrameSource, buf *RingBuffer, framerate int) *AcquisitionLoop {
	if framerate <= 0 {
		framerate = 30
	}
	return &AcquisitionLoop{
		src:      src,
		buf:      buf,
		interval: time.Second / time.Duration(framerate),
	}
}

// Start launches the background goroutine. Starting a running loop is a
// no-op.
func (l *AcquisitionLoop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return
	}
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	l.running = true
	go l.run(l.stop, l.done)
	log.Debug("acquisition loop started", "interval", l.interval)
}

// Stop signals the loop and waits up to timeout for the in-flight
// iteration to finish. It returns false when the join timed out and the
// goroutine was abandoned; teardown still proceeds in that case.
func (l *AcquisitionLoop) Stop(timeout time.Duration) bool {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return true
	}
	l.running = false
	stop, done := l.stop, l.done
	l.mu.Unlock()

	close(stop)
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		log.Warn("acquisition loop did not stop in time, abandoning", "timeout", timeout)
		return false
	}
}

// Running reports whether the loop is active.
func (l *AcquisitionLoop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *AcquisitionLoop) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		default:
		}

		frame, err := l.src.CaptureFrame()
		switch {
		case errors.Is(err, ErrDeviceNotReady):
			l.sleep(stop, notReadyBackoff)
			continue
		case err != nil:
			log.Debug("acquisition capture error", "err", err)
			l.sleep(stop, notReadyBackoff)
			continue
		}

		l.buf.Push(frame)
		l.sleep(stop, l.interval)
	}
}

// sleep waits for d but wakes early on stop.
func (l *AcquisitionLoop) sleep(stop <-chan struct{}, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-stop:
	case <-t.C:
	}
}
