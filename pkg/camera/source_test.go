package camera

import (
	"errors"
	"testing"
	"time"

	"github.com/labelscan/go-labelscan/internal/clock"
)

// A closed (or never-opened) device must refuse every operation without
// touching the freed capture handle. Focus in particular runs on its own
// goroutine and can race a concurrent Close, so its per-tick control
// reads recheck the handle under the lock.
func TestClosedDeviceRefusesOperations(t *testing.T) {
	d := &Device{clk: clock.NewFake()}

	if res := d.Focus(time.Second); res != (FocusResult{}) {
		t.Errorf("Focus() on closed device = %+v, want zero result", res)
	}
	if _, err := d.CaptureFrame(); !errors.Is(err, ErrDeviceNotReady) {
		t.Errorf("CaptureFrame() error = %v, want ErrDeviceNotReady", err)
	}
	if err := d.SetExposure(10 * time.Millisecond); !errors.Is(err, ErrDeviceNotReady) {
		t.Errorf("SetExposure() error = %v, want ErrDeviceNotReady", err)
	}
	if err := d.ConfigureStreaming(); !errors.Is(err, ErrDeviceNotReady) {
		t.Errorf("ConfigureStreaming() error = %v, want ErrDeviceNotReady", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close() on closed device error = %v", err)
	}
}

func TestClosedDeviceControlHelpers(t *testing.T) {
	d := &Device{}

	if _, ok := d.control(0); ok {
		t.Error("control() reported ok on a closed device")
	}
	if d.setControl(0, 1) {
		t.Error("setControl() reported ok on a closed device")
	}
}
