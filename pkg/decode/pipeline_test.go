package decode

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"gocv.io/x/gocv"
)

// scriptedDecoder misses until a chosen call number, then succeeds.
type scriptedDecoder struct {
	calls     int
	succeedOn int // 1-based call index; 0 never succeeds
	payload   string
}

func (d *scriptedDecoder) Decode(gocv.Mat) (string, error) {
	d.calls++
	if d.succeedOn > 0 && d.calls == d.succeedOn {
		return d.payload, nil
	}
	return "", ErrNoCode
}

// labelFrame draws a bright filled rectangle on a dark background: a
// segmentable label with no decodable pattern on it.
func labelFrame(t *testing.T) gocv.Mat {
	t.Helper()
	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC1)
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	gocv.Rectangle(&frame, image.Rect(100, 100, 300, 200), white, -1)
	return frame
}

func TestRunMatSegmentsLabelButReportsMiss(t *testing.T) {
	frame := labelFrame(t)
	defer frame.Close()

	dec := &scriptedDecoder{} // never decodes
	p := New(dec, Options{})

	out, err := p.RunMat(frame, "shot")
	if err != nil {
		t.Fatalf("RunMat() error = %v", err)
	}
	if out.Found {
		t.Fatal("outcome reports a decode on an undecodable frame")
	}
	if out.Region == nil {
		t.Fatal("segmentation found no region for a clear white rectangle")
	}
	if out.Region.WhiteRatio < 0.3 {
		t.Errorf("region white ratio = %.2f, want >= 0.3", out.Region.WhiteRatio)
	}
	want := image.Rect(100, 100, 300, 200)
	if !out.Region.Rect.Overlaps(want) {
		t.Errorf("region %v does not overlap drawn label %v", out.Region.Rect, want)
	}
}

func TestSweepOrderTriesRotationZeroFirst(t *testing.T) {
	frame := labelFrame(t)
	defer frame.Close()

	// Succeed on the second attempt, standing in for a pattern that only
	// reads after one quarter turn.
	dec := &scriptedDecoder{succeedOn: 2, payload: "LBL-0042"}
	p := New(dec, Options{})

	var attempts []Attempt
	p.OnAttempt = func(a Attempt) { attempts = append(attempts, a) }

	out, err := p.RunMat(frame, "shot")
	if err != nil {
		t.Fatalf("RunMat() error = %v", err)
	}
	if !out.Found || out.Payload != "LBL-0042" {
		t.Fatalf("outcome = %+v, want decoded LBL-0042", out)
	}

	if len(attempts) != 2 {
		t.Fatalf("recorded %d attempts, want 2 (short-circuit on success)", len(attempts))
	}
	if attempts[0] != (Attempt{Strategy: StrategyOtsu, Rotation: 0}) {
		t.Errorf("first attempt = %+v, want otsu at 0 degrees", attempts[0])
	}
	if attempts[1] != (Attempt{Strategy: StrategyOtsu, Rotation: 90}) {
		t.Errorf("second attempt = %+v, want otsu at 90 degrees", attempts[1])
	}
	if out.Attempt != attempts[1] {
		t.Errorf("outcome attempt = %+v, want %+v", out.Attempt, attempts[1])
	}
}

func TestSweepExhaustsFullMatrix(t *testing.T) {
	frame := labelFrame(t)
	defer frame.Close()

	dec := &scriptedDecoder{}
	p := New(dec, Options{})

	var attempts []Attempt
	p.OnAttempt = func(a Attempt) { attempts = append(attempts, a) }

	if _, err := p.RunMat(frame, "shot"); err != nil {
		t.Fatalf("RunMat() error = %v", err)
	}

	// Two full-frame passes (raw, preprocessed) of 4 strategies x 4
	// rotations, then the cropped pass of 2 strategies x 4 rotations.
	want := 2*len(directStrategies)*len(rotations) + len(croppedStrategies)*len(rotations)
	if len(attempts) != want {
		t.Errorf("recorded %d attempts, want %d", len(attempts), want)
	}
}

func TestRunMatNoRegionOnEmptyFrame(t *testing.T) {
	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC1)
	defer frame.Close()

	p := New(&scriptedDecoder{}, Options{})
	out, err := p.RunMat(frame, "dark")
	if err != nil {
		t.Fatalf("RunMat() error = %v", err)
	}
	if out.Found || out.Region != nil {
		t.Errorf("outcome = %+v, want plain miss with no region", out)
	}
}

func TestRunRejectsUnreadablePath(t *testing.T) {
	p := New(&scriptedDecoder{}, Options{})
	if _, err := p.Run("/nonexistent/shot.jpg"); !errors.Is(err, ErrUnreadable) {
		t.Errorf("Run() error = %v, want ErrUnreadable", err)
	}
}

func TestDebugArtifactSavedForSegmentedRegion(t *testing.T) {
	frame := labelFrame(t)
	defer frame.Close()

	p := New(&scriptedDecoder{}, Options{DebugArtifacts: true})
	var saved []string
	p.SetArtifactSaver(func(name string, data []byte) {
		if len(data) == 0 {
			t.Errorf("artifact %s has no data", name)
		}
		saved = append(saved, name)
	})

	if _, err := p.RunMat(frame, "shot"); err != nil {
		t.Fatalf("RunMat() error = %v", err)
	}
	if len(saved) != 1 || saved[0] != "shot_label_debug.jpg" {
		t.Errorf("saved artifacts = %v, want [shot_label_debug.jpg]", saved)
	}
}
