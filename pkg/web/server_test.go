package web

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labelscan/go-labelscan/internal/clock"
	"github.com/labelscan/go-labelscan/pkg/camera"
	"github.com/labelscan/go-labelscan/pkg/hub"
	"github.com/labelscan/go-labelscan/pkg/station"
	"github.com/labelscan/go-labelscan/pkg/storage"
)

type nopZoom struct {
	x, y  float64
	reset bool
}

func (z *nopZoom) SetZoomPoint(x, y float64) { z.x, z.y = x, y }
func (z *nopZoom) ResetZoom()                { z.reset = true }

func newTestServer(t *testing.T) (*Server, *nopZoom) {
	t.Helper()

	store, err := storage.NewManager(storage.Options{
		LocalRoot:    t.TempDir(),
		WriteWorkers: 1,
	}, clock.NewFake())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(store.Close)

	zoom := &nopZoom{}
	ctrl := station.NewController(station.Options{Zoom: zoom})

	buf := camera.NewRingBuffer()
	t.Cleanup(buf.Drain)
	events := hub.New("test")
	go events.Run()
	t.Cleanup(events.Stop)

	s := NewServer(Options{
		Bind:       ":0",
		Controller: ctrl,
		Renderer:   camera.NewRenderer(buf, 640, 480, 80, 2.0),
		Store:      store,
		Events:     events,
	})
	return s, zoom
}

func TestSettingsRoundTrip(t *testing.T) {
	s, _ := newTestServer(t)

	resp, err := s.app.Test(httptest.NewRequest("GET", "/api/settings", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("GET /api/settings status = %d", resp.StatusCode)
	}
	var got station.Settings
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.QualityMode != camera.ModeStandard {
		t.Errorf("default quality mode = %q", got.QualityMode)
	}

	body := `{"scan_mode":"batch","detection_mode":"manual","quality_mode":"bracketed","identifier":"lot9"}`
	req := httptest.NewRequest("POST", "/api/settings", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err = s.app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("POST /api/settings status = %d body=%s", resp.StatusCode, raw)
	}

	if got := s.opts.Controller.SettingsStore().Get(); got.ScanMode != station.ScanBatch || got.Identifier != "lot9" {
		t.Errorf("settings after POST = %+v", got)
	}
}

func TestSetSettingsRejectsUnknownModes(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest("POST", "/api/settings", strings.NewReader(`{"scan_mode":"sonar"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 400 {
		t.Errorf("status = %d, want 400 for invalid settings", resp.StatusCode)
	}
}

func TestGetImageNotFound(t *testing.T) {
	s, _ := newTestServer(t)

	resp, err := s.app.Test(httptest.NewRequest("GET", "/api/image/missing.jpg", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 404 {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestStorageStatusAndReset(t *testing.T) {
	s, _ := newTestServer(t)

	resp, err := s.app.Test(httptest.NewRequest("GET", "/api/storage/status", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("GET /api/storage/status status = %d", resp.StatusCode)
	}

	resp, err = s.app.Test(httptest.NewRequest("POST", "/api/storage/reset", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("POST /api/storage/reset status = %d", resp.StatusCode)
	}
}

func TestDispatchIntentZoom(t *testing.T) {
	s, zoom := newTestServer(t)

	s.dispatchIntent([]byte(`{"intent":"zoom_to","x":0.3,"y":0.7}`))
	if zoom.x != 0.3 || zoom.y != 0.7 {
		t.Errorf("zoom point = (%v, %v), want (0.3, 0.7)", zoom.x, zoom.y)
	}

	s.dispatchIntent([]byte(`{"intent":"reset_zoom"}`))
	if !zoom.reset {
		t.Error("reset zoom intent not applied")
	}

	// Unknown and malformed intents must not panic.
	s.dispatchIntent([]byte(`{"intent":"dance"}`))
	s.dispatchIntent([]byte(`not json`))
}

func TestDispatchIntentQualityMode(t *testing.T) {
	s, _ := newTestServer(t)

	s.dispatchIntent([]byte(`{"intent":"quality_mode","mode":"best-of-3"}`))
	if got := s.opts.Controller.SettingsStore().Get().QualityMode; got != camera.ModeBestOf3 {
		t.Errorf("quality mode = %q, want best-of-3", got)
	}
}
